package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"framesched/internal/tickrate"
	"framesched/internal/timectl"
)

const (
	DefaultTargetFrameRate = 60
	DefaultFrameInterval   = 16 * time.Millisecond
	DefaultFixedStep       = 20 * time.Millisecond
	DefaultMaxFrameTime    = 250 * time.Millisecond
)

// Loop is LoopConfig with defaults applied and durations parsed.
type Loop struct {
	TargetFrameRate int
	FrameInterval   time.Duration
	FixedStep       time.Duration
	MaxFrameTime    time.Duration
	Paused          bool
}

func (c LoopConfig) Resolve() (Loop, error) {
	out := Loop{TargetFrameRate: DefaultTargetFrameRate, Paused: c.Paused}
	if c.TargetFrameRate != nil {
		out.TargetFrameRate = *c.TargetFrameRate
	}
	var err error
	if out.FrameInterval, err = durationField("loop.frame_interval", c.FrameInterval, DefaultFrameInterval); err != nil {
		return Loop{}, err
	}
	if out.FixedStep, err = durationField("loop.fixed_step", c.FixedStep, DefaultFixedStep); err != nil {
		return Loop{}, err
	}
	if out.MaxFrameTime, err = durationField("loop.max_frame_time", c.MaxFrameTime, DefaultMaxFrameTime); err != nil {
		return Loop{}, err
	}
	if out.MaxFrameTime < out.FixedStep {
		return Loop{}, fmt.Errorf("loop.max_frame_time: %s is shorter than fixed_step %s", out.MaxFrameTime, out.FixedStep)
	}
	return out, nil
}

// Trigger is a parsed TriggerConfig.
type Trigger struct {
	Name     string
	Spec     string
	Schedule cron.Schedule
	Duration time.Duration
	Rate     tickrate.Rate
	Group    timectl.Group
}

func (c TriggerConfig) Resolve() (Trigger, error) {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return Trigger{}, fmt.Errorf("name is required")
	}
	spec := strings.TrimSpace(c.Schedule)
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return Trigger{}, fmt.Errorf("%s: schedule %q: %w", name, c.Schedule, err)
	}
	d, err := durationField(name+".duration", c.Duration, 0)
	if err != nil {
		return Trigger{}, err
	}
	if d <= 0 {
		return Trigger{}, fmt.Errorf("%s.duration: must be > 0", name)
	}
	rate, err := tickrate.ParseRate(c.TickRate)
	if err != nil {
		return Trigger{}, fmt.Errorf("%s.tick_rate: %w", name, err)
	}
	group, err := timectl.ParseGroup(c.Group)
	if err != nil {
		return Trigger{}, fmt.Errorf("%s.group: %w", name, err)
	}
	return Trigger{Name: name, Spec: spec, Schedule: sched, Duration: d, Rate: rate, Group: group}, nil
}

// durationField parses a Go duration string. Empty or zero returns def.
func durationField(path, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	if d == 0 {
		return def, nil
	}
	return d, nil
}
