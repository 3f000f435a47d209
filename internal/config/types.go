package config

import (
	logx "framesched/pkg/logx"
)

type Config struct {
	Logging LoggingConfig `json:"logging"`

	// Loop drives the frame clock (target rate, fixed step, pause).
	Loop LoopConfig `json:"loop"`

	// Channels sets initial per-group time scale and pause state. Applied on
	// start and on every reload.
	Channels ChannelsConfig `json:"channels"`

	// Triggers are wall-clock (cron) schedules that create frame timers.
	Triggers []TriggerConfig `json:"triggers,omitempty"`

	Systemd SystemdConfig `json:"systemd"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// Logx converts the section to the logger's own config type.
func (c LoggingConfig) Logx() logx.Config {
	return logx.Config{
		Level:   c.Level,
		Console: c.Console,
		File:    logx.FileConfig{Enabled: c.File.Enabled, Path: c.File.Path},
	}
}

// LoopConfig controls the frame driver.
//
// All durations are Go duration strings (e.g. "20ms", "1s").
//
// Defaults (when fields are omitted/zero):
//   - target_frame_rate: 60 (<= 0 derives intervals from frame time alone)
//   - frame_interval: "16ms"
//   - fixed_step: "20ms"
//   - max_frame_time: "250ms"
type LoopConfig struct {
	// TargetFrameRate is a pointer so an explicit 0 can be told apart from
	// an omitted value.
	TargetFrameRate *int `json:"target_frame_rate,omitempty"`

	// FrameInterval is the wall-clock period of the frame driver.
	FrameInterval string `json:"frame_interval,omitempty"`
	FixedStep     string `json:"fixed_step,omitempty"`
	// MaxFrameTime clamps a single frame's delta after a stall.
	MaxFrameTime string `json:"max_frame_time,omitempty"`

	Paused bool `json:"paused,omitempty"`
}

// ChannelsConfig is the initial state of the time channel registry.
//
// Example:
//
//	channels:
//	  global_time_scale: 1
//	  groups:
//	    gameplay: { time_scale: 0.5 }
//	    ui: { paused: true }
type ChannelsConfig struct {
	// Nil keeps the registry's current value.
	GlobalTimeScale      *float64 `json:"global_time_scale,omitempty"`
	GlobalFixedTimeScale *float64 `json:"global_fixed_time_scale,omitempty"`

	// Groups is keyed by group name ("gameplay", "ui", ...). "always" is
	// protected and may not be configured.
	Groups map[string]ChannelConfig `json:"groups,omitempty"`
}

type ChannelConfig struct {
	// Nil keeps scale 1.
	TimeScale *float64 `json:"time_scale,omitempty"`
	Paused    bool     `json:"paused,omitempty"`
}

// TriggerConfig schedules a frame timer from wall-clock time.
//
// Example:
//
//	triggers:
//	  - name: autosave
//	    schedule: "*/5 * * * *"
//	    duration: 2s
//	    tick_rate: every_second
//	    group: gameplay
type TriggerConfig struct {
	Name string `json:"name"`
	// Schedule is a standard 5-field cron spec or a descriptor (@every 1m).
	Schedule string `json:"schedule"`
	// Duration is the countdown of the created timer (Go duration string).
	Duration string `json:"duration"`
	TickRate string `json:"tick_rate,omitempty"`
	Group    string `json:"group,omitempty"`
}

// SystemdConfig controls sd_notify integration. Both flags are no-ops when
// the process is not started by systemd.
type SystemdConfig struct {
	Notify   bool `json:"notify"`
	Watchdog bool `json:"watchdog"`
}
