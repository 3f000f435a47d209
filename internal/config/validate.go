package config

import (
	"errors"
	"fmt"
	"math"

	"framesched/internal/timectl"
	logx "framesched/pkg/logx"
)

// Validate reports every problem in cfg at once.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error

	if !logx.ValidLevel(c.Logging.Level) {
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", c.Logging.Level))
	}

	if _, err := c.Loop.Resolve(); err != nil {
		errs = append(errs, err)
	}

	errs = appendScaleErr(errs, "channels.global_time_scale", c.Channels.GlobalTimeScale)
	errs = appendScaleErr(errs, "channels.global_fixed_time_scale", c.Channels.GlobalFixedTimeScale)
	for name, ch := range c.Channels.Groups {
		g, err := timectl.ParseGroup(name)
		if err != nil {
			errs = append(errs, fmt.Errorf("channels.groups.%s: %w", name, err))
			continue
		}
		if g == timectl.Always {
			errs = append(errs, fmt.Errorf("channels.groups.%s: group is protected and cannot be configured", name))
			continue
		}
		errs = appendScaleErr(errs, "channels.groups."+name+".time_scale", ch.TimeScale)
	}

	seen := make(map[string]int, len(c.Triggers))
	for i, tc := range c.Triggers {
		t, err := tc.Resolve()
		if err != nil {
			errs = append(errs, fmt.Errorf("triggers[%d]: %w", i, err))
			continue
		}
		if j, dup := seen[t.Name]; dup {
			errs = append(errs, fmt.Errorf("triggers[%d]: duplicate name %q (also triggers[%d])", i, t.Name, j))
			continue
		}
		seen[t.Name] = i
	}

	return errors.Join(errs...)
}

func appendScaleErr(errs []error, path string, v *float64) []error {
	if v == nil {
		return errs
	}
	if math.IsNaN(*v) || math.IsInf(*v, 0) || *v < 0 {
		return append(errs, fmt.Errorf("%s: must be a finite value >= 0, got %v", path, *v))
	}
	return errs
}
