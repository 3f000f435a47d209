package config

import (
	"reflect"
	"sort"
	"strings"

	logx "framesched/pkg/logx"
)

// SummarizeConfigChange returns (1) a sorted list of changed sections,
// (2) structured attrs for the reload log line, and (3) the names of
// triggers that were added, removed or edited.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Logging.Level != newCfg.Logging.Level ||
		oldCfg.Logging.Console != newCfg.Logging.Console ||
		oldCfg.Logging.File.Enabled != newCfg.Logging.File.Enabled ||
		strings.TrimSpace(oldCfg.Logging.File.Path) != strings.TrimSpace(newCfg.Logging.File.Path) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	// Compare resolved values so "" and the explicit default are equal.
	oLoop, oErr := oldCfg.Loop.Resolve()
	nLoop, nErr := newCfg.Loop.Resolve()
	if (oErr != nil) != (nErr != nil) || oLoop != nLoop {
		changed = append(changed, "loop")
		attrs = append(attrs,
			logx.Int("loop.target_frame_rate", nLoop.TargetFrameRate),
			logx.Duration("loop.frame_interval", nLoop.FrameInterval),
			logx.Duration("loop.fixed_step", nLoop.FixedStep),
			logx.Duration("loop.max_frame_time", nLoop.MaxFrameTime),
			logx.Bool("loop.paused", nLoop.Paused),
		)
	}

	if !reflect.DeepEqual(oldCfg.Channels, newCfg.Channels) {
		changed = append(changed, "channels")
		paused := 0
		for _, ch := range newCfg.Channels.Groups {
			if ch.Paused {
				paused++
			}
		}
		attrs = append(attrs,
			logx.Int("channels.configured", len(newCfg.Channels.Groups)),
			logx.Int("channels.paused", paused),
		)
	}

	triggers := diffTriggers(oldCfg.Triggers, newCfg.Triggers)
	if len(triggers) > 0 {
		changed = append(changed, "triggers")
		attrs = append(attrs,
			logx.Int("triggers.changed_count", len(triggers)),
			logx.Int("triggers.count", len(newCfg.Triggers)),
		)
	}

	if oldCfg.Systemd != newCfg.Systemd {
		changed = append(changed, "systemd")
		attrs = append(attrs,
			logx.Bool("systemd.notify", newCfg.Systemd.Notify),
			logx.Bool("systemd.watchdog", newCfg.Systemd.Watchdog),
		)
	}

	sort.Strings(changed)
	return changed, attrs, triggers
}

func diffTriggers(oldT, newT []TriggerConfig) []string {
	byName := func(ts []TriggerConfig) map[string]TriggerConfig {
		m := make(map[string]TriggerConfig, len(ts))
		for _, t := range ts {
			m[strings.TrimSpace(t.Name)] = t
		}
		return m
	}
	oldM, newM := byName(oldT), byName(newT)

	set := map[string]struct{}{}
	for k := range oldM {
		set[k] = struct{}{}
	}
	for k := range newM {
		set[k] = struct{}{}
	}

	out := make([]string, 0, len(set))
	for name := range set {
		o, inOld := oldM[name]
		n, inNew := newM[name]
		if inOld != inNew || o != n {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
