package app

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"framesched/internal/config"
	"framesched/internal/eventbus"
	"framesched/internal/host"
	"framesched/internal/runtime/supervisor"
	logx "framesched/pkg/logx"
)

// StopReason is logged when the app stops.
type StopReason string

const (
	StopSignal     StopReason = "signal"
	StopFatalError StopReason = "fatal_error"
	StopAppStop    StopReason = "app_stop"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus
	// applied is the config the loop was built from.
	applied *config.Config

	loop     *host.Loop
	triggers *host.Triggers
}

// New loads and validates the config at cfgPath and builds the frame loop.
// Nothing runs until Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load(context.Background())
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.NewService(cfg.Logging.Logx())
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	loopCfg, err := cfg.Loop.Resolve()
	if err != nil {
		return nil, err
	}
	bus := eventbus.New()

	opts := []host.Option{
		host.WithLogger(log.With(logx.String("comp", "loop"))),
		host.WithBus(bus),
		host.WithSettings(loopCfg),
	}
	if cfg.Systemd.Notify {
		opts = append(opts, host.WithNotifier(host.Systemd{}))
		if cfg.Systemd.Watchdog {
			if d := host.WatchdogInterval(); d > 0 {
				opts = append(opts, host.WithWatchdog(d))
				log.Info("systemd watchdog enabled", logx.Duration("interval", d))
			}
		}
	}
	loop := host.New(opts...)
	if err := loop.Apply(cfg); err != nil {
		return nil, err
	}

	triggers := host.NewTriggers(loop, bus, log.With(logx.String("comp", "triggers")))
	defs, err := resolveTriggers(cfg)
	if err != nil {
		return nil, err
	}
	triggers.Sync(defs)

	return &App{
		cfgm:     cfgm,
		applied:  cfg,
		log:      log.With(logx.String("comp", "app")),
		logs:     logSvc,
		bus:      bus,
		loop:     loop,
		triggers: triggers,
	}, nil
}

func resolveTriggers(cfg *config.Config) ([]config.Trigger, error) {
	out := make([]config.Trigger, 0, len(cfg.Triggers))
	for i, tc := range cfg.Triggers {
		t, err := tc.Resolve()
		if err != nil {
			return nil, fmt.Errorf("triggers[%d]: %w", i, err)
		}
		out = append(out, t)
	}
	return out, nil
}

// Loop exposes the frame driver. Touch the core only through Loop().Post.
func (a *App) Loop() *host.Loop { return a.loop }

// Bus carries timer, trigger and config events.
func (a *App) Bus() eventbus.Bus { return a.bus }

// Done is closed when the app supervisor context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))),
		supervisor.WithCancelOnError(true))

	a.sup.Go("loop", a.loop.Run)
	a.sup.Go("triggers", a.triggers.Run)

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.GoRestart("config.watch", a.cfgm.Watch)

	a.log.Info("app started", logx.String("config", a.cfgm.Path()), logx.Int("triggers", a.triggers.Len()))
	return nil
}

// reloadLoop applies published configs. Logging and triggers are applied
// here; everything that touches the core is posted to the loop.
//
// The baseline is the config New built the loop from, not the manager's
// current one: a reload committed before the subscription existed is picked
// up by the catch-up check instead of being diffed against itself.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	applied := a.applied
	if cur := a.cfgm.Get(); cur != nil && cur != applied {
		applied = a.applyReload(applied, cur)
	}
	for {
		var newCfg *config.Config
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			newCfg = cfg
		}
		// Coalesce bursts: keep only the latest config in the channel.
	drain:
		for {
			select {
			case newer := <-sub:
				if newer != nil {
					newCfg = newer
				}
			default:
				break drain
			}
		}
		if newCfg == nil || newCfg == applied {
			continue
		}
		applied = a.applyReload(applied, newCfg)
	}
}

// applyReload moves the app from old to newCfg and returns newCfg.
func (a *App) applyReload(old, newCfg *config.Config) *config.Config {
	sections, attrs, triggersChanged := config.SummarizeConfigChange(old, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return newCfg
	}

	if err := a.logs.Apply(newCfg.Logging.Logx()); err != nil {
		a.log.Warn("log file disabled", logx.Err(err))
	}

	if len(triggersChanged) > 0 {
		defs, err := resolveTriggers(newCfg)
		if err != nil {
			a.log.Warn("trigger reload rejected", logx.Err(err))
		} else {
			a.triggers.Sync(defs)
			a.log.Debug("triggers resynced", logx.String("changed", strings.Join(triggersChanged, ",")))
		}
	}
	if slices.Contains(sections, "systemd") {
		a.log.Warn("systemd settings take effect on restart")
	}

	a.loop.Post(func(l *host.Loop) {
		if err := l.Apply(newCfg); err != nil {
			a.log.Warn("loop config rejected", logx.Err(err))
		}
	})

	a.log.Info("config reloaded", append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)...)
	return newCfg
}

// Stop cancels every background goroutine and waits for them, bounded by ctx.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return a.logs.Close()
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	start := time.Now()
	stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	err := a.sup.Stop(stopCtx)
	if stopCtx.Err() != nil {
		a.log.Warn("stop deadline reached (continuing)", logx.Duration("elapsed", time.Since(start)))
	} else {
		if err != nil {
			a.log.Warn("stopped with error", logx.Err(err))
		}
		// The loop goroutine has exited, so reading its state here is safe.
		st := a.loop.Updates().Stats()
		a.log.Info("stopped",
			logx.Uint64("frames", a.loop.Frame()),
			logx.Int("members.regular", st.Regular),
			logx.Int("members.fixed", st.Fixed),
			logx.Int("members.late", st.Late),
			logx.Int("timers.live", a.loop.Timers().Len()),
			logx.Duration("took", time.Since(start)))
	}

	if cerr := a.logs.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
