// Package host drives the scheduler core from the wall clock.
//
// The core (update and timer coordinators, time channels) is single
// threaded. Loop owns it and is the only thing that touches it; other
// goroutines hand work to the loop with Post.
package host

import (
	"context"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"framesched/internal/config"
	"framesched/internal/eventbus"
	"framesched/internal/timectl"
	"framesched/internal/timer"
	"framesched/internal/update"
	logx "framesched/pkg/logx"
)

// Loop is the frame driver. Per frame, in order: queued commands, regular
// phase, timers, fixed phase (zero or more steps), late phase.
type Loop struct {
	mu    sync.Mutex
	inbox []func(*Loop)
	spare []func(*Loop)

	channels *timectl.Registry
	updates  *update.Coordinator
	timers   *timer.Coordinator

	settings config.Loop
	fixedAcc time.Duration
	frame    uint64

	// retune is set by Apply when the frame interval changed while Run is ticking.
	retune chan time.Duration

	notifier Notifier
	watchdog time.Duration
	lastPing time.Time
	now      func() time.Time

	bus eventbus.Bus
	log logx.Logger
}

type Option func(*Loop)

func WithLogger(log logx.Logger) Option { return func(l *Loop) { l.log = log } }

func WithBus(b eventbus.Bus) Option { return func(l *Loop) { l.bus = b } }

// WithSettings sets the initial loop settings; Apply replaces them later.
func WithSettings(s config.Loop) Option { return func(l *Loop) { l.settings = s } }

// WithNotifier enables sd_notify readiness and stopping messages.
func WithNotifier(n Notifier) Option { return func(l *Loop) { l.notifier = n } }

// WithWatchdog pings the notifier at half of interval while frames run.
func WithWatchdog(interval time.Duration) Option { return func(l *Loop) { l.watchdog = interval } }

// WithClock replaces time.Now (tests).
func WithClock(now func() time.Time) Option { return func(l *Loop) { l.now = now } }

func New(opts ...Option) *Loop {
	l := &Loop{
		settings: config.Loop{
			TargetFrameRate: config.DefaultTargetFrameRate,
			FrameInterval:   config.DefaultFrameInterval,
			FixedStep:       config.DefaultFixedStep,
			MaxFrameTime:    config.DefaultMaxFrameTime,
		},
		retune: make(chan time.Duration, 1),
		now:    time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	l.channels = timectl.NewRegistry(timectl.WithLogger(l.log))
	l.updates = update.NewCoordinator(
		update.WithLogger(l.log),
		update.WithChannels(l.channels),
		update.WithTargetFrameRate(l.settings.TargetFrameRate),
	)
	l.timers = timer.NewCoordinator(
		timer.WithLogger(l.log),
		timer.WithChannels(l.channels),
		timer.WithBus(l.bus),
		timer.WithTargetFrameRate(l.settings.TargetFrameRate),
	)
	l.updates.SetPaused(l.settings.Paused)
	return l
}

// Accessors below are for code running on the loop (inside Post or a
// member callback) and for tests driving Step directly.

func (l *Loop) Channels() *timectl.Registry  { return l.channels }
func (l *Loop) Updates() *update.Coordinator { return l.updates }
func (l *Loop) Timers() *timer.Coordinator   { return l.timers }
func (l *Loop) Settings() config.Loop        { return l.settings }
func (l *Loop) Frame() uint64                { return l.frame }

// FixedBacklog is the banked time not yet consumed by a fixed step.
func (l *Loop) FixedBacklog() time.Duration { return l.fixedAcc }

// Post queues fn to run on the loop at the start of the next frame. Safe
// for concurrent use. Commands run in the order they were posted.
func (l *Loop) Post(fn func(*Loop)) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.inbox = append(l.inbox, fn)
	l.mu.Unlock()
}

func (l *Loop) drain() {
	l.mu.Lock()
	cmds := l.inbox
	l.inbox = l.spare[:0]
	l.mu.Unlock()

	for i, fn := range cmds {
		fn(l)
		cmds[i] = nil
	}
	l.mu.Lock()
	l.spare = cmds[:0]
	l.mu.Unlock()
}

// Step runs exactly one frame for a measured wall-clock delta. It must only
// be called from one goroutine (Run, or a test).
func (l *Loop) Step(dt time.Duration) {
	l.drain()

	if dt < 0 {
		dt = 0
	}
	if dt > l.settings.MaxFrameTime {
		l.log.Trace("frame clamped", logx.Duration("dt", dt), logx.Duration("max", l.settings.MaxFrameTime))
		dt = l.settings.MaxFrameTime
	}
	l.frame++

	l.updates.Update(dt.Seconds())
	l.timers.Update()

	// The clamp above bounds how many fixed steps one frame can owe.
	if !l.updates.Paused() {
		l.fixedAcc += dt
	}
	step := l.settings.FixedStep
	for step > 0 && l.fixedAcc >= step {
		l.updates.FixedUpdate(step.Seconds())
		l.fixedAcc -= step
	}

	l.updates.LateUpdate()
	l.keepalive()
}

func (l *Loop) keepalive() {
	if l.notifier == nil || l.watchdog <= 0 {
		return
	}
	now := l.now()
	if !l.lastPing.IsZero() && now.Sub(l.lastPing) < l.watchdog/2 {
		return
	}
	l.lastPing = now
	if err := l.notifier.Notify(daemon.SdNotifyWatchdog); err != nil {
		l.log.Warn("watchdog notify failed", logx.Err(err))
	}
}

// Apply installs a new config. Call it on the loop (via Post) once Run has
// started.
func (l *Loop) Apply(cfg *config.Config) error {
	if cfg == nil {
		return nil
	}
	s, err := cfg.Loop.Resolve()
	if err != nil {
		return err
	}
	prev := l.settings
	l.settings = s
	if s.TargetFrameRate != prev.TargetFrameRate {
		l.updates.SetTargetFrameRate(s.TargetFrameRate)
		l.timers.SetTargetFrameRate(s.TargetFrameRate)
	}
	l.updates.SetPaused(s.Paused)
	if s.FixedStep != prev.FixedStep {
		l.fixedAcc = 0
	}
	if s.FrameInterval != prev.FrameInterval {
		select {
		case l.retune <- s.FrameInterval:
		default:
			select {
			case <-l.retune:
			default:
			}
			l.retune <- s.FrameInterval
		}
	}

	l.applyChannels(cfg.Channels)
	l.publish(eventbus.ConfigApplied, s)
	l.log.Info("loop config applied",
		logx.Int("target_frame_rate", s.TargetFrameRate),
		logx.Duration("frame_interval", s.FrameInterval),
		logx.Duration("fixed_step", s.FixedStep),
		logx.Bool("paused", s.Paused))
	return nil
}

func (l *Loop) applyChannels(c config.ChannelsConfig) {
	if c.GlobalTimeScale != nil {
		l.channels.SetGlobalTimeScale(*c.GlobalTimeScale)
	}
	if c.GlobalFixedTimeScale != nil {
		l.channels.SetGlobalFixedTimeScale(*c.GlobalFixedTimeScale)
	}
	for name, cc := range c.Groups {
		g, err := timectl.ParseGroup(name)
		if err != nil || g == timectl.Always {
			continue
		}
		scale := 1.0
		if cc.TimeScale != nil {
			scale = *cc.TimeScale
		}
		l.channels.SetTimeScale(g, scale)
		l.channels.SetPaused(g, cc.Paused)
	}
}

// Run ticks Step from the wall clock until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	interval := l.settings.FrameInterval
	if interval <= 0 {
		interval = config.DefaultFrameInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	l.notify(daemon.SdNotifyReady)
	l.log.Info("frame loop started", logx.Duration("interval", interval))

	last := l.now()
	for {
		select {
		case <-ctx.Done():
			l.notify(daemon.SdNotifyStopping)
			l.publish(eventbus.LoopStopped, l.frame)
			l.log.Info("frame loop stopped", logx.Uint64("frames", l.frame))
			return nil
		case d := <-l.retune:
			if d > 0 {
				ticker.Reset(d)
			}
		case <-ticker.C:
			now := l.now()
			l.Step(now.Sub(last))
			last = now
		}
	}
}

func (l *Loop) notify(state string) {
	if l.notifier == nil {
		return
	}
	if err := l.notifier.Notify(state); err != nil {
		l.log.Warn("systemd notify failed", logx.String("state", state), logx.Err(err))
	}
}

func (l *Loop) publish(typ string, data any) {
	if l.bus == nil {
		return
	}
	l.bus.Publish(eventbus.Event{Type: typ, Frame: l.frame, Data: data})
}
