package host

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/robfig/cron/v3"

	"framesched/internal/config"
	"framesched/internal/eventbus"
	"framesched/internal/tickrate"
	"framesched/internal/timectl"
	"framesched/internal/timer"
	logx "framesched/pkg/logx"
)

// recorder implements every phase and logs the call order.
type recorder struct {
	group timectl.Group
	log   *[]string
}

func (r *recorder) UpdateGroup() timectl.Group { return r.group }
func (r *recorder) TickRate() tickrate.Rate    { return tickrate.EveryFrame }
func (r *recorder) Update(float64)             { *r.log = append(*r.log, "update") }
func (r *recorder) FixedUpdate(float64)        { *r.log = append(*r.log, "fixed") }
func (r *recorder) LateUpdate(float64)         { *r.log = append(*r.log, "late") }

type fakeNotifier struct {
	mu     sync.Mutex
	states []string
}

func (f *fakeNotifier) Notify(state string) error {
	f.mu.Lock()
	f.states = append(f.states, state)
	f.mu.Unlock()
	return nil
}

func (f *fakeNotifier) all() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.states)
}

// A target rate of 0 makes every interval equal the frame's own delta, so
// each phase ticks exactly once per frame or fixed step.
func testSettings() config.Loop {
	return config.Loop{
		TargetFrameRate: 0,
		FrameInterval:   16 * time.Millisecond,
		FixedStep:       20 * time.Millisecond,
		MaxFrameTime:    250 * time.Millisecond,
	}
}

func TestStepPhaseOrder(t *testing.T) {
	t.Parallel()
	l := New(WithSettings(testSettings()))
	var calls []string
	l.Post(func(l *Loop) { l.Updates().Register(&recorder{log: &calls}) })

	l.Step(50 * time.Millisecond)

	want := []string{"update", "fixed", "fixed", "late"}
	if !slices.Equal(calls, want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	if got := l.FixedBacklog(); got != 10*time.Millisecond {
		t.Fatalf("fixed backlog = %v, want 10ms", got)
	}
	if l.Frame() != 1 {
		t.Fatalf("frame = %d, want 1", l.Frame())
	}
}

func TestStepClampsLongFrame(t *testing.T) {
	t.Parallel()
	l := New(WithSettings(testSettings()))
	var calls []string
	l.Updates().Register(&recorder{log: &calls})

	l.Step(10 * time.Second)

	fixed := 0
	for _, c := range calls {
		if c == "fixed" {
			fixed++
		}
	}
	if fixed != 12 {
		t.Fatalf("fixed steps = %d, want 12 (250ms / 20ms)", fixed)
	}
	if got := l.FixedBacklog(); got != 10*time.Millisecond {
		t.Fatalf("fixed backlog = %v, want 10ms", got)
	}
}

func TestPausedLoopBanksNothing(t *testing.T) {
	t.Parallel()
	s := testSettings()
	s.Paused = true
	l := New(WithSettings(s))
	var calls []string
	l.Updates().Register(&recorder{log: &calls})

	l.Step(100 * time.Millisecond)

	if slices.Contains(calls, "fixed") || slices.Contains(calls, "update") {
		t.Fatalf("paused loop dispatched %v", calls)
	}
	if l.FixedBacklog() != 0 {
		t.Fatalf("fixed backlog = %v, want 0", l.FixedBacklog())
	}
}

func TestPostOrdering(t *testing.T) {
	t.Parallel()
	l := New(WithSettings(testSettings()))
	var got []string
	l.Post(func(*Loop) { got = append(got, "a") })
	l.Post(func(l *Loop) {
		got = append(got, "b")
		l.Post(func(*Loop) { got = append(got, "next-frame") })
	})
	l.Post(nil)

	l.Step(time.Millisecond)
	if !slices.Equal(got, []string{"a", "b"}) {
		t.Fatalf("frame 1 ran %v", got)
	}
	l.Step(time.Millisecond)
	if !slices.Equal(got, []string{"a", "b", "next-frame"}) {
		t.Fatalf("frame 2 ran %v", got)
	}
}

func TestTimerRunsOnFrameTime(t *testing.T) {
	t.Parallel()
	l := New(WithSettings(testSettings()))
	ended := false
	l.Post(func(l *Loop) {
		l.Timers().AddTimer(&timer.Data{Duration: 0.1, OnEnd: func() { ended = true }})
	})

	l.Step(50 * time.Millisecond) // staged, promoted at end of frame
	if l.Timers().Len() != 1 {
		t.Fatalf("live timers = %d, want 1", l.Timers().Len())
	}
	l.Step(50 * time.Millisecond)
	if ended {
		t.Fatal("timer ended early")
	}
	l.Step(50 * time.Millisecond)
	if !ended || l.Timers().Len() != 0 {
		t.Fatalf("ended=%v live=%d, want ended and removed", ended, l.Timers().Len())
	}
}

func TestApply(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	events, unsub := bus.SubscribePrefix("config.", 4)
	defer unsub()
	l := New(WithSettings(testSettings()), WithBus(bus))

	fps, global, half := 30, 2.0, 0.5
	cfg := &config.Config{
		Loop: config.LoopConfig{TargetFrameRate: &fps, FixedStep: "10ms"},
		Channels: config.ChannelsConfig{
			GlobalTimeScale: &global,
			Groups: map[string]config.ChannelConfig{
				"gameplay": {TimeScale: &half},
				"ui":       {Paused: true},
			},
		},
	}
	if err := l.Apply(cfg); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if l.Updates().TargetFrameRate() != 30 {
		t.Fatalf("target frame rate = %d, want 30", l.Updates().TargetFrameRate())
	}
	if l.Settings().FixedStep != 10*time.Millisecond {
		t.Fatalf("fixed step = %v, want 10ms", l.Settings().FixedStep)
	}
	ch := l.Channels()
	if ch.GlobalTimeScale() != 2 || ch.Channel(timectl.Gameplay).TimeScale() != 0.5 || !ch.IsPaused(timectl.UI) {
		t.Fatalf("channels not applied: global=%v gameplay=%v ui paused=%v",
			ch.GlobalTimeScale(), ch.Channel(timectl.Gameplay).TimeScale(), ch.IsPaused(timectl.UI))
	}
	if len(events) != 1 {
		t.Fatalf("config events = %d, want 1", len(events))
	}

	bad := &config.Config{Loop: config.LoopConfig{FixedStep: "soon"}}
	if err := l.Apply(bad); err == nil {
		t.Fatal("Apply accepted an invalid loop section")
	}
	if l.Settings().FixedStep != 10*time.Millisecond {
		t.Fatal("rejected Apply changed the settings")
	}
}

func TestTriggerFirePostsTimer(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	fired, unsub := bus.SubscribePrefix(eventbus.TriggerFired, 1)
	defer unsub()
	l := New(WithSettings(testSettings()), WithBus(bus))
	tr := NewTriggers(l, bus, logx.Nop())

	tr.Fire(config.Trigger{Name: "autosave", Duration: time.Second, Rate: tickrate.EverySecond, Group: timectl.Gameplay})
	if e := <-fired; e.Data != "autosave" {
		t.Fatalf("fired event data = %v", e.Data)
	}
	if l.Timers().Pending() != 0 {
		t.Fatal("timer created off the loop")
	}
	l.Step(time.Millisecond)
	if l.Timers().Len() != 1 {
		t.Fatalf("live timers = %d, want 1", l.Timers().Len())
	}
}

func TestTriggersSync(t *testing.T) {
	t.Parallel()
	l := New()
	tr := NewTriggers(l, nil, logx.Nop())
	sched, err := cron.ParseStandard("@every 1h")
	if err != nil {
		t.Fatal(err)
	}
	tr.Sync([]config.Trigger{{Name: "a", Schedule: sched, Duration: time.Second}})
	if tr.Len() != 1 {
		t.Fatalf("len = %d, want 1", tr.Len())
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx) }()
	tr.Sync(nil)
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if tr.Len() != 0 {
		t.Fatalf("len = %d after Sync(nil), want 0", tr.Len())
	}
}

func TestStartupSpread(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := withStartupSpread(cron.Every(time.Minute), now, "autosave")
	first := s.Next(now)
	if first.Before(now.Add(time.Minute)) || !first.Before(now.Add(time.Minute+maxStartupSpread)) {
		t.Fatalf("first run %v outside [1m, 1m30s)", first.Sub(now))
	}
	// cron.Every rounds down to whole seconds after the first run.
	want := first.Add(time.Minute - time.Duration(first.Nanosecond()))
	if next := s.Next(first); !next.Equal(want) {
		t.Fatalf("second run = %v after first, want %v", next.Sub(first), want.Sub(first))
	}
}

func TestWatchdogKeepalive(t *testing.T) {
	t.Parallel()
	n := &fakeNotifier{}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New(
		WithSettings(testSettings()),
		WithNotifier(n),
		WithWatchdog(10*time.Second),
		WithClock(func() time.Time { return now }),
	)

	l.Step(time.Millisecond)
	now = now.Add(2 * time.Second)
	l.Step(time.Millisecond)
	now = now.Add(3 * time.Second)
	l.Step(time.Millisecond)

	want := []string{daemon.SdNotifyWatchdog, daemon.SdNotifyWatchdog}
	if got := n.all(); !slices.Equal(got, want) {
		t.Fatalf("notifications = %v, want %v", got, want)
	}
}

func TestRunNotifiesAndStops(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	stopped, unsub := bus.SubscribePrefix(eventbus.LoopStopped, 1)
	defer unsub()
	n := &fakeNotifier{}
	l := New(WithSettings(testSettings()), WithNotifier(n), WithBus(bus))

	ctx, cancel := context.WithCancel(context.Background())
	ran := make(chan struct{})
	l.Post(func(*Loop) { close(ran) })
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("loop never ran a frame")
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() = %v", err)
	}
	got := n.all()
	if len(got) < 2 || got[0] != daemon.SdNotifyReady || got[len(got)-1] != daemon.SdNotifyStopping {
		t.Fatalf("notifications = %v, want READY ... STOPPING", got)
	}
	if len(stopped) != 1 {
		t.Fatal("LoopStopped not published")
	}
}
