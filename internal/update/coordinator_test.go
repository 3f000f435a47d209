package update

import (
	"slices"
	"testing"

	"framesched/internal/tickrate"
	"framesched/internal/timectl"
)

// ticker implements only the regular capability.
type ticker struct {
	group    timectl.Group
	rate     tickrate.Rate
	calls    []float64
	onUpdate func(t *ticker)
}

func (t *ticker) UpdateGroup() timectl.Group { return t.group }
func (t *ticker) TickRate() tickrate.Rate    { return t.rate }
func (t *ticker) Update(dt float64) {
	t.calls = append(t.calls, dt)
	if t.onUpdate != nil {
		t.onUpdate(t)
	}
}

// allPhases implements every capability.
type allPhases struct {
	regular, fixed, late int
}

func (a *allPhases) UpdateGroup() timectl.Group { return timectl.Always }
func (a *allPhases) TickRate() tickrate.Rate    { return tickrate.EveryFrame }
func (a *allPhases) Update(float64)             { a.regular++ }
func (a *allPhases) FixedUpdate(float64)        { a.fixed++ }
func (a *allPhases) LateUpdate(float64)         { a.late++ }

// With a target of 1 fps and a 1s frame, the EveryFrame interval is exactly 1.
func newTestCoordinator() *Coordinator {
	return NewCoordinator(WithTargetFrameRate(1))
}

func TestTickCapAndClamp(t *testing.T) {
	t.Parallel()
	c := newTestCoordinator()
	c.Channels().SetTimeScale(timectl.Gameplay, 7.5)
	m := &ticker{group: timectl.Gameplay}
	c.Register(m)

	c.Update(1)

	if len(m.calls) != MaxTicksPerFrame {
		t.Fatalf("calls = %d, want %d", len(m.calls), MaxTicksPerFrame)
	}
	for i, dt := range m.calls {
		if dt != 1 {
			t.Fatalf("call %d dt = %v, want interval 1", i, dt)
		}
	}
	if got := c.regular.Accumulated(m); got > 1 {
		t.Fatalf("residual = %v, want <= 1", got)
	}
}

func TestExactBacklogDrainsCompletely(t *testing.T) {
	t.Parallel()
	c := newTestCoordinator()
	c.Channels().SetTimeScale(timectl.Gameplay, 5)
	m := &ticker{group: timectl.Gameplay}
	c.Register(m)

	c.Update(1)

	if len(m.calls) != 5 {
		t.Fatalf("calls = %d, want 5", len(m.calls))
	}
	if got := c.regular.Accumulated(m); got != 0 {
		t.Fatalf("residual = %v, want 0", got)
	}
}

func TestAddedDuringCallbackWaitsForNextPass(t *testing.T) {
	t.Parallel()
	c := newTestCoordinator()
	late := &ticker{}
	first := &ticker{}
	first.onUpdate = func(*ticker) { c.Register(late) }
	c.Register(first)

	c.Update(1)
	if len(late.calls) != 0 {
		t.Fatalf("member added during pass was called %d times in that pass", len(late.calls))
	}
	if !c.regular.Contains(late) {
		t.Fatal("member added during pass was not applied after the pass")
	}

	c.Update(1)
	if len(late.calls) != 1 {
		t.Fatalf("calls on next pass = %d, want 1", len(late.calls))
	}
}

func TestSelfRegisterDuringOwnCallback(t *testing.T) {
	t.Parallel()
	c := newTestCoordinator()
	m := &ticker{}
	m.onUpdate = func(self *ticker) { c.Register(self) }
	c.Register(m)
	c.Update(1)
	if len(m.calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(m.calls))
	}
	if c.Stats().Regular != 1 {
		t.Fatalf("running = %d, want 1", c.Stats().Regular)
	}
}

func TestRemovedDuringPassIsNotCalledAfterwards(t *testing.T) {
	t.Parallel()
	c := newTestCoordinator()
	victim := &ticker{}
	killer := &ticker{}
	killer.onUpdate = func(*ticker) { c.Unregister(victim) }
	c.Register(killer)
	c.Register(victim)

	c.Update(1)
	if len(victim.calls) != 0 {
		t.Fatalf("victim called %d times after removal request", len(victim.calls))
	}
	if c.regular.Contains(victim) {
		t.Fatal("victim still running after the pass")
	}
}

func TestSelfRemovalStopsCatchUp(t *testing.T) {
	t.Parallel()
	c := newTestCoordinator()
	c.Channels().SetTimeScale(timectl.UI, 3)
	m := &ticker{group: timectl.UI}
	m.onUpdate = func(self *ticker) { c.Unregister(self) }
	c.Register(m)

	c.Update(1)
	if len(m.calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(m.calls))
	}
	if c.Stats().Regular != 0 {
		t.Fatal("member still running")
	}
}

func TestPausedChannelSkipsMember(t *testing.T) {
	t.Parallel()
	c := newTestCoordinator()
	c.Channels().SetPaused(timectl.UI, true)
	ui := &ticker{group: timectl.UI}
	always := &ticker{}
	c.Register(ui)
	c.Register(always)

	c.Update(1)
	if len(ui.calls) != 0 || len(always.calls) != 1 {
		t.Fatalf("ui calls=%d always calls=%d, want 0/1", len(ui.calls), len(always.calls))
	}
	if got := c.regular.Accumulated(ui); got != 0 {
		t.Fatalf("paused member accumulated %v", got)
	}
}

func TestHalfTargetFiresEveryOtherFrame(t *testing.T) {
	t.Parallel()
	c := newTestCoordinator()
	m := &ticker{rate: tickrate.HalfTarget}
	c.Register(m)

	c.Update(1)
	if len(m.calls) != 0 {
		t.Fatalf("calls after one frame = %d, want 0", len(m.calls))
	}
	c.Update(1)
	if !slices.Equal(m.calls, []float64{2}) {
		t.Fatalf("calls = %v, want [2]", m.calls)
	}
}

func TestUnregisterDropsAccumulatedTime(t *testing.T) {
	t.Parallel()
	c := newTestCoordinator()
	m := &ticker{rate: tickrate.HalfTarget}
	c.Register(m)
	c.Update(1)

	c.Unregister(m)
	c.Register(m)
	c.Update(1)
	if len(m.calls) != 0 {
		t.Fatalf("accumulated time survived unregister: calls=%v", m.calls)
	}
}

func TestRegisterRoutesByCapability(t *testing.T) {
	t.Parallel()
	c := newTestCoordinator()
	a := &allPhases{}
	r := &ticker{}
	if !c.Register(a) || !c.Register(r) {
		t.Fatal("Register reported no capability")
	}
	if c.Register(nil) {
		t.Fatal("Register(nil) reported a capability")
	}
	if c.Register(struct{}{}) {
		t.Fatal("Register of a plain value reported a capability")
	}
	if got := c.Stats(); got != (Stats{Regular: 2, Fixed: 1, Late: 1}) {
		t.Fatalf("stats = %+v", got)
	}

	c.Update(1)
	c.FixedUpdate(1)
	c.LateUpdate()
	if a.regular != 1 || a.fixed != 1 || a.late != 1 {
		t.Fatalf("phase calls = %+v, want 1/1/1", *a)
	}

	c.Unregister(a)
	c.Unregister(nil)
	if got := c.Stats(); got != (Stats{Regular: 1}) {
		t.Fatalf("stats after unregister = %+v", got)
	}
}

func TestGlobalPauseFreezesEveryPhase(t *testing.T) {
	t.Parallel()
	c := newTestCoordinator()
	a := &allPhases{}
	c.Register(a)
	c.SetPaused(true)

	for i := 0; i < 3; i++ {
		c.Update(1)
		c.FixedUpdate(1)
		c.LateUpdate()
	}
	if a.regular != 0 || a.fixed != 0 || a.late != 0 {
		t.Fatalf("paused calls = %+v, want none", *a)
	}

	c.SetPaused(false)
	c.Update(1)
	c.FixedUpdate(1)
	c.LateUpdate()
	if a.regular != 1 || a.fixed != 1 || a.late != 1 {
		t.Fatalf("resumed calls = %+v, want 1/1/1", *a)
	}
}

func TestSetTargetFrameRateFansOut(t *testing.T) {
	t.Parallel()
	c := newTestCoordinator()
	c.SetTargetFrameRate(144)
	if c.regular.TargetFrameRate() != 144 || c.fixed.TargetFrameRate() != 144 || c.late.TargetFrameRate() != 144 {
		t.Fatal("target frame rate not applied to every controller")
	}
}

func TestManagedRegistersOnce(t *testing.T) {
	t.Parallel()
	c := newTestCoordinator()
	type managedTicker struct {
		Managed
		ticker
	}
	m := &managedTicker{}
	m.Init(c, m)
	m.Init(c, m)
	if !m.Registered() || c.Stats().Regular != 1 {
		t.Fatalf("registered=%v running=%d", m.Registered(), c.Stats().Regular)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	_ = m.Close()
	if m.Registered() || c.Stats().Regular != 0 {
		t.Fatal("Close did not unregister")
	}
	m.Init(c, m)
	if c.Stats().Regular != 0 {
		t.Fatal("Init after Close registered again")
	}
}

// byValue is registered by value and holds a slice, so it cannot be hashed.
type byValue struct {
	calls []float64
}

func (b byValue) UpdateGroup() timectl.Group { return timectl.Always }
func (b byValue) TickRate() tickrate.Rate    { return tickrate.EveryFrame }
func (b byValue) Update(float64)             {}

func TestRegisterRejectsUnhashableValue(t *testing.T) {
	t.Parallel()
	c := newTestCoordinator()
	if c.Register(byValue{}) {
		t.Fatal("Register accepted a non-comparable value")
	}
	c.Unregister(byValue{})
	c.Update(1)
	if st := c.Stats(); st.Regular != 0 {
		t.Fatalf("regular members = %d, want 0", st.Regular)
	}
}
