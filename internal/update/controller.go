package update

import (
	"framesched/internal/pending"
	"framesched/internal/tickrate"
	"framesched/internal/timectl"
	logx "framesched/pkg/logx"
)

// MaxTicksPerFrame caps how many callbacks one member receives in a single
// UpdateComponents call. Time left over after the cap is clamped to one
// interval so a long stall does not turn into an unbounded catch-up.
const MaxTicksPerFrame = 5

// deltaFunc picks the (unscaled, scaled) pair a phase reads from a channel.
type deltaFunc func(ch *timectl.Channel) (unscaled, scaled float64)

func regularDeltas(ch *timectl.Channel) (float64, float64) {
	return ch.UnscaledDeltaTime(), ch.DeltaTime()
}

func fixedDeltas(ch *timectl.Channel) (float64, float64) {
	return ch.UnscaledFixedDeltaTime(), ch.FixedDeltaTime()
}

// member is the type-set of a controller element: members key the
// accumulator map, so they must be comparable.
type member interface {
	comparable
	Member
}

// Controller dispatches one callback capability to its running members.
//
// Add and Remove may be called from inside a callback; the change is
// buffered and becomes visible on the next pass. A member added during a
// pass is never called in that pass, and a member removed during a pass is
// never called after the removal was requested.
type Controller[T member] struct {
	phase    Phase
	set      *pending.Set[T]
	acc      map[T]float64
	channels *timectl.Registry
	deltas   deltaFunc
	invoke   func(m T, dt float64)

	targetFrameRate int
	paused          bool

	log logx.Logger
}

func newController[T member](phase Phase, channels *timectl.Registry, targetFrameRate int, deltas deltaFunc, invoke func(T, float64), log logx.Logger) *Controller[T] {
	c := &Controller[T]{
		phase:           phase,
		acc:             map[T]float64{},
		channels:        channels,
		deltas:          deltas,
		invoke:          invoke,
		targetFrameRate: targetFrameRate,
		log:             log,
	}
	c.set = pending.New(pending.Hooks[T]{
		OnAdded: func(m T) {
			if _, ok := c.acc[m]; !ok {
				c.acc[m] = 0
			}
		},
		OnRemoved: func(m T) { delete(c.acc, m) },
	})
	return c
}

// NewRegular returns a controller calling Update with the regular timeline.
func NewRegular(channels *timectl.Registry, targetFrameRate int, log logx.Logger) *Controller[Updater] {
	return newController(PhaseRegular, channels, targetFrameRate, regularDeltas,
		func(m Updater, dt float64) { m.Update(dt) }, log)
}

// NewFixed returns a controller calling FixedUpdate with the fixed-step timeline.
func NewFixed(channels *timectl.Registry, targetFrameRate int, log logx.Logger) *Controller[FixedUpdater] {
	return newController(PhaseFixed, channels, targetFrameRate, fixedDeltas,
		func(m FixedUpdater, dt float64) { m.FixedUpdate(dt) }, log)
}

// NewLate returns a controller calling LateUpdate with the regular timeline.
func NewLate(channels *timectl.Registry, targetFrameRate int, log logx.Logger) *Controller[LateUpdater] {
	return newController(PhaseLate, channels, targetFrameRate, regularDeltas,
		func(m LateUpdater, dt float64) { m.LateUpdate(dt) }, log)
}

func (c *Controller[T]) Phase() Phase               { return c.phase }
func (c *Controller[T]) Len() int                   { return c.set.Len() }
func (c *Controller[T]) Contains(m T) bool          { return c.set.Contains(m) }
func (c *Controller[T]) Paused() bool               { return c.paused }
func (c *Controller[T]) SetPaused(paused bool)      { c.paused = paused }
func (c *Controller[T]) TargetFrameRate() int       { return c.targetFrameRate }
func (c *Controller[T]) SetTargetFrameRate(fps int) { c.targetFrameRate = fps }

// Accumulated returns the logical time m has banked toward its next tick.
func (c *Controller[T]) Accumulated(m T) float64 { return c.acc[m] }

// Add registers m. During a pass the request is buffered.
func (c *Controller[T]) Add(m T) { c.set.Add(m) }

// Remove unregisters m and drops its accumulated time. During a pass the
// request is buffered.
func (c *Controller[T]) Remove(m T) { c.set.Remove(m) }

// UpdateComponents applies buffered registrations, runs one pass over the
// running members, then applies whatever the callbacks registered.
func (c *Controller[T]) UpdateComponents() {
	c.set.Apply()

	// An empty paused controller has nothing to do; a non-empty one still
	// walks its members because pause is expressed through zero deltas.
	if !c.paused || c.set.Len() > 0 {
		c.set.Each(c.step)
	}

	c.set.Apply()
}

func (c *Controller[T]) step(m T) {
	if c.set.IsPendingRemove(m) {
		return
	}
	ch := c.channels.Channel(m.UpdateGroup())
	if ch.Paused() {
		return
	}
	unscaled, scaled := c.deltas(ch)
	if unscaled <= 0 {
		// No frame time elapsed on this timeline; the interval is undefined.
		return
	}

	interval := tickrate.Interval(m.TickRate(), unscaled, c.targetFrameRate)
	acc := c.acc[m] + scaled

	ticks := 0
	for acc >= interval && ticks < MaxTicksPerFrame {
		c.invoke(m, interval)
		acc -= interval
		ticks++
		if c.set.IsPendingRemove(m) {
			break
		}
	}
	if acc > interval {
		if c.log.Enabled(logx.LevelTrace) {
			c.log.Trace("tick backlog clamped",
				logx.String("phase", c.phase.String()),
				logx.Float64("backlog", acc),
				logx.Float64("interval", interval))
		}
		acc = interval
	}
	c.acc[m] = acc
}
