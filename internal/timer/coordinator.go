package timer

import (
	"math/rand/v2"
	"time"

	"framesched/internal/eventbus"
	"framesched/internal/pending"
	"framesched/internal/tickrate"
	"framesched/internal/timectl"
	logx "framesched/pkg/logx"
)

type entry struct {
	id     ID
	timer  *Timer
	handle *Handle
}

// Coordinator runs timers on the frame driver.
//
// New timers are always staged and only become live at the next apply
// phase, so a timer created inside another timer's callback never ticks in
// the same frame. Cancelling a staged timer prevents it from ever becoming
// live.
type Coordinator struct {
	set       *pending.Set[*entry]
	live      map[ID]*entry
	staged    map[ID]*entry
	cancelled map[ID]struct{}

	ids      *IDRegistry
	pool     *Pool
	channels *timectl.Registry

	targetFrameRate int
	frame           uint64

	bus eventbus.Bus
	log logx.Logger
}

// DefaultPoolSize is how many idle timers a new Coordinator starts with.
const DefaultPoolSize = 15

type Option func(*coordinatorOptions)

type coordinatorOptions struct {
	log             logx.Logger
	channels        *timectl.Registry
	bus             eventbus.Bus
	src             rand.Source
	targetFrameRate int
	poolSize        int
}

func WithLogger(log logx.Logger) Option {
	return func(o *coordinatorOptions) { o.log = log }
}

// WithChannels shares the registry Update reads per-timer deltas from.
func WithChannels(r *timectl.Registry) Option {
	return func(o *coordinatorOptions) { o.channels = r }
}

// WithBus publishes timer life-cycle events.
func WithBus(b eventbus.Bus) Option {
	return func(o *coordinatorOptions) { o.bus = b }
}

// WithIDSource overrides the random source for timer ids (tests).
func WithIDSource(src rand.Source) Option {
	return func(o *coordinatorOptions) { o.src = src }
}

func WithTargetFrameRate(fps int) Option {
	return func(o *coordinatorOptions) { o.targetFrameRate = fps }
}

// WithPoolSize sets how many timers are allocated up front. Zero disables
// the pre-fill; negative values are ignored.
func WithPoolSize(n int) Option {
	return func(o *coordinatorOptions) {
		if n >= 0 {
			o.poolSize = n
		}
	}
}

func NewCoordinator(opts ...Option) *Coordinator {
	o := coordinatorOptions{targetFrameRate: 60, poolSize: DefaultPoolSize}
	for _, fn := range opts {
		fn(&o)
	}
	if o.channels == nil {
		o.channels = timectl.NewRegistry(timectl.WithLogger(o.log))
	}
	warn := logx.NewLimiter(5*time.Second, 1)
	c := &Coordinator{
		live:            map[ID]*entry{},
		staged:          map[ID]*entry{},
		cancelled:       map[ID]struct{}{},
		ids:             NewIDRegistry(o.src, o.log),
		pool:            NewPool(o.log, warn),
		channels:        o.channels,
		targetFrameRate: o.targetFrameRate,
		bus:             o.bus,
		log:             o.log,
	}
	c.pool.Prewarm(o.poolSize)
	c.set = pending.New(pending.Hooks[*entry]{
		Admit:     c.admit,
		Rejected:  c.discard,
		OnAdded:   func(e *entry) { c.live[e.id] = e },
		OnRemoved: c.retire,
	})
	return c
}

// Len is the number of live (running) timers.
func (c *Coordinator) Len() int { return len(c.live) }

// Pending is the number of timers staged for the next apply phase.
func (c *Coordinator) Pending() int { return len(c.staged) }

// Counts is a snapshot of the coordinator's tables.
type Counts struct {
	Running int `json:"running"`
	// ToAdd counts staged timers, including cancelled ones not yet dropped.
	ToAdd    int `json:"to_add"`
	ToRemove int `json:"to_remove"`
	// Cancelled counts staged timers that will be dropped at the next apply.
	Cancelled int `json:"cancelled"`
}

func (c *Coordinator) Counts() Counts {
	adds, removes := c.set.PendingLen()
	return Counts{
		Running:   c.set.Len(),
		ToAdd:     adds,
		ToRemove:  removes,
		Cancelled: len(c.cancelled),
	}
}

// Pool exposes the reuse bench (diagnostics).
func (c *Coordinator) Pool() *Pool { return c.pool }

// IDs exposes the id registry (diagnostics).
func (c *Coordinator) IDs() *IDRegistry { return c.ids }

// SetTargetFrameRate applies to timers bound from now on and to live ones.
func (c *Coordinator) SetTargetFrameRate(fps int) {
	c.targetFrameRate = fps
	for _, e := range c.live {
		e.timer.SetTargetFrameRate(fps)
	}
	for _, e := range c.staged {
		e.timer.SetTargetFrameRate(fps)
	}
}

// After is AddTimer for the common create-timer call shape.
func (c *Coordinator) After(seconds float64, rate tickrate.Rate, onStart, onEnd func()) ID {
	return c.AddTimer(&Data{Duration: seconds, TickRate: rate, OnStart: onStart, OnEnd: onEnd})
}

// AddTimer stages a new timer and returns its handle id. A nil d is rejected
// (logged) and returns NoID.
func (c *Coordinator) AddTimer(d *Data) ID {
	h := c.ids.Generate()
	t := c.pool.Acquire()
	if !t.Bind(d, c.targetFrameRate) {
		h.Release()
		c.pool.Release(t)
		return NoID
	}
	e := &entry{id: h.ID(), timer: t, handle: h}
	c.staged[e.id] = e
	c.set.Stage(e)
	c.log.Trace("timer staged", logx.Hex("id", uint64(e.id)), logx.Float64("duration", t.Target()))
	return e.id
}

// RemoveTimer cancels a timer. It reports false if id is unknown or was
// already removed.
func (c *Coordinator) RemoveTimer(id ID) bool {
	if id == NoID {
		return false
	}
	if e, ok := c.live[id]; ok {
		c.set.Unstage(e)
		return true
	}
	if _, ok := c.cancelled[id]; ok {
		return true
	}
	if _, ok := c.staged[id]; ok {
		c.cancelled[id] = struct{}{}
		return true
	}
	return false
}

// ClearAll schedules every running timer for removal. Staged timers are not
// affected; cancel them with RemoveTimer.
func (c *Coordinator) ClearAll() {
	for _, e := range c.set.Snapshot() {
		c.set.Unstage(e)
	}
}

// Update runs one frame: every live timer advances by its group's channel
// deltas (paused groups hold), then staged changes are applied.
func (c *Coordinator) Update() {
	c.tick(func(e *entry) (float64, float64, bool) {
		ch := c.channels.Channel(e.timer.Group())
		if ch.Paused() {
			return 0, 0, false
		}
		return ch.DeltaTime(), ch.UnscaledDeltaTime(), true
	})
	c.apply()
}

// Tick runs one frame advancing every live timer by the same deltas,
// ignoring channels.
func (c *Coordinator) Tick(scaledDelta, rawFrameTime float64) {
	c.tick(func(*entry) (float64, float64, bool) { return scaledDelta, rawFrameTime, true })
	c.apply()
}

func (c *Coordinator) tick(deltas func(e *entry) (scaled, raw float64, ok bool)) {
	c.frame++
	c.set.Each(func(e *entry) {
		if c.set.IsPendingRemove(e) {
			return
		}
		scaled, raw, ok := deltas(e)
		if !ok {
			return
		}
		res := e.timer.Advance(scaled, raw)
		if res.Started {
			c.publish(eventbus.TimerStarted, e.id)
		}
		if res.Repeated {
			c.publish(eventbus.TimerRepeated, e.id)
		}
		if res.Ended {
			c.publish(eventbus.TimerEnded, e.id)
			c.set.Unstage(e)
		}
	})
}

func (c *Coordinator) apply() {
	c.set.Apply()
}

func (c *Coordinator) admit(e *entry) bool {
	delete(c.staged, e.id)
	_, cancelled := c.cancelled[e.id]
	return !cancelled
}

// discard drops a staged timer that was cancelled before it went live.
func (c *Coordinator) discard(e *entry) {
	delete(c.cancelled, e.id)
	c.publish(eventbus.TimerCancelled, e.id)
	e.handle.Release()
	c.pool.Release(e.timer)
}

// retire drops a live timer, whether it ended or was removed.
func (c *Coordinator) retire(e *entry) {
	if c.live[e.id] == e {
		delete(c.live, e.id)
	}
	if e.timer.State() != Idle {
		c.publish(eventbus.TimerCancelled, e.id)
	}
	e.handle.Release()
	c.pool.Release(e.timer)
}

func (c *Coordinator) publish(typ string, id ID) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(eventbus.Event{Type: typ, Frame: c.frame, Data: id})
}
