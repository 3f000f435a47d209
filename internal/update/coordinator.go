package update

import (
	"reflect"

	"framesched/internal/timectl"
	logx "framesched/pkg/logx"
)

// DefaultTargetFrameRate is used when no WithTargetFrameRate option is given.
const DefaultTargetFrameRate = 60

// Coordinator owns the three phase controllers and the channel registry.
//
// It is constructed explicitly and handed to whoever registers members;
// there is no package-level instance. All methods must be called from the
// driver goroutine.
type Coordinator struct {
	channels *timectl.Registry

	regular *Controller[Updater]
	fixed   *Controller[FixedUpdater]
	late    *Controller[LateUpdater]

	paused          bool
	targetFrameRate int

	log logx.Logger
}

type Option func(*coordinatorOptions)

type coordinatorOptions struct {
	log             logx.Logger
	channels        *timectl.Registry
	targetFrameRate int
}

func WithLogger(log logx.Logger) Option {
	return func(o *coordinatorOptions) { o.log = log }
}

// WithChannels shares an existing registry (e.g. with a timer coordinator).
func WithChannels(r *timectl.Registry) Option {
	return func(o *coordinatorOptions) { o.channels = r }
}

// WithTargetFrameRate sets the nominal frame rate; <= 0 derives it from
// the measured frame time.
func WithTargetFrameRate(fps int) Option {
	return func(o *coordinatorOptions) { o.targetFrameRate = fps }
}

func NewCoordinator(opts ...Option) *Coordinator {
	o := coordinatorOptions{targetFrameRate: DefaultTargetFrameRate}
	for _, fn := range opts {
		fn(&o)
	}
	if o.channels == nil {
		o.channels = timectl.NewRegistry(timectl.WithLogger(o.log))
	}
	return &Coordinator{
		channels:        o.channels,
		regular:         NewRegular(o.channels, o.targetFrameRate, o.log),
		fixed:           NewFixed(o.channels, o.targetFrameRate, o.log),
		late:            NewLate(o.channels, o.targetFrameRate, o.log),
		targetFrameRate: o.targetFrameRate,
		log:             o.log,
	}
}

func (c *Coordinator) Channels() *timectl.Registry { return c.channels }

// Register adds m to every controller whose capability it implements.
// nil is ignored. It reports whether m implemented any capability.
func (c *Coordinator) Register(m any) bool {
	if m == nil {
		return false
	}
	if !identifiable(m) {
		c.log.Warn("register rejected: member is not comparable, pass a pointer", logx.String("type", typeName(m)))
		return false
	}
	matched := false
	if u, ok := m.(Updater); ok {
		c.regular.Add(u)
		matched = true
	}
	if f, ok := m.(FixedUpdater); ok {
		c.fixed.Add(f)
		matched = true
	}
	if l, ok := m.(LateUpdater); ok {
		c.late.Add(l)
		matched = true
	}
	if !matched {
		c.log.Debug("register ignored: no update capability", logx.String("type", typeName(m)))
	}
	return matched
}

// Unregister removes m from every controller whose capability it implements.
func (c *Coordinator) Unregister(m any) {
	if m == nil || !identifiable(m) {
		return
	}
	if u, ok := m.(Updater); ok {
		c.regular.Remove(u)
	}
	if f, ok := m.(FixedUpdater); ok {
		c.fixed.Remove(f)
	}
	if l, ok := m.(LateUpdater); ok {
		c.late.Remove(l)
	}
}

// Paused reports the global pause flag.
func (c *Coordinator) Paused() bool { return c.paused }

// SetPaused sets the global pause flag. While paused the regular and fixed
// timelines receive zero elapsed time; late dispatch shares the regular flag.
func (c *Coordinator) SetPaused(paused bool) {
	if c.paused == paused {
		return
	}
	c.paused = paused
	c.regular.SetPaused(paused)
	c.fixed.SetPaused(paused)
	c.late.SetPaused(paused)
	c.log.Info("global pause changed", logx.Bool("paused", paused))
}

func (c *Coordinator) TargetFrameRate() int { return c.targetFrameRate }

// SetTargetFrameRate takes effect on the next tick of every phase.
func (c *Coordinator) SetTargetFrameRate(fps int) {
	c.targetFrameRate = fps
	c.regular.SetTargetFrameRate(fps)
	c.fixed.SetTargetFrameRate(fps)
	c.late.SetTargetFrameRate(fps)
}

// Update drives the regular phase with the host's raw unscaled delta (seconds).
func (c *Coordinator) Update(unscaled float64) {
	if c.paused {
		unscaled = 0
	}
	c.channels.UpdateAll(unscaled)
	c.regular.UpdateComponents()
}

// FixedUpdate drives the fixed phase with the host's raw unscaled fixed step (seconds).
func (c *Coordinator) FixedUpdate(unscaledFixed float64) {
	if c.paused {
		unscaledFixed = 0
	}
	c.channels.FixedUpdateAll(unscaledFixed)
	c.fixed.UpdateComponents()
}

// LateUpdate drives the late phase using the channel state of the last Update.
func (c *Coordinator) LateUpdate() {
	c.late.UpdateComponents()
}

// Stats is a point-in-time count of running members per phase.
type Stats struct {
	Regular int `json:"regular"`
	Fixed   int `json:"fixed"`
	Late    int `json:"late"`
}

func (c *Coordinator) Stats() Stats {
	return Stats{Regular: c.regular.Len(), Fixed: c.fixed.Len(), Late: c.late.Len()}
}

// identifiable reports whether m can key the membership tables. A value of a
// struct type holding a slice, map or func would panic on lookup.
func identifiable(m any) bool {
	return reflect.TypeOf(m).Comparable()
}
