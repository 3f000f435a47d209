package timectl

import (
	"math"
	"time"

	logx "framesched/pkg/logx"
)

// Registry maps each Group to its Channel. Channels are created on first
// lookup and live as long as the registry.
//
// A Registry is owned by one driver goroutine; it is not safe for concurrent use.
type Registry struct {
	channels map[Group]*Channel
	// update order; map iteration order would make logs nondeterministic
	order []Group

	globalScale      float64
	globalFixedScale float64

	log  logx.Logger
	warn *logx.Limiter
}

type Option func(*Registry)

func WithLogger(log logx.Logger) Option {
	return func(r *Registry) { r.log = log }
}

// WithWarnLimiter replaces the default throttle for protected-group warnings.
func WithWarnLimiter(l *logx.Limiter) Option {
	return func(r *Registry) { r.warn = l }
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		channels:         map[Group]*Channel{},
		globalScale:      1,
		globalFixedScale: 1,
		warn:             logx.NewLimiter(5*time.Second, 1),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Channel returns the channel for g, creating it unpaused with scale 1.
func (r *Registry) Channel(g Group) *Channel {
	if c, ok := r.channels[g]; ok {
		return c
	}
	c := newChannel()
	r.channels[g] = c
	r.order = append(r.order, g)
	return c
}

// Len returns the number of channels created so far.
func (r *Registry) Len() int { return len(r.channels) }

func (r *Registry) IsPaused(g Group) bool             { return r.Channel(g).Paused() }
func (r *Registry) DeltaTime(g Group) float64         { return r.Channel(g).DeltaTime() }
func (r *Registry) UnscaledDeltaTime(g Group) float64 { return r.Channel(g).UnscaledDeltaTime() }
func (r *Registry) FixedDeltaTime(g Group) float64    { return r.Channel(g).FixedDeltaTime() }
func (r *Registry) UnscaledFixedDeltaTime(g Group) float64 {
	return r.Channel(g).UnscaledFixedDeltaTime()
}

func (r *Registry) GlobalTimeScale() float64      { return r.globalScale }
func (r *Registry) GlobalFixedTimeScale() float64 { return r.globalFixedScale }

// SetGlobalTimeScale sets the process-wide multiplier applied before each
// channel's own scale on the regular timeline. Negative values clamp to zero.
func (r *Registry) SetGlobalTimeScale(scale float64) {
	r.globalScale = clampScale(scale)
}

// SetGlobalFixedTimeScale is SetGlobalTimeScale for the fixed-step timeline.
func (r *Registry) SetGlobalFixedTimeScale(scale float64) {
	r.globalFixedScale = clampScale(scale)
}

// UpdateAll feeds one regular-phase tick to every channel.
func (r *Registry) UpdateAll(unscaled float64) {
	// Always exists even if nobody looked it up yet.
	r.Channel(Always)
	d := unscaled * r.globalScale
	for _, g := range r.order {
		r.channels[g].Update(d)
	}
}

// FixedUpdateAll feeds one fixed-phase tick to every channel.
func (r *Registry) FixedUpdateAll(unscaledFixed float64) {
	r.Channel(Always)
	d := unscaledFixed * r.globalFixedScale
	for _, g := range r.order {
		r.channels[g].UpdateFixed(d)
	}
}

// SetPaused pauses or resumes g. Always is protected: the call logs a
// warning and does nothing. It reports whether the channel was changed.
func (r *Registry) SetPaused(g Group, paused bool) bool {
	if g == Always {
		r.warn.Warn(r.log, "update group always cannot be paused", logx.Bool("paused", paused))
		return false
	}
	r.Channel(g).SetPaused(paused)
	r.log.Debug("channel pause changed", logx.String("group", g.String()), logx.Bool("paused", paused))
	return true
}

// SetTimeScale rescales g (clamped to >= 0). Always is protected like in SetPaused.
func (r *Registry) SetTimeScale(g Group, scale float64) bool {
	if g == Always {
		r.warn.Warn(r.log, "update group always cannot be rescaled", logx.Float64("scale", scale))
		return false
	}
	r.Channel(g).SetTimeScale(scale)
	r.log.Debug("channel time scale changed", logx.String("group", g.String()), logx.Float64("scale", r.Channel(g).TimeScale()))
	return true
}

// SetPausedMany applies SetPaused to each group; Always is skipped with a warning.
func (r *Registry) SetPausedMany(groups []Group, paused bool) {
	for _, g := range groups {
		r.SetPaused(g, paused)
	}
}

// SetTimeScaleMany applies SetTimeScale to each group; Always is skipped with a warning.
func (r *Registry) SetTimeScaleMany(groups []Group, scale float64) {
	for _, g := range groups {
		r.SetTimeScale(g, scale)
	}
}

func clampScale(s float64) float64 {
	if s < 0 || math.IsNaN(s) {
		return 0
	}
	return s
}
