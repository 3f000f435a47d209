package timer

import (
	"math"

	"framesched/internal/tickrate"
	"framesched/internal/timectl"
	logx "framesched/pkg/logx"
)

// MinDuration is the shortest countdown Bind accepts (seconds).
const MinDuration = 0.001

// driftTolerance is the fraction of an interval treated as zero when
// comparing sums of float intervals, so 300 steps of 1/60s end a 5s timer.
const driftTolerance = 1e-9

// Data describes one timer registration. Callbacks are optional.
type Data struct {
	// Duration is the countdown in seconds of logical (scaled) time.
	Duration float64
	TickRate tickrate.Rate
	// Group selects the time channel the coordinator advances the timer with.
	Group timectl.Group
	// Repeat re-arms the countdown after OnEnd instead of finishing.
	Repeat bool

	OnStart func()
	OnEnd   func()
}

// State is the life-cycle position of a Timer.
type State uint8

const (
	Idle State = iota
	Armed
	Running
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Running:
		return "running"
	default:
		return "unknown"
	}
}

// Timer is a reusable countdown. A bound timer is Armed; the first consumed
// interval starts it (OnStart) and the interval that brings the countdown to
// zero ends it (OnEnd), after which it resets itself to Idle.
//
// Advance consumes at most one interval per call.
type Timer struct {
	data Data
	// armed is true between Bind and the end (or Reset).
	armed bool

	currentTime     float64
	targetTime      float64
	accumulated     float64
	hasStarted      bool
	hasEnded        bool
	targetFrameRate int

	log  logx.Logger
	warn *logx.Limiter
}

func (t *Timer) State() State {
	switch {
	case !t.armed:
		return Idle
	case t.hasStarted:
		return Running
	default:
		return Armed
	}
}

// Remaining is the countdown left in seconds; zero when Idle.
func (t *Timer) Remaining() float64 { return t.currentTime }

// Target is the bound duration in seconds; zero when Idle.
func (t *Timer) Target() float64 { return t.targetTime }

// Ratio is the fraction of the countdown still left: 1 when freshly bound,
// falling toward 0. It is 0 when Idle.
func (t *Timer) Ratio() float64 {
	if t.targetTime <= 0 {
		return 0
	}
	return max(t.currentTime/t.targetTime, 0)
}

func (t *Timer) Group() timectl.Group { return t.data.Group }

func (t *Timer) SetTargetFrameRate(fps int) { t.targetFrameRate = fps }

// Bind arms the timer with a copy of d. A nil d is rejected with a warning
// and leaves the timer Idle.
func (t *Timer) Bind(d *Data, targetFrameRate int) bool {
	if d == nil {
		t.warn.Warn(t.log, "timer bind rejected: no data")
		t.armed = false
		return false
	}
	dur := d.Duration
	if dur < MinDuration || math.IsNaN(dur) {
		dur = MinDuration
	}
	t.data = *d
	t.currentTime = dur
	t.targetTime = dur
	t.accumulated = 0
	t.hasStarted = false
	t.hasEnded = false
	t.targetFrameRate = targetFrameRate
	t.armed = true
	return true
}

// Result reports what one Advance call did.
type Result struct {
	Started bool
	Ended   bool
	// Repeated is set instead of Ended when a repeating timer re-armed.
	Repeated bool
}

// Advance adds scaledDelta to the timer and, once a whole interval has
// accumulated, consumes it. rawFrameTime feeds the interval computation and
// must be > 0; non-positive values are ignored. No-op when not armed.
func (t *Timer) Advance(scaledDelta, rawFrameTime float64) Result {
	var res Result
	if !t.armed || rawFrameTime <= 0 {
		return res
	}
	t.accumulated += scaledDelta

	interval := tickrate.Interval(t.data.TickRate, rawFrameTime, t.targetFrameRate)
	eps := interval * driftTolerance
	if t.accumulated < interval-eps {
		return res
	}
	t.accumulated = max(t.accumulated-interval, 0)

	if !t.hasStarted {
		t.hasStarted = true
		res.Started = true
		if t.data.OnStart != nil {
			t.data.OnStart()
		}
	}

	t.currentTime -= interval
	if t.currentTime > eps {
		return res
	}

	t.hasEnded = true
	if t.data.OnEnd != nil {
		t.data.OnEnd()
	}
	if t.data.Repeat && t.armed {
		t.currentTime = t.targetTime
		t.hasStarted = false
		t.hasEnded = false
		res.Repeated = true
		return res
	}
	res.Ended = true
	t.Reset()
	return res
}

// Reset clears all bound data and returns the timer to Idle.
func (t *Timer) Reset() {
	t.data = Data{}
	t.armed = false
	t.currentTime = 0
	t.targetTime = 0
	t.accumulated = 0
	t.hasStarted = false
	t.hasEnded = false
}
