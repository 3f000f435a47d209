package update

import (
	"framesched/internal/tickrate"
	"framesched/internal/timectl"
)

// Member is the part every registered object shares: the timeline it
// follows and how often it wants to be called.
//
// Members are identified by value, so implementations should be pointers.
type Member interface {
	UpdateGroup() timectl.Group
	TickRate() tickrate.Rate
}

// Updater receives regular-phase callbacks.
type Updater interface {
	Member
	Update(dt float64)
}

// FixedUpdater receives fixed-step callbacks.
type FixedUpdater interface {
	Member
	FixedUpdate(dt float64)
}

// LateUpdater receives late-phase callbacks. Late dispatch reads the
// regular timeline.
type LateUpdater interface {
	Member
	LateUpdate(dt float64)
}

// Phase names one of the three dispatch tables.
type Phase uint8

const (
	PhaseRegular Phase = iota
	PhaseFixed
	PhaseLate
)

func (p Phase) String() string {
	switch p {
	case PhaseRegular:
		return "update"
	case PhaseFixed:
		return "fixed_update"
	case PhaseLate:
		return "late_update"
	default:
		return "unknown"
	}
}
