package timer

import (
	"fmt"
	"math/rand/v2"

	logx "framesched/pkg/logx"
)

// ID is the external handle of one timer registration. NoID is never issued.
type ID uint64

const NoID ID = 0

func (id ID) String() string { return fmt.Sprintf("%016x", uint64(id)) }

// MaxGenerateAttempts bounds how many collisions Generate retries before it
// accepts a value that is already live.
const MaxGenerateAttempts = 100

// IDRegistry issues random non-zero ids and tracks which are live.
//
// Uniqueness is best effort: when MaxGenerateAttempts draws all collide,
// the last draw is issued anyway and a warning is logged. Availability wins
// over strict uniqueness here. Live values are reference counted, so
// releasing one of two colliding handles keeps the other live.
type IDRegistry struct {
	src  rand.Source
	live map[ID]int
	log  logx.Logger
}

// globalSource draws from the runtime's auto-seeded generator.
type globalSource struct{}

func (globalSource) Uint64() uint64 { return rand.Uint64() }

// NewIDRegistry uses src for draws; nil selects the runtime's generator.
// src must not return zero forever.
func NewIDRegistry(src rand.Source, log logx.Logger) *IDRegistry {
	if src == nil {
		src = globalSource{}
	}
	return &IDRegistry{src: src, live: map[ID]int{}, log: log}
}

// Handle binds one issued id to its release.
type Handle struct {
	id  ID
	reg *IDRegistry
}

// ID returns the bound id, or NoID after Release.
func (h *Handle) ID() ID {
	if h == nil {
		return NoID
	}
	return h.id
}

// Release frees the id and resets the handle to NoID. Safe to call twice.
func (h *Handle) Release() {
	if h == nil || h.id == NoID {
		return
	}
	h.reg.release(h.id)
	h.id = NoID
}

// Generate draws a fresh id and marks it live.
func (r *IDRegistry) Generate() *Handle {
	var id ID
	attempts := 0
	for {
		id = ID(r.src.Uint64())
		if id == NoID {
			continue
		}
		attempts++
		if r.live[id] == 0 {
			break
		}
		if attempts >= MaxGenerateAttempts {
			r.log.Warn("timer id retry budget exhausted; issuing a live id",
				logx.Hex("id", uint64(id)),
				logx.Int("attempts", attempts),
				logx.Int("live", len(r.live)))
			break
		}
	}
	r.live[id]++
	return &Handle{id: id, reg: r}
}

// Live reports whether id is currently issued.
func (r *IDRegistry) Live(id ID) bool { return r.live[id] > 0 }

// Len is the number of distinct live ids.
func (r *IDRegistry) Len() int { return len(r.live) }

func (r *IDRegistry) release(id ID) {
	switch n := r.live[id]; {
	case n <= 1:
		delete(r.live, id)
	default:
		r.live[id] = n - 1
	}
}
