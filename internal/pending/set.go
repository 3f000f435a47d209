// Package pending implements a collection that is safe to mutate while it is
// being iterated: changes requested during a pass are buffered and applied
// at the next safe point.
package pending

import "slices"

// Set is an insertion-ordered set with pending-add and pending-remove buffers.
//
// While Each is running, Add and Remove only touch the buffers; the running
// slice is never mutated mid-iteration. Apply moves buffered changes into
// the running slice (adds first, then removals).
//
// T must be comparable at runtime; interface-typed sets must hold pointers or
// other comparable dynamic values. A Set is not safe for concurrent use.
type Set[T comparable] struct {
	running []T
	members map[T]struct{}

	toAdd    []T
	addSet   map[T]struct{}
	toRemove []T
	rmSet    map[T]struct{}

	iterating bool

	hooks Hooks[T]
}

// Hooks observe Apply and direct mutations.
//
// Admit is consulted before a buffered add is promoted; returning false
// drops it (Rejected is then called). OnAdded and OnRemoved fire after the
// running slice changed.
type Hooks[T comparable] struct {
	Admit     func(v T) bool
	Rejected  func(v T)
	OnAdded   func(v T)
	OnRemoved func(v T)
}

func New[T comparable](hooks Hooks[T]) *Set[T] {
	return &Set[T]{
		members: map[T]struct{}{},
		addSet:  map[T]struct{}{},
		rmSet:   map[T]struct{}{},
		hooks:   hooks,
	}
}

func (s *Set[T]) Len() int        { return len(s.running) }
func (s *Set[T]) Iterating() bool { return s.iterating }

func (s *Set[T]) Contains(v T) bool {
	_, ok := s.members[v]
	return ok
}

func (s *Set[T]) IsPendingAdd(v T) bool {
	_, ok := s.addSet[v]
	return ok
}

func (s *Set[T]) IsPendingRemove(v T) bool {
	_, ok := s.rmSet[v]
	return ok
}

// PendingLen returns the number of buffered adds and removes.
func (s *Set[T]) PendingLen() (adds, removes int) { return len(s.toAdd), len(s.toRemove) }

// Add inserts v. During a pass it is buffered; otherwise it is inserted
// directly. Adding a running or already buffered value is a no-op.
func (s *Set[T]) Add(v T) {
	if s.iterating {
		s.Stage(v)
		return
	}
	s.insert(v)
}

// Remove deletes v. During a pass it is buffered; otherwise it is removed directly.
func (s *Set[T]) Remove(v T) {
	if s.iterating {
		s.Unstage(v)
		return
	}
	s.delete(v)
}

// Stage always buffers v for the next Apply, even outside a pass.
func (s *Set[T]) Stage(v T) {
	if s.Contains(v) || s.IsPendingAdd(v) {
		return
	}
	s.addSet[v] = struct{}{}
	s.toAdd = append(s.toAdd, v)
}

// Unstage always buffers v for removal at the next Apply.
func (s *Set[T]) Unstage(v T) {
	if s.IsPendingRemove(v) {
		return
	}
	s.rmSet[v] = struct{}{}
	s.toRemove = append(s.toRemove, v)
}

// Each calls fn for every running value in insertion order. Values added
// during the pass are not visited; values removed during the pass are still
// visited unless fn skips them via IsPendingRemove.
func (s *Set[T]) Each(fn func(v T)) {
	s.iterating = true
	defer func() { s.iterating = false }()
	// The running slice is not mutated while iterating, so ranging over it is safe.
	for _, v := range s.running {
		fn(v)
	}
}

// Apply promotes buffered adds and then applies buffered removals.
func (s *Set[T]) Apply() {
	if len(s.toAdd) > 0 {
		adds := s.toAdd
		s.toAdd = nil
		clear(s.addSet)
		for _, v := range adds {
			if s.hooks.Admit != nil && !s.hooks.Admit(v) {
				if s.hooks.Rejected != nil {
					s.hooks.Rejected(v)
				}
				continue
			}
			s.insert(v)
		}
	}

	if len(s.toRemove) > 0 {
		rms := s.toRemove
		s.toRemove = nil
		clear(s.rmSet)
		var gone map[T]struct{}
		for _, v := range rms {
			if !s.Contains(v) {
				continue
			}
			if gone == nil {
				gone = make(map[T]struct{}, len(rms))
			}
			gone[v] = struct{}{}
			delete(s.members, v)
		}
		if len(gone) > 0 {
			s.running = slices.DeleteFunc(s.running, func(v T) bool {
				_, ok := gone[v]
				return ok
			})
			if s.hooks.OnRemoved != nil {
				for _, v := range rms {
					if _, ok := gone[v]; ok {
						delete(gone, v)
						s.hooks.OnRemoved(v)
					}
				}
			}
		}
	}
}

// Snapshot returns a copy of the running values in iteration order.
func (s *Set[T]) Snapshot() []T {
	return slices.Clone(s.running)
}

func (s *Set[T]) insert(v T) {
	if s.Contains(v) {
		return
	}
	s.members[v] = struct{}{}
	s.running = append(s.running, v)
	if s.hooks.OnAdded != nil {
		s.hooks.OnAdded(v)
	}
}

func (s *Set[T]) delete(v T) {
	if !s.Contains(v) {
		return
	}
	delete(s.members, v)
	if i := slices.Index(s.running, v); i >= 0 {
		s.running = slices.Delete(s.running, i, i+1)
	}
	if s.hooks.OnRemoved != nil {
		s.hooks.OnRemoved(v)
	}
}
