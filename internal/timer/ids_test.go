package timer

import (
	"bytes"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	logx "framesched/pkg/logx"
)

// seqSource replays values, then repeats the last one.
type seqSource struct {
	vals []uint64
	i    int
	n    int
}

func (s *seqSource) Uint64() uint64 {
	s.n++
	if s.i < len(s.vals)-1 {
		v := s.vals[s.i]
		s.i++
		return v
	}
	return s.vals[len(s.vals)-1]
}

func TestGenerateDistinctNonZero(t *testing.T) {
	t.Parallel()
	r := NewIDRegistry(rand.NewPCG(7, 9), logx.Nop())
	seen := map[ID]bool{}
	const n = MaxGenerateAttempts - 1
	for i := 0; i < n; i++ {
		h := r.Generate()
		if h.ID() == NoID {
			t.Fatal("generated NoID")
		}
		if seen[h.ID()] {
			t.Fatalf("duplicate id %v after %d draws", h.ID(), i)
		}
		seen[h.ID()] = true
	}
	if r.Len() != n {
		t.Fatalf("live = %d, want %d", r.Len(), n)
	}
}

func TestGenerateRejectsZero(t *testing.T) {
	t.Parallel()
	src := &seqSource{vals: []uint64{0, 0, 42}}
	r := NewIDRegistry(src, logx.Nop())
	if got := r.Generate().ID(); got != 42 {
		t.Fatalf("id = %v, want 42", uint64(got))
	}
}

func TestGenerateRetriesCollisions(t *testing.T) {
	t.Parallel()
	src := &seqSource{vals: []uint64{5, 5, 5, 6}}
	r := NewIDRegistry(src, logx.Nop())
	a := r.Generate()
	b := r.Generate()
	if a.ID() != 5 || b.ID() != 6 {
		t.Fatalf("ids = %v, %v, want 5, 6", uint64(a.ID()), uint64(b.ID()))
	}
}

func TestGenerateDegradesAfterBudget(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	src := &seqSource{vals: []uint64{9}}
	r := NewIDRegistry(src, logx.New(zerolog.New(&buf)))

	a := r.Generate()
	draws := src.n
	b := r.Generate()
	if a.ID() != 9 || b.ID() != 9 {
		t.Fatalf("ids = %v, %v, want both 9", uint64(a.ID()), uint64(b.ID()))
	}
	if got := src.n - draws; got != MaxGenerateAttempts {
		t.Fatalf("draws for colliding id = %d, want %d", got, MaxGenerateAttempts)
	}
	if !strings.Contains(buf.String(), "retry budget exhausted") {
		t.Fatalf("missing degradation warning: %q", buf.String())
	}

	a.Release()
	if !r.Live(9) {
		t.Fatal("releasing one colliding handle freed the other")
	}
	b.Release()
	if r.Live(9) {
		t.Fatal("id still live after both releases")
	}
}

func TestHandleReleaseIsIdempotent(t *testing.T) {
	t.Parallel()
	r := NewIDRegistry(nil, logx.Nop())
	h := r.Generate()
	id := h.ID()
	h.Release()
	h.Release()
	if h.ID() != NoID {
		t.Fatalf("released handle id = %v, want NoID", h.ID())
	}
	if r.Live(id) || r.Len() != 0 {
		t.Fatal("id still live after release")
	}
	var nilHandle *Handle
	nilHandle.Release()
	if nilHandle.ID() != NoID {
		t.Fatal("nil handle id is not NoID")
	}
}
