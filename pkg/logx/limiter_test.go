package logx

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestLimiterThrottlesPerKey(t *testing.T) {
	t.Parallel()
	lim := NewLimiter(time.Hour, 2)

	for i := 0; i < 2; i++ {
		if ok, _ := lim.Allow("a"); !ok {
			t.Fatalf("call %d for key a was throttled, want allowed", i)
		}
	}
	if ok, _ := lim.Allow("a"); ok {
		t.Fatal("third call for key a was allowed, want throttled")
	}
	if ok, _ := lim.Allow("b"); !ok {
		t.Fatal("key b shares budget with key a")
	}
}

func TestNilLimiterNeverThrottles(t *testing.T) {
	t.Parallel()
	var lim *Limiter
	for i := 0; i < 10; i++ {
		if ok, _ := lim.Allow("x"); !ok {
			t.Fatalf("nil limiter throttled call %d", i)
		}
	}
}

func TestLimiterWarnWritesOnce(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := New(zerolog.New(&buf))
	lim := NewLimiter(time.Hour, 1)

	for i := 0; i < 5; i++ {
		lim.Warn(log, "channel is protected")
	}
	if got := strings.Count(buf.String(), "channel is protected"); got != 1 {
		t.Fatalf("warning written %d times, want 1", got)
	}
}

func TestZeroLoggerIsNoop(t *testing.T) {
	t.Parallel()
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero Logger should report IsZero")
	}
	l.Warn("dropped", String("k", "v"))
	if l.With(String("a", "b")).IsZero() {
		t.Fatal("With() on zero logger should carry fields")
	}
}
