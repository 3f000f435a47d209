package logx

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter throttles repeated log lines per key.
//
// Invalid-operation warnings in the scheduler are usually triggered from a
// per-frame code path; without throttling a single misbehaving caller would
// emit one line per frame. Suppressed lines are counted and reported on the
// next line that is allowed through.
//
// Zero value is not usable; use NewLimiter. A nil *Limiter never throttles.
type Limiter struct {
	mu       sync.Mutex
	every    time.Duration
	burst    int
	limiters map[string]*keyLimiter
}

type keyLimiter struct {
	lim        *rate.Limiter
	suppressed uint64
}

// NewLimiter allows burst lines per key and then one line every interval.
func NewLimiter(every time.Duration, burst int) *Limiter {
	if every <= 0 {
		every = time.Second
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{every: every, burst: burst, limiters: map[string]*keyLimiter{}}
}

// Allow reports whether a line for key may be written now, and how many
// lines for the same key were suppressed since the last allowed one.
func (l *Limiter) Allow(key string) (bool, uint64) {
	if l == nil {
		return true, 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	kl := l.limiters[key]
	if kl == nil {
		kl = &keyLimiter{lim: rate.NewLimiter(rate.Every(l.every), l.burst)}
		l.limiters[key] = kl
	}
	if !kl.lim.Allow() {
		kl.suppressed++
		return false, 0
	}
	n := kl.suppressed
	kl.suppressed = 0
	return true, n
}

// Warn writes a throttled warning keyed by msg.
func (l *Limiter) Warn(log Logger, msg string, fields ...Field) {
	ok, suppressed := l.Allow(msg)
	if !ok {
		return
	}
	if suppressed > 0 {
		fields = append(fields, Uint64("suppressed", suppressed))
	}
	log.Warn(msg, fields...)
}
