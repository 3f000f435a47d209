package timer

import logx "framesched/pkg/logx"

// Pool is a reuse bench of Timer instances.
type Pool struct {
	free      []*Timer
	allocated int

	log  logx.Logger
	warn *logx.Limiter
}

func NewPool(log logx.Logger, warn *logx.Limiter) *Pool {
	return &Pool{log: log, warn: warn}
}

// Acquire pops an idle timer or allocates a new one.
func (p *Pool) Acquire() *Timer {
	if n := len(p.free); n > 0 {
		t := p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
		return t
	}
	p.allocated++
	return &Timer{log: p.log, warn: p.warn}
}

// Release puts t back on the bench. The timer is reset first, so a caller
// that forgot to do so cannot leak callbacks into the next owner.
func (p *Pool) Release(t *Timer) {
	if t == nil {
		return
	}
	t.Reset()
	p.free = append(p.free, t)
}

// Prewarm allocates timers until at least n are idle on the bench.
func (p *Pool) Prewarm(n int) {
	for len(p.free) < n {
		p.allocated++
		p.free = append(p.free, &Timer{log: p.log, warn: p.warn})
	}
}

// Len is the number of idle timers on the bench.
func (p *Pool) Len() int { return len(p.free) }

// Allocated is the number of timers ever created by this pool.
func (p *Pool) Allocated() int { return p.allocated }
