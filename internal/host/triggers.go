package host

import (
	"context"
	"hash/fnv"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"framesched/internal/config"
	"framesched/internal/eventbus"
	"framesched/internal/timer"
	logx "framesched/pkg/logx"
)

const maxStartupSpread = 30 * time.Second

// Triggers fires wall-clock (cron) schedules into the frame loop. Each fire
// posts an AddTimer to the loop, so the created timer runs on frame time
// (scaled and paused with its group) from the next frame on.
type Triggers struct {
	loop *Loop
	bus  eventbus.Bus
	log  logx.Logger
	loc  *time.Location

	mu      sync.Mutex
	c       *cron.Cron
	defs    []config.Trigger
	running bool
}

func NewTriggers(loop *Loop, bus eventbus.Bus, log logx.Logger) *Triggers {
	return &Triggers{loop: loop, bus: bus, log: log, loc: time.Local}
}

// Len is the number of installed schedules.
func (t *Triggers) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.defs)
}

// Sync replaces the installed schedules. If the cron runner is active it
// is restarted with the new set.
func (t *Triggers) Sync(defs []config.Trigger) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.defs = append(t.defs[:0:0], defs...)
	if t.running {
		t.restartLocked()
	}
}

// Run starts the cron runner and blocks until ctx is done.
func (t *Triggers) Run(ctx context.Context) error {
	t.mu.Lock()
	t.running = true
	t.restartLocked()
	t.mu.Unlock()

	<-ctx.Done()

	t.mu.Lock()
	t.running = false
	c := t.c
	t.c = nil
	t.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
	return nil
}

func (t *Triggers) restartLocked() {
	if t.c != nil {
		<-t.c.Stop().Done()
	}
	cl := cronLogger{log: t.log}
	t.c = cron.New(
		cron.WithLocation(t.loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl)),
	)
	now := time.Now().In(t.loc)
	for _, def := range t.defs {
		sched := def.Schedule
		if every, ok := sched.(cron.ConstantDelaySchedule); ok {
			sched = withStartupSpread(every, now, def.Name)
		}
		t.c.Schedule(sched, cron.FuncJob(func() { t.Fire(def) }))
	}
	t.c.Start()
	t.log.Info("triggers started", logx.Int("schedules", len(t.defs)), logx.String("tz", t.loc.String()))
}

// Fire posts the timer for def to the loop, as if its schedule came due.
func (t *Triggers) Fire(def config.Trigger) {
	if t.bus != nil {
		t.bus.Publish(eventbus.Event{Type: eventbus.TriggerFired, Data: def.Name})
	}
	t.loop.Post(func(l *Loop) {
		name := def.Name
		id := l.Timers().AddTimer(&timer.Data{
			Duration: def.Duration.Seconds(),
			TickRate: def.Rate,
			Group:    def.Group,
			OnEnd: func() {
				t.log.Debug("trigger timer ended", logx.String("trigger", name))
			},
		})
		t.log.Debug("trigger fired",
			logx.String("trigger", name),
			logx.Hex("timer", uint64(id)),
			logx.String("group", def.Group.String()))
	})
}

// startupSpreadSchedule overrides the first run time of an interval
// schedule, then delegates to it.
type startupSpreadSchedule struct {
	base  cron.Schedule
	first time.Time
}

func (s *startupSpreadSchedule) Next(t time.Time) time.Time {
	if !s.first.IsZero() && t.Before(s.first) {
		return s.first
	}
	return s.base.Next(t)
}

// withStartupSpread delays the first run of an @every schedule by a random
// slice of the interval (capped) so a restart does not fire every interval
// trigger at once.
func withStartupSpread(every cron.ConstantDelaySchedule, now time.Time, tag string) cron.Schedule {
	spread := min(every.Delay, maxStartupSpread)
	if spread <= 0 {
		return every
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(tag))
	rng := rand.New(rand.NewPCG(h.Sum64(), uint64(now.UnixNano())))
	jitter := time.Duration(rng.Int64N(int64(spread)))
	return &startupSpreadSchedule{base: every, first: now.Add(every.Delay + jitter)}
}

// cronLogger routes cron's own logging through logx.
type cronLogger struct {
	log logx.Logger
}

func (c cronLogger) Info(msg string, kv ...any) {
	c.log.Trace("cron: "+msg, kvFields(kv)...)
}

func (c cronLogger) Error(err error, msg string, kv ...any) {
	c.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}
