package registry

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"chronos/internal/interval"
	logx "chronos/pkg/logx"
)

type dueEvent struct {
	e       *entry
	cb      Callback
	payload Payload
}

// Tick advances the counter by one base tick and dispatches every due
// event. The counter then wraps modulo the LCM of the registered intervals.
func (r *Registry) Tick() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.counter++
	n := r.counter
	var due []dueEvent
	kept := r.entries[:0]
	for _, e := range r.entries {
		if e.every != 0 && (n-e.offset)%e.every == 0 && e.active && e.cb != nil {
			due = append(due, dueEvent{e: e, cb: e.cb, payload: e.payload})
			if e.once {
				continue
			}
		}
		kept = append(kept, e)
	}
	for i := len(kept); i < len(r.entries); i++ {
		r.entries[i] = nil
	}
	r.entries = kept
	r.wrapLocked()
	r.mu.Unlock()

	r.ticks.Add(1)
	for _, d := range due {
		r.dispatch(d.e, d.cb, d.payload, n, false)
	}
}

func (r *Registry) wrapLocked() {
	if len(r.entries) == 0 {
		r.window = 0
		return
	}
	seq := make([]int, 0, len(r.entries))
	for _, e := range r.entries {
		seq = append(seq, e.every)
	}
	lcm, err := interval.LCMOf(seq)
	if err != nil || lcm <= 0 {
		// An overflowing product leaves the counter alone; there is no
		// window to wrap it in.
		r.window = 0
		return
	}
	r.window = lcm
	if r.counter > lcm {
		r.counter %= lcm
	}
}

// Start drives Tick from the base tick until Stop or until ctx is done.
func (r *Registry) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if r.running {
		return nil
	}

	switch {
	case r.tick.Kind == TickCron:
		c := r.newCron()
		if _, err := c.AddFunc(r.tick.Cron, r.Tick); err != nil {
			return err
		}
		r.c = c
		c.Start()
	case r.clockTicks || r.tick.Every%time.Second != 0:
		r.srcGen++
		r.armLocked(r.clk.Now().Add(r.tick.Every), r.srcGen)
	default:
		c := r.newCron()
		c.Schedule(cron.Every(r.tick.Every), cron.FuncJob(r.Tick))
		r.c = c
		c.Start()
	}
	r.running = true
	if ctx != nil {
		r.stopCtx = context.AfterFunc(ctx, func() { r.Stop(context.Background()) })
	}
	r.log.Info("registry started", logx.String("tick", r.tick.String()), logx.Int("events", len(r.entries)))
	return nil
}

func (r *Registry) newCron() *cron.Cron {
	cl := cronLogger{log: r.log}
	return cron.New(
		cron.WithParser(r.parser),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
}

func (r *Registry) armLocked(deadline time.Time, gen uint64) {
	r.wake = r.clk.AfterFunc(deadline.Sub(r.clk.Now()), func() { r.onClockTick(gen, deadline) })
}

func (r *Registry) onClockTick(gen uint64, deadline time.Time) {
	r.mu.Lock()
	if !r.running || gen != r.srcGen {
		r.mu.Unlock()
		return
	}
	next := deadline.Add(r.tick.Every)
	if now := r.clk.Now(); next.Before(now) {
		// Missed ticks are skipped, not replayed.
		next = now.Add(r.tick.Every)
	}
	r.armLocked(next, gen)
	r.mu.Unlock()

	r.Tick()
}

// Stop halts the tick source. Events stay registered and Start resumes them.
func (r *Registry) Stop(ctx context.Context) {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	c := r.c
	r.c = nil
	if r.wake != nil {
		r.wake.Stop()
		r.wake = nil
	}
	r.srcGen++
	if r.stopCtx != nil {
		r.stopCtx()
		r.stopCtx = nil
	}
	r.mu.Unlock()

	if c != nil {
		if ctx == nil {
			ctx = context.Background()
		}
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
			// best-effort
		}
	}
	r.log.Info("registry stopped", logx.Uint64("ticks", r.ticks.Load()))
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Trace("cron: "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
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
