package timer

import (
	"context"
	"runtime"
	"time"

	"chronos/internal/eventbus"
	"chronos/internal/exec"
	logx "chronos/pkg/logx"
)

type tokenObserver struct {
	tok ObserverToken
	fn  Observer
}

func (t *Timer) armLocked(delay time.Duration) {
	t.disarmLocked()
	t.ensureExecLocked()
	gen := t.gen
	t.deadline = t.clk.Now().Add(delay)
	t.wake = t.clk.AfterFunc(delay, func() { t.onWake(gen) })
}

// disarmLocked cancels the pending wakeup. Bumping gen invalidates wakeups
// and queued cycles that already escaped Stop.
func (t *Timer) disarmLocked() {
	if t.wake != nil {
		t.wake.Stop()
		t.wake = nil
	}
	t.gen++
	t.deadline = time.Time{}
}

// nextDeadline schedules a repeating timer from its previous deadline so
// intervals do not drift. When the wakeup is later than tolerance allows the
// schedule is re-anchored on now instead of bursting to catch up.
func nextDeadline(prev, now time.Time, every, tolerance time.Duration) time.Time {
	next := prev.Add(every)
	if !next.Before(now) {
		return next
	}
	if now.Sub(next) > tolerance {
		return now.Add(every)
	}
	return now
}

// onWake re-arms a repeating timer before submitting the cycle, also while
// the previous cycle is still executing, so a slow observer never loses the
// schedule. The overlapping cycle is coalesced in fire.
func (t *Timer) onWake(gen uint64) {
	t.mu.Lock()
	if t.closed || gen != t.gen || !t.state.IsRunning() {
		t.mu.Unlock()
		return
	}
	t.wake = nil
	if t.mode.IsRepeating() {
		now := t.clk.Now()
		next := nextDeadline(t.deadline, now, t.interval.Std(), t.tolerance.Std())
		t.deadline = next
		t.wake = t.clk.AfterFunc(next.Sub(now), func() { t.onWake(gen) })
	} else {
		t.deadline = time.Time{}
	}
	ex := t.exec
	t.mu.Unlock()

	if err := ex.Submit(func() { t.fire(gen, false) }); err != nil {
		t.log.Warn("firing skipped", logx.Err(err))
	}
}

// fire runs one cycle. Scheduled cycles are dropped when the timer was
// disarmed after they were queued, and coalesced into the running one when
// they overlap it; forced cycles always run.
func (t *Timer) fire(gen uint64, forced bool) {
	t.mu.Lock()
	if t.closed || (!forced && (gen != t.gen || t.state != Running)) {
		if !forced && t.state == Executing && gen == t.gen {
			t.log.Debug("overlapping cycle skipped")
		}
		t.mu.Unlock()
		return
	}
	prev := t.state
	t.transitionLocked(Executing)
	if _, finite := t.mode.Count(); finite && t.remaining > 0 {
		t.remaining--
	}
	t.fires++
	iteration := t.fires
	obs := make([]tokenObserver, 0, len(t.observers))
	for tok, fn := range t.observers {
		obs = append(obs, tokenObserver{tok: tok, fn: fn})
	}
	t.mu.Unlock()

	failed := 0
	for _, o := range obs {
		if err := exec.Run(func() { o.fn(t) }); err != nil {
			failed++
			t.callbackFailed(o.tok, err)
		}
	}

	t.mu.Lock()
	// Observers may have paused, reset or closed the timer; that wins.
	if t.state == Executing {
		switch {
		case t.exhaustedLocked():
			t.disarmLocked()
			t.transitionLocked(Finished)
		case prev == Paused:
			t.transitionLocked(Paused)
		case prev == Finished:
			t.transitionLocked(Finished)
		default:
			t.transitionLocked(Running)
		}
	}
	state := t.state
	var own *exec.Pool
	if state == Finished {
		own = t.releaseExecLocked()
	}
	t.mu.Unlock()
	closePool(own)

	t.publish(eventbus.TimerFired, Fired{
		TimerID:   t.id,
		Name:      t.name,
		Iteration: iteration,
		Observers: len(obs),
		Failed:    failed,
		Forced:    forced,
		State:     state,
		At:        t.clk.Now(),
	})
}

// ensureExecLocked starts the timer's own serial worker on first use. A
// cleanup closes it if the timer is dropped without Close.
func (t *Timer) ensureExecLocked() {
	if t.exec != nil {
		return
	}
	p := exec.NewSerial("timer."+t.label(), t.log)
	t.exec, t.ownExec = p, p
	t.cleanup = runtime.AddCleanup(t, closePool, p)
}

// releaseExecLocked detaches the own worker so the caller can close it
// outside the lock. Finished timers get a fresh one when restarted.
func (t *Timer) releaseExecLocked() *exec.Pool {
	own := t.ownExec
	if own == nil {
		return nil
	}
	t.cleanup.Stop()
	t.exec, t.ownExec = nil, nil
	return own
}

// closePool closes p in the background: the caller may be its worker.
func closePool(p *exec.Pool) {
	if p == nil {
		return
	}
	go func() { _ = p.Close(context.Background()) }()
}

func (t *Timer) exhaustedLocked() bool {
	if t.mode.kind == modeOnce {
		return true
	}
	_, finite := t.mode.Count()
	return finite && t.remaining == 0
}

// transitionLocked records a real state change and notifies the hook and
// the bus. Same-state calls are ignored.
func (t *Timer) transitionLocked(to State) {
	if t.state == to {
		return
	}
	sc := StateChange{TimerID: t.id, Name: t.name, From: t.state, To: to, At: t.clk.Now()}
	t.state = to
	if t.onState != nil {
		if err := exec.Run(func() { t.onState(sc) }); err != nil {
			t.log.Warn("state hook failed", logx.Err(err))
		}
	}
	t.publish(eventbus.TimerState, sc)
	t.log.Trace("timer state", logx.String("from", sc.From.String()), logx.String("to", sc.To.String()))
}

func (t *Timer) callbackFailed(tok ObserverToken, err error) {
	fields := []logx.Field{logx.Uint64("token", uint64(tok)), logx.Err(err)}
	if pe, ok := err.(*exec.PanicError); ok {
		fields = append(fields, logx.Stack(pe.Stack))
	}
	t.log.Error("observer panicked", fields...)
	t.publish(eventbus.TimerCallbackFailed, CallbackFailure{
		TimerID: t.id,
		Name:    t.name,
		Token:   tok,
		Err:     err.Error(),
		At:      t.clk.Now(),
	})
}

func (t *Timer) publish(typ string, data any) {
	if t.bus == nil {
		return
	}
	t.bus.Publish(eventbus.Event{Type: typ, Time: t.clk.Now(), Data: data})
}
