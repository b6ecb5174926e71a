package timer

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"chronos/internal/clock"
	"chronos/internal/eventbus"
	"chronos/internal/exec"
	"chronos/internal/interval"
	logx "chronos/pkg/logx"
)

// Observer is invoked with the firing timer on its execution context.
type Observer func(t *Timer)

// ObserverToken identifies a registered observer. Tokens are issued from 1
// upward and wrap around to 0 after the maximum value.
type ObserverToken uint64

type Timer struct {
	mu sync.Mutex

	id        string
	name      string
	mode      Mode
	interval  interval.Duration
	tolerance interval.Duration

	state     State
	remaining int
	fires     uint64

	observers map[ObserverToken]Observer
	nextToken ObserverToken

	exec    exec.Executor
	ownExec *exec.Pool
	cleanup runtime.Cleanup
	clk     clock.Clock

	wake     clock.Timer
	gen      uint64
	deadline time.Time

	onState func(StateChange)
	log     logx.Logger
	bus     eventbus.Bus
	closed  bool
}

// Create builds a paused timer with one observer.
func Create(d interval.Duration, observer Observer, opts ...Option) (*Timer, error) {
	var o options
	for _, fn := range opts {
		if fn != nil {
			fn(&o)
		}
	}
	if !d.Positive() {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidInterval, d)
	}
	if o.tolerance.Nanoseconds() < 0 {
		return nil, fmt.Errorf("%w: negative tolerance %s", ErrInvalidInterval, o.tolerance)
	}
	if observer == nil {
		return nil, ErrNilObserver
	}
	if err := o.mode.validate(); err != nil {
		return nil, err
	}
	if o.clk == nil {
		o.clk = clock.Real()
	}

	id := uuid.NewString()
	t := &Timer{
		id:        id,
		name:      o.name,
		mode:      o.mode,
		interval:  d,
		tolerance: o.tolerance,
		state:     Paused,
		observers: map[ObserverToken]Observer{},
		exec:      o.exec,
		clk:       o.clk,
		onState:   o.onState,
		bus:       o.bus,
	}
	t.log = o.log.With(logx.String("timer", t.label()))
	if n, ok := o.mode.Count(); ok {
		t.remaining = n
	}
	t.observers[t.issueTokenLocked()] = observer

	t.log.Debug("timer created", logx.String("mode", t.mode.String()), logx.Duration("interval", d.Std()))
	return t, nil
}

// Once creates a single-shot timer firing after d and starts it.
func Once(d interval.Duration, observer Observer, opts ...Option) (*Timer, error) {
	t, err := Create(d, observer, append(opts, WithMode(ModeOnce))...)
	if err != nil {
		return nil, err
	}
	t.Start()
	return t, nil
}

// Every creates a repeating timer and starts it. The mode is Infinite
// unless WithRepeatCount (or WithMode) says otherwise.
func Every(d interval.Duration, observer Observer, opts ...Option) (*Timer, error) {
	t, err := Create(d, observer, opts...)
	if err != nil {
		return nil, err
	}
	t.Start()
	return t, nil
}

func (t *Timer) label() string {
	if t.name != "" {
		return t.name
	}
	return t.id[:8]
}

func (t *Timer) ID() string   { return t.id }
func (t *Timer) Name() string { return t.name }
func (t *Timer) Mode() Mode   { return t.mode }

func (t *Timer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Timer) Interval() interval.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interval
}

func (t *Timer) Tolerance() interval.Duration { return t.tolerance }

// Remaining reports the iterations left; ok is false unless the mode is finite.
func (t *Timer) Remaining() (n int, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, finite := t.mode.Count(); !finite {
		return 0, false
	}
	return t.remaining, true
}

// Fires counts completed firing cycles, forced ones included.
func (t *Timer) Fires() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fires
}

func (t *Timer) Observers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.observers)
}

// NextFire is the pending deadline, zero when the timer is not armed.
func (t *Timer) NextFire() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.deadline
}

// Observe adds an observer. A nil observer is ignored and yields token 0.
func (t *Timer) Observe(fn Observer) ObserverToken {
	if fn == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	tok := t.issueTokenLocked()
	t.observers[tok] = fn
	return tok
}

func (t *Timer) issueTokenLocked() ObserverToken {
	t.nextToken++
	return t.nextToken
}

// RemoveObserver reports whether tok was registered.
func (t *Timer) RemoveObserver(tok ObserverToken) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.observers[tok]; !ok {
		return false
	}
	delete(t.observers, tok)
	return true
}

// RemoveAllObservers clears the observer set. With alsoPause the timer is
// moved to Paused whatever its current state.
func (t *Timer) RemoveAllObservers(alsoPause bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.observers)
	if alsoPause {
		t.disarmLocked()
		t.transitionLocked(Paused)
	}
}

// Start arms a paused timer. A finished timer is reset and restarted.
// It returns false when the timer is already running or closed.
func (t *Timer) Start() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	switch t.state {
	case Running, Executing:
		return false
	case Finished:
		t.resetLocked(true)
		return true
	}
	if n, ok := t.mode.Count(); ok && t.remaining == 0 {
		t.remaining = n
	}
	t.armLocked(t.interval.Std())
	t.transitionLocked(Running)
	return true
}

// Pause disarms a running timer. Paused and finished timers are left alone
// and false is returned.
func (t *Timer) Pause() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.state == Paused || t.state == Finished {
		return false
	}
	t.disarmLocked()
	t.transitionLocked(Paused)
	return true
}

// Reset restores the finite counter and leaves the timer paused, or
// running again when restart is set.
func (t *Timer) Reset(restart bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.resetLocked(restart)
}

// ResetInterval is Reset with a new interval.
func (t *Timer) ResetInterval(d interval.Duration, restart bool) error {
	if !d.Positive() {
		return fmt.Errorf("%w: got %s", ErrInvalidInterval, d)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.interval = d
	t.resetLocked(restart)
	return nil
}

func (t *Timer) resetLocked(restart bool) {
	t.disarmLocked()
	if n, ok := t.mode.Count(); ok {
		t.remaining = n
	}
	t.transitionLocked(Paused)
	if restart {
		t.armLocked(t.interval.Std())
		t.transitionLocked(Running)
	}
}

// Fire runs one firing cycle on the calling goroutine, whatever the state.
// A paused timer returns to Paused afterwards; with andPause a running one
// is paused as well.
func (t *Timer) Fire(andPause bool) {
	t.fire(0, true)
	if andPause {
		t.Pause()
	}
}

// Close disarms the timer, drops its observers and releases its own worker.
// It is safe to call from an observer.
func (t *Timer) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.disarmLocked()
	clear(t.observers)
	own := t.releaseExecLocked()
	t.mu.Unlock()

	closePool(own)
	t.log.Debug("timer closed")
}
