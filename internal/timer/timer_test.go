package timer

import (
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chronos/internal/clock"
	"chronos/internal/eventbus"
	"chronos/internal/exec"
	"chronos/internal/interval"
)

func fakeOpts(c *clock.Fake, more ...Option) []Option {
	return append([]Option{WithClock(c), WithExecutor(exec.Inline{})}, more...)
}

func newFake() *clock.Fake { return clock.NewFake(time.Unix(1_700_000_000, 0)) }

func counter() (*atomic.Int64, Observer) {
	var n atomic.Int64
	return &n, func(*Timer) { n.Add(1) }
}

func TestCreateValidates(t *testing.T) {
	t.Parallel()
	c := newFake()
	_, obs := counter()

	_, err := Create(interval.Duration{}, obs, fakeOpts(c)...)
	assert.ErrorIs(t, err, ErrInvalidInterval)
	_, err = Create(interval.Nanoseconds(-1), obs, fakeOpts(c)...)
	assert.ErrorIs(t, err, ErrInvalidInterval)
	_, err = Create(interval.Seconds(1), nil, fakeOpts(c)...)
	assert.ErrorIs(t, err, ErrNilObserver)
	_, err = Create(interval.Seconds(1), obs, fakeOpts(c, WithRepeatCount(0))...)
	assert.ErrorIs(t, err, ErrInvalidMode)

	tm, err := Create(interval.Seconds(1), obs, fakeOpts(c, WithName("probe"))...)
	require.NoError(t, err)
	assert.Equal(t, Paused, tm.State())
	assert.Equal(t, "probe", tm.Name())
	assert.NotEmpty(t, tm.ID())
	assert.True(t, tm.Mode().IsInfinite())
	_, ok := tm.Remaining()
	assert.False(t, ok)
	assert.Zero(t, c.Pending())
}

func TestOnceFiresExactlyOnce(t *testing.T) {
	t.Parallel()
	c := newFake()
	n, obs := counter()

	tm, err := Once(interval.Seconds(5), obs, fakeOpts(c)...)
	require.NoError(t, err)
	assert.Equal(t, Running, tm.State())
	assert.Equal(t, c.Now().Add(5*time.Second), tm.NextFire())

	c.Advance(4 * time.Second)
	assert.EqualValues(t, 0, n.Load())
	c.Advance(time.Second)
	assert.EqualValues(t, 1, n.Load())
	assert.Equal(t, Finished, tm.State())

	c.Advance(time.Minute)
	assert.EqualValues(t, 1, n.Load())
	assert.Zero(t, c.Pending())
	assert.False(t, tm.Pause())

	// A forced cycle still runs on a finished timer.
	tm.Fire(false)
	assert.EqualValues(t, 2, n.Load())
	assert.Equal(t, Finished, tm.State())
	assert.EqualValues(t, 2, tm.Fires())
}

func TestStateTransitionsInOrder(t *testing.T) {
	t.Parallel()
	c := newFake()
	var mu sync.Mutex
	var seen []StateChange
	hook := OnStateChange(func(sc StateChange) {
		mu.Lock()
		seen = append(seen, sc)
		mu.Unlock()
	})
	_, obs := counter()

	tm, err := Once(interval.Seconds(1), obs, fakeOpts(c, hook)...)
	require.NoError(t, err)
	c.Advance(time.Second)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 3)
	assert.Equal(t, Paused, seen[0].From)
	assert.Equal(t, []State{Running, Executing, Finished}, []State{seen[0].To, seen[1].To, seen[2].To})
	for _, sc := range seen {
		assert.Equal(t, tm.ID(), sc.TimerID)
	}
}

func TestFiniteCountsDownAndResets(t *testing.T) {
	t.Parallel()
	c := newFake()
	n, obs := counter()

	tm, err := Create(interval.Seconds(1), obs, fakeOpts(c, WithRepeatCount(3))...)
	require.NoError(t, err)
	left, ok := tm.Remaining()
	require.True(t, ok)
	assert.Equal(t, 3, left)

	require.True(t, tm.Start())
	c.Advance(10 * time.Second)
	assert.EqualValues(t, 3, n.Load())
	assert.Equal(t, Finished, tm.State())
	left, _ = tm.Remaining()
	assert.Zero(t, left)
	assert.Zero(t, c.Pending())

	tm.Reset(false)
	assert.Equal(t, Paused, tm.State())
	left, _ = tm.Remaining()
	assert.Equal(t, 3, left)

	tm.Reset(true)
	assert.Equal(t, Running, tm.State())
	c.Advance(2 * time.Second)
	assert.EqualValues(t, 5, n.Load())
	left, _ = tm.Remaining()
	assert.Equal(t, 1, left)
}

func TestEveryWithRepeatCountRestarts(t *testing.T) {
	t.Parallel()
	c := newFake()
	n, obs := counter()

	tm, err := Every(interval.Seconds(2), obs, fakeOpts(c, WithRepeatCount(10))...)
	require.NoError(t, err)
	c.Advance(40 * time.Second)
	assert.EqualValues(t, 10, n.Load())
	assert.Equal(t, Finished, tm.State())

	// Start on a finished timer resets it.
	require.True(t, tm.Start())
	c.Advance(40 * time.Second)
	assert.EqualValues(t, 20, n.Load())
	assert.Equal(t, Finished, tm.State())
}

func TestPauseAndResumeRearmsFullInterval(t *testing.T) {
	t.Parallel()
	c := newFake()
	n, obs := counter()

	tm, err := Create(interval.Seconds(1), obs, fakeOpts(c)...)
	require.NoError(t, err)
	assert.False(t, tm.Pause())

	require.True(t, tm.Start())
	assert.False(t, tm.Start())
	c.Advance(700 * time.Millisecond)
	require.True(t, tm.Pause())
	assert.False(t, tm.Pause())
	assert.True(t, tm.NextFire().IsZero())

	c.Advance(5 * time.Second)
	assert.EqualValues(t, 0, n.Load())

	require.True(t, tm.Start())
	c.Advance(999 * time.Millisecond)
	assert.EqualValues(t, 0, n.Load())
	c.Advance(time.Millisecond)
	assert.EqualValues(t, 1, n.Load())
	c.Advance(3 * time.Second)
	assert.EqualValues(t, 4, n.Load())
}

func TestForcedFireKeepsPausedTimerPaused(t *testing.T) {
	t.Parallel()
	c := newFake()
	n, obs := counter()

	tm, err := Create(interval.Seconds(1), obs, fakeOpts(c)...)
	require.NoError(t, err)
	tm.Fire(false)
	assert.EqualValues(t, 1, n.Load())
	assert.Equal(t, Paused, tm.State())

	require.True(t, tm.Start())
	tm.Fire(true)
	assert.EqualValues(t, 2, n.Load())
	assert.Equal(t, Paused, tm.State())
	c.Advance(5 * time.Second)
	assert.EqualValues(t, 2, n.Load())
}

func TestObserverManagement(t *testing.T) {
	t.Parallel()
	c := newFake()
	first, obs := counter()
	var second atomic.Int64

	tm, err := Every(interval.Seconds(1), obs, fakeOpts(c)...)
	require.NoError(t, err)
	tok := tm.Observe(func(*Timer) { second.Add(1) })
	assert.Equal(t, ObserverToken(2), tok)
	assert.Equal(t, 2, tm.Observers())
	assert.Equal(t, ObserverToken(0), tm.Observe(nil))

	c.Advance(time.Second)
	assert.EqualValues(t, 1, first.Load())
	assert.EqualValues(t, 1, second.Load())

	assert.True(t, tm.RemoveObserver(tok))
	assert.False(t, tm.RemoveObserver(tok))
	c.Advance(time.Second)
	assert.EqualValues(t, 2, first.Load())
	assert.EqualValues(t, 1, second.Load())

	tm.RemoveAllObservers(false)
	assert.Zero(t, tm.Observers())
	assert.Equal(t, Running, tm.State())
	c.Advance(time.Second)
	assert.EqualValues(t, 3, tm.Fires())

	tm.RemoveAllObservers(true)
	assert.Equal(t, Paused, tm.State())
}

func TestObserverTokensWrap(t *testing.T) {
	t.Parallel()
	_, obs := counter()
	tm, err := Create(interval.Seconds(1), obs, fakeOpts(newFake())...)
	require.NoError(t, err)

	tm.nextToken = math.MaxUint64 - 1
	assert.Equal(t, ObserverToken(math.MaxUint64), tm.Observe(obs))
	assert.Equal(t, ObserverToken(0), tm.Observe(obs))
	assert.Equal(t, 3, tm.Observers())
}

func TestPanickingObserverIsIsolated(t *testing.T) {
	t.Parallel()
	c := newFake()
	bus := eventbus.New()
	failures, unsub := bus.Subscribe(4, eventbus.TimerCallbackFailed)
	defer unsub()

	tm, err := Create(interval.Seconds(1), func(*Timer) { panic("boom") }, fakeOpts(c, WithBus(bus))...)
	require.NoError(t, err)
	n, obs := counter()
	tm.Observe(obs)

	tm.Fire(false)
	assert.EqualValues(t, 1, n.Load())
	assert.Equal(t, Paused, tm.State())

	require.Len(t, failures, 1)
	ev := <-failures
	cf, ok := ev.Data.(CallbackFailure)
	require.True(t, ok)
	assert.Equal(t, ObserverToken(1), cf.Token)
	assert.Contains(t, cf.Err, "boom")
}

func TestObserverCanPauseTimer(t *testing.T) {
	t.Parallel()
	c := newFake()
	var n atomic.Int64
	tm, err := Every(interval.Seconds(1), func(tm *Timer) {
		n.Add(1)
		tm.Pause()
	}, fakeOpts(c)...)
	require.NoError(t, err)

	c.Advance(5 * time.Second)
	assert.EqualValues(t, 1, n.Load())
	assert.Equal(t, Paused, tm.State())
}

func TestResetIntervalAndClose(t *testing.T) {
	t.Parallel()
	c := newFake()
	n, obs := counter()

	tm, err := Every(interval.Seconds(1), obs, fakeOpts(c)...)
	require.NoError(t, err)
	assert.ErrorIs(t, tm.ResetInterval(interval.Duration{}, true), ErrInvalidInterval)

	require.NoError(t, tm.ResetInterval(interval.Seconds(3), true))
	assert.Equal(t, interval.Seconds(3), tm.Interval())
	c.Advance(2 * time.Second)
	assert.EqualValues(t, 0, n.Load())
	c.Advance(time.Second)
	assert.EqualValues(t, 1, n.Load())

	tm.Close()
	c.Advance(time.Minute)
	assert.EqualValues(t, 1, n.Load())
	assert.Zero(t, c.Pending())
	assert.False(t, tm.Start())
	tm.Fire(false)
	assert.EqualValues(t, 1, n.Load())
}

func TestFiredEventsArePublished(t *testing.T) {
	t.Parallel()
	c := newFake()
	bus := eventbus.New()
	fired, unsub := bus.Subscribe(8, eventbus.TimerFired)
	defer unsub()
	_, obs := counter()

	_, err := Every(interval.Seconds(1), obs, fakeOpts(c, WithBus(bus), WithRepeatCount(2))...)
	require.NoError(t, err)
	c.Advance(3 * time.Second)

	require.Len(t, fired, 2)
	first := (<-fired).Data.(Fired)
	last := (<-fired).Data.(Fired)
	assert.EqualValues(t, 1, first.Iteration)
	assert.Equal(t, Running, first.State)
	assert.EqualValues(t, 2, last.Iteration)
	assert.Equal(t, Finished, last.State)
}

func TestNextDeadline(t *testing.T) {
	t.Parallel()
	base := time.Unix(100, 0)
	tol := 100 * time.Millisecond

	assert.Equal(t, base.Add(time.Second), nextDeadline(base, base.Add(10*time.Millisecond), time.Second, tol))
	// Slightly late: catch up immediately.
	late := base.Add(1050 * time.Millisecond)
	assert.Equal(t, late, nextDeadline(base, late, time.Second, tol))
	// Too late: re-anchor.
	stale := base.Add(1500 * time.Millisecond)
	assert.Equal(t, stale.Add(time.Second), nextDeadline(base, stale, time.Second, tol))
}

func TestRealClockOnce(t *testing.T) {
	t.Parallel()
	start := time.Now()
	done := make(chan time.Duration, 1)
	tm, err := Once(interval.Milliseconds(50), func(*Timer) { done <- time.Since(start) })
	require.NoError(t, err)
	defer tm.Close()

	select {
	case elapsed := <-done:
		assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}
	require.Eventually(t, func() bool { return tm.State() == Finished }, time.Second, 5*time.Millisecond)
}

func TestCloseFromObserver(t *testing.T) {
	t.Parallel()
	done := make(chan struct{})
	var once sync.Once
	_, err := Every(interval.Milliseconds(10), func(tm *Timer) {
		tm.Close()
		once.Do(func() { close(done) })
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("observer never ran")
	}
}

// goExec runs every task on a fresh goroutine, so cycles can overlap.
type goExec struct{}

func (goExec) Submit(fn func()) error {
	go fn()
	return nil
}

func TestSlowObserverKeepsSchedule(t *testing.T) {
	t.Parallel()
	c := newFake()
	var n atomic.Int64
	started := make(chan struct{})
	release := make(chan struct{})
	tm, err := Every(interval.Seconds(1), func(*Timer) {
		if n.Add(1) == 1 {
			close(started)
			<-release
		}
	}, WithClock(c), WithExecutor(goExec{}))
	require.NoError(t, err)
	defer tm.Close()

	c.Advance(time.Second)
	<-started
	require.Equal(t, Executing, tm.State())

	// The next wakeup lands while the first cycle is still executing.
	c.Advance(time.Second)
	assert.Equal(t, 1, c.Pending(), "schedule must survive the overlap")
	assert.Equal(t, c.Now().Add(time.Second), tm.NextFire())

	close(release)
	require.Eventually(t, func() bool { return tm.State() == Running }, time.Second, time.Millisecond)

	for i := 0; i < 10; i++ {
		before := n.Load()
		c.Advance(time.Second)
		require.Eventually(t, func() bool { return n.Load() > before }, time.Second, time.Millisecond)
	}
	require.Eventually(t, func() bool { return tm.State() == Running }, time.Second, time.Millisecond)
	assert.GreaterOrEqual(t, tm.Fires(), uint64(11))
	assert.Equal(t, 1, c.Pending())
}

func TestSlowObserverFiniteStillFinishes(t *testing.T) {
	t.Parallel()
	c := newFake()
	release := make(chan struct{})
	var n atomic.Int64
	tm, err := Every(interval.Seconds(1), func(*Timer) {
		if n.Add(1) == 1 {
			<-release
		}
	}, WithClock(c), WithExecutor(goExec{}), WithRepeatCount(3))
	require.NoError(t, err)
	defer tm.Close()

	c.Advance(time.Second)
	require.Eventually(t, func() bool { return tm.State() == Executing }, time.Second, time.Millisecond)
	c.Advance(time.Second)
	close(release)

	for i := 0; i < 10 && n.Load() < 3; i++ {
		require.Eventually(t, func() bool { return tm.State() != Executing }, time.Second, time.Millisecond)
		c.Advance(time.Second)
	}
	require.Eventually(t, func() bool { return tm.State() == Finished }, time.Second, time.Millisecond)
	assert.EqualValues(t, 3, n.Load())
	assert.Zero(t, c.Pending())
}

func TestObserversChangeWhileFiring(t *testing.T) {
	t.Parallel()
	c := newFake()
	fired, obs := counter()
	tm, err := Every(interval.Milliseconds(10), obs, fakeOpts(c)...)
	require.NoError(t, err)
	defer tm.Close()

	const rounds = 200
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			c.Advance(10 * time.Millisecond)
		}
	}()
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				tok := tm.Observe(func(*Timer) {})
				assert.True(t, tm.RemoveObserver(tok))
				_ = tm.Observers()
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, rounds, fired.Load())
	assert.Equal(t, 1, tm.Observers())
	assert.Equal(t, Running, tm.State())
}

// Not parallel: these compare goroutine counts.

func TestFinishedTimersReleaseWorkers(t *testing.T) {
	c := newFake()
	before := runtime.NumGoroutine()

	timers := make([]*Timer, 0, 200)
	for i := 0; i < 200; i++ {
		tm, err := Once(interval.Seconds(1), func(*Timer) {}, WithClock(c))
		require.NoError(t, err)
		timers = append(timers, tm)
	}
	c.Advance(2 * time.Second)
	require.Eventually(t, func() bool {
		for _, tm := range timers {
			if tm.State() != Finished {
				return false
			}
		}
		return true
	}, 5*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return runtime.NumGoroutine() <= before+3 }, 5*time.Second, 10*time.Millisecond)

	// A restart gets a fresh worker.
	fired, obs := counter()
	timers[0].Observe(obs)
	require.True(t, timers[0].Start())
	c.Advance(time.Second)
	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return timers[0].State() == Finished }, time.Second, time.Millisecond)
}

func TestDroppedPausedTimersReleaseWorkers(t *testing.T) {
	c := newFake()
	before := runtime.NumGoroutine()

	func() {
		for i := 0; i < 50; i++ {
			tm, err := Every(interval.Seconds(1), func(*Timer) {}, WithClock(c))
			require.NoError(t, err)
			require.True(t, tm.Pause())
		}
	}()
	require.Zero(t, c.Pending())
	require.Eventually(t, func() bool {
		runtime.GC()
		return runtime.NumGoroutine() <= before+3
	}, 5*time.Second, 10*time.Millisecond)
}

func TestCreatedTimerStartsNoWorker(t *testing.T) {
	c := newFake()
	before := runtime.NumGoroutine()
	tm, err := Create(interval.Seconds(1), func(*Timer) {}, WithClock(c))
	require.NoError(t, err)
	defer tm.Close()
	assert.LessOrEqual(t, runtime.NumGoroutine(), before)
}
