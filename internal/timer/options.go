package timer

import (
	"errors"

	"chronos/internal/clock"
	"chronos/internal/eventbus"
	"chronos/internal/exec"
	"chronos/internal/interval"
	logx "chronos/pkg/logx"
)

var (
	ErrInvalidInterval = errors.New("timer: interval must be > 0")
	ErrInvalidMode     = errors.New("timer: invalid repeat mode")
	ErrNilObserver     = errors.New("timer: observer required")
)

type Option func(*options)

type options struct {
	mode      Mode
	tolerance interval.Duration
	exec      exec.Executor
	clk       clock.Clock
	log       logx.Logger
	bus       eventbus.Bus
	name      string
	onState   func(StateChange)
}

func WithMode(m Mode) Option { return func(o *options) { o.mode = m } }

// WithRepeatCount switches to Finite(n).
func WithRepeatCount(n int) Option { return func(o *options) { o.mode = Finite(n) } }

// WithTolerance sets the wakeup leeway: a repeating timer that wakes later
// than this after its deadline re-anchors its schedule instead of catching up.
func WithTolerance(d interval.Duration) Option { return func(o *options) { o.tolerance = d } }

// WithExecutor sets the context observers run on. Without it each timer
// owns a dedicated serial worker.
func WithExecutor(e exec.Executor) Option { return func(o *options) { o.exec = e } }

func WithClock(c clock.Clock) Option  { return func(o *options) { o.clk = c } }
func WithLogger(l logx.Logger) Option { return func(o *options) { o.log = l } }
func WithBus(b eventbus.Bus) Option   { return func(o *options) { o.bus = b } }
func WithName(name string) Option     { return func(o *options) { o.name = name } }

// OnStateChange installs a hook called synchronously on every transition,
// while the timer lock is held. The hook must not call back into the timer.
func OnStateChange(fn func(StateChange)) Option { return func(o *options) { o.onState = fn } }
