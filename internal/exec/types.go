package exec

import (
	"errors"
	"fmt"
	"runtime/debug"
)

var (
	ErrStopped   = errors.New("exec: executor stopped")
	ErrQueueFull = errors.New("exec: queue full")
	ErrNilTask   = errors.New("exec: nil task")
)

// Executor runs submitted functions asynchronously relative to the caller.
type Executor interface {
	Submit(fn func()) error
}

// Dispatcher runs functions on a context selected by key. Functions sharing
// a key run in submission order.
type Dispatcher interface {
	Dispatch(key string, fn func()) error
}

// PanicError wraps a value recovered from a task.
type PanicError struct {
	Value any
	Stack string
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// Run invokes fn, converting a panic into a *PanicError.
func Run(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: string(debug.Stack())}
		}
	}()
	fn()
	return nil
}

// Stats is a lightweight view for diagnostics.
type Stats struct {
	Name      string
	Workers   int
	QueueLen  int
	QueueCap  int
	Submitted uint64
	Completed uint64
	Panics    uint64
	Dropped   uint64
}

// Inline runs tasks on the caller's goroutine. Panics are recovered and
// handed to OnPanic when set.
type Inline struct {
	OnPanic func(err *PanicError)
}

func (i Inline) Submit(fn func()) error {
	if fn == nil {
		return ErrNilTask
	}
	if err := Run(fn); err != nil {
		var pe *PanicError
		if errors.As(err, &pe) && i.OnPanic != nil {
			i.OnPanic(pe)
		}
	}
	return nil
}

func (i Inline) Dispatch(_ string, fn func()) error { return i.Submit(fn) }
