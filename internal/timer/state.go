package timer

import (
	"fmt"
	"time"
)

// State is the lifecycle state of a Timer.
type State int

const (
	// Paused: created, or explicitly suspended.
	Paused State = iota
	// Running: armed, waiting for the next wakeup.
	Running
	// Executing: observers are being invoked (transient).
	Executing
	// Finished: terminal until Reset or Start.
	Finished
)

func (s State) String() string {
	switch s {
	case Paused:
		return "paused"
	case Running:
		return "running"
	case Executing:
		return "executing"
	case Finished:
		return "finished"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// IsRunning is true while the timer is armed or executing.
func (s State) IsRunning() bool   { return s == Running || s == Executing }
func (s State) IsExecuting() bool { return s == Executing }
func (s State) IsFinished() bool  { return s == Finished }

type modeKind int

const (
	modeInfinite modeKind = iota
	modeOnce
	modeFinite
)

// Mode is the repeat policy. The zero value repeats forever.
type Mode struct {
	kind  modeKind
	count int
}

var (
	ModeInfinite = Mode{kind: modeInfinite}
	ModeOnce     = Mode{kind: modeOnce}
)

// Finite repeats exactly n times. n must be positive.
func Finite(n int) Mode { return Mode{kind: modeFinite, count: n} }

func (m Mode) IsRepeating() bool { return m.kind != modeOnce }
func (m Mode) IsInfinite() bool  { return m.kind == modeInfinite }

// Count returns the iteration count of a finite mode.
func (m Mode) Count() (int, bool) {
	if m.kind != modeFinite {
		return 0, false
	}
	return m.count, true
}

func (m Mode) String() string {
	switch m.kind {
	case modeOnce:
		return "once"
	case modeFinite:
		return fmt.Sprintf("finite(%d)", m.count)
	default:
		return "infinite"
	}
}

func (m Mode) validate() error {
	switch m.kind {
	case modeInfinite, modeOnce:
		return nil
	case modeFinite:
		if m.count <= 0 {
			return fmt.Errorf("%w: repeat count %d", ErrInvalidMode, m.count)
		}
		return nil
	default:
		return ErrInvalidMode
	}
}

// StateChange is handed to the state hook and published on the bus.
type StateChange struct {
	TimerID string    `json:"timer_id"`
	Name    string    `json:"name,omitempty"`
	From    State     `json:"from"`
	To      State     `json:"to"`
	At      time.Time `json:"at"`
}

// Fired is published after every firing cycle.
type Fired struct {
	TimerID   string    `json:"timer_id"`
	Name      string    `json:"name,omitempty"`
	Iteration uint64    `json:"iteration"`
	Observers int       `json:"observers"`
	Failed    int       `json:"failed"`
	Forced    bool      `json:"forced"`
	State     State     `json:"state"`
	At        time.Time `json:"at"`
}

// CallbackFailure describes a recovered observer panic.
type CallbackFailure struct {
	TimerID string        `json:"timer_id"`
	Name    string        `json:"name,omitempty"`
	Token   ObserverToken `json:"token"`
	Err     string        `json:"err"`
	At      time.Time     `json:"at"`
}
