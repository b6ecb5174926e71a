package interval

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrOverflow    = errors.New("interval: duration overflows int64 nanoseconds")
	ErrInvalidUnit = errors.New("interval: unknown unit")
)

// Unit tags the magnitude passed to Of.
type Unit int

const (
	Nanosecond Unit = iota
	Microsecond
	Millisecond
	Second
	Minute
	Hour
	Day
)

func (u Unit) String() string {
	switch u {
	case Nanosecond:
		return "ns"
	case Microsecond:
		return "us"
	case Millisecond:
		return "ms"
	case Second:
		return "s"
	case Minute:
		return "m"
	case Hour:
		return "h"
	case Day:
		return "d"
	default:
		return fmt.Sprintf("unit(%d)", int(u))
	}
}

func (u Unit) nanos() (int64, bool) {
	switch u {
	case Nanosecond:
		return 1, true
	case Microsecond:
		return int64(time.Microsecond), true
	case Millisecond:
		return int64(time.Millisecond), true
	case Second:
		return int64(time.Second), true
	case Minute:
		return int64(time.Minute), true
	case Hour:
		return int64(time.Hour), true
	case Day:
		return 24 * int64(time.Hour), true
	default:
		return 0, false
	}
}

// Duration is an immutable elapsed-time value in nanoseconds.
type Duration struct {
	ns int64
}

// Of converts v units into a Duration using exact integer arithmetic.
func Of(v int64, u Unit) (Duration, error) {
	mul, ok := u.nanos()
	if !ok {
		return Duration{}, ErrInvalidUnit
	}
	if v != 0 && (v > math.MaxInt64/mul || v < math.MinInt64/mul) {
		return Duration{}, fmt.Errorf("%w: %d%s", ErrOverflow, v, u)
	}
	return Duration{ns: v * mul}, nil
}

func mustOf(v int64, u Unit) Duration {
	d, err := Of(v, u)
	if err != nil {
		if v < 0 {
			return Duration{ns: math.MinInt64}
		}
		return Duration{ns: math.MaxInt64}
	}
	return d
}

// Unit constructors saturate at the int64 bounds instead of failing.

func Nanoseconds(n int64) Duration  { return Duration{ns: n} }
func Microseconds(n int64) Duration { return mustOf(n, Microsecond) }
func Milliseconds(n int64) Duration { return mustOf(n, Millisecond) }
func Minutes(n int64) Duration      { return mustOf(n, Minute) }
func Hours(n int64) Duration        { return mustOf(n, Hour) }
func Days(n int64) Duration         { return mustOf(n, Day) }

// Seconds converts fractional seconds by rounding to the nearest
// nanosecond. The conversion is lossy for values that are not a whole
// number of nanoseconds, and saturates outside the int64 range.
func Seconds(s float64) Duration {
	if math.IsNaN(s) {
		return Duration{}
	}
	ns := math.Round(s * float64(time.Second))
	if ns >= math.MaxInt64 {
		return Duration{ns: math.MaxInt64}
	}
	if ns <= math.MinInt64 {
		return Duration{ns: math.MinInt64}
	}
	return Duration{ns: int64(ns)}
}

// FromStd wraps a time.Duration.
func FromStd(d time.Duration) Duration { return Duration{ns: int64(d)} }

func (d Duration) Std() time.Duration { return time.Duration(d.ns) }
func (d Duration) Nanoseconds() int64 { return d.ns }
func (d Duration) Positive() bool     { return d.ns > 0 }
func (d Duration) IsZero() bool       { return d.ns == 0 }
func (d Duration) String() string     { return time.Duration(d.ns).String() }

func (d Duration) Compare(o Duration) int {
	switch {
	case d.ns < o.ns:
		return -1
	case d.ns > o.ns:
		return 1
	default:
		return 0
	}
}
