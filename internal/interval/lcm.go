package interval

import (
	"errors"
	"fmt"
)

var (
	ErrEmptySequence = errors.New("interval: LCM of an empty sequence")
	ErrLCMOverflow   = errors.New("interval: LCM overflows int")
)

// GCD returns the greatest common divisor using the remainder loop.
// GCD(0, b) == b.
func GCD(a, b int) int {
	for a != 0 {
		a, b = b%a, a
	}
	return b
}

// LCM returns the least common multiple of a and b, or 0 when either
// operand is 0 or the result does not fit in an int.
func LCM(a, b int) int {
	v, ok := lcm(a, b)
	if !ok {
		return 0
	}
	return v
}

func lcm(a, b int) (int, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}
	// a/g*b keeps the intermediate small; same result as a*b/g.
	q := a / GCD(lo, hi)
	v := q * b
	if v/b != q {
		return 0, false
	}
	return v, true
}

// LCMOf folds LCM left to right starting from the first element.
func LCMOf(vals []int) (int, error) {
	if len(vals) == 0 {
		return 0, ErrEmptySequence
	}
	out := vals[0]
	for _, v := range vals[1:] {
		next, ok := lcm(v, out)
		if !ok {
			return 0, fmt.Errorf("%w: lcm(%d, %d)", ErrLCMOverflow, v, out)
		}
		out = next
	}
	return out, nil
}
