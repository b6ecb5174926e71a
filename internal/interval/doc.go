// Package interval holds the elapsed-time value used by timers and the
// integer helpers (GCD/LCM) used by the named-event registry.
//
// A Duration is always normalized to nanoseconds. Integer units convert
// exactly; fractional seconds are rounded to the nearest nanosecond.
package interval
