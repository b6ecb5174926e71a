// Package registry multiplexes named recurring events onto one base tick.
//
// Each event fires every N ticks, phased by the tick counter value captured
// when it was scheduled. The counter is kept bounded by wrapping it modulo
// the least common multiple of all registered intervals, which preserves
// every event's phase.
//
// The base tick is driven by robfig/cron for whole-second and cron specs and
// by the clock for sub-second ticks. Callbacks run on a per-identifier serial
// context so a slow event never delays another one.
package registry
