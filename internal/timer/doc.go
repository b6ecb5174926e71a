// Package timer implements a single schedulable unit: a small state machine
// (paused, running, executing, finished) driving a set of observers once,
// a fixed number of times, or until paused.
//
// A Timer is created paused (Create) or already running (Once, Every).
// Each wakeup runs one firing cycle on the timer's execution context: the
// state moves to Executing, the finite counter is decremented, every
// observer is invoked with the timer, and the state settles on Running or
// Finished. Observers are isolated from each other: a panic is recovered,
// logged and published as a callback failure.
//
// Timers are not garbage collected while armed; call Close to release one.
package timer
