// Package exec provides the execution contexts timer and registry callbacks
// run on.
//
// A Pool is a fixed set of supervised workers draining a bounded queue.
// Submit never blocks: a full queue drops the task and reports ErrQueueFull.
// Every task runs behind recover(), so a panicking callback costs one
// invocation and never a worker.
//
// NewSerial builds a one-worker pool (FIFO, one task at a time), the default
// context for a Timer. Keyed multiplexes serial pools by key so the
// registry can isolate named events from each other.
package exec
