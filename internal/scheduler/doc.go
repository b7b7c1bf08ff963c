// Package scheduler fires callbacks after a delay without blocking callers.
//
// # Model
//
// Pending entries live in a min-heap ordered by absolute fire time (ties
// keep submission order). A single worker goroutine polls the heap every
// PollInterval, pops every entry whose time has passed and runs its callback
// synchronously, outside the scheduler lock.
//
// # Cancellation
//
// Cancel removes a pending entry and reports Cancelled. Once the worker has
// popped an entry it can no longer be cancelled: Cancel reports AlreadyFired
// and the callback runs (or has run). A handle is therefore never both
// cancelled and fired.
//
// # Failure isolation
//
// A callback error is logged; a callback panic is recovered and logged. In
// both cases the loop carries on with the next due entry.
package scheduler
