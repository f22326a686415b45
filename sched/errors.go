package sched

import "errors"

// Sentinel errors every operation in this package returns instead of the
// original's small integer error codes. Callers should compare with
// errors.Is.
var (
	// ErrInvalidArgument is returned for nil pointers, empty names,
	// out-of-range priorities, and other caller mistakes.
	ErrInvalidArgument = errors.New("sched: invalid argument")

	// ErrOutOfMemory is returned when the backing heap cannot satisfy an
	// allocation for a task's stack.
	ErrOutOfMemory = errors.New("sched: out of memory")

	// ErrInvalidated is returned when an operation targets a semaphore or
	// message queue that has already been destroyed.
	ErrInvalidated = errors.New("sched: object invalidated")

	// ErrTimeout is returned when a bounded wait expires before the
	// condition the caller waited for was satisfied.
	ErrTimeout = errors.New("sched: operation timed out")

	// ErrSchedulerRunning is returned by Start when called twice.
	ErrSchedulerRunning = errors.New("sched: scheduler already running")
)
