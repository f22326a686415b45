// Package sched implements the task scheduler: fixed-priority, round-robin
// within a priority level, plus the counting semaphores tasks block on.
package sched

import "time"

// Tunables. These mirror a bare-metal kernel's compile-time config header:
// fixed numbers chosen once for the whole system, not something a running
// process re-reads from a file.
const (
	// MaxPriority is the highest priority level a task may run at; 0 is
	// lowest (conventionally the idle task).
	MaxPriority = 15

	// PriorityIdle, PriorityLow, PriorityNormal, PriorityHigh and
	// PriorityCritical are the named priority bands tasks are usually
	// created at.
	PriorityIdle     = 0
	PriorityLow      = 1
	PriorityNormal   = 5
	PriorityHigh     = 10
	PriorityCritical = 15

	// TaskNameLen is the maximum number of bytes kept from a task's
	// requested name; longer names are truncated, matching a fixed-size
	// name buffer.
	TaskNameLen = 32

	// DefaultStackSize is used when a task is created with stackSize==0.
	// It has no operational meaning in this simulation beyond bookkeeping
	// and accounting against the heap, since Go goroutines grow their own
	// stacks.
	DefaultStackSize = 4096

	// TimerFreqHz is the simulated timer frequency; TickInterval is the
	// corresponding wall-clock period the scheduler's ticker runs at.
	TimerFreqHz  = 100
	TickInterval = time.Second / TimerFreqHz

	// TimeSliceTicks is how many ticks a task runs before it is forced
	// back to the tail of its priority's ready queue.
	TimeSliceTicks = 1

	// DefaultHeapSize is the default arena size for alloc.NewHeap callers
	// that don't have a more specific figure in mind.
	DefaultHeapSize = 1024 * 1024

	// DefaultQueueCapacity is a suggested capacity for mqueue.Create
	// callers. Create itself has no default and rejects a capacity of 0.
	DefaultQueueCapacity = 16
)
