package sched

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tinykernel/alloc"
)

// Scheduler owns the ready rings, the sleeping-task ring, and the current
// task pointer, and drives the tick handler. Every exported method takes
// Scheduler.mu for exactly as long as it needs to touch that shared
// state, the same discipline the original expresses as
// disable_interrupts()/enable_interrupts() pairs around every mutator.
type Scheduler struct {
	mu sync.Mutex

	ready   [MaxPriority + 1]*Task
	blocked *Task

	tasks  map[int]*Task
	nextID int

	current        *Task
	tickCount      uint64
	taskCount      int
	preemptDisable int
	needResched    bool

	running bool
	cancel  context.CancelFunc

	heap *alloc.Heap
}

// NewScheduler creates a scheduler backed by the given heap, used to
// account for each task's stack allocation the way the original kernel's
// task_create calls kmalloc against its single static arena. The task
// control block itself is an ordinary Go value and is not allocated from
// the heap. heap may be nil, in which case task creation skips allocation
// accounting entirely (useful for tests that only care about scheduling
// order).
func NewScheduler(heap *alloc.Heap) *Scheduler {
	return &Scheduler{
		tasks: make(map[int]*Task),
		heap:  heap,
	}
}

// ticksFromDuration converts a wall-clock duration into the nearest
// whole number of scheduler ticks, rounding up so a caller who asks to
// sleep for less than one tick still gets at least one tick of delay.
func ticksFromDuration(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}
	ticks := (d + TickInterval - 1) / TickInterval
	return uint64(ticks)
}

// NewTask creates and schedules a new task. name is truncated to
// TaskNameLen bytes. stackSize of 0 uses DefaultStackSize. Mirrors
// task_create: validates arguments, accounts a stack allocation against
// the heap, assigns an id, and adds the task to its priority's ready
// queue.
func (s *Scheduler) NewTask(ctx context.Context, name string, fn Func, priority uint8, stackSize uint32) (*Task, error) {
	if name == "" || fn == nil || priority > MaxPriority {
		return nil, ErrInvalidArgument
	}
	if stackSize == 0 {
		stackSize = DefaultStackSize
	}
	if len(name) > TaskNameLen {
		name = name[:TaskNameLen]
	}

	var stackPtr alloc.Ptr
	if s.heap != nil {
		p, err := s.heap.Alloc(int(stackSize))
		if err != nil {
			return nil, fmt.Errorf("sched: allocating stack: %w", ErrOutOfMemory)
		}
		stackPtr = p
	}

	s.mu.Lock()
	s.nextID++
	t := &Task{
		id:        s.nextID,
		name:      name,
		priority:  priority,
		state:     StateReady,
		timeSlice: TimeSliceTicks,
		stackSize: stackSize,
		stackPtr:  stackPtr,
		fn:        fn,
		resume:    make(chan struct{}, 1),
		sched:     s,
	}
	s.tasks[t.id] = t
	ringInsertTail(&s.ready[priority], t)
	s.taskCount++
	s.mu.Unlock()

	go t.run(ctx)

	return t, nil
}

// DestroyTask removes a terminated task from the scheduler and releases
// its accounted stack. It returns ErrInvalidArgument if task is nil or
// still running/ready/blocked: a live task cannot be destroyed out from
// under its own goroutine, matching the original's assumption that
// task_destroy is only called once a task has run to completion.
func (s *Scheduler) DestroyTask(t *Task) error {
	if t == nil {
		return ErrInvalidArgument
	}
	s.mu.Lock()
	if t.state != StateTerminated {
		s.mu.Unlock()
		return ErrInvalidArgument
	}
	ringRemove(t)
	delete(s.tasks, t.id)
	if s.taskCount > 0 {
		s.taskCount--
	}
	s.mu.Unlock()

	if s.heap != nil && t.stackPtr != 0 {
		s.heap.Free(t.stackPtr)
	}
	return nil
}

// Lookup returns the task with the given id, or nil if none exists.
func (s *Scheduler) Lookup(id int) *Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks[id]
}

// TaskInfo is a point-in-time snapshot of a task, returned by Tasks.
type TaskInfo struct {
	ID       int
	Name     string
	Priority uint8
	State    State
}

// Tasks returns a snapshot of every task currently known to the
// scheduler, for introspection and tests.
func (s *Scheduler) Tasks() []TaskInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TaskInfo, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, TaskInfo{ID: t.id, Name: t.name, Priority: t.priority, State: t.state})
	}
	return out
}

// GetTaskCount returns the number of tasks currently known to the
// scheduler.
func (s *Scheduler) GetTaskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.taskCount
}

// GetTickCount returns the number of timer ticks since Start.
func (s *Scheduler) GetTickCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tickCount
}

// DisablePreemption increments the nesting counter that suppresses the
// tick handler's time-slice bookkeeping for the current task. Pairs with
// EnablePreemption; nests correctly, unlike the boolean flag the original
// scheduler uses.
func (s *Scheduler) DisablePreemption() {
	s.mu.Lock()
	s.preemptDisable++
	s.mu.Unlock()
}

// EnablePreemption decrements the nesting counter set by
// DisablePreemption.
func (s *Scheduler) EnablePreemption() {
	s.mu.Lock()
	if s.preemptDisable > 0 {
		s.preemptDisable--
	}
	s.mu.Unlock()
}

// pickNext returns the highest-priority ready task, round-robin within
// that priority, dequeuing it from the ready ring. Must be called with
// s.mu held.
func (s *Scheduler) pickNext() *Task {
	for p := MaxPriority; p >= 0; p-- {
		if s.ready[p] != nil {
			t := s.ready[p]
			ringRemove(t)
			return t
		}
	}
	return nil
}

// unblockLocked moves a task that has been *granted* the resource it was
// waiting for — a semaphore post, or an explicit destroy — back to its
// priority's ready queue, clearing its wait-status fields. Must be called
// with s.mu held. This mirrors the C original's sem_post, which clears
// wait_obj before waking a waiter; see wakeTimedOutLocked for the other
// wake path, which must leave those fields alone.
func (s *Scheduler) unblockLocked(t *Task) {
	ringRemove(t)
	t.kind = notWaiting
	t.waitSem = nil
	t.wakeTime = 0
	t.state = StateReady
	ringInsertTail(&s.ready[t.priority], t)
}

// wakeTimedOutLocked moves a task whose deadline has passed back to its
// priority's ready queue without clearing kind/waitSem. A semaphore
// waiter must still be able to tell, on resume, whether it was woken by
// timeout or by Post: the C original leaves wait_obj set and clears only
// wake_time in its tick handler for exactly this reason, and a
// semaphore's Wait relies on the same distinction here (kind ==
// waitOnSemaphore && waitSem == sem means "timed out"). A plain Sleep()
// waiter has no such check to support, so its kind is cleared for
// tidiness. Must be called with s.mu held.
func (s *Scheduler) wakeTimedOutLocked(t *Task) {
	ringRemove(t)
	if t.kind == waitTimedSleep {
		t.kind = notWaiting
	}
	t.wakeTime = 0
	t.state = StateReady
	ringInsertTail(&s.ready[t.priority], t)
}

// dispatchIdle hands the CPU to the highest-priority ready task when none
// is currently running. The tick handler and any semaphore Post/Destroy
// called from outside a task's own goroutine wake tasks without anything
// then driving reschedule for them — unlike a task's own Yield/Sleep/Wait,
// there is no caller about to park itself and hand off in the normal way.
// Those callers invoke dispatchIdle afterwards so a newly-ready task
// actually gets its resume signal instead of sitting on its ready ring
// forever. It is a no-op whenever some task's own goroutine already
// occupies the CPU, since that goroutine will discover the new work
// itself via reschedule or CheckPoint.
func (s *Scheduler) dispatchIdle() {
	s.mu.Lock()
	if s.current != nil {
		s.mu.Unlock()
		return
	}
	next := s.pickNext()
	if next == nil {
		s.mu.Unlock()
		return
	}
	next.state = StateRunning
	next.timeSlice = TimeSliceTicks
	s.current = next
	s.mu.Unlock()

	next.resume <- struct{}{}
}

// reschedule implements the core scheduling decision: it requeues old (if
// it is still Running), picks the next task to run, and performs the
// goroutine hand-off that stands in for context_switch. old is nil only
// for the very first dispatch from Start.
//
// Only a task's own goroutine may call this with itself as old — the
// hand-off parks the calling goroutine on old.resume until it is chosen
// again, so calling this with any *Task other than the caller's own would
// block the wrong goroutine.
func (s *Scheduler) reschedule(old *Task) {
	s.mu.Lock()
	s.needResched = false

	if old != nil && old.state == StateRunning {
		old.state = StateReady
		old.timeSlice = TimeSliceTicks
		ringInsertTail(&s.ready[old.priority], old)
	}

	next := s.pickNext()
	s.current = next
	if next != nil {
		next.state = StateRunning
		next.timeSlice = TimeSliceTicks
	}
	s.mu.Unlock()

	if next == old {
		return
	}
	if next != nil {
		next.resume <- struct{}{}
	}
	if old != nil {
		<-old.resume
	}
}

// tick advances the tick count, wakes any task whose deadline has passed,
// and marks the running task as needing rescheduling once its time slice
// is spent. It never calls reschedule itself — nothing but a task's own
// goroutine can safely perform reschedule's parking hand-off in this
// simulation (see reschedule's doc comment) — but it does call
// dispatchIdle after releasing the lock, since a tick can be the thing
// that makes a task ready while the CPU is otherwise idle (every task
// parked on a timeout with none spinning), and nothing else would ever
// resume it. This also sidesteps the hazard in the source kernel's tick
// handler, which walks the blocked ring with a saved "next" pointer while
// scheduler_unblock_task splices nodes out of that same ring mid-walk;
// here the wake scan reads a flat task map instead of the ring being
// mutated.
func (s *Scheduler) tick() {
	s.mu.Lock()
	s.tickCount++
	tc := s.tickCount

	for _, t := range s.tasks {
		if t.wakeTime != 0 && tc >= t.wakeTime {
			s.wakeTimedOutLocked(t)
		}
	}

	if cur := s.current; cur != nil && s.preemptDisable == 0 {
		if cur.timeSlice > 0 {
			cur.timeSlice--
		}
		if cur.timeSlice == 0 {
			s.needResched = true
		}
	}
	s.mu.Unlock()

	s.dispatchIdle()
}

func (s *Scheduler) runTicker(ctx context.Context) {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// Start begins ticking and performs the scheduler's first dispatch. It
// returns once that dispatch has been issued, not once the system halts:
// unlike a bare-metal scheduler_start, a Go process still has a caller
// that needs its goroutine back (to wait on ctx, join a WaitGroup, run
// tests, ...).
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSchedulerRunning
	}
	s.running = true
	s.mu.Unlock()

	tickCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.runTicker(tickCtx)

	s.reschedule(nil)
	return nil
}

// Stop halts the tick goroutine. Tasks already parked waiting for
// dispatch are left as-is; Stop does not tear down tasks.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	running := s.running
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()
	if running && cancel != nil {
		cancel()
	}
}
