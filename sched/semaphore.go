package sched

import "time"

// Semaphore is a FIFO counting semaphore. Waiters are served strictly in
// arrival order regardless of priority — no priority inheritance, no
// priority queue, a limitation this module accepts rather than designs
// around, same as the kernel it is ported from.
type Semaphore struct {
	sched    *Scheduler
	count    int
	maxCount int
	waiters  *Task
	valid    bool
}

// NewSemaphore creates a semaphore with the given initial and maximum
// count. It returns ErrInvalidArgument if initialCount is negative or
// exceeds maxCount.
func (s *Scheduler) NewSemaphore(initialCount, maxCount int) (*Semaphore, error) {
	if initialCount < 0 || maxCount < 0 || initialCount > maxCount {
		return nil, ErrInvalidArgument
	}
	return &Semaphore{sched: s, count: initialCount, maxCount: maxCount, valid: true}, nil
}

// Wait acquires the semaphore, blocking the calling task if its count is
// zero. timeout of 0 waits forever; a positive timeout bounds the wait
// and Wait returns ErrTimeout if it expires first. self must be the
// calling task's own handle — Wait parks the calling goroutine, so it
// must be called from that task's own goroutine.
func (sem *Semaphore) Wait(self *Task, timeout time.Duration) error {
	s := sem.sched

	s.mu.Lock()
	if !sem.valid {
		s.mu.Unlock()
		return ErrInvalidated
	}
	if sem.count > 0 {
		sem.count--
		s.mu.Unlock()
		return nil
	}
	if self == nil {
		s.mu.Unlock()
		return ErrInvalidArgument
	}

	ringInsertTail(&sem.waiters, self)
	self.kind = waitOnSemaphore
	self.waitSem = sem
	if timeout > 0 {
		self.wakeTime = s.tickCount + ticksFromDuration(timeout)
	}
	self.state = StateBlocked
	s.mu.Unlock()

	s.reschedule(self)

	s.mu.Lock()
	timedOut := self.kind == waitOnSemaphore && self.waitSem == sem
	if timedOut {
		ringRemove(self)
		self.kind = notWaiting
		self.waitSem = nil
		self.wakeTime = 0
	}
	invalidated := !sem.valid
	s.mu.Unlock()

	if timedOut {
		return ErrTimeout
	}
	if invalidated {
		return ErrInvalidated
	}
	return nil
}

// TryWait attempts to acquire the semaphore without blocking. It returns
// ErrTimeout immediately if the count is currently zero. This is the
// non-blocking primitive the original kernel lacks: its queue_get_count
// calls sem_wait(sem, 0), which that semaphore's own contract defines as
// "wait forever," not "don't block" — a latent bug this module does not
// reproduce (see GetCount).
func (sem *Semaphore) TryWait(self *Task) error {
	s := sem.sched
	s.mu.Lock()
	defer s.mu.Unlock()
	if !sem.valid {
		return ErrInvalidated
	}
	if sem.count == 0 {
		return ErrTimeout
	}
	sem.count--
	return nil
}

// Post releases the semaphore, waking the longest-waiting task if one is
// queued, or incrementing the count if not (and count has room under
// maxCount). self, if non-nil, must be the calling task's own handle; it
// is used only to decide whether this call can safely preempt in line
// immediately, since that is only safe when the caller is the task
// currently occupying the CPU. When self is nil (Post called from outside
// any task's own goroutine, as in a test driver or the demo harness) or
// the woken task does not warrant in-line preemption, dispatchIdle picks
// up the case where the CPU was otherwise idle and the newly-ready task
// would never have been resumed.
func (sem *Semaphore) Post(self *Task) error {
	s := sem.sched

	s.mu.Lock()
	if !sem.valid {
		s.mu.Unlock()
		return ErrInvalidated
	}

	var woken *Task
	if sem.waiters != nil {
		woken = sem.waiters
		s.unblockLocked(woken)
	} else if sem.count < sem.maxCount {
		sem.count++
	}
	preemptNow := self != nil && woken != nil && s.current == self && woken.priority > self.priority
	s.mu.Unlock()

	if preemptNow {
		s.reschedule(self)
	} else {
		s.dispatchIdle()
	}
	return nil
}

// Destroy invalidates the semaphore and wakes every waiting task with
// ErrInvalidated. dispatchIdle covers the case where Destroy is called
// from outside any task's own goroutine and the CPU was otherwise idle.
func (sem *Semaphore) Destroy() error {
	s := sem.sched
	s.mu.Lock()
	if !sem.valid {
		s.mu.Unlock()
		return ErrInvalidated
	}
	for sem.waiters != nil {
		s.unblockLocked(sem.waiters)
	}
	sem.valid = false
	s.mu.Unlock()
	s.dispatchIdle()
	return nil
}

// GetCount returns the semaphore's current count, or ErrInvalidated if it
// has been destroyed. Unlike the source kernel's queue_get_count, this
// reads the count directly under the scheduler lock rather than
// round-tripping through Wait(0).
func (sem *Semaphore) GetCount() (int, error) {
	s := sem.sched
	s.mu.Lock()
	defer s.mu.Unlock()
	if !sem.valid {
		return 0, ErrInvalidated
	}
	return sem.count, nil
}
