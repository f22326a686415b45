// Package mqueue implements a bounded message queue built entirely out of
// three counting semaphores from tinykernel/sched, the same way the
// kernel it is ported from composes queue_send/queue_receive out of
// sem_wait/sem_post on a mutex, a not_empty, and a not_full semaphore.
package mqueue

import (
	"sync"
	"time"

	"tinykernel/sched"
)

// Queue is a bounded FIFO of opaque messages.
type Queue struct {
	s        *sched.Scheduler
	capacity int
	buffer   []any
	head     int
	tail     int

	countMu sync.Mutex
	count   int

	mutex    *sched.Semaphore
	notEmpty *sched.Semaphore
	notFull  *sched.Semaphore
	valid    bool
}

// Create builds a queue of the given capacity. capacity must be greater
// than zero.
func Create(s *sched.Scheduler, capacity int) (*Queue, error) {
	if s == nil || capacity <= 0 {
		return nil, sched.ErrInvalidArgument
	}

	mutex, err := s.NewSemaphore(1, 1)
	if err != nil {
		return nil, err
	}
	notEmpty, err := s.NewSemaphore(0, capacity)
	if err != nil {
		return nil, err
	}
	notFull, err := s.NewSemaphore(capacity, capacity)
	if err != nil {
		return nil, err
	}

	return &Queue{
		s:        s,
		capacity: capacity,
		buffer:   make([]any, capacity),
		mutex:    mutex,
		notEmpty: notEmpty,
		notFull:  notFull,
		valid:    true,
	}, nil
}

// Send places msg on the queue, blocking until there is room. timeout of
// 0 waits forever. self must be the calling task's own handle.
func (q *Queue) Send(self *sched.Task, msg any, timeout time.Duration) error {
	if !q.valid {
		return sched.ErrInvalidated
	}
	if err := q.notFull.Wait(self, timeout); err != nil {
		return err
	}
	if err := q.mutex.Wait(self, timeout); err != nil {
		q.notFull.Post(self)
		return err
	}

	q.buffer[q.tail] = msg
	q.tail = (q.tail + 1) % q.capacity
	q.countMu.Lock()
	q.count++
	q.countMu.Unlock()

	q.mutex.Post(self)
	q.notEmpty.Post(self)
	return nil
}

// Receive takes the oldest message off the queue, blocking until one is
// available. timeout of 0 waits forever. self must be the calling
// task's own handle.
func (q *Queue) Receive(self *sched.Task, timeout time.Duration) (any, error) {
	if !q.valid {
		return nil, sched.ErrInvalidated
	}
	if err := q.notEmpty.Wait(self, timeout); err != nil {
		return nil, err
	}
	if err := q.mutex.Wait(self, timeout); err != nil {
		q.notEmpty.Post(self)
		return nil, err
	}

	msg := q.buffer[q.head]
	q.buffer[q.head] = nil
	q.head = (q.head + 1) % q.capacity
	q.countMu.Lock()
	q.count--
	q.countMu.Unlock()

	q.mutex.Post(self)
	q.notFull.Post(self)
	return msg, nil
}

// Destroy invalidates the queue and wakes any task blocked in Send or
// Receive with ErrInvalidated.
func (q *Queue) Destroy() error {
	if !q.valid {
		return sched.ErrInvalidated
	}
	q.valid = false
	q.mutex.Destroy()
	q.notEmpty.Destroy()
	q.notFull.Destroy()
	return nil
}

// GetCount returns the number of messages currently queued. Unlike the
// source kernel's queue_get_count, this never calls Wait with a timeout
// of zero to take the mutex (that call means "wait forever" on this
// module's semaphores, same bug sched.Semaphore.GetCount avoids); it
// reads the count under its own lock instead.
func (q *Queue) GetCount() (int, error) {
	if !q.valid {
		return 0, sched.ErrInvalidated
	}
	q.countMu.Lock()
	defer q.countMu.Unlock()
	return q.count, nil
}
