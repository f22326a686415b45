package sched

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSemaphoreRejectsInvalidCounts(t *testing.T) {
	s := NewScheduler(nil)
	_, err := s.NewSemaphore(-1, 5)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = s.NewSemaphore(5, 2)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

// TestSemaphoreLaw is sem_init(s, k, m); s.wait() * k all succeed
// immediately; the (k+1)th blocks.
func TestSemaphoreLaw(t *testing.T) {
	s := NewScheduler(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer s.Stop()

	sem, err := s.NewSemaphore(3, 3)
	require.NoError(t, err)

	blockedReturned := make(chan error, 1)
	task, err := s.NewTask(ctx, "waiter", func(ctx context.Context, self *Task) {
		for i := 0; i < 3; i++ {
			require.NoError(t, sem.TryWait(self))
		}
		blockedReturned <- sem.Wait(self, 30*time.Millisecond)
	}, PriorityNormal, 0)
	require.NoError(t, err)
	require.NoError(t, s.Start(ctx))
	_ = task

	err = <-blockedReturned
	assert.ErrorIs(t, err, ErrTimeout)
}

// TestSemaphoreBalancedWaitPostReturnsToInitialCount checks that any
// sequence of balanced wait/post pairs on a semaphore returns its count
// to the starting value.
func TestSemaphoreBalancedWaitPostReturnsToInitialCount(t *testing.T) {
	s := NewScheduler(nil)
	sem, err := s.NewSemaphore(2, 2)
	require.NoError(t, err)

	require.NoError(t, sem.TryWait(nil))
	require.NoError(t, sem.TryWait(nil))
	require.NoError(t, sem.Post(nil))
	require.NoError(t, sem.Post(nil))

	count, err := sem.GetCount()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

// TestSemaphoreFIFO is the literal FIFO law: if A then B wait on an
// empty semaphore, two posts wake A before B.
func TestSemaphoreFIFO(t *testing.T) {
	s := NewScheduler(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer s.Stop()

	sem, err := s.NewSemaphore(0, 2)
	require.NoError(t, err)

	var wokeOrder []string
	wokeCh := make(chan string, 2)

	startedA := make(chan struct{})
	startedB := make(chan struct{})

	_, err = s.NewTask(ctx, "A", func(ctx context.Context, self *Task) {
		close(startedA)
		require.NoError(t, sem.Wait(self, 0))
		wokeCh <- "A"
	}, PriorityNormal, 0)
	require.NoError(t, err)

	_, err = s.NewTask(ctx, "B", func(ctx context.Context, self *Task) {
		<-startedA
		time.Sleep(5 * time.Millisecond) // ensure A is queued first
		close(startedB)
		require.NoError(t, sem.Wait(self, 0))
		wokeCh <- "B"
	}, PriorityNormal, 0)
	require.NoError(t, err)

	require.NoError(t, s.Start(ctx))

	<-startedB
	time.Sleep(5 * time.Millisecond)

	require.NoError(t, sem.Post(nil))
	require.NoError(t, sem.Post(nil))

	wokeOrder = append(wokeOrder, <-wokeCh, <-wokeCh)
	assert.Equal(t, []string{"A", "B"}, wokeOrder)
}

func TestSemaphoreTimeoutLeavesWaitQueueClean(t *testing.T) {
	s := NewScheduler(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer s.Stop()

	sem, err := s.NewSemaphore(0, 1)
	require.NoError(t, err)

	result := make(chan error, 1)
	task, err := s.NewTask(ctx, "lonely", func(ctx context.Context, self *Task) {
		result <- sem.Wait(self, 20*time.Millisecond)
	}, PriorityNormal, 0)
	require.NoError(t, err)
	require.NoError(t, s.Start(ctx))

	err = <-result
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, notWaiting, task.kind)
	assert.Nil(t, task.waitSem)
}

func TestSemaphoreDestroyWakesWaiters(t *testing.T) {
	s := NewScheduler(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer s.Stop()

	sem, err := s.NewSemaphore(0, 1)
	require.NoError(t, err)

	result := make(chan error, 1)
	_, err = s.NewTask(ctx, "waiter", func(ctx context.Context, self *Task) {
		result <- sem.Wait(self, 0)
	}, PriorityNormal, 0)
	require.NoError(t, err)
	require.NoError(t, s.Start(ctx))

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, sem.Destroy())

	err = <-result
	assert.ErrorIs(t, err, ErrInvalidated)
}
