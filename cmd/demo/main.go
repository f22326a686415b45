// Command demo wires a scheduler, semaphores, and a message queue
// together and narrates the scenarios this module's components are
// built to satisfy, in place of the shell the kernel this is ported from
// would normally drive them through.
package main

import (
	"context"
	"fmt"
	"time"

	"tinykernel/alloc"
	"tinykernel/mqueue"
	"tinykernel/sched"
)

func main() {
	fmt.Println("tinykernel demo")
	fmt.Println("===============")
	fmt.Println()

	heap := alloc.NewHeap(sched.DefaultHeapSize)
	fmt.Printf("heap: %d bytes\n", heap.TotalBytes())

	s := sched.NewScheduler(heap)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fmt.Println()
	fmt.Println("-- round robin: idle + two normal-priority workers --")
	roundRobinDemo(ctx, s)

	fmt.Println()
	fmt.Println("-- producer/consumer over a bounded queue --")
	queueDemo(ctx, s)

	fmt.Println()
	fmt.Println("-- timed semaphore wait, posted in time --")
	timedWaitDemo(ctx, s)

	fmt.Println()
	fmt.Println("-- timed semaphore wait, never posted --")
	timeoutDemo(ctx, s)

	fmt.Println()
	fmt.Println("-- priority preemption --")
	preemptionDemo(ctx, s)

	fmt.Println()
	fmt.Println("-- allocator best fit --")
	allocatorDemo()

	s.Stop()
	fmt.Println()
	fmt.Println("=== demo complete ===")
}

func roundRobinDemo(ctx context.Context, s *sched.Scheduler) {
	_, _ = s.NewTask(ctx, "idle", func(ctx context.Context, self *sched.Task) {
		for {
			self.CheckPoint()
			select {
			case <-ctx.Done():
				return
			default:
				time.Sleep(time.Millisecond)
			}
		}
	}, sched.PriorityIdle, 0)

	worker := func(name string) sched.Func {
		return func(ctx context.Context, self *sched.Task) {
			for i := 0; i < 3; i++ {
				fmt.Printf("  %s running (tick %d)\n", name, s.GetTickCount())
				self.Sleep(5 * time.Millisecond)
			}
		}
	}

	a, _ := s.NewTask(ctx, "A", worker("A"), sched.PriorityNormal, 0)
	b, _ := s.NewTask(ctx, "B", worker("B"), sched.PriorityNormal, 0)

	if err := s.Start(ctx); err != nil {
		fmt.Println("start failed:", err)
		return
	}

	waitTerminated(s, a, b)
}

func queueDemo(ctx context.Context, s *sched.Scheduler) {
	q, err := mqueue.Create(s, 2)
	if err != nil {
		fmt.Println("queue create failed:", err)
		return
	}

	var producer, consumer *sched.Task
	producer, _ = s.NewTask(ctx, "producer", func(ctx context.Context, self *sched.Task) {
		for i := 1; i <= 5; i++ {
			msg := fmt.Sprintf("m%d", i)
			if err := q.Send(self, msg, 0); err != nil {
				fmt.Println("send failed:", err)
				return
			}
			fmt.Printf("  producer sent %s\n", msg)
		}
	}, sched.PriorityNormal, 0)

	consumer, _ = s.NewTask(ctx, "consumer", func(ctx context.Context, self *sched.Task) {
		for i := 0; i < 5; i++ {
			msg, err := q.Receive(self, 0)
			if err != nil {
				fmt.Println("receive failed:", err)
				return
			}
			fmt.Printf("  consumer received %v\n", msg)
		}
	}, sched.PriorityNormal, 0)

	waitTerminated(s, producer, consumer)

	count, _ := q.GetCount()
	fmt.Printf("  queue count after round trip: %d\n", count)
	q.Destroy()
}

func timedWaitDemo(ctx context.Context, s *sched.Scheduler) {
	sem, _ := s.NewSemaphore(0, 1)

	var a, b *sched.Task
	a, _ = s.NewTask(ctx, "waiter", func(ctx context.Context, self *sched.Task) {
		start := s.GetTickCount()
		err := sem.Wait(self, 100*time.Millisecond)
		fmt.Printf("  waiter: wait returned %v at tick %d (started at %d)\n", err, s.GetTickCount(), start)
	}, sched.PriorityNormal, 0)

	b, _ = s.NewTask(ctx, "poster", func(ctx context.Context, self *sched.Task) {
		self.Sleep(20 * time.Millisecond)
		sem.Post(self)
		fmt.Println("  poster: posted")
	}, sched.PriorityNormal, 0)

	waitTerminated(s, a, b)
}

func timeoutDemo(ctx context.Context, s *sched.Scheduler) {
	sem, _ := s.NewSemaphore(0, 1)

	a, _ := s.NewTask(ctx, "lonely-waiter", func(ctx context.Context, self *sched.Task) {
		err := sem.Wait(self, 50*time.Millisecond)
		fmt.Printf("  lonely-waiter: wait returned %v (timeout expected)\n", err)
	}, sched.PriorityNormal, 0)

	waitTerminated(s, a)
}

func preemptionDemo(ctx context.Context, s *sched.Scheduler) {
	lowDone := make(chan struct{})

	low, _ := s.NewTask(ctx, "low", func(ctx context.Context, self *sched.Task) {
		for i := 0; i < 20; i++ {
			self.CheckPoint()
			time.Sleep(time.Millisecond)
		}
		close(lowDone)
	}, sched.PriorityLow, 0)

	high, _ := s.NewTask(ctx, "high", func(ctx context.Context, self *sched.Task) {
		self.Sleep(10 * time.Millisecond)
		fmt.Printf("  high: woke and running at tick %d, preempting low\n", s.GetTickCount())
	}, sched.PriorityHigh, 0)

	waitTerminated(s, low, high)
	fmt.Println("  low finished after high blocked/exited")
}

func allocatorDemo() {
	h := alloc.NewHeap(4096)

	p1, _ := h.Alloc(100)
	p2, _ := h.Alloc(200)
	h.Free(p1)
	p3, _ := h.Alloc(50)

	fmt.Printf("  p1=%d p2=%d p3=%d (p3 should reuse p1's region)\n", p1, p2, p3)
	fmt.Printf("  used=%d free=%d total=%d\n", h.UsedBytes(), h.FreeBytes(), h.TotalBytes())
}

// waitTerminated polls until every given task reaches StateTerminated.
// The demo has no external completion signal beyond task state, unlike a
// real shell session a human would watch.
func waitTerminated(s *sched.Scheduler, tasks ...*sched.Task) {
	for {
		done := true
		for _, t := range tasks {
			if t.State() != sched.StateTerminated {
				done = false
			}
		}
		if done {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
}
