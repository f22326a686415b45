package mqueue

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tinykernel/sched"
)

func TestCreateRejectsInvalidCapacity(t *testing.T) {
	s := sched.NewScheduler(nil)
	_, err := Create(s, 0)
	assert.ErrorIs(t, err, sched.ErrInvalidArgument)
	_, err = Create(nil, 4)
	assert.ErrorIs(t, err, sched.ErrInvalidArgument)
}

// TestSendReceiveRoundTrip is the literal scenario: a producer sends 5
// messages through a capacity-2 queue, a consumer receives all 5 in
// order, and the count returns to 0.
func TestSendReceiveRoundTrip(t *testing.T) {
	s := sched.NewScheduler(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer s.Stop()

	q, err := Create(s, 2)
	require.NoError(t, err)

	received := make(chan []string, 1)

	_, err = s.NewTask(ctx, "producer", func(ctx context.Context, self *sched.Task) {
		for i := 1; i <= 5; i++ {
			require.NoError(t, q.Send(self, fmt.Sprintf("m%d", i), 0))
		}
	}, sched.PriorityNormal, 0)
	require.NoError(t, err)

	_, err = s.NewTask(ctx, "consumer", func(ctx context.Context, self *sched.Task) {
		var out []string
		for i := 0; i < 5; i++ {
			msg, err := q.Receive(self, 0)
			require.NoError(t, err)
			out = append(out, msg.(string))
		}
		received <- out
	}, sched.PriorityNormal, 0)
	require.NoError(t, err)

	require.NoError(t, s.Start(ctx))

	out := <-received
	assert.Equal(t, []string{"m1", "m2", "m3", "m4", "m5"}, out)

	count, err := q.GetCount()
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestSendBlocksWhenFullAndTimesOut(t *testing.T) {
	s := sched.NewScheduler(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer s.Stop()

	q, err := Create(s, 1)
	require.NoError(t, err)

	result := make(chan error, 1)
	_, err = s.NewTask(ctx, "filler", func(ctx context.Context, self *sched.Task) {
		require.NoError(t, q.Send(self, "first", 0))
		result <- q.Send(self, "second", 20*time.Millisecond)
	}, sched.PriorityNormal, 0)
	require.NoError(t, err)

	require.NoError(t, s.Start(ctx))

	err = <-result
	assert.ErrorIs(t, err, sched.ErrTimeout)
}

func TestDestroyInvalidatesQueue(t *testing.T) {
	s := sched.NewScheduler(nil)
	q, err := Create(s, 2)
	require.NoError(t, err)

	require.NoError(t, q.Destroy())
	assert.ErrorIs(t, q.Destroy(), sched.ErrInvalidated)

	_, err = q.GetCount()
	assert.ErrorIs(t, err, sched.ErrInvalidated)
}
