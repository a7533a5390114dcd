package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.chromium.org/luci/common/clock"
	"go.chromium.org/luci/common/logging"
)

func runDispatcher(ctx context.Context, d *Dispatcher) <-chan error {
	errC := make(chan error, 1)
	go func() { errC <- d.Run(ctx) }()
	return errC
}

func TestDispatcher_StopsWhenQueueCloses(t *testing.T) {
	t.Parallel()
	ctx, _ := testContext()

	q := NewQueue(0)
	rec := newRecorder()
	d := NewDispatcher(q, NewInvoker(Options{}), succeed, Options{Observer: rec})
	errC := runDispatcher(ctx, d)

	for i := range 5 {
		require.NoError(t, q.Put(newEventBatch(numbered(i), nil, clock.Now(ctx))))
	}
	rec.waitCompleted(t, 5)

	q.Close()
	select {
	case err := <-errC:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("Run did not return")
	}
	assert.Equal(t, 5, countLogs(ctx, logging.Info, "processing batch of 1 messages"))
}

func TestDispatcher_StopsWhenContextDone(t *testing.T) {
	t.Parallel()
	ctx, _ := testContext()
	ctx, cancel := context.WithCancel(ctx)

	release := make(chan struct{})
	q := NewQueue(0)
	d := NewDispatcher(q, NewInvoker(Options{}), func(ctx context.Context, _ Payload, _ any) error {
		<-release
		return ctx.Err()
	}, Options{Concurrency: 1})
	errC := runDispatcher(ctx, d)

	require.NoError(t, q.Put(newEventBatch(numbered(0), nil, clock.Now(ctx))))
	require.Eventually(t, func() bool { return d.InFlight() == 1 }, waitFor, tick)

	cancel()
	select {
	case err := <-errC:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("Run did not return")
	}

	// The invocation outlives the loop and is not cancelled.
	assert.Equal(t, 1, d.InFlight())
	close(release)
	require.NoError(t, d.slots.wait(context.Background()))
	assert.EqualValues(t, 1, outcomeCounter.Get(ctx, "success"))
}

func TestSlotPool(t *testing.T) {
	t.Parallel()
	ctx, _ := testContext()
	s := newSlotPool(2)

	require.NoError(t, s.wait(ctx))
	require.NoError(t, s.acquire(ctx))
	s.start(ctx)
	require.NoError(t, s.acquire(ctx))
	s.release()
	assert.Equal(t, 1, s.running())
	assert.EqualValues(t, 1, inFlightGauge.Get(ctx))

	short, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	assert.Error(t, s.wait(short))

	s.finish(ctx)
	assert.NoError(t, s.wait(ctx))
	assert.Zero(t, s.running())
	assert.Zero(t, inFlightGauge.Get(ctx))

	// All slots free again.
	require.NoError(t, s.acquire(ctx))
	require.NoError(t, s.acquire(ctx))
}
