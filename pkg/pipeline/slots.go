package pipeline

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// slotPool holds the K dispatch slots. It outlives a single run loop, so
// invocations left running by a previous mount still count against K.
type slotPool struct {
	size int
	sem  *semaphore.Weighted

	mu       sync.Mutex
	inFlight int
	// idle is closed when inFlight drops back to zero.
	idle chan struct{}
}

func newSlotPool(size int) *slotPool {
	return &slotPool{
		size: size,
		sem:  semaphore.NewWeighted(int64(size)),
	}
}

// acquire blocks until a slot is free or ctx is done.
func (s *slotPool) acquire(ctx context.Context) error {
	return s.sem.Acquire(ctx, 1)
}

// release gives back a slot obtained by acquire that was never started.
func (s *slotPool) release() {
	s.sem.Release(1)
}

// start marks an acquired slot as running an invocation.
func (s *slotPool) start(ctx context.Context) {
	s.mu.Lock()
	if s.inFlight == 0 {
		s.idle = make(chan struct{})
	}
	s.inFlight++
	n := s.inFlight
	s.mu.Unlock()

	inFlightGauge.Set(ctx, int64(n))
}

// finish ends an invocation started with start and frees its slot.
func (s *slotPool) finish(ctx context.Context) {
	s.mu.Lock()
	s.inFlight--
	n := s.inFlight
	if n == 0 {
		close(s.idle)
		s.idle = nil
	}
	s.mu.Unlock()

	inFlightGauge.Set(ctx, int64(n))
	s.sem.Release(1)
}

func (s *slotPool) running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// wait blocks until no invocation is running or ctx is done.
func (s *slotPool) wait(ctx context.Context) error {
	s.mu.Lock()
	idle := s.idle
	s.mu.Unlock()
	if idle == nil {
		return nil
	}

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
