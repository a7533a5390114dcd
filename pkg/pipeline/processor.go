package pipeline

import (
	"context"
	"sync"

	"go.chromium.org/luci/common/clock"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"

	"github.com/ib-77/batchpipe/pkg/rop/solo"
)

// State is the lifecycle state of a Processor.
type State int

const (
	Unmounted State = iota
	Mounted
	ShuttingDown
)

func (s State) String() string {
	switch s {
	case Unmounted:
		return "unmounted"
	case Mounted:
		return "mounted"
	case ShuttingDown:
		return "shutting-down"
	}
	return "unknown"
}

// Processor owns the pipeline: the intake queue, the run loop and the K
// dispatch slots.
//
// It goes Unmounted -> Mounted on Mount and back through ShuttingDown on
// Shutdown. Submit only accepts batches while Mounted.
type Processor struct {
	opts    Options
	invoker *Invoker
	slots   *slotPool

	mu    sync.Mutex
	state State
	gen   uint64
	queue *Queue
	stop  context.CancelFunc
	done  chan struct{}
	err   error
}

// New validates opts and returns an unmounted Processor.
func New(opts Options) (*Processor, error) {
	if err := opts.Validate(); err != nil {
		return nil, errors.Fmt("invalid options: %w", err)
	}
	inv := NewInvoker(opts)
	inv.Tracer = tracer(opts.TracerProvider)

	done := make(chan struct{})
	close(done)
	return &Processor{
		opts:    opts,
		invoker: inv,
		slots:   newSlotPool(opts.Concurrency),
		done:    done,
	}, nil
}

// Mount wires h in and starts the run loop.
//
// ctx carries the logger, clock and metrics state used by the loop and by
// every invocation. Cancelling it stops dispatch but leaves in-flight
// invocations running; Submit then returns ErrNotMounted until the next
// Shutdown and Mount.
func (p *Processor) Mount(ctx context.Context, h Handler) error {
	if h == nil {
		return ErrNilHandler
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != Unmounted {
		logging.Warningf(ctx, "pipeline is already mounted, ignoring mount")
		return ErrAlreadyMounted
	}

	p.gen++
	gen := p.gen
	q := NewQueue(p.opts.MaxQueueDepth)
	d := newDispatcher(q, p.invoker, h, p.slots, p.opts)
	d.onDefect = func(err error) { p.recordDefect(gen, err) }

	runCtx, stop := context.WithCancel(ctx)
	done := make(chan struct{})
	p.state = Mounted
	p.queue = q
	p.stop = stop
	p.done = done
	p.err = nil

	go func() {
		defer close(done)
		if err := d.Run(runCtx); err != nil {
			logging.Errorf(ctx, "run loop stopped: %s", err)
			return
		}
		logging.Debugf(ctx, "run loop stopped")
	}()

	logging.Fields{
		"concurrency": p.opts.Concurrency,
		"max_retries": p.opts.MaxRetries,
		"retry_delay": p.opts.RetryDelay,
	}.Infof(ctx, "pipeline mounted")
	return nil
}

func (p *Processor) recordDefect(gen uint64, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if gen == p.gen && p.err == nil {
		p.err = err
	}
}

// Submit enqueues a batch and returns without waiting for the handler.
//
// It returns ErrNotMounted outside the Mounted state, ErrEmptyBatch for a
// batch without messages, ErrQueueFull when a bounded queue is full, and an
// ErrPipelineDefect error once the run loop has faulted. Payload.Type is not
// checked. A nil error only means the batch was queued.
func (p *Processor) Submit(ctx context.Context, payload Payload, settings any) error {
	typ := payload.Type.metricField()

	p.mu.Lock()
	state, q, done, defect := p.state, p.queue, p.done, p.err
	p.mu.Unlock()

	switch {
	case state == Mounted && defect != nil:
		submittedCounter.Add(ctx, 1, typ, "defect")
		logging.Fields{logging.ErrorKey: defect}.Errorf(ctx, "pipeline is faulted, dropping batch of %d message(s)", len(payload.Messages))
		return defect
	case state != Mounted || isClosed(done):
		submittedCounter.Add(ctx, 1, typ, "not_mounted")
		logging.Warningf(ctx, "pipeline is not mounted, dropping batch of %d message(s)", len(payload.Messages))
		return ErrNotMounted
	}

	res := solo.Validate(ctx, payload, validatePayload)
	if res.IsFailure() {
		submittedCounter.Add(ctx, 1, typ, "invalid")
		logging.Fields{logging.ErrorKey: res.Err()}.Warningf(ctx, "rejecting batch: %s", res.Err())
		return res.Err()
	}

	b := newEventBatch(res.Result(), settings, clock.Now(ctx))
	switch err := q.Put(b); {
	case errors.Is(err, ErrQueueFull):
		submittedCounter.Add(ctx, 1, typ, "queue_full")
		logging.Fields{"pending": q.Len()}.Warningf(ctx, "intake queue is full, dropping batch of %d message(s)", b.Len())
		return err
	case errors.Is(err, ErrQueueClosed):
		// Lost a race with Shutdown.
		submittedCounter.Add(ctx, 1, typ, "not_mounted")
		logging.Warningf(ctx, "pipeline is not mounted, dropping batch of %d message(s)", b.Len())
		return ErrNotMounted
	case err != nil:
		return err
	}

	submittedCounter.Add(ctx, 1, typ, "accepted")
	pendingGauge.Set(ctx, int64(q.Len()))
	logging.Fields{"batch_id": b.ID.String()}.Infof(ctx, "message added to queue: %d message(s)", b.Len())
	return nil
}

// Shutdown stops intake, discards every queued batch and stops the run loop.
// In-flight invocations are neither cancelled nor awaited; see Wait.
func (p *Processor) Shutdown(ctx context.Context) {
	p.mu.Lock()
	if p.state != Mounted {
		p.mu.Unlock()
		logging.Debugf(ctx, "pipeline is not mounted, nothing to shut down")
		return
	}
	p.state = ShuttingDown
	discarded := p.queue.Close()
	p.stop()
	p.queue = nil
	p.stop = nil
	p.state = Unmounted
	p.mu.Unlock()

	pendingGauge.Set(ctx, 0)
	logging.Fields{
		"discarded": discarded,
		"in_flight": p.slots.running(),
	}.Infof(ctx, "pipeline shut down, %d queued batch(es) discarded", discarded)
}

// Wait blocks until the last run loop has exited and no invocation of any
// mount generation is running. Call it after Shutdown; while mounted it only
// returns when ctx is done.
func (p *Processor) Wait(ctx context.Context) error {
	select {
	case <-p.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	return p.slots.wait(ctx)
}

// Done is closed when the current run loop exits.
func (p *Processor) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// Err returns the defect that stopped the current run loop, if any.
func (p *Processor) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *Processor) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// InFlight is the number of invocations running, across mount generations.
func (p *Processor) InFlight() int {
	return p.slots.running()
}

// Pending is the number of queued batches not yet dispatched.
func (p *Processor) Pending() int {
	p.mu.Lock()
	q := p.queue
	p.mu.Unlock()
	if q == nil {
		return 0
	}
	return q.Len()
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
