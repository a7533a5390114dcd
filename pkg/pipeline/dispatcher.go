package pipeline

import (
	"context"

	"golang.org/x/time/rate"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"

	"github.com/ib-77/batchpipe/pkg/rop"
	"github.com/ib-77/batchpipe/pkg/rop/solo"
)

// Dispatcher pulls batches off a Queue and runs each through an Invoker, never
// holding more than K invocations at once.
//
// A slot is acquired before the next batch is dequeued, so when all K slots
// are busy the queue keeps accepting batches but nothing leaves it.
type Dispatcher struct {
	queue    *Queue
	invoker  *Invoker
	handler  Handler
	slots    *slotPool
	limiter  *rate.Limiter
	observer Observer

	// onDefect is told about every defect, including ones raised by slot
	// goroutines after Run has returned.
	onDefect func(error)
	// fault stops the current run loop with a defect as its cause.
	fault context.CancelCauseFunc
}

// NewDispatcher builds a dispatcher with its own K slots.
func NewDispatcher(q *Queue, inv *Invoker, h Handler, opts Options) *Dispatcher {
	opts.normalize()
	return newDispatcher(q, inv, h, newSlotPool(opts.Concurrency), opts)
}

func newDispatcher(q *Queue, inv *Invoker, h Handler, slots *slotPool, opts Options) *Dispatcher {
	return &Dispatcher{
		queue:    q,
		invoker:  inv,
		handler:  h,
		slots:    slots,
		limiter:  opts.limiter(),
		observer: opts.Observer,
		fault:    func(error) {},
	}
}

// InFlight is the number of invocations currently running.
func (d *Dispatcher) InFlight() int {
	return d.slots.running()
}

// Run dispatches until ctx is done or the queue is closed, returning nil in
// both cases. Handler failures never stop it. It returns an error wrapping
// ErrPipelineDefect if the dispatch machinery itself broke.
//
// Invocations run under a context detached from ctx's cancellation: stopping
// Run does not interrupt batches already dispatched. Run is meant to be called
// once per Dispatcher.
func (d *Dispatcher) Run(ctx context.Context) error {
	invokeCtx := context.WithoutCancel(ctx)
	loopCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	d.fault = cancel

	for {
		res := solo.Guard(loopCtx, d.step(invokeCtx))
		switch {
		case res.IsDefect():
			return d.reportDefect(ctx, res.Err())
		case !res.Result():
			if cause := context.Cause(loopCtx); errors.Is(cause, ErrPipelineDefect) {
				return cause
			}
			return nil
		}
	}
}

// step dispatches at most one batch. Its result is false once the loop must
// stop.
func (d *Dispatcher) step(invokeCtx context.Context) func(ctx context.Context) rop.Result[bool] {
	return func(ctx context.Context) rop.Result[bool] {
		if err := d.slots.acquire(ctx); err != nil {
			return rop.Success(false)
		}
		started := false
		defer func() {
			if !started {
				d.slots.release()
			}
		}()

		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				return rop.Success(false)
			}
		}
		b, err := d.queue.Take(ctx)
		if err != nil {
			return rop.Success(false)
		}
		pendingGauge.Set(ctx, int64(d.queue.Len()))

		logging.Fields{"batch_id": b.ID.String()}.Infof(ctx, "processing batch of %d messages", b.Len())
		if d.observer != nil {
			d.observer.Dispatched(ctx, b)
		}

		d.slots.start(invokeCtx)
		started = true
		go d.invoke(invokeCtx, b)
		return rop.Success(true)
	}
}

func (d *Dispatcher) invoke(ctx context.Context, b EventBatch) {
	defer d.slots.finish(ctx)

	res := solo.Guard(ctx, func(ctx context.Context) rop.Result[Completion] {
		r := d.invoker.Invoke(ctx, b, d.handler)
		if d.observer != nil {
			d.observer.Completed(ctx, b, r)
		}
		return r
	})

	// Failures were already logged by the invoker; they end here.
	solo.DoubleTee(ctx, res, solo.TeeHandlers[Completion]{
		OnDefect: func(ctx context.Context, r rop.Result[Completion]) {
			d.fault(d.reportDefect(ctx, r.Err()))
		},
	})
}

func (d *Dispatcher) reportDefect(ctx context.Context, err error) error {
	err = errors.Fmt("%w: %w", ErrPipelineDefect, err)
	defectCounter.Add(ctx, 1)
	errors.Log(ctx, err)
	if d.onDefect != nil {
		d.onDefect(err)
	}
	return err
}
