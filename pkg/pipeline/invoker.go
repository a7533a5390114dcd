package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"go.chromium.org/luci/common/clock"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/common/retry"

	"github.com/ib-77/batchpipe/pkg/rop"
	"github.com/ib-77/batchpipe/pkg/rop/solo"
)

// Completion describes how a batch reached its terminal outcome.
type Completion struct {
	// Attempts is the number of handler calls made, retries included.
	Attempts int
	// Duration runs from the first call to the terminal outcome, retry delays
	// included.
	Duration time.Duration
}

// Invoker calls a handler for one batch, retrying failed calls after a fixed
// delay until the retry budget is spent.
type Invoker struct {
	// Retries is the number of retries after the first call.
	Retries int
	// Delay is the fixed pause before each retry. It never grows.
	Delay time.Duration
	// Tracer defaults to the global otel tracer provider.
	Tracer trace.Tracer
}

// NewInvoker returns an Invoker with the retry policy from opts.
func NewInvoker(opts Options) *Invoker {
	opts.normalize()
	return &Invoker{
		Retries: opts.MaxRetries,
		Delay:   opts.RetryDelay,
	}
}

func (inv *Invoker) iterator() retry.Iterator {
	return &retry.Limited{
		Delay:   inv.Delay,
		Retries: inv.Retries,
	}
}

func (inv *Invoker) tracer() trace.Tracer {
	if inv.Tracer != nil {
		return inv.Tracer
	}
	return tracer(nil)
}

// Invoke runs h against b until it succeeds or retries run out.
//
// The result is Success or Fail; Cancel only when ctx is cancelled between
// attempts. Each attempt gets its own copy of the payload.
func (inv *Invoker) Invoke(ctx context.Context, b EventBatch, h Handler) rop.Result[Completion] {
	ctx = logging.SetFields(ctx, batchFields(b))
	ctx, span := startInvokeSpan(ctx, inv.tracer(), b)

	start := clock.Now(ctx)
	attempts := 0
	err := retry.Retry(ctx, inv.iterator, func() error {
		attempts++
		attemptStart := clock.Now(ctx)
		err := inv.call(ctx, b, h)
		elapsed := clock.Since(ctx, attemptStart)

		recordAttempt(span, attempts, elapsed, err)
		fields := logging.Fields{"attempt": attempts, "duration": elapsed}
		if err != nil {
			attemptCounter.Add(ctx, 1, "failure")
			fields[logging.ErrorKey] = err
			fields.Warningf(ctx, "attempt %d failed after %s", attempts, elapsed)
		} else {
			attemptCounter.Add(ctx, 1, "success")
			fields.Debugf(ctx, "attempt %d succeeded in %s", attempts, elapsed)
		}
		return err
	}, func(err error, delay time.Duration) {
		logging.Fields{"delay": delay}.Warningf(ctx, "retrying message batch due to error: %s", err)
	})

	done := Completion{Attempts: attempts, Duration: clock.Since(ctx, start)}
	var res rop.Result[Completion]
	switch {
	case err == nil:
		res = rop.SuccessWithID(b.ID, done)
	case ctx.Err() != nil && rop.IsCancellationError(err):
		res = rop.Cancel[Completion](err).WithID(b.ID)
	default:
		res = rop.FailWithResult(b.ID, done, err)
	}

	outcomeCounter.Add(ctx, 1, res.Kind().String())
	durationMS.Add(ctx, float64(done.Duration.Milliseconds()), res.Kind().String())
	endInvokeSpan(span, attempts, res.Err())

	return solo.DoubleTee(ctx, res, solo.TeeHandlers[Completion]{
		OnSuccess: func(ctx context.Context, r rop.Result[Completion]) {
			logging.Infof(ctx, "batch processed in %dms", r.Result().Duration.Milliseconds())
		},
		OnFailure: func(ctx context.Context, r rop.Result[Completion]) {
			logging.Fields{
				logging.ErrorKey: r.Err(),
				"attempts":       r.Result().Attempts,
			}.Errorf(ctx, "error processing message batch: %s", r.Err())
		},
		OnCancel: func(ctx context.Context, r rop.Result[Completion]) {
			logging.Warningf(ctx, "batch abandoned after %d attempt(s): %s", attempts, r.Err())
		},
	})
}

func (inv *Invoker) call(ctx context.Context, b EventBatch, h Handler) error {
	p := b.Payload()
	err := solo.Recover(func() error {
		return h(ctx, p, b.Settings())
	})
	if solo.IsPanic(err) {
		return errors.Fmt("%w: %w", ErrHandlerPanic, err)
	}
	return err
}

func batchFields(b EventBatch) logging.Fields {
	f := logging.Fields{
		"batch_id":   b.ID.String(),
		"batch_type": string(b.Type()),
		"messages":   b.Len(),
	}
	if id := b.CorrelationID(); id != "" {
		f["correlation_id"] = id
	}
	return f
}
