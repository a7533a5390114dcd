package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"go.chromium.org/luci/common/errors"

	"github.com/ib-77/batchpipe/pkg/rop"
)

const (
	DefaultConcurrency = 3
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 200 * time.Millisecond
)

// Observer receives dispatch and completion signals. Calls happen on the
// pipeline's goroutines and must not block for long.
type Observer interface {
	// Dispatched is called from the run loop, in dequeue order, right before
	// the batch is handed to a slot.
	Dispatched(ctx context.Context, b EventBatch)
	// Completed is called once per batch with its terminal outcome.
	Completed(ctx context.Context, b EventBatch, res rop.Result[Completion])
}

// Options configures a Processor. The zero value of every field means
// "use the default".
type Options struct {
	// Concurrency is K, the number of handler invocations allowed to run at
	// the same time. Default 3.
	Concurrency int

	// MaxRetries is the number of retries after the first failed call.
	// Default 3, i.e. up to 4 calls. A negative value disables retries.
	MaxRetries int

	// RetryDelay is the fixed pause between a failed call and its retry.
	// Zero means the 200ms default, so retries cannot run back to back; use
	// a small positive delay instead. Negative values are rejected.
	RetryDelay time.Duration

	// MaxQueueDepth bounds the intake queue. 0 keeps it unbounded, so a
	// producer faster than the handlers grows memory without limit.
	MaxQueueDepth int

	// DispatchQPS caps how many batches per second leave the queue. 0 means
	// unlimited.
	DispatchQPS float64

	// Observer is optional.
	Observer Observer

	// TracerProvider defaults to the global otel provider.
	TracerProvider trace.TracerProvider
}

func (o *Options) normalize() {
	if o.Concurrency == 0 {
		o.Concurrency = DefaultConcurrency
	}
	switch {
	case o.MaxRetries == 0:
		o.MaxRetries = DefaultMaxRetries
	case o.MaxRetries < 0:
		o.MaxRetries = 0
	}
	if o.RetryDelay == 0 {
		o.RetryDelay = DefaultRetryDelay
	}
}

// Validate normalizes the options in place and checks them.
func (o *Options) Validate() error {
	o.normalize()
	var merr errors.MultiError
	if o.Concurrency < 0 {
		merr.MaybeAdd(errors.Fmt("Concurrency must be > 0, got %d", o.Concurrency))
	}
	if o.RetryDelay < 0 {
		merr.MaybeAdd(errors.Fmt("RetryDelay must be >= 0, got %s", o.RetryDelay))
	}
	if o.MaxQueueDepth < 0 {
		merr.MaybeAdd(errors.Fmt("MaxQueueDepth must be >= 0, got %d", o.MaxQueueDepth))
	}
	if o.DispatchQPS < 0 {
		merr.MaybeAdd(errors.Fmt("DispatchQPS must be >= 0, got %f", o.DispatchQPS))
	}
	return merr.AsError()
}

func (o *Options) limiter() *rate.Limiter {
	if o.DispatchQPS == 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(o.DispatchQPS), 1)
}
