package pipeline

import (
	"go.chromium.org/luci/common/errors"
)

var (
	// ErrNotMounted is returned by Submit outside the Mounted state.
	ErrNotMounted = errors.New("pipeline is not mounted")
	// ErrAlreadyMounted is returned by a second Mount without Shutdown.
	ErrAlreadyMounted = errors.New("pipeline is already mounted")
	// ErrNilHandler is returned by Mount when no handler is given.
	ErrNilHandler = errors.New("handler is nil")

	ErrEmptyBatch = errors.New("batch has no messages")

	// ErrQueueFull is only returned when Options.MaxQueueDepth bounds intake.
	ErrQueueFull   = errors.New("intake queue is full")
	ErrQueueClosed = errors.New("intake queue is closed")

	// ErrHandlerPanic wraps a panic raised by the handler. It is retried like
	// any other handler error.
	ErrHandlerPanic = errors.New("handler panicked")

	// ErrPipelineDefect marks an error that escaped the dispatcher's failure
	// isolation. The run loop stops and intake is refused until Shutdown.
	ErrPipelineDefect = errors.New("pipeline defect")
)
