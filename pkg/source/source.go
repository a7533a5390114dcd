// Package source bridges external event producers into the pipeline.
package source

import (
	"context"

	"github.com/ib-77/batchpipe/pkg/pipeline"
)

// Sink accepts batches. *pipeline.Processor is one.
type Sink interface {
	Submit(ctx context.Context, p pipeline.Payload, settings any) error
}

var _ Sink = (*pipeline.Processor)(nil)

// Source produces batches from a delivery channel (a topic, a webhook, ...)
// and hands each to the sink until ctx is done.
type Source interface {
	Run(ctx context.Context, sink Sink) error
}
