// Package kafka reads message-upsert envelopes off a Kafka topic and submits
// them to the pipeline.
package kafka

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"

	"github.com/ib-77/batchpipe/pkg/pipeline"
	"github.com/ib-77/batchpipe/pkg/source"
)

// Reader is the part of *kafka.Reader the consumer needs.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ Reader = (*kafka.Reader)(nil)

// Envelope is the wire shape of one upsert event.
type Envelope struct {
	Messages  []json.RawMessage `json:"messages"`
	Type      string            `json:"type"`
	RequestID string            `json:"requestId,omitempty"`
	Settings  json.RawMessage   `json:"settings,omitempty"`
}

// Decode turns a record value into a payload and its settings blob. Settings
// are passed on undecoded as a json.RawMessage, or nil when absent.
func Decode(value []byte) (pipeline.Payload, any, error) {
	var env Envelope
	if err := json.Unmarshal(value, &env); err != nil {
		return pipeline.Payload{}, nil, errors.Fmt("decoding envelope: %w", err)
	}
	p := pipeline.Payload{
		Messages:      make([]pipeline.Message, len(env.Messages)),
		Type:          pipeline.BatchType(env.Type),
		CorrelationID: env.RequestID,
	}
	for i, m := range env.Messages {
		p.Messages[i] = pipeline.Message(m)
	}
	if len(env.Settings) == 0 || string(env.Settings) == "null" {
		return p, nil, nil
	}
	return p, env.Settings, nil
}

// Consumer is a source.Source backed by a Kafka consumer group.
//
// Every record is committed once its submit attempt is over, accepted or not:
// intake is fire-and-forget, and the pipeline does not report handler
// outcomes back.
type Consumer struct {
	reader     Reader
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
}

var _ source.Source = (*Consumer)(nil)

// NewConsumer joins group on topic.
func NewConsumer(brokers []string, topic, group string) *Consumer {
	return NewConsumerFromReader(kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: group,
	}))
}

func NewConsumerFromReader(r Reader) *Consumer {
	return &Consumer{
		reader:     r,
		tracer:     otel.Tracer("github.com/ib-77/batchpipe/pkg/source/kafka"),
		propagator: otel.GetTextMapPropagator(),
	}
}

// Run consumes until ctx is done or the reader fails. It closes the reader
// on return.
func (c *Consumer) Run(ctx context.Context, sink source.Sink) error {
	defer func() {
		if err := c.reader.Close(); err != nil {
			logging.Warningf(ctx, "closing kafka reader: %s", err)
		}
	}()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Fmt("fetching message: %w", err)
		}
		c.handle(ctx, sink, msg)
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Fmt("committing offset %d: %w", msg.Offset, err)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, sink source.Sink, msg kafka.Message) {
	msgCtx := c.extractHeaders(ctx, msg.Headers)
	msgCtx = logging.SetFields(msgCtx, logging.Fields{
		"topic":     msg.Topic,
		"partition": msg.Partition,
		"offset":    msg.Offset,
	})
	msgCtx, span := c.tracer.Start(msgCtx, "batchpipe.consume", trace.WithAttributes(
		attribute.String("messaging.kafka.topic", msg.Topic),
		attribute.Int("messaging.kafka.partition", msg.Partition),
		attribute.Int64("messaging.kafka.offset", msg.Offset),
	))
	defer span.End()

	p, settings, err := Decode(msg.Value)
	if err != nil {
		span.RecordError(err)
		logging.Fields{logging.ErrorKey: err}.Errorf(msgCtx, "skipping malformed record: %s", err)
		return
	}
	if err := sink.Submit(msgCtx, p, settings); err != nil {
		span.RecordError(err)
		logging.Fields{logging.ErrorKey: err}.Warningf(msgCtx, "batch not accepted: %s", err)
	}
}

func (c *Consumer) extractHeaders(ctx context.Context, headers []kafka.Header) context.Context {
	carrier := propagation.MapCarrier{}
	for _, h := range headers {
		carrier[h.Key] = string(h.Value)
	}
	return c.propagator.Extract(ctx, carrier)
}
