package pipeline

import (
	"bytes"
	"context"
	"time"

	"github.com/google/uuid"
)

// Message is one opaque record of a batch, typically a JSON-encoded chat
// message. The pipeline never looks inside it.
type Message []byte

// BatchType tells why the producer emitted a batch. The pipeline passes it
// through untouched; producers may send types not listed here, or none.
type BatchType string

const (
	TypeNotify      BatchType = "notify"
	TypeAppend      BatchType = "append"
	TypeHistorySync BatchType = "history-sync"
)

// Valid reports whether t is one of the known batch types.
func (t BatchType) Valid() bool {
	switch t {
	case TypeNotify, TypeAppend, TypeHistorySync:
		return true
	}
	return false
}

// metricField keeps the type field of intake metrics to a fixed set.
func (t BatchType) metricField() string {
	if t.Valid() {
		return string(t)
	}
	return "other"
}

// Payload is what the handler receives: the messages plus producer metadata.
type Payload struct {
	Messages []Message
	Type     BatchType
	// CorrelationID is optional; empty means the producer sent none.
	CorrelationID string
}

func (p Payload) clone() Payload {
	msgs := make([]Message, len(p.Messages))
	for i, m := range p.Messages {
		msgs[i] = Message(bytes.Clone(m))
	}
	p.Messages = msgs
	return p
}

func validatePayload(_ context.Context, p Payload) error {
	if len(p.Messages) == 0 {
		return ErrEmptyBatch
	}
	return nil
}

// EventBatch is one unit of work inside the pipeline. It is immutable once
// submitted.
type EventBatch struct {
	ID          uuid.UUID
	SubmittedAt time.Time

	payload  Payload
	settings any
}

func newEventBatch(p Payload, settings any, now time.Time) EventBatch {
	return EventBatch{
		ID:          uuid.New(),
		SubmittedAt: now,
		payload:     p.clone(),
		settings:    settings,
	}
}

// Payload returns a copy of the submitted payload.
func (b EventBatch) Payload() Payload {
	return b.payload.clone()
}

// Settings returns the opaque settings blob as submitted.
func (b EventBatch) Settings() any {
	return b.settings
}

func (b EventBatch) Type() BatchType {
	return b.payload.Type
}

func (b EventBatch) CorrelationID() string {
	return b.payload.CorrelationID
}

// Len is the number of messages in the batch.
func (b EventBatch) Len() int {
	return len(b.payload.Messages)
}

// Handler reacts to one batch. It may be called more than once with the same
// batch and must tolerate that.
type Handler func(ctx context.Context, p Payload, settings any) error
