package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"go.chromium.org/luci/common/clock/testclock"
)

func TestValidatePayload(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	assert.NoError(t, validatePayload(ctx, payload("", "m")))
	assert.ErrorIs(t, validatePayload(ctx, Payload{Type: TypeAppend}), ErrEmptyBatch)

	// The type is the producer's business.
	for _, typ := range []BatchType{"", "upsert", "NOTIFY"} {
		p := payload("", "m")
		p.Type = typ
		assert.NoError(t, validatePayload(ctx, p), typ)
	}
}

func TestBatchType_Valid(t *testing.T) {
	t.Parallel()
	for _, typ := range []BatchType{TypeNotify, TypeAppend, TypeHistorySync} {
		assert.True(t, typ.Valid(), typ)
	}
	assert.False(t, BatchType("").Valid())
	assert.False(t, BatchType("NOTIFY").Valid())

	assert.Equal(t, "history-sync", TypeHistorySync.metricField())
	assert.Equal(t, "other", BatchType("replace").metricField())
	assert.Equal(t, "other", BatchType("").metricField())
}

func TestEventBatch_IsolatedFromCaller(t *testing.T) {
	t.Parallel()
	p := payload("req-1", "first", "second")
	settings := map[string]string{"webhook": "https://example.test"}

	b := newEventBatch(p, settings, testclock.TestRecentTimeUTC)
	assert.Equal(t, testclock.TestRecentTimeUTC, b.SubmittedAt)
	assert.Equal(t, 2, b.Len())
	assert.Equal(t, TypeNotify, b.Type())
	assert.Equal(t, "req-1", b.CorrelationID())
	assert.Equal(t, settings, b.Settings())

	// The submitter reusing its buffers does not reach the batch.
	p.Messages[0][0] = 'F'
	p.Messages[1] = Message("replaced")
	assert.Equal(t, []Message{Message("first"), Message("second")}, b.Payload().Messages)

	// Neither does a handler mutating what it was given.
	got := b.Payload()
	got.Messages[0][0] = 'X'
	got.Messages = got.Messages[:1]
	assert.Equal(t, []Message{Message("first"), Message("second")}, b.Payload().Messages)
}
