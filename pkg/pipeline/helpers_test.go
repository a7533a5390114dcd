package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go.chromium.org/luci/common/clock"
	"go.chromium.org/luci/common/clock/testclock"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/common/logging/memlogger"
	"go.chromium.org/luci/common/tsmon"

	"github.com/ib-77/batchpipe/pkg/rop"
)

const (
	waitFor = 5 * time.Second
	tick    = 5 * time.Millisecond
)

// testContext installs a test clock whose timers fire as soon as they are
// armed, an in-memory logger and an in-memory tsmon store.
func testContext() (context.Context, testclock.TestClock) {
	ctx, tc := testclock.UseTime(context.Background(), testclock.TestRecentTimeUTC)
	tc.SetTimerCallback(func(d time.Duration, _ clock.Timer) { tc.Add(d) })
	ctx = memlogger.Use(ctx)
	ctx, _ = tsmon.WithDummyInMemory(ctx)
	return ctx, tc
}

func logs(ctx context.Context) *memlogger.MemLogger {
	return logging.Get(ctx).(*memlogger.MemLogger)
}

func countLogs(ctx context.Context, lvl logging.Level, prefix string) int {
	n := 0
	for _, e := range logs(ctx).Messages() {
		if e.Level == lvl && strings.HasPrefix(e.Msg, prefix) {
			n++
		}
	}
	return n
}

func payload(id string, msgs ...string) Payload {
	p := Payload{Type: TypeNotify, CorrelationID: id}
	for _, m := range msgs {
		p.Messages = append(p.Messages, Message(m))
	}
	return p
}

func numbered(i int) Payload {
	return payload(fmt.Sprintf("req-%d", i), fmt.Sprintf(`{"n":%d}`, i))
}

// recorder is an Observer remembering dispatch and completion order.
type recorder struct {
	mu         sync.Mutex
	dispatched []string
	completed  []string
	results    map[string]rop.Result[Completion]
}

func newRecorder() *recorder {
	return &recorder{results: map[string]rop.Result[Completion]{}}
}

func (r *recorder) Dispatched(_ context.Context, b EventBatch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dispatched = append(r.dispatched, b.CorrelationID())
}

func (r *recorder) Completed(_ context.Context, b EventBatch, res rop.Result[Completion]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, b.CorrelationID())
	r.results[b.CorrelationID()] = res
}

func (r *recorder) completedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.completed)
}

func (r *recorder) result(id string) rop.Result[Completion] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.results[id]
}

func (r *recorder) snapshot() (dispatched, completed []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.dispatched...), append([]string(nil), r.completed...)
}

func (r *recorder) waitCompleted(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return r.completedCount() >= n }, waitFor, tick)
}

func mounted(t *testing.T, ctx context.Context, opts Options, h Handler) *Processor {
	t.Helper()
	p, err := New(opts)
	require.NoError(t, err)
	require.NoError(t, p.Mount(ctx, h))
	t.Cleanup(func() {
		p.Shutdown(ctx)
	})
	return p
}

func succeed(context.Context, Payload, any) error { return nil }
