package workerpresentation

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	apporder "github.com/Zhima-Mochi/cafeshop/internal/application/order"
	domorder "github.com/Zhima-Mochi/cafeshop/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/cafeshop/internal/domain/outbox"
	"github.com/Zhima-Mochi/cafeshop/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/cafeshop/internal/observability"
	"github.com/Zhima-Mochi/cafeshop/internal/observability/logctx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observedLogger() (observability.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zaplogger.Wrap(zap.New(core)), logs
}

func TestWithJobContext(t *testing.T) {
	base, logs := observedLogger()
	ctx := WithJobContext(context.Background(), base, "", map[string]string{
		"event": "order.placed",
		"empty": "",
	})

	logctx.From(ctx).Info("hello")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "order.placed", fields["event"])
	assert.NotEmpty(t, fields["job_id"])
	assert.NotContains(t, fields, "empty")
	assert.NotContains(t, fields, "trace_id")
}

func TestEventMiddleware_LogsOutcome(t *testing.T) {
	base, logs := observedLogger()
	mw := EventMiddleware(base, nil)

	boom := errors.New("boom")
	h := mw("order.placed", func(ctx context.Context, e domoutbox.Event) error {
		logctx.From(ctx).Info("inside")
		return boom
	})

	err := h(context.Background(), domorder.OrderPlacedEvent{OrderID: "order-1"})
	assert.ErrorIs(t, err, boom)

	inside := logs.FilterMessage("inside").All()
	require.Len(t, inside, 1)
	assert.Equal(t, "order-1", inside[0].ContextMap()["event_key"])

	done := logs.FilterMessage("event_handled").All()
	require.Len(t, done, 1)
	assert.Equal(t, "error", done[0].ContextMap()["outcome"])
	assert.Equal(t, "boom", done[0].ContextMap()["error"])
}

type fakeSweeper struct {
	calls atomic.Int32
	runID atomic.Value
	err   error
}

func (f *fakeSweeper) Execute(_ context.Context, in apporder.SweepInput) (*apporder.SweepResult, error) {
	f.calls.Add(1)
	f.runID.Store(in.RunID)
	if f.err != nil {
		return nil, f.err
	}
	return &apporder.SweepResult{Promoted: 2}, nil
}

func TestSweepScheduler_RunOnce(t *testing.T) {
	s := &fakeSweeper{}
	res, err := NewSweepScheduler(s, time.Minute, nil).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Promoted)
	assert.NotEmpty(t, s.runID.Load())
}

func TestSweepScheduler_RunTicksUntilCanceled(t *testing.T) {
	s := &fakeSweeper{err: errors.New("db down")}
	sched := NewSweepScheduler(s, 5*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()

	assert.Eventually(t, func() bool { return s.calls.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
