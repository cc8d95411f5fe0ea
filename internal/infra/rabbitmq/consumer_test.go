package rabbitmq

import (
	"context"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ItsKevinRafaell/cctv-ai-worker/internal/domain/entity"
)

func TestResolveAction(t *testing.T) {
	malformed := entity.Failed(entity.FailureMalformed, entity.ErrMalformedTask)
	processing := entity.Failed(entity.FailureProcessing, errors.New("decode failed"))

	assert.Equal(t, actionAck, resolveAction(entity.Succeeded(entity.Decision{}), false))
	assert.Equal(t, actionAck, resolveAction(entity.Skipped("insufficient_frames"), true))
	assert.Equal(t, actionRequeue, resolveAction(malformed, false))
	assert.Equal(t, actionDeadLetter, resolveAction(malformed, true))
	assert.Equal(t, actionRequeue, resolveAction(processing, true))
}

func TestOutcomeLabel(t *testing.T) {
	assert.Equal(t, "clip_unavailable", outcomeLabel(entity.Skipped("clip_unavailable")))
	assert.Equal(t, "processing", outcomeLabel(entity.Failed(entity.FailureProcessing, errors.New("some long error text"))))
}

func TestSafeHandleRecoversPanic(t *testing.T) {
	handler := func(context.Context, string, []byte) entity.Outcome {
		panic("frame buffer shorter than header")
	}

	out := safeHandle(context.Background(), handler, "d-1", []byte(`{}`), zap.NewNop())

	assert.Equal(t, entity.OutcomeFailed, out.Status)
	assert.Equal(t, entity.FailureProcessing, out.Kind)
	assert.Equal(t, actionRequeue, resolveAction(out, true))
}

func TestSafeHandlePassesOutcomeThrough(t *testing.T) {
	handler := func(_ context.Context, id string, _ []byte) entity.Outcome {
		return entity.Skipped("seen_" + id)
	}

	out := safeHandle(context.Background(), handler, "d-2", nil, zap.NewNop())

	assert.Equal(t, entity.OutcomeSkipped, out.Status)
	assert.Equal(t, "seen_d-2", out.Reason)
}

func TestHeaderCarrierContinuesTrace(t *testing.T) {
	headers := amqp.Table{
		"traceparent": []byte("00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"),
		"x-death":     []interface{}{},
	}

	ctx := propagation.TraceContext{}.Extract(context.Background(), headerCarrier(headers))

	sc := trace.SpanContextFromContext(ctx)
	require.True(t, sc.IsValid())
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", sc.TraceID().String())
	assert.True(t, sc.IsSampled())
	assert.Empty(t, headerCarrier(headers).Get("x-death"))
	assert.ElementsMatch(t, []string{"traceparent", "x-death"}, headerCarrier(headers).Keys())
}

func TestHeaderCarrierWithoutHeaders(t *testing.T) {
	ctx := propagation.TraceContext{}.Extract(context.Background(), headerCarrier(nil))

	assert.False(t, trace.SpanContextFromContext(ctx).IsValid())
}

func TestBackoffDelay(t *testing.T) {
	base := time.Second
	assert.Equal(t, time.Second, backoffDelay(base, 0))
	assert.Equal(t, time.Second, backoffDelay(base, 1))
	assert.Equal(t, 2*time.Second, backoffDelay(base, 2))
	assert.Equal(t, 8*time.Second, backoffDelay(base, 4))
	assert.Equal(t, 60*time.Second, backoffDelay(base, 10))
	assert.Equal(t, 60*time.Second, backoffDelay(base, 80))
}

func TestAttemptFromDelivery(t *testing.T) {
	assert.Equal(t, 1, attemptFromDelivery(amqp.Delivery{}))
	assert.Equal(t, 2, attemptFromDelivery(amqp.Delivery{Redelivered: true}))
	assert.Equal(t, 4, attemptFromDelivery(amqp.Delivery{
		Redelivered: true,
		Headers:     amqp.Table{"x-death": []interface{}{amqp.Table{}, amqp.Table{}, amqp.Table{}}},
	}))
}

func TestConnectRetriesThenSucceeds(t *testing.T) {
	calls := 0
	want := &amqp.Connection{}
	dial := func(string) (*amqp.Connection, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("connection refused")
		}
		return want, nil
	}

	conn, err := connectWith(context.Background(), dial, "amqp://x", 5, time.Millisecond, zap.NewNop())
	require.NoError(t, err)
	assert.Same(t, want, conn)
	assert.Equal(t, 3, calls)
}

func TestConnectGivesUp(t *testing.T) {
	calls := 0
	dial := func(string) (*amqp.Connection, error) {
		calls++
		return nil, errors.New("connection refused")
	}

	_, err := connectWith(context.Background(), dial, "amqp://x", 4, time.Millisecond, zap.NewNop())
	require.Error(t, err)
	assert.Equal(t, 4, calls)
	assert.Contains(t, err.Error(), "after 4 attempts")
}
