package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ItsKevinRafaell/cctv-ai-worker/internal/domain/port"
)

func newTestReporter(url string, retries int) *Reporter {
	return NewReporter(ReporterConfig{
		BaseURL:    url,
		Token:      "secret",
		Timeout:    time.Second,
		MaxRetries: retries,
		BackoffMin: time.Millisecond,
		BackoffMax: 4 * time.Millisecond,
	}, zap.NewNop())
}

func TestSendSuccess(t *testing.T) {
	var got reportPayload
	var token string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/report-anomaly", r.URL.Path)
		token = r.Header.Get("X-Worker-Token")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ok := newTestReporter(srv.URL, 3).Send(context.Background(), port.Report{
		CameraID:    7,
		AnomalyType: port.AnomalyTypeModel,
		Confidence:  0.812345678,
		ClipURL:     "http://files/clip.mp4",
	})

	assert.True(t, ok)
	assert.Equal(t, "secret", token)
	assert.Equal(t, reportPayload{
		CameraID:     7,
		AnomalyType:  "model_detected",
		Confidence:   0.8123,
		VideoClipURL: "http://files/clip.mp4",
	}, got)
}

func TestSendRetriesUpToMax(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ok := newTestReporter(srv.URL, 3).Send(context.Background(), port.Report{CameraID: 1, AnomalyType: port.AnomalyTypeModel})

	assert.False(t, ok)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSendRecoversAfterFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	assert.True(t, newTestReporter(srv.URL, 3).Send(context.Background(), port.Report{CameraID: 1}))
	assert.Equal(t, int32(2), calls.Load())
}

func TestSendNon200IsFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	assert.False(t, newTestReporter(srv.URL, 2).Send(context.Background(), port.Report{CameraID: 1}))
	assert.Equal(t, int32(2), calls.Load())
}

func TestSendTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	assert.False(t, newTestReporter(url, 3).Send(context.Background(), port.Report{CameraID: 1}))
}

func TestSendCancelledContext(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, newTestReporter(srv.URL, 3).Send(ctx, port.Report{CameraID: 1}))
	assert.LessOrEqual(t, calls.Load(), int32(1))
}

func TestPolicyDelays(t *testing.T) {
	r := NewReporter(ReporterConfig{MaxRetries: 4, BackoffMin: 2 * time.Second, BackoffMax: 5 * time.Second}, zap.NewNop())
	b := r.policy(context.Background())
	b.Reset()
	assert.Equal(t, 2*time.Second, b.NextBackOff())
	assert.Equal(t, 4*time.Second, b.NextBackOff())
	assert.Equal(t, 5*time.Second, b.NextBackOff())
	assert.Equal(t, backoff.Stop, b.NextBackOff())
}

func TestRoundConfidence(t *testing.T) {
	assert.Equal(t, 0.99, roundConfidence(0.99))
	assert.Equal(t, 0.1235, roundConfidence(0.12346))
	assert.Equal(t, 0.0, roundConfidence(0.00001))
}
