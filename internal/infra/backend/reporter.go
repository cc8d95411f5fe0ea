package backend

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/ItsKevinRafaell/cctv-ai-worker/internal/domain/port"
)

const reportPath = "/api/report-anomaly"

type ReporterConfig struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	MaxRetries int
	BackoffMin time.Duration
	BackoffMax time.Duration
}

// Reporter posts verdicts to the backend API.
type Reporter struct {
	client     *resty.Client
	maxRetries int
	backoffMin time.Duration
	backoffMax time.Duration
	logger     *zap.Logger
}

func NewReporter(cfg ReporterConfig, logger *zap.Logger) *Reporter {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")
	if cfg.Token != "" {
		client.SetHeader("X-Worker-Token", cfg.Token)
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Reporter{
		client:     client,
		maxRetries: maxRetries,
		backoffMin: cfg.BackoffMin,
		backoffMax: cfg.BackoffMax,
		logger:     logger.With(zap.String("component", "reporter")),
	}
}

type reportPayload struct {
	CameraID     int     `json:"camera_id"`
	AnomalyType  string  `json:"anomaly_type"`
	Confidence   float64 `json:"confidence"`
	VideoClipURL string  `json:"video_clip_url"`
}

func roundConfidence(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

// Send makes up to maxRetries attempts, sleeping backoffMin, 2x, 4x ...
// (capped at backoffMax) between them. It reports false once attempts are
// exhausted or ctx is done.
func (r *Reporter) Send(ctx context.Context, rep port.Report) bool {
	payload := reportPayload{
		CameraID:     rep.CameraID,
		AnomalyType:  rep.AnomalyType,
		Confidence:   roundConfidence(rep.Confidence),
		VideoClipURL: rep.ClipURL,
	}

	attempt := 0
	op := func() error {
		attempt++
		res, err := r.client.R().
			SetContext(ctx).
			SetBody(payload).
			Post(reportPath)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return fmt.Errorf("post report: %w", err)
		}
		if res.StatusCode() != http.StatusOK {
			return fmt.Errorf("backend returned %d: %s", res.StatusCode(), truncate(res.String(), 200))
		}
		return nil
	}

	notify := func(err error, wait time.Duration) {
		r.logger.Warn("report attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", r.maxRetries),
			zap.Duration("retry_in", wait),
			zap.Error(err),
		)
	}

	err := backoff.RetryNotify(op, r.policy(ctx), notify)
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		r.logger.Error("report failed",
			zap.Int("camera_id", rep.CameraID),
			zap.String("anomaly_type", rep.AnomalyType),
			zap.Int("attempts", attempt),
			zap.Error(err),
		)
		return false
	}

	r.logger.Info("report sent",
		zap.Int("camera_id", rep.CameraID),
		zap.String("anomaly_type", rep.AnomalyType),
		zap.Float64("confidence", payload.Confidence),
		zap.Int("attempts", attempt),
	)
	return true
}

func (r *Reporter) policy(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = r.backoffMin
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxInterval = r.backoffMax
	exp.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(r.maxRetries-1)), ctx)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
