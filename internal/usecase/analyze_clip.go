package usecase

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/ItsKevinRafaell/cctv-ai-worker/internal/domain/entity"
	"github.com/ItsKevinRafaell/cctv-ai-worker/internal/domain/port"
	"github.com/ItsKevinRafaell/cctv-ai-worker/internal/inference"
	"github.com/ItsKevinRafaell/cctv-ai-worker/internal/infra/metrics"
)

const (
	ReasonClipUnavailable    = "clip_unavailable"
	ReasonInsufficientFrames = "insufficient_frames"

	forcedConfidence = 0.99
	forcedMarker     = "anomaly"
)

// ClipSource turns a task into a readable local clip.
type ClipSource interface {
	Resolve(ctx context.Context, task entity.Task) (*ResolvedClip, error)
}

type AnalyzeClipConfig struct {
	// Settings is the inference snapshot; the anomaly class index in it is
	// final by the time the use case is built.
	Settings               entity.InferenceSettings
	StreakOverride         bool
	ForceAnomalyByFilename bool
	ReportNormalAsInfo     bool
	DebugPred              bool
}

type AnalyzeClipUseCase struct {
	clips      ClipSource
	frames     port.FrameReader
	sampler    inference.Sampler
	classifier port.Classifier
	recorder   port.DebugRecorder
	reporter   port.ReportSink
	aggregator inference.Aggregator
	rule       inference.DecisionRule
	streak     inference.StreakPolicy
	cfg        AnalyzeClipConfig
	logger     *zap.Logger
}

func NewAnalyzeClipUseCase(
	clips ClipSource,
	frames port.FrameReader,
	sampler inference.Sampler,
	classifier port.Classifier,
	recorder port.DebugRecorder,
	reporter port.ReportSink,
	logger *zap.Logger,
	cfg AnalyzeClipConfig,
) (*AnalyzeClipUseCase, error) {
	agg, err := inference.ParseAggregator(cfg.Settings.Aggregator)
	if err != nil {
		return nil, err
	}
	cfg.Settings.Mode = sampler.Mode()
	return &AnalyzeClipUseCase{
		clips:      clips,
		frames:     frames,
		sampler:    sampler,
		classifier: classifier,
		recorder:   recorder,
		reporter:   reporter,
		aggregator: agg,
		rule:       inference.DecisionRule{Threshold: cfg.Settings.Threshold, MinGap: cfg.Settings.MinGap},
		streak:     inference.StreakPolicy{Required: cfg.Settings.ConsecutiveWindows, Override: cfg.StreakOverride},
		cfg:        cfg,
		logger:     logger,
	}, nil
}

// Execute analyzes one raw task and reports how it ended. It never returns
// an error; the consumer acts on the Outcome alone.
func (uc *AnalyzeClipUseCase) Execute(ctx context.Context, deliveryID string, raw []byte) entity.Outcome {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "AnalyzeClipUseCase.Execute")
	defer span.End()

	totalTimer := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues("total").Observe(time.Since(totalTimer).Seconds())
	}()

	task, err := entity.DecodeTask(raw)
	if err != nil {
		uc.logger.Error("rejecting malformed task",
			zap.String("delivery_id", deliveryID),
			zap.Error(err),
			zap.ByteString("body", raw),
		)
		span.SetStatus(codes.Error, "malformed task")
		return entity.Failed(entity.FailureMalformed, err)
	}

	span.SetAttributes(
		attribute.String("delivery.id", deliveryID),
		attribute.Int("task.camera_id", task.Camera()),
	)
	log := uc.logger.With(
		zap.String("delivery_id", deliveryID),
		zap.Int("camera_id", task.Camera()),
	)

	resolveStart := time.Now()
	ctxRes, spanRes := tracer.Start(ctx, "resolve_clip")
	clip, err := uc.clips.Resolve(ctxRes, task)
	spanRes.End()
	if err != nil {
		if errors.Is(err, ErrClipUnavailable) {
			log.Warn("skipping task, clip unavailable", zap.Error(err))
			return entity.Skipped(ReasonClipUnavailable)
		}
		log.Error("clip resolution failed", zap.Error(err))
		return entity.Failed(entity.FailureProcessing, fmt.Errorf("resolve clip: %w", err))
	}
	defer clip.Release()
	metrics.StageDuration.WithLabelValues("resolve").Observe(time.Since(resolveStart).Seconds())

	name := task.Basename()
	if name == "" {
		name = filepath.Base(clip.Path)
	}
	span.SetAttributes(attribute.String("task.file", name))
	log = log.With(zap.String("file", name))

	if uc.cfg.ForceAnomalyByFilename && strings.Contains(strings.ToLower(name), forcedMarker) {
		log.Warn("anomaly forced by filename")
		d := entity.Decision{
			PAnomaly:  forcedConfidence,
			PNormal:   1 - forcedConfidence,
			Gap:       2*forcedConfidence - 1,
			IsAnomaly: true,
		}
		uc.report(ctx, task, port.AnomalyTypeFilename, forcedConfidence, log)
		return entity.Succeeded(d)
	}

	probeStart := time.Now()
	ctxProbe, spanProbe := tracer.Start(ctx, "probe")
	meta, err := uc.frames.Probe(ctxProbe, clip.Path)
	spanProbe.End()
	if err != nil {
		log.Error("probe failed", zap.Error(err))
		return entity.Failed(entity.FailureProcessing, fmt.Errorf("probe: %w", err))
	}
	metrics.StageDuration.WithLabelValues("probe").Observe(time.Since(probeStart).Seconds())
	log.Info("analyzing clip",
		zap.String("path", clip.Path),
		zap.String("mode", uc.cfg.Settings.Mode),
		zap.Float64("threshold", uc.cfg.Settings.Threshold),
		zap.Int("total_frames", meta.TotalFrames),
		zap.Float64("fps", meta.FPS),
		zap.Float64("duration_sec", meta.DurationSec),
	)

	sampleStart := time.Now()
	ctxSample, spanSample := tracer.Start(ctx, "sample_and_classify")
	samples, preds, rep, err := uc.scoreWindows(ctxSample, clip.Path, *meta, log)
	spanSample.SetAttributes(attribute.Int("windows", len(samples)))
	spanSample.End()
	if err != nil {
		log.Error("inference failed", zap.Error(err))
		span.SetStatus(codes.Error, err.Error())
		return entity.Failed(entity.FailureProcessing, err)
	}
	metrics.StageDuration.WithLabelValues("sample").Observe(time.Since(sampleStart).Seconds())

	if rep.FeaturesAdjusted {
		metrics.FeaturesAdjustedTotal.Inc()
		log.Warn("feature vectors were padded or truncated to the model dimension")
	}

	if len(samples) == 0 {
		log.Info("no decision, clip too short",
			zap.Int("frames_read", rep.FramesRead),
			zap.String("note", rep.Note),
		)
		return entity.Skipped(ReasonInsufficientFrames)
	}

	d, details, err := uc.decide(samples, preds, rep)
	if err != nil {
		return entity.Failed(entity.FailureProcessing, err)
	}
	metrics.DecisionsTotal.WithLabelValues(d.Verdict()).Inc()
	log.Info("decision",
		zap.Float64("p_anom", d.PAnomaly),
		zap.Float64("p_norm", d.PNormal),
		zap.Float64("gap", d.Gap),
		zap.String("verdict", d.Verdict()),
		zap.String("mode", uc.cfg.Settings.Mode),
		zap.String("aggregator", string(uc.aggregator)),
		zap.Float64("threshold", uc.cfg.Settings.Threshold),
		zap.Float64("min_gap", uc.cfg.Settings.MinGap),
		zap.Int("windows", len(samples)),
	)

	recordStart := time.Now()
	ctxRec, spanRec := tracer.Start(ctx, "debug_record")
	uc.recorder.Record(ctxRec,
		entity.NewDebugRecord(task, name, clip.Path, *meta, uc.cfg.Settings, d, details),
		clip.Path)
	spanRec.End()
	metrics.StageDuration.WithLabelValues("record").Observe(time.Since(recordStart).Seconds())

	switch {
	case d.IsAnomaly:
		uc.report(ctx, task, port.AnomalyTypeModel, d.PAnomaly, log)
	case uc.cfg.ReportNormalAsInfo:
		uc.report(ctx, task, port.AnomalyTypeNormal, 1-d.PAnomaly, log)
	default:
		log.Debug("normal clip, nothing to report")
	}

	return entity.Succeeded(d)
}

// scoreWindows runs the sampler and classifies every window it emits.
// preds holds the raw classifier rows in window order.
func (uc *AnalyzeClipUseCase) scoreWindows(ctx context.Context, path string, meta entity.VideoMeta, log *zap.Logger) ([]entity.ScoreSample, [][]float32, *inference.SampleReport, error) {
	var samples []entity.ScoreSample
	var preds [][]float32
	idx := uc.cfg.Settings.AnomalyClassIndex

	rep, err := uc.sampler.Sample(ctx, path, meta, func(w inference.Window) error {
		probs, err := uc.classifier.Infer(ctx, w.Sequence)
		if err != nil {
			return fmt.Errorf("classify window %d: %w", w.Index, err)
		}
		s, err := inference.ScoreFromProbs(probs, idx, w.Index)
		if err != nil {
			return err
		}
		if uc.cfg.DebugPred {
			log.Debug("window scored",
				zap.Int("window_index", w.Index),
				zap.Any("probs", probs),
				zap.Float64("p_anom", s.PAnomaly),
			)
		}
		metrics.WindowsScoredTotal.WithLabelValues(uc.sampler.Mode()).Inc()
		samples = append(samples, s)
		preds = append(preds, probs)
		return nil
	})
	if err != nil {
		return nil, nil, rep, err
	}
	return samples, preds, rep, nil
}

// decide aggregates, applies the alert rule and streak policy, and builds
// the provenance stored with the debug record.
func (uc *AnalyzeClipUseCase) decide(samples []entity.ScoreSample, preds [][]float32, rep *inference.SampleReport) (entity.Decision, entity.Provenance, error) {
	details := entity.Provenance{
		FeaturesAdjusted: rep.FeaturesAdjusted,
		Note:             rep.Note,
	}

	if uc.sampler.Mode() == inference.ModeUniform {
		agg, err := inference.Aggregate(inference.AggregateMean, samples)
		if err != nil {
			return entity.Decision{}, details, err
		}
		details.SampledIndices = rep.SampledIndices
		details.PredVector = preds[0]
		return uc.rule.Decide(agg), details, nil
	}

	agg, err := inference.Aggregate(uc.aggregator, samples)
	if err != nil {
		return entity.Decision{}, details, err
	}
	d := uc.rule.Decide(agg)

	details.Windows = make([][2]float64, len(samples))
	for i, s := range samples {
		details.Windows[i] = [2]float64{s.PAnomaly, s.PNormal}
	}
	details.Indices = rep.WindowIndices
	details.Aggregated = &entity.AggregatedDetail{
		Mode:  string(uc.aggregator),
		PAnom: agg.PAnomaly,
		PNorm: agg.PNormal,
	}

	if uc.streak.Enabled() {
		found := inference.HasStreak(samples, uc.rule.Threshold, uc.streak.Required)
		var applied bool
		d, applied = uc.streak.Apply(d, found)
		details.Streak = &entity.StreakDetail{
			Required: uc.streak.Required,
			Found:    found,
			Applied:  applied,
		}
	}
	return d, details, nil
}

func (uc *AnalyzeClipUseCase) report(ctx context.Context, task entity.Task, anomalyType string, confidence float64, log *zap.Logger) {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "report")
	defer span.End()

	start := time.Now()
	ok := uc.reporter.Send(ctx, port.Report{
		CameraID:    task.Camera(),
		AnomalyType: anomalyType,
		Confidence:  confidence,
		ClipURL:     task.VideoURL,
	})
	metrics.StageDuration.WithLabelValues("report").Observe(time.Since(start).Seconds())

	result := "sent"
	if !ok {
		result = "failed"
		span.SetStatus(codes.Error, "report failed")
		log.Error("report not delivered, task still acknowledged", zap.String("anomaly_type", anomalyType))
	}
	metrics.ReportsTotal.WithLabelValues(anomalyType, result).Inc()
}
