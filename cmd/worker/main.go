package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ItsKevinRafaell/cctv-ai-worker/internal/domain/port"
	"github.com/ItsKevinRafaell/cctv-ai-worker/internal/inference"
	"github.com/ItsKevinRafaell/cctv-ai-worker/internal/infra/backend"
	"github.com/ItsKevinRafaell/cctv-ai-worker/internal/infra/config"
	"github.com/ItsKevinRafaell/cctv-ai-worker/internal/infra/debugrecord"
	"github.com/ItsKevinRafaell/cctv-ai-worker/internal/infra/ffmpeg"
	"github.com/ItsKevinRafaell/cctv-ai-worker/internal/infra/metrics"
	miniostorage "github.com/ItsKevinRafaell/cctv-ai-worker/internal/infra/minio"
	"github.com/ItsKevinRafaell/cctv-ai-worker/internal/infra/onnx"
	"github.com/ItsKevinRafaell/cctv-ai-worker/internal/infra/postgres"
	"github.com/ItsKevinRafaell/cctv-ai-worker/internal/infra/rabbitmq"
	"github.com/ItsKevinRafaell/cctv-ai-worker/internal/infra/tracing"
	"github.com/ItsKevinRafaell/cctv-ai-worker/internal/usecase"
	"github.com/ItsKevinRafaell/cctv-ai-worker/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	log.Info("starting cctv-ai-worker",
		zap.String("mode", cfg.InferMode),
		zap.String("queue", cfg.RabbitMQQueue),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	if cfg.JaegerEndpoint != "" {
		tp, err := tracing.Init(ctx, tracing.Config{
			Endpoint:    cfg.JaegerEndpoint,
			SampleRatio: cfg.TraceSampleRatio,
			Queue:       cfg.RabbitMQQueue,
			InferMode:   cfg.InferMode,
		})
		if err != nil {
			log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
		} else {
			defer tp.Shutdown(context.Background())
		}
	}

	// Feature pipeline and model
	scaler, err := inference.LoadScaler(cfg.FeatureScalerPath)
	if err != nil {
		log.Warn("no feature scaler, using raw features", zap.String("path", cfg.FeatureScalerPath), zap.Error(err))
		scaler = nil
	}
	features := inference.NewFeaturePipeline(scaler, cfg.FeatureDim)

	meta, err := onnx.LoadMetadata(cfg.ModelMetadataPath)
	fatalOnErr(err, "load model metadata")
	fatalOnErr(meta.CheckShape(cfg.SequenceLength, features.Dim()), "check model shape")

	configured, explicit := cfg.ConfiguredClassIndex()
	anomalyIndex, fromMeta, err := onnx.ResolveAnomalyIndex(meta, configured, explicit)
	fatalOnErr(err, "resolve anomaly class index")
	if !fromMeta {
		log.Warn("anomaly class index not confirmed by model metadata",
			zap.Int("anomaly_class_index", anomalyIndex),
			zap.String("metadata_path", cfg.ModelMetadataPath),
		)
	}

	inputName, outputName := cfg.OnnxInputName, cfg.OnnxOutputName
	numClasses := 0
	if meta != nil {
		if meta.InputName != "" {
			inputName = meta.InputName
		}
		if meta.OutputName != "" {
			outputName = meta.OutputName
		}
		numClasses = len(meta.Labels)
	}

	classifier, err := onnx.NewClassifier(onnx.ClassifierConfig{
		ModelPath:      cfg.ModelPath,
		LibraryPath:    cfg.OnnxRuntimeLibPath,
		InputName:      inputName,
		OutputName:     outputName,
		SequenceLength: cfg.SequenceLength,
		FeatureDim:     features.Dim(),
		NumClasses:     numClasses,
	}, log)
	fatalOnErr(err, "load classifier")
	defer classifier.Close()

	// Video tooling
	executor, err := ffmpeg.NewExecutor(ffmpeg.ExecutorConfig{
		FFmpegPath:  cfg.FFmpegPath,
		FFprobePath: cfg.FFprobePath,
		Width:       cfg.FrameWidth,
		Height:      cfg.FrameHeight,
		RGB:         cfg.ConvertBGR2RGB,
	}, log)
	fatalOnErr(err, "init ffmpeg")

	sampler, err := inference.NewSampler(cfg.InferMode, executor, features, cfg.SequenceLength, cfg.WindowStride)
	fatalOnErr(err, "create sampler")

	// Optional object storage
	var storage port.ObjectStorage
	if cfg.ObjectStorageEnabled() {
		s, err := miniostorage.NewStorage(miniostorage.StorageConfig{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			UseSSL:    cfg.MinIOUseSSL,
		})
		fatalOnErr(err, "create minio storage")
		if err := s.EnsureBuckets(ctx, cfg.MinIODebugBucket); err != nil {
			log.Warn("could not ensure debug bucket", zap.Error(err))
		}
		storage = s
	}

	// Optional analysis record store
	var repo port.RecordRepository
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		fatalOnErr(err, "connect to postgres")
		defer pool.Close()

		if err := postgres.RunMigrations(ctx, pool); err != nil {
			log.Warn("migration warning, analysis records disabled", zap.Error(err))
		} else {
			repo = postgres.NewRecordRepository(pool)
		}
	}

	recorder := debugrecord.NewRecorder(debugrecord.Config{
		Dir:         cfg.DebugDir,
		SaveJSON:    cfg.DebugSaveJSON,
		SaveOverlay: cfg.DebugSaveOverlay,
		Bucket:      cfg.MinIODebugBucket,
	}, executor, storage, repo, log)

	reporter := backend.NewReporter(backend.ReporterConfig{
		BaseURL:    cfg.BackendBaseURL,
		Token:      cfg.WorkerSharedToken,
		Timeout:    cfg.ReportTimeout,
		MaxRetries: cfg.ReportMaxRetries,
		BackoffMin: cfg.ReportBackoffBase,
		BackoffMax: cfg.ReportBackoffMax,
	}, log)

	clips := usecase.NewClipResolver(usecase.ClipResolverConfig{
		DownloadDir:     cfg.DownloadDir,
		DownloadTimeout: cfg.DownloadTimeout,
	}, storage, log)

	uc, err := usecase.NewAnalyzeClipUseCase(
		clips, executor, sampler, classifier, recorder, reporter,
		log,
		usecase.AnalyzeClipConfig{
			Settings:               cfg.InferenceSettings(anomalyIndex),
			StreakOverride:         cfg.StreakOverride,
			ForceAnomalyByFilename: cfg.ForceAnomalyByFilename,
			ReportNormalAsInfo:     cfg.ReportNormalAsInfo,
			DebugPred:              cfg.DebugPred,
		},
	)
	fatalOnErr(err, "create use case")

	// Broker
	conn, err := rabbitmq.Connect(ctx, cfg.RabbitMQURL, cfg.RabbitMQConnectRetries, cfg.RabbitMQConnectDelay, log)
	fatalOnErr(err, "connect to rabbitmq")
	defer conn.Close()

	var dlq port.DLQPublisher
	if cfg.RabbitMQDLQ != "" {
		pub, err := rabbitmq.NewDLQPublisher(conn, cfg.RabbitMQDLQ)
		fatalOnErr(err, "create dlq publisher")
		defer pub.Close()
		dlq = pub
	}

	consumer, err := rabbitmq.NewConsumer(conn, rabbitmq.ConsumerConfig{
		Queue:       cfg.RabbitMQQueue,
		Exchange:    cfg.RabbitMQExchange,
		BaseDelayMs: cfg.RetryBaseDelayMs,
	}, uc.Execute, dlq, log)
	fatalOnErr(err, "create consumer")

	metricsSrv := metrics.StartMetricsServer(ctx, cfg.MetricsPort, consumer.Ready, log)

	log.Info("cctv-ai-worker started, consuming tasks",
		zap.Int("anomaly_class_index", anomalyIndex),
		zap.Float64("threshold", cfg.AnomalyThreshold),
		zap.Int("feature_dim", features.Dim()),
	)

	if err := consumer.Start(ctx); err != nil {
		log.Error("consumer error", zap.Error(err))
	}

	// Shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Shutdown(shutdownCtx)

	consumer.Close()
	log.Info("cctv-ai-worker stopped")
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %s: %v\n", msg, err)
		os.Exit(1)
	}
}
