package debugrecord

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/ItsKevinRafaell/cctv-ai-worker/internal/domain/entity"
	"github.com/ItsKevinRafaell/cctv-ai-worker/internal/domain/port"
)

const (
	jsonName    = "debug.json"
	overlayName = "overlay.mp4"
)

type Config struct {
	Dir         string
	SaveJSON    bool
	SaveOverlay bool
	// Bucket receives copies of the artifacts when storage is configured.
	Bucket string
}

// Recorder writes decision artifacts under Dir/<clip stem>/ and mirrors them
// to object storage and the database when those are configured. Every
// failure is logged and swallowed.
type Recorder struct {
	cfg      Config
	renderer port.OverlayRenderer
	storage  port.ObjectStorage
	repo     port.RecordRepository
	logger   *zap.Logger
}

// NewRecorder accepts nil storage and repo.
func NewRecorder(cfg Config, renderer port.OverlayRenderer, storage port.ObjectStorage, repo port.RecordRepository, logger *zap.Logger) *Recorder {
	return &Recorder{
		cfg:      cfg,
		renderer: renderer,
		storage:  storage,
		repo:     repo,
		logger:   logger.With(zap.String("component", "debug_recorder")),
	}
}

func (r *Recorder) Record(ctx context.Context, rec entity.DebugRecord, clipPath string) {
	stem := Stem(rec.File)
	log := r.logger.With(zap.String("file", rec.File))

	if r.repo != nil {
		if err := r.repo.Insert(ctx, rec); err != nil {
			log.Warn("failed to store analysis record", zap.Error(err))
		}
	}

	if !r.cfg.SaveJSON && !r.cfg.SaveOverlay {
		return
	}

	dir := filepath.Join(r.cfg.Dir, stem)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Warn("failed to create debug dir", zap.String("dir", dir), zap.Error(err))
		return
	}

	if r.cfg.SaveJSON {
		path := filepath.Join(dir, jsonName)
		if err := writeJSON(path, rec); err != nil {
			log.Warn("failed to write debug record", zap.Error(err))
		} else {
			log.Debug("debug record written", zap.String("path", path))
			r.upload(ctx, stem, path, "application/json", log)
		}
	}

	if r.cfg.SaveOverlay && r.renderer != nil {
		path := filepath.Join(dir, overlayName)
		label := OverlayLabel(rec.Result, rec.Infer.Threshold)
		if err := r.renderer.RenderOverlay(ctx, clipPath, path, label, rec.Result.Decision == "anomaly"); err != nil {
			log.Warn("failed to render overlay", zap.Error(err))
		} else {
			log.Debug("overlay written", zap.String("path", path))
			r.upload(ctx, stem, path, "video/mp4", log)
		}
	}
}

func (r *Recorder) upload(ctx context.Context, stem, path, contentType string, log *zap.Logger) {
	if r.storage == nil || r.cfg.Bucket == "" {
		return
	}
	key := stem + "/" + filepath.Base(path)
	if err := r.storage.UploadFile(ctx, r.cfg.Bucket, key, path, contentType); err != nil {
		log.Warn("failed to upload debug artifact", zap.String("key", key), zap.Error(err))
	}
}

func writeJSON(path string, rec entity.DebugRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Stem is the file name without directory and extension.
func Stem(file string) string {
	base := filepath.Base(file)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" || stem == "." || stem == string(filepath.Separator) {
		return "clip"
	}
	return stem
}

// OverlayLabel is the banner text burned into the overlay video.
func OverlayLabel(res entity.RecordResult, threshold float64) string {
	verdict := "Normal"
	if res.Decision == "anomaly" {
		verdict = "ANOMALY"
	}
	return fmt.Sprintf("%s | p=%.2f thr=%.2f", verdict, res.PAnom, threshold)
}
