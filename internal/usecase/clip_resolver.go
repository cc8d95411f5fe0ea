package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ItsKevinRafaell/cctv-ai-worker/internal/domain/entity"
	"github.com/ItsKevinRafaell/cctv-ai-worker/internal/domain/port"
)

// ErrClipUnavailable means the task is well formed but its video cannot be
// reached. Such tasks are skipped, not retried.
var ErrClipUnavailable = errors.New("clip unavailable")

const defaultClipExt = ".mp4"

// ResolvedClip is a readable local copy of a task's video. Release must be
// called once the clip is no longer needed.
type ResolvedClip struct {
	Path       string
	Downloaded bool
	release    func()
}

func (c *ResolvedClip) Release() {
	if c != nil && c.release != nil {
		c.release()
		c.release = nil
	}
}

type ClipResolverConfig struct {
	DownloadDir     string
	DownloadTimeout time.Duration
}

type ClipResolver struct {
	client  *resty.Client
	storage port.ObjectStorage
	dir     string
	logger  *zap.Logger
}

// NewClipResolver accepts a nil storage; s3:// URLs are then unavailable.
func NewClipResolver(cfg ClipResolverConfig, storage port.ObjectStorage, logger *zap.Logger) *ClipResolver {
	return &ClipResolver{
		client:  resty.New().SetTimeout(cfg.DownloadTimeout),
		storage: storage,
		dir:     cfg.DownloadDir,
		logger:  logger.With(zap.String("component", "clip_resolver")),
	}
}

func (r *ClipResolver) Resolve(ctx context.Context, task entity.Task) (*ResolvedClip, error) {
	if task.VideoPath != "" {
		if info, err := os.Stat(task.VideoPath); err == nil && info.Mode().IsRegular() {
			return &ResolvedClip{Path: task.VideoPath}, nil
		}
		if task.VideoURL == "" {
			return nil, fmt.Errorf("%w: %s does not exist", ErrClipUnavailable, task.VideoPath)
		}
	}
	if task.VideoURL == "" {
		return nil, fmt.Errorf("%w: no video source", ErrClipUnavailable)
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create download dir: %v", ErrClipUnavailable, err)
	}
	dest := filepath.Join(r.dir, "dl_"+uuid.NewString()+clipExt(task))

	start := time.Now()
	if err := r.download(ctx, task.VideoURL, dest); err != nil {
		_ = os.Remove(dest)
		r.logger.Warn("clip download failed", zap.String("url", redact(task.VideoURL)), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrClipUnavailable, err)
	}
	r.logger.Debug("clip downloaded",
		zap.String("path", dest),
		zap.Duration("took", time.Since(start)),
	)

	return &ResolvedClip{
		Path:       dest,
		Downloaded: true,
		release: func() {
			if err := os.Remove(dest); err != nil && !errors.Is(err, os.ErrNotExist) {
				r.logger.Warn("failed to remove downloaded clip", zap.String("path", dest), zap.Error(err))
			}
		},
	}, nil
}

func (r *ClipResolver) download(ctx context.Context, rawURL, dest string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return r.downloadHTTP(ctx, rawURL, dest)
	case "s3":
		if r.storage == nil {
			return errors.New("object storage not configured")
		}
		key := strings.TrimPrefix(u.Path, "/")
		if u.Host == "" || key == "" {
			return fmt.Errorf("s3 url needs bucket and key: %s", rawURL)
		}
		return r.storage.DownloadObject(ctx, u.Host, key, dest)
	default:
		return fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
}

func (r *ClipResolver) downloadHTTP(ctx context.Context, rawURL, dest string) error {
	res, err := r.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(rawURL)
	if err != nil {
		return fmt.Errorf("get: %w", err)
	}
	body := res.RawBody()
	defer body.Close()

	if !res.IsSuccess() {
		return fmt.Errorf("get: status %d", res.StatusCode())
	}

	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return fmt.Errorf("write file: %w", err)
	}
	return f.Close()
}

func clipExt(task entity.Task) string {
	if ext := filepath.Ext(task.OriginalFilename); ext != "" {
		return strings.ToLower(ext)
	}
	if u, err := url.Parse(task.VideoURL); err == nil {
		if ext := path.Ext(u.Path); ext != "" {
			return strings.ToLower(ext)
		}
	}
	return defaultClipExt
}

// redact drops the query string, which carries presigned credentials.
func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid url>"
	}
	u.RawQuery = ""
	return u.String()
}
