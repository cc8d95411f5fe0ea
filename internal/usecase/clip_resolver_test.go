package usecase

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ItsKevinRafaell/cctv-ai-worker/internal/domain/entity"
)

type fakeStorage struct {
	bucket, key string
	err         error
}

func (f *fakeStorage) DownloadObject(_ context.Context, bucket, key, dest string) error {
	f.bucket, f.key = bucket, key
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(dest, []byte("s3 clip"), 0o644)
}

func (f *fakeStorage) UploadFile(context.Context, string, string, string, string) error { return nil }

func cameraID(id int) *int { return &id }

func newTestResolver(t *testing.T, storage *fakeStorage) (*ClipResolver, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "downloads")
	cfg := ClipResolverConfig{DownloadDir: dir, DownloadTimeout: 5 * time.Second}
	if storage == nil {
		return NewClipResolver(cfg, nil, zap.NewNop()), dir
	}
	return NewClipResolver(cfg, storage, zap.NewNop()), dir
}

func TestResolveLocalPath(t *testing.T) {
	clip := filepath.Join(t.TempDir(), "cam.mp4")
	require.NoError(t, os.WriteFile(clip, []byte("x"), 0o644))

	r, _ := newTestResolver(t, nil)
	got, err := r.Resolve(context.Background(), entity.Task{VideoPath: clip, CameraID: cameraID(1)})
	require.NoError(t, err)
	assert.Equal(t, clip, got.Path)
	assert.False(t, got.Downloaded)

	got.Release()
	assert.FileExists(t, clip)
}

func TestResolveMissingPathWithoutURL(t *testing.T) {
	r, _ := newTestResolver(t, nil)
	_, err := r.Resolve(context.Background(), entity.Task{VideoPath: "/does/not/exist.mp4", CameraID: cameraID(1)})
	assert.ErrorIs(t, err, ErrClipUnavailable)
}

func TestResolveDownloadsHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "sig=abc", r.URL.RawQuery)
		w.Write([]byte("video bytes"))
	}))
	defer srv.Close()

	r, dir := newTestResolver(t, nil)
	got, err := r.Resolve(context.Background(), entity.Task{
		VideoPath:        "/missing/local.mp4",
		VideoURL:         srv.URL + "/clips/abc?sig=abc",
		OriginalFilename: "Lobby.MKV",
		CameraID:         cameraID(3),
	})
	require.NoError(t, err)
	assert.True(t, got.Downloaded)
	assert.Equal(t, dir, filepath.Dir(got.Path))
	assert.True(t, strings.HasPrefix(filepath.Base(got.Path), "dl_"))
	assert.Equal(t, ".mkv", filepath.Ext(got.Path))

	data, err := os.ReadFile(got.Path)
	require.NoError(t, err)
	assert.Equal(t, "video bytes", string(data))

	got.Release()
	assert.NoFileExists(t, got.Path)
	got.Release()
}

func TestResolveHTTPFailureLeavesNothing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "expired", http.StatusForbidden)
	}))
	defer srv.Close()

	r, dir := newTestResolver(t, nil)
	_, err := r.Resolve(context.Background(), entity.Task{VideoURL: srv.URL + "/clip.mp4", CameraID: cameraID(1)})
	assert.ErrorIs(t, err, ErrClipUnavailable)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestResolveS3(t *testing.T) {
	storage := &fakeStorage{}
	r, _ := newTestResolver(t, storage)

	got, err := r.Resolve(context.Background(), entity.Task{VideoURL: "s3://clips/cam2/0001.avi", CameraID: cameraID(2)})
	require.NoError(t, err)
	defer got.Release()

	assert.Equal(t, "clips", storage.bucket)
	assert.Equal(t, "cam2/0001.avi", storage.key)
	assert.Equal(t, ".avi", filepath.Ext(got.Path))
}

func TestResolveS3Failure(t *testing.T) {
	r, _ := newTestResolver(t, &fakeStorage{err: errors.New("no such key")})
	_, err := r.Resolve(context.Background(), entity.Task{VideoURL: "s3://clips/x.mp4", CameraID: cameraID(2)})
	assert.ErrorIs(t, err, ErrClipUnavailable)

	r, _ = newTestResolver(t, nil)
	_, err = r.Resolve(context.Background(), entity.Task{VideoURL: "s3://clips/x.mp4", CameraID: cameraID(2)})
	assert.ErrorIs(t, err, ErrClipUnavailable)
}

func TestResolveUnsupportedScheme(t *testing.T) {
	r, _ := newTestResolver(t, nil)
	_, err := r.Resolve(context.Background(), entity.Task{VideoURL: "ftp://host/clip.mp4", CameraID: cameraID(2)})
	assert.ErrorIs(t, err, ErrClipUnavailable)
}

func TestClipExt(t *testing.T) {
	assert.Equal(t, ".mp4", clipExt(entity.Task{VideoURL: "http://h/get?id=1"}))
	assert.Equal(t, ".webm", clipExt(entity.Task{VideoURL: "http://h/a/b.webm?x=1"}))
	assert.Equal(t, ".mov", clipExt(entity.Task{OriginalFilename: "a.mov", VideoURL: "http://h/b.webm"}))
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "https://h/clip.mp4", redact("https://h/clip.mp4?X-Amz-Signature=secret"))
}
