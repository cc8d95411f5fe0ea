package port

import "context"

// ObjectStorage reaches clips and debug artifacts kept in a bucket store.
type ObjectStorage interface {
	DownloadObject(ctx context.Context, bucket, objectKey, destPath string) error
	UploadFile(ctx context.Context, bucket, objectKey, srcPath, contentType string) error
}
