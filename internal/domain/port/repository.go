package port

import (
	"context"

	"github.com/ItsKevinRafaell/cctv-ai-worker/internal/domain/entity"
)

// RecordRepository persists debug records for later auditing.
type RecordRepository interface {
	Insert(ctx context.Context, rec entity.DebugRecord) error
}
