package port

import (
	"context"

	"github.com/ItsKevinRafaell/cctv-ai-worker/internal/domain/entity"
)

// DebugRecorder persists decision artifacts. Implementations swallow their
// own failures.
type DebugRecorder interface {
	Record(ctx context.Context, rec entity.DebugRecord, clipPath string)
}
