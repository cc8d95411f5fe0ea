package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ItsKevinRafaell/cctv-ai-worker/internal/domain/entity"
)

// RecordRepository stores one row per analyzed clip; the full debug record
// goes into a jsonb column.
type RecordRepository struct {
	pool *pgxpool.Pool
}

func NewRecordRepository(pool *pgxpool.Pool) *RecordRepository {
	return &RecordRepository{pool: pool}
}

func (r *RecordRepository) Insert(ctx context.Context, rec entity.DebugRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	query := `
		INSERT INTO analysis_records (
			id, camera_id, file, infer_mode, verdict,
			p_anom, p_norm, record, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	_, err = r.pool.Exec(ctx, query,
		uuid.New(), rec.CameraID, rec.File, rec.Infer.Mode, rec.Result.Decision,
		rec.Result.PAnom, rec.Result.PNorm, body, rec.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert analysis record: %w", err)
	}
	return nil
}
