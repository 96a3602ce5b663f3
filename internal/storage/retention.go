package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SoftDeleteExpiredEvents implements spec §4.6's soft-delete producer:
// "select up to N events whose expires_at < now" and mark them deleted.
func (pg *Postgres) SoftDeleteExpiredEvents(ctx context.Context, before time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := pg.db.SelectContext(ctx, &ids, `
UPDATE events
SET deleted_at = now()
WHERE id IN (
	SELECT id FROM events
	WHERE deleted_at IS NULL AND expires_at < $1
	LIMIT $2
)
RETURNING id`, before, limit)
	if err != nil {
		return nil, logQueryErr(ctx, "SoftDeleteExpiredEvents", err)
	}
	return ids, nil
}

// HardDeleteSoftDeletedEvents implements spec §4.6's hard-delete producer:
// "select soft-deleted events older than the retention window" and remove them.
func (pg *Postgres) HardDeleteSoftDeletedEvents(ctx context.Context, before time.Time, limit int) (int64, error) {
	res, err := pg.db.ExecContext(ctx, `
DELETE FROM events
WHERE id IN (
	SELECT id FROM events
	WHERE deleted_at IS NOT NULL AND deleted_at <= $1
	LIMIT $2
)`, before, limit)
	if err != nil {
		return 0, logQueryErr(ctx, "HardDeleteSoftDeletedEvents", err)
	}
	return res.RowsAffected()
}
