package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/putto11262002/sabaipics-core/internal/model"
)

const uploadIntentColumns = `
	id, photographer_id, event_id, object_key, content_type, content_length, status,
	presign_expires_at, created_at, completed_at, error_code, error_message, photo_id`

func (pg *Postgres) GetUploadIntent(ctx context.Context, id uuid.UUID) (*model.UploadIntent, error) {
	var intent model.UploadIntent
	err := pg.db.GetContext(ctx, &intent, `SELECT `+uploadIntentColumns+` FROM upload_intents WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrIntentNotFound
	}
	if err != nil {
		return nil, logQueryErr(ctx, "GetUploadIntent", err)
	}
	return &intent, nil
}

func (pg *Postgres) GetUploadIntentByObjectKey(ctx context.Context, objectKey string) (*model.UploadIntent, error) {
	var intent model.UploadIntent
	err := pg.db.GetContext(ctx, &intent, `SELECT `+uploadIntentColumns+` FROM upload_intents WHERE object_key = $1`, objectKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, logQueryErr(ctx, "GetUploadIntentByObjectKey", err)
	}
	return &intent, nil
}

func (pg *Postgres) CreateUploadIntent(ctx context.Context, intent *model.UploadIntent) (*model.UploadIntent, error) {
	if intent.ID == uuid.Nil {
		intent.ID = uuid.New()
	}
	var out model.UploadIntent
	err := pg.db.GetContext(ctx, &out, `
INSERT INTO upload_intents
	(id, photographer_id, event_id, object_key, content_type, content_length, status, presign_expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING `+uploadIntentColumns,
		intent.ID, intent.PhotographerID, intent.EventID, intent.ObjectKey, intent.ContentType,
		intent.ContentLength, model.IntentStatusPending, intent.PresignExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("storage: CreateUploadIntent: %w", err)
	}
	return &out, nil
}

// UpdateUploadIntentStatus transitions intent id to status, setting
// completed_at when the new status is completed, failed or cancelled (stale
// intents are expired by ExpireStaleIntents instead) and recording errCode/errMsg
// when provided. Runs inside tx so callers can settle the ledger debit in the
// same transaction (spec §4.3's "settled transactionally" requirement).
func (pg *Postgres) UpdateUploadIntentStatus(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, status model.UploadIntentStatus, errCode, errMsg string) (*model.UploadIntent, error) {
	var completedAt *time.Time
	switch status {
	case model.IntentStatusCompleted, model.IntentStatusFailed, model.IntentStatusCancelled:
		now := time.Now().UTC()
		completedAt = &now
	}

	var out model.UploadIntent
	err := tx.GetContext(ctx, &out, `
UPDATE upload_intents
SET status = $2, completed_at = COALESCE($3, completed_at),
	error_code = NULLIF($4, ''), error_message = NULLIF($5, '')
WHERE id = $1
RETURNING `+uploadIntentColumns,
		id, status, completedAt, errCode, errMsg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrIntentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: UpdateUploadIntentStatus: %w", err)
	}
	return &out, nil
}

func (pg *Postgres) RepresignUploadIntent(ctx context.Context, id uuid.UUID, objectKey string, presignExpiresAt time.Time) (*model.UploadIntent, error) {
	var out model.UploadIntent
	err := pg.db.GetContext(ctx, &out, `
UPDATE upload_intents
SET object_key = $2, status = 'pending', presign_expires_at = $3,
	error_code = NULL, error_message = NULL
WHERE id = $1
RETURNING `+uploadIntentColumns,
		id, objectKey, presignExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrIntentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: RepresignUploadIntent: %w", err)
	}
	return &out, nil
}

func (pg *Postgres) ListUploadIntents(ctx context.Context, photographerID uuid.UUID, eventID *uuid.UUID, status *model.UploadIntentStatus) ([]model.UploadIntent, error) {
	query := `SELECT ` + uploadIntentColumns + ` FROM upload_intents WHERE photographer_id = $1`
	args := []interface{}{photographerID}

	if eventID != nil {
		args = append(args, *eventID)
		query += fmt.Sprintf(" AND event_id = $%d", len(args))
	}
	if status != nil {
		args = append(args, *status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"

	var intents []model.UploadIntent
	if err := pg.db.SelectContext(ctx, &intents, query, args...); err != nil {
		return nil, logQueryErr(ctx, "ListUploadIntents", err)
	}
	return intents, nil
}

// ExpireStaleIntents flips pending intents whose presign window lapsed
// before `before` to expired, for the retention scheduler (spec §4.6).
func (pg *Postgres) ExpireStaleIntents(ctx context.Context, before time.Time, limit int) (int64, error) {
	res, err := pg.db.ExecContext(ctx, `
UPDATE upload_intents
SET status = 'expired'
WHERE id IN (
	SELECT id FROM upload_intents
	WHERE status = 'pending' AND presign_expires_at <= $1
	LIMIT $2
)`, before, limit)
	if err != nil {
		return 0, logQueryErr(ctx, "ExpireStaleIntents", err)
	}
	return res.RowsAffected()
}
