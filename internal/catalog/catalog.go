// Package catalog is the thinnest possible adapter onto the Event/Photo
// domains the Upload Intent Machine hands off to -- both sit outside the
// credit pipeline's scope (spec §1 excludes image processing, face
// recognition and UI state), but create_presign/settle_upload still need
// somewhere real to check event ownership and park the completed upload.
// Grounded on intent.EventLookup/PhotoCreator's narrow-interface design:
// this package only ever does the two queries those interfaces require.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// EventStore answers intent.EventLookup against a minimal `events` table.
type EventStore struct {
	db *sqlx.DB
}

// NewEventStore builds an EventStore over db.
func NewEventStore(db *sqlx.DB) *EventStore {
	return &EventStore{db: db}
}

// EventBelongsTo reports whether eventID is owned by photographerID.
func (s *EventStore) EventBelongsTo(ctx context.Context, eventID, photographerID uuid.UUID) (bool, error) {
	var owner uuid.UUID
	err := s.db.GetContext(ctx, &owner, `SELECT photographer_id FROM events WHERE id = $1`, eventID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("catalog: event lookup: %w", err)
	}
	return owner == photographerID, nil
}

// EventExpired reports whether eventID's window has closed.
func (s *EventStore) EventExpired(ctx context.Context, eventID uuid.UUID) (bool, error) {
	var expiresAt time.Time
	err := s.db.GetContext(ctx, &expiresAt, `SELECT expires_at FROM events WHERE id = $1`, eventID)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("catalog: event lookup: %w", err)
	}
	return !expiresAt.After(time.Now().UTC()), nil
}

// PhotoStore answers intent.PhotoCreator against a minimal `photos` table.
type PhotoStore struct {
	db *sqlx.DB
}

// NewPhotoStore builds a PhotoStore over db.
func NewPhotoStore(db *sqlx.DB) *PhotoStore {
	return &PhotoStore{db: db}
}

// CreatePhoto inserts the downstream photo row settle_upload hands off to
// once the debit succeeds, within the same transaction as the debit and the
// intent's completed transition (spec §4.3: "the state transition and debit
// MUST be in a single transaction"). Idempotent on upload_intent_id: a
// redelivered settlement after a crash between this insert and the
// transaction's commit returns the existing row instead of duplicating it.
func (s *PhotoStore) CreatePhoto(ctx context.Context, tx *sqlx.Tx, photographerID, eventID, intentID uuid.UUID, objectKey string) (uuid.UUID, error) {
	id := uuid.New()
	var insertedID uuid.UUID
	err := tx.GetContext(ctx, &insertedID, `
INSERT INTO photos (id, photographer_id, event_id, upload_intent_id, object_key)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (upload_intent_id) DO NOTHING
RETURNING id`, id, photographerID, eventID, intentID, objectKey)
	if errors.Is(err, sql.ErrNoRows) {
		err = tx.GetContext(ctx, &insertedID, `SELECT id FROM photos WHERE upload_intent_id = $1`, intentID)
		if err != nil {
			return uuid.Nil, fmt.Errorf("catalog: fetching existing photo: %w", err)
		}
		return insertedID, nil
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("catalog: creating photo: %w", err)
	}
	return insertedID, nil
}
