package catalog

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

func TestEventBelongsTo(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewEventStore(db)

	eventID := uuid.New()
	photographerID := uuid.New()
	other := uuid.New()

	mock.ExpectQuery(`SELECT photographer_id FROM events WHERE id = \$1`).
		WithArgs(eventID).
		WillReturnRows(sqlmock.NewRows([]string{"photographer_id"}).AddRow(photographerID.String()))

	belongs, err := store.EventBelongsTo(context.Background(), eventID, photographerID)
	require.NoError(t, err)
	assert.True(t, belongs)

	mock.ExpectQuery(`SELECT photographer_id FROM events WHERE id = \$1`).
		WithArgs(eventID).
		WillReturnRows(sqlmock.NewRows([]string{"photographer_id"}).AddRow(photographerID.String()))

	belongs, err = store.EventBelongsTo(context.Background(), eventID, other)
	require.NoError(t, err)
	assert.False(t, belongs)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventBelongsToQueryError(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewEventStore(db)

	eventID := uuid.New()
	mock.ExpectQuery(`SELECT photographer_id FROM events WHERE id = \$1`).
		WithArgs(eventID).
		WillReturnError(sqlmock.ErrCancelled)

	_, err := store.EventBelongsTo(context.Background(), eventID, uuid.New())
	assert.Error(t, err)
}

func TestEventExpired(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewEventStore(db)

	eventID := uuid.New()
	past := time.Now().UTC().Add(-time.Hour)

	mock.ExpectQuery(`SELECT expires_at FROM events WHERE id = \$1`).
		WithArgs(eventID).
		WillReturnRows(sqlmock.NewRows([]string{"expires_at"}).AddRow(past))

	expired, err := store.EventExpired(context.Background(), eventID)
	require.NoError(t, err)
	assert.True(t, expired)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePhoto(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewPhotoStore(db)

	photographerID := uuid.New()
	eventID := uuid.New()
	intentID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO photos`).
		WithArgs(sqlmock.AnyArg(), photographerID, eventID, intentID, "object/key").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(uuid.New().String()))
	mock.ExpectCommit()

	tx, err := db.Beginx()
	require.NoError(t, err)

	id, err := store.CreatePhoto(context.Background(), tx, photographerID, eventID, intentID, "object/key")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)

	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePhotoConflictReturnsExisting(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewPhotoStore(db)

	photographerID := uuid.New()
	eventID := uuid.New()
	intentID := uuid.New()
	existingID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO photos`).
		WithArgs(sqlmock.AnyArg(), photographerID, eventID, intentID, "object/key").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`SELECT id FROM photos WHERE upload_intent_id = \$1`).
		WithArgs(intentID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(existingID.String()))
	mock.ExpectCommit()

	tx, err := db.Beginx()
	require.NoError(t, err)

	id, err := store.CreatePhoto(context.Background(), tx, photographerID, eventID, intentID, "object/key")
	require.NoError(t, err)
	assert.Equal(t, existingID, id)

	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}
