package storage

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/putto11262002/sabaipics-core/internal/dstore"
	"github.com/putto11262002/sabaipics-core/internal/model"
)

func newTestPostgres(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &Postgres{db: sqlx.NewDb(db, "postgres")}, mock
}

var ledgerColumns = []string{
	"id", "photographer_id", "amount", "type", "source", "expires_at", "issued_at",
	"stripe_session_id", "apple_transaction_id", "admin_op_id", "upload_intent_id", "gift_redemption_id",
}

func TestInsertLedgerEntrySuccess(t *testing.T) {
	pg, mock := newTestPostgres(t)
	mock.ExpectBegin()

	entry := &model.LedgerEntry{
		PhotographerID: uuid.New(),
		Amount:         100,
		Type:           model.LedgerTypeCredit,
		Source:         model.SourcePurchase,
	}

	mock.ExpectQuery(`INSERT INTO ledger_entries`).
		WillReturnRows(sqlmock.NewRows(ledgerColumns).AddRow(
			uuid.New(), entry.PhotographerID, entry.Amount, string(entry.Type), string(entry.Source),
			nil, time.Now().UTC(), nil, nil, nil, nil, nil,
		))

	tx, err := pg.BeginTx(context.Background())
	require.NoError(t, err)

	out, err := pg.InsertLedgerEntry(context.Background(), tx, entry)
	require.NoError(t, err)
	require.Equal(t, int64(100), out.Amount)
	require.NoError(t, tx.Commit())
}

func TestInsertLedgerEntryUniqueViolationOnCredit(t *testing.T) {
	pg, mock := newTestPostgres(t)
	mock.ExpectBegin()

	entry := &model.LedgerEntry{
		PhotographerID:  uuid.New(),
		Amount:          100,
		Type:            model.LedgerTypeCredit,
		Source:          model.SourcePurchase,
		StripeSessionID: dstore.NewNullString("sess_1"),
	}

	mock.ExpectQuery(`INSERT INTO ledger_entries`).
		WillReturnError(&pq.Error{Code: uniqueViolation})

	tx, err := pg.BeginTx(context.Background())
	require.NoError(t, err)
	defer pg.RollbackTx(tx)

	_, err = pg.InsertLedgerEntry(context.Background(), tx, entry)
	require.ErrorIs(t, err, model.ErrAlreadyGranted)
}

func TestInsertLedgerEntryUniqueViolationOnDebit(t *testing.T) {
	pg, mock := newTestPostgres(t)
	mock.ExpectBegin()

	entry := &model.LedgerEntry{
		PhotographerID: uuid.New(),
		Amount:         -1,
		Type:           model.LedgerTypeDebit,
		Source:         model.SourceUpload,
	}

	mock.ExpectQuery(`INSERT INTO ledger_entries`).
		WillReturnError(&pq.Error{Code: uniqueViolation})

	tx, err := pg.BeginTx(context.Background())
	require.NoError(t, err)
	defer pg.RollbackTx(tx)

	_, err = pg.InsertLedgerEntry(context.Background(), tx, entry)
	require.ErrorIs(t, err, model.ErrAlreadyConsumed)
}

func TestBalanceSumsUnexpiredEntries(t *testing.T) {
	pg, mock := newTestPostgres(t)
	photographerID := uuid.New()

	mock.ExpectQuery(`SELECT COALESCE\(SUM\(amount\), 0\) FROM ledger_entries`).
		WithArgs(photographerID, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(55))

	balance, err := pg.Balance(context.Background(), photographerID, time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, int64(55), balance)
	require.NoError(t, mock.ExpectationsWereMet())
}
