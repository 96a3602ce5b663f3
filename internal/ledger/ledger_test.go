package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/putto11262002/sabaipics-core/internal/model"
	"github.com/putto11262002/sabaipics-core/internal/storage/storagetest"
)

func TestGrantRequestToEntryRequiresExactlyOneCorrelation(t *testing.T) {
	req := &GrantRequest{PhotographerID: uuid.New(), Amount: 10}
	_, err := req.toEntry()
	assert.Error(t, err, "no correlation field set")

	req.StripeSessionID = "sess_1"
	req.AdminOpID = "op_1"
	_, err = req.toEntry()
	assert.Error(t, err, "two correlation fields set")
}

func TestGrantRequestToEntryRejectsNonPositiveAmount(t *testing.T) {
	req := &GrantRequest{PhotographerID: uuid.New(), Amount: 0, StripeSessionID: "sess_1"}
	_, err := req.toEntry()
	assert.Error(t, err)
}

func TestGrantInsertsEntry(t *testing.T) {
	fake, mock := storagetest.New(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	var insertedEntry *model.LedgerEntry
	fake.InsertLedgerEntryFn = func(ctx context.Context, tx *sqlx.Tx, entry *model.LedgerEntry) (*model.LedgerEntry, error) {
		insertedEntry = entry
		out := *entry
		out.ID = uuid.New()
		return &out, nil
	}

	svc := New(fake)
	photographerID := uuid.New()
	out, err := svc.Grant(context.Background(), GrantRequest{
		PhotographerID:  photographerID,
		Amount:          100,
		Source:          model.SourcePurchase,
		StripeSessionID: "sess_123",
	})
	require.NoError(t, err)
	require.NotNil(t, insertedEntry)
	assert.Equal(t, int64(100), out.Amount)
	assert.Equal(t, model.LedgerTypeCredit, insertedEntry.Type)
	assert.Equal(t, "sess_123", insertedEntry.StripeSessionID.String)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGrantReplaysOnAlreadyGranted(t *testing.T) {
	fake, mock := storagetest.New(t)
	mock.ExpectBegin()

	existing := &model.LedgerEntry{ID: uuid.New(), Amount: 100}
	fake.InsertLedgerEntryFn = func(ctx context.Context, tx *sqlx.Tx, entry *model.LedgerEntry) (*model.LedgerEntry, error) {
		return nil, model.ErrAlreadyGranted
	}
	fake.LedgerEntryByCorrelationFn = func(ctx context.Context, field, value string) (*model.LedgerEntry, error) {
		assert.Equal(t, "stripe_session_id", field)
		return existing, nil
	}

	svc := New(fake)
	out, err := svc.Grant(context.Background(), GrantRequest{
		PhotographerID:  uuid.New(),
		Amount:          100,
		Source:          model.SourcePurchase,
		StripeSessionID: "sess_123",
	})
	require.NoError(t, err)
	assert.Equal(t, existing.ID, out.ID, "replays the existing row instead of erroring")
}

func TestConsumeInsufficientFunds(t *testing.T) {
	fake, mock := storagetest.New(t)
	mock.ExpectBegin()

	fake.LedgerEntryByCorrelationFn = func(ctx context.Context, field, value string) (*model.LedgerEntry, error) {
		return nil, nil
	}
	fake.OpenCreditsForUpdateFn = func(ctx context.Context, tx *sqlx.Tx, photographerID uuid.UUID, at time.Time) ([]model.LedgerEntry, error) {
		return nil, nil
	}

	svc := New(fake)
	_, err := svc.Consume(context.Background(), ConsumeRequest{
		PhotographerID: uuid.New(),
		Amount:         1,
		Source:         model.SourceUpload,
		UploadIntentID: uuid.New().String(),
	})
	assert.ErrorIs(t, err, model.ErrInsufficientFunds)
}

func TestConsumeRecordsPerGrantAllocationsFIFO(t *testing.T) {
	fake, mock := storagetest.New(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	photographerID := uuid.New()
	grantA := model.LedgerEntry{ID: uuid.New(), PhotographerID: photographerID, Amount: 3}
	grantB := model.LedgerEntry{ID: uuid.New(), PhotographerID: photographerID, Amount: 10}

	fake.LedgerEntryByCorrelationFn = func(ctx context.Context, field, value string) (*model.LedgerEntry, error) {
		return nil, nil
	}
	fake.OpenCreditsForUpdateFn = func(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, at time.Time) ([]model.LedgerEntry, error) {
		return []model.LedgerEntry{grantA, grantB}, nil
	}
	fake.InsertLedgerEntryFn = func(ctx context.Context, tx *sqlx.Tx, entry *model.LedgerEntry) (*model.LedgerEntry, error) {
		out := *entry
		out.ID = uuid.New()
		return &out, nil
	}

	var recorded []model.GrantConsumption
	var debitEntryID uuid.UUID
	fake.InsertGrantConsumptionsFn = func(ctx context.Context, tx *sqlx.Tx, allocations []model.GrantConsumption) error {
		recorded = allocations
		if len(allocations) > 0 {
			debitEntryID = allocations[0].DebitEntryID
		}
		return nil
	}

	svc := New(fake)
	out, err := svc.Consume(context.Background(), ConsumeRequest{
		PhotographerID: photographerID,
		Amount:         5,
		Source:         model.SourceUpload,
		UploadIntentID: uuid.New().String(),
	})
	require.NoError(t, err)

	require.Len(t, recorded, 2)
	assert.Equal(t, grantA.ID, recorded[0].GrantEntryID)
	assert.Equal(t, int64(3), recorded[0].Amount, "fully drains the smaller, earlier-expiring grant first")
	assert.Equal(t, grantB.ID, recorded[1].GrantEntryID)
	assert.Equal(t, int64(2), recorded[1].Amount, "draws only the remainder from the next grant")
	assert.Equal(t, out.ID, debitEntryID, "allocations are stamped with the debit entry they belong to")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExpirySweepAdjustsOutRemainderOnly(t *testing.T) {
	fake, mock := storagetest.New(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	grant := model.LedgerEntry{
		ID:             uuid.New(),
		PhotographerID: uuid.New(),
		Amount:         97, // ExpiringBefore already nets out the 3 consumed from the original 100.
		Source:         model.SourcePurchase,
	}
	fake.ExpiringBeforeFn = func(ctx context.Context, before time.Time, limit int) ([]model.LedgerEntry, error) {
		return []model.LedgerEntry{grant}, nil
	}

	var adjustment *model.LedgerEntry
	fake.InsertLedgerEntryFn = func(ctx context.Context, tx *sqlx.Tx, entry *model.LedgerEntry) (*model.LedgerEntry, error) {
		adjustment = entry
		out := *entry
		out.ID = uuid.New()
		return &out, nil
	}

	svc := New(fake)
	adjusted, err := svc.ExpirySweep(context.Background(), time.Now().UTC(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, adjusted)
	require.NotNil(t, adjustment)
	assert.Equal(t, int64(-97), adjustment.Amount, "adjusts out only the unconsumed remainder, not the original grant amount")
	assert.Equal(t, model.LedgerTypeExpiryAdjust, adjustment.Type)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBalanceDelegatesToStore(t *testing.T) {
	fake, _ := storagetest.New(t)
	photographerID := uuid.New()
	fake.BalanceFn = func(ctx context.Context, id uuid.UUID, at time.Time) (int64, error) {
		assert.Equal(t, photographerID, id)
		return 42, nil
	}

	svc := New(fake)
	balance, err := svc.Balance(context.Background(), photographerID)
	require.NoError(t, err)
	assert.Equal(t, int64(42), balance)
}

func TestNextExpiryDelegatesToStore(t *testing.T) {
	fake, _ := storagetest.New(t)
	photographerID := uuid.New()
	want := time.Now().UTC().Add(24 * time.Hour)
	fake.NextCreditExpiryFn = func(ctx context.Context, id uuid.UUID, at time.Time) (*time.Time, error) {
		assert.Equal(t, photographerID, id)
		return &want, nil
	}

	svc := New(fake)
	got, err := svc.NextExpiry(context.Background(), photographerID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, want.Equal(*got))
}

func TestNextExpiryNilWhenNoneExpire(t *testing.T) {
	fake, _ := storagetest.New(t)
	fake.NextCreditExpiryFn = func(ctx context.Context, id uuid.UUID, at time.Time) (*time.Time, error) {
		return nil, nil
	}

	svc := New(fake)
	got, err := svc.NextExpiry(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestAdjustAdminRequiresNonZeroAmount(t *testing.T) {
	fake, _ := storagetest.New(t)
	svc := New(fake)
	_, err := svc.AdjustAdmin(context.Background(), uuid.New(), 0, "")
	assert.Error(t, err)
}
