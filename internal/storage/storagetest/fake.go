// Package storagetest is a hand-written stand-in for storage.Datastore,
// grounded on libs/test's role as the teacher's shared cross-package test
// helper package. Each method delegates to an optional function field, so a
// test only wires up the calls it actually exercises; anything else panics
// loudly instead of silently returning a zero value. The exceptions are
// Migrate and InsertGrantConsumptions, which return nil when unstubbed.
package storagetest

import (
	"context"
	"fmt"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/putto11262002/sabaipics-core/internal/model"
)

// Fake implements storage.Datastore entirely through function fields.
// BeginTx/RollbackTx are backed by a real *sqlx.DB wrapping a sqlmock
// connection, so callers that open a transaction still get a genuine
// *sqlx.Tx without a live Postgres instance.
type Fake struct {
	DB *sqlx.DB

	MigrateFn func() error

	GetPhotographerFn                     func(ctx context.Context, id uuid.UUID) (*model.Photographer, error)
	GetPhotographerByExternalAuthIDFn     func(ctx context.Context, externalAuthID string) (*model.Photographer, error)
	CreatePhotographerFn                   func(ctx context.Context, p *model.Photographer) (*model.Photographer, error)

	InsertLedgerEntryFn          func(ctx context.Context, tx *sqlx.Tx, entry *model.LedgerEntry) (*model.LedgerEntry, error)
	LedgerEntryByCorrelationFn   func(ctx context.Context, field, value string) (*model.LedgerEntry, error)
	BalanceFn                     func(ctx context.Context, photographerID uuid.UUID, at time.Time) (int64, error)
	OpenCreditsForUpdateFn        func(ctx context.Context, tx *sqlx.Tx, photographerID uuid.UUID, at time.Time) ([]model.LedgerEntry, error)
	ExpiringBeforeFn              func(ctx context.Context, before time.Time, limit int) ([]model.LedgerEntry, error)
	ConsumptionSinceFn            func(ctx context.Context, photographerID uuid.UUID, since time.Time) (int64, error)
	InsertGrantConsumptionsFn     func(ctx context.Context, tx *sqlx.Tx, allocations []model.GrantConsumption) error
	NextCreditExpiryFn            func(ctx context.Context, photographerID uuid.UUID, at time.Time) (*time.Time, error)

	GetUploadIntentFn             func(ctx context.Context, id uuid.UUID) (*model.UploadIntent, error)
	GetUploadIntentByObjectKeyFn func(ctx context.Context, objectKey string) (*model.UploadIntent, error)
	CreateUploadIntentFn          func(ctx context.Context, intent *model.UploadIntent) (*model.UploadIntent, error)
	UpdateUploadIntentStatusFn    func(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, status model.UploadIntentStatus, errCode, errMsg string) (*model.UploadIntent, error)
	RepresignUploadIntentFn       func(ctx context.Context, id uuid.UUID, objectKey string, presignExpiresAt time.Time) (*model.UploadIntent, error)
	ListUploadIntentsFn           func(ctx context.Context, photographerID uuid.UUID, eventID *uuid.UUID, status *model.UploadIntentStatus) ([]model.UploadIntent, error)
	ExpireStaleIntentsFn          func(ctx context.Context, before time.Time, limit int) (int64, error)

	GetPromoCodeFn                           func(ctx context.Context, code string) (*model.PromoCode, error)
	CountPromoRedemptionsFn                  func(ctx context.Context, code string) (int, error)
	CountPromoRedemptionsByPhotographerFn   func(ctx context.Context, code string, photographerID uuid.UUID) (int, error)
	InsertPromoUsageFn                        func(ctx context.Context, tx *sqlx.Tx, usage *model.PromoUsage) (*model.PromoUsage, error)

	SoftDeleteExpiredEventsFn      func(ctx context.Context, before time.Time, limit int) ([]uuid.UUID, error)
	HardDeleteSoftDeletedEventsFn func(ctx context.Context, before time.Time, limit int) (int64, error)
}

// New builds a Fake backed by a fresh sqlmock connection, so BeginTx yields
// a real transaction. mock lets the caller set expectations for Commit()/
// Rollback() if the code under test calls them.
func New(t interface{ Cleanup(func()) }) (*Fake, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		panic(fmt.Sprintf("storagetest: opening sqlmock: %v", err))
	}
	t.Cleanup(func() { db.Close() })
	return &Fake{DB: sqlx.NewDb(db, "postgres")}, mock
}

func (f *Fake) RawDB() *sqlx.DB { return f.DB }

func (f *Fake) Migrate() error {
	if f.MigrateFn != nil {
		return f.MigrateFn()
	}
	return nil
}

func (f *Fake) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	return f.DB.BeginTxx(ctx, nil)
}

func (f *Fake) RollbackTx(tx *sqlx.Tx) {
	if tx == nil {
		return
	}
	_ = tx.Rollback()
}

func (f *Fake) GetPhotographer(ctx context.Context, id uuid.UUID) (*model.Photographer, error) {
	if f.GetPhotographerFn == nil {
		panic("storagetest: GetPhotographerFn not set")
	}
	return f.GetPhotographerFn(ctx, id)
}

func (f *Fake) GetPhotographerByExternalAuthID(ctx context.Context, externalAuthID string) (*model.Photographer, error) {
	if f.GetPhotographerByExternalAuthIDFn == nil {
		panic("storagetest: GetPhotographerByExternalAuthIDFn not set")
	}
	return f.GetPhotographerByExternalAuthIDFn(ctx, externalAuthID)
}

func (f *Fake) CreatePhotographer(ctx context.Context, p *model.Photographer) (*model.Photographer, error) {
	if f.CreatePhotographerFn == nil {
		panic("storagetest: CreatePhotographerFn not set")
	}
	return f.CreatePhotographerFn(ctx, p)
}

func (f *Fake) InsertLedgerEntry(ctx context.Context, tx *sqlx.Tx, entry *model.LedgerEntry) (*model.LedgerEntry, error) {
	if f.InsertLedgerEntryFn == nil {
		panic("storagetest: InsertLedgerEntryFn not set")
	}
	return f.InsertLedgerEntryFn(ctx, tx, entry)
}

func (f *Fake) LedgerEntryByCorrelation(ctx context.Context, field, value string) (*model.LedgerEntry, error) {
	if f.LedgerEntryByCorrelationFn == nil {
		panic("storagetest: LedgerEntryByCorrelationFn not set")
	}
	return f.LedgerEntryByCorrelationFn(ctx, field, value)
}

func (f *Fake) Balance(ctx context.Context, photographerID uuid.UUID, at time.Time) (int64, error) {
	if f.BalanceFn == nil {
		panic("storagetest: BalanceFn not set")
	}
	return f.BalanceFn(ctx, photographerID, at)
}

func (f *Fake) OpenCreditsForUpdate(ctx context.Context, tx *sqlx.Tx, photographerID uuid.UUID, at time.Time) ([]model.LedgerEntry, error) {
	if f.OpenCreditsForUpdateFn == nil {
		panic("storagetest: OpenCreditsForUpdateFn not set")
	}
	return f.OpenCreditsForUpdateFn(ctx, tx, photographerID, at)
}

func (f *Fake) ExpiringBefore(ctx context.Context, before time.Time, limit int) ([]model.LedgerEntry, error) {
	if f.ExpiringBeforeFn == nil {
		panic("storagetest: ExpiringBeforeFn not set")
	}
	return f.ExpiringBeforeFn(ctx, before, limit)
}

func (f *Fake) ConsumptionSince(ctx context.Context, photographerID uuid.UUID, since time.Time) (int64, error) {
	if f.ConsumptionSinceFn == nil {
		panic("storagetest: ConsumptionSinceFn not set")
	}
	return f.ConsumptionSinceFn(ctx, photographerID, since)
}

func (f *Fake) GetUploadIntent(ctx context.Context, id uuid.UUID) (*model.UploadIntent, error) {
	if f.GetUploadIntentFn == nil {
		panic("storagetest: GetUploadIntentFn not set")
	}
	return f.GetUploadIntentFn(ctx, id)
}

func (f *Fake) GetUploadIntentByObjectKey(ctx context.Context, objectKey string) (*model.UploadIntent, error) {
	if f.GetUploadIntentByObjectKeyFn == nil {
		panic("storagetest: GetUploadIntentByObjectKeyFn not set")
	}
	return f.GetUploadIntentByObjectKeyFn(ctx, objectKey)
}

func (f *Fake) CreateUploadIntent(ctx context.Context, intent *model.UploadIntent) (*model.UploadIntent, error) {
	if f.CreateUploadIntentFn == nil {
		panic("storagetest: CreateUploadIntentFn not set")
	}
	return f.CreateUploadIntentFn(ctx, intent)
}

func (f *Fake) UpdateUploadIntentStatus(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, status model.UploadIntentStatus, errCode, errMsg string) (*model.UploadIntent, error) {
	if f.UpdateUploadIntentStatusFn == nil {
		panic("storagetest: UpdateUploadIntentStatusFn not set")
	}
	return f.UpdateUploadIntentStatusFn(ctx, tx, id, status, errCode, errMsg)
}

func (f *Fake) RepresignUploadIntent(ctx context.Context, id uuid.UUID, objectKey string, presignExpiresAt time.Time) (*model.UploadIntent, error) {
	if f.RepresignUploadIntentFn == nil {
		panic("storagetest: RepresignUploadIntentFn not set")
	}
	return f.RepresignUploadIntentFn(ctx, id, objectKey, presignExpiresAt)
}

func (f *Fake) ListUploadIntents(ctx context.Context, photographerID uuid.UUID, eventID *uuid.UUID, status *model.UploadIntentStatus) ([]model.UploadIntent, error) {
	if f.ListUploadIntentsFn == nil {
		panic("storagetest: ListUploadIntentsFn not set")
	}
	return f.ListUploadIntentsFn(ctx, photographerID, eventID, status)
}

func (f *Fake) ExpireStaleIntents(ctx context.Context, before time.Time, limit int) (int64, error) {
	if f.ExpireStaleIntentsFn == nil {
		panic("storagetest: ExpireStaleIntentsFn not set")
	}
	return f.ExpireStaleIntentsFn(ctx, before, limit)
}

func (f *Fake) GetPromoCode(ctx context.Context, code string) (*model.PromoCode, error) {
	if f.GetPromoCodeFn == nil {
		panic("storagetest: GetPromoCodeFn not set")
	}
	return f.GetPromoCodeFn(ctx, code)
}

func (f *Fake) CountPromoRedemptions(ctx context.Context, code string) (int, error) {
	if f.CountPromoRedemptionsFn == nil {
		panic("storagetest: CountPromoRedemptionsFn not set")
	}
	return f.CountPromoRedemptionsFn(ctx, code)
}

func (f *Fake) CountPromoRedemptionsByPhotographer(ctx context.Context, code string, photographerID uuid.UUID) (int, error) {
	if f.CountPromoRedemptionsByPhotographerFn == nil {
		panic("storagetest: CountPromoRedemptionsByPhotographerFn not set")
	}
	return f.CountPromoRedemptionsByPhotographerFn(ctx, code, photographerID)
}

func (f *Fake) InsertPromoUsage(ctx context.Context, tx *sqlx.Tx, usage *model.PromoUsage) (*model.PromoUsage, error) {
	if f.InsertPromoUsageFn == nil {
		panic("storagetest: InsertPromoUsageFn not set")
	}
	return f.InsertPromoUsageFn(ctx, tx, usage)
}

func (f *Fake) InsertGrantConsumptions(ctx context.Context, tx *sqlx.Tx, allocations []model.GrantConsumption) error {
	if f.InsertGrantConsumptionsFn == nil {
		return nil
	}
	return f.InsertGrantConsumptionsFn(ctx, tx, allocations)
}

func (f *Fake) NextCreditExpiry(ctx context.Context, photographerID uuid.UUID, at time.Time) (*time.Time, error) {
	if f.NextCreditExpiryFn == nil {
		panic("storagetest: NextCreditExpiryFn not set")
	}
	return f.NextCreditExpiryFn(ctx, photographerID, at)
}

func (f *Fake) SoftDeleteExpiredEvents(ctx context.Context, before time.Time, limit int) ([]uuid.UUID, error) {
	if f.SoftDeleteExpiredEventsFn == nil {
		panic("storagetest: SoftDeleteExpiredEventsFn not set")
	}
	return f.SoftDeleteExpiredEventsFn(ctx, before, limit)
}

func (f *Fake) HardDeleteSoftDeletedEvents(ctx context.Context, before time.Time, limit int) (int64, error) {
	if f.HardDeleteSoftDeletedEventsFn == nil {
		panic("storagetest: HardDeleteSoftDeletedEventsFn not set")
	}
	return f.HardDeleteSoftDeletedEventsFn(ctx, before, limit)
}
