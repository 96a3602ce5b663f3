// Package storage is the persistence layer for the credit & upload
// pipeline, modeled on libs/datastore.Datastore + services/skus's
// Postgres wrapper: a thin sqlx.DB handle plus migration/transaction
// helpers, with one method per operation the domain packages need.
package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/putto11262002/sabaipics-core/internal/model"
)

// Datastore abstracts over the underlying Postgres database so domain
// packages (ledger, intent, promo, consumption, retention) never import
// database/sql or sqlx directly.
type Datastore interface {
	RawDB() *sqlx.DB
	Migrate() error
	BeginTx(ctx context.Context) (*sqlx.Tx, error)
	RollbackTx(tx *sqlx.Tx)

	GetPhotographer(ctx context.Context, id uuid.UUID) (*model.Photographer, error)
	GetPhotographerByExternalAuthID(ctx context.Context, externalAuthID string) (*model.Photographer, error)
	CreatePhotographer(ctx context.Context, p *model.Photographer) (*model.Photographer, error)

	// InsertLedgerEntry appends entry inside tx, returning model.ErrAlreadyGranted
	// or model.ErrAlreadyConsumed if entry's correlation key already exists
	// (the unique-constraint-based idempotency guarantee, spec §3/§9).
	InsertLedgerEntry(ctx context.Context, tx *sqlx.Tx, entry *model.LedgerEntry) (*model.LedgerEntry, error)
	// LedgerEntryByCorrelation looks up a previously recorded entry by whichever
	// correlation field is set, for idempotent-replay responses.
	LedgerEntryByCorrelation(ctx context.Context, field, value string) (*model.LedgerEntry, error)
	// Balance sums all non-expired ledger entries for photographerID as of at.
	// The balance is always computed, never cached (spec §9 open question).
	Balance(ctx context.Context, photographerID uuid.UUID, at time.Time) (int64, error)
	// OpenCreditsForUpdate returns the photographer's unexpired credit grants
	// that still have an unconsumed remainder, ordered by expiry ascending
	// (FIFO), locked FOR UPDATE within tx, for Consume to debit against. The
	// returned entries' Amount field is that remainder, not the original
	// grant amount.
	OpenCreditsForUpdate(ctx context.Context, tx *sqlx.Tx, photographerID uuid.UUID, at time.Time) ([]model.LedgerEntry, error)
	// InsertGrantConsumptions records, inside tx, how much of a debit was
	// drawn from each grant it FIFO-consumed, so ExpirySweep can compute a
	// grant's true remainder later instead of re-debiting its full amount.
	InsertGrantConsumptions(ctx context.Context, tx *sqlx.Tx, allocations []model.GrantConsumption) error
	// ExpiringBefore lists positive-amount entries whose remaining unconsumed
	// amount is still nonzero and that expire at or before `before`,
	// for the retention scheduler's expiry sweep. The returned entries'
	// Amount field is the remaining, unconsumed amount, not the original
	// grant amount.
	ExpiringBefore(ctx context.Context, before time.Time, limit int) ([]model.LedgerEntry, error)
	// ConsumptionSince sums the absolute amounts of photographerID's upload
	// debits (source=upload) issued at or after since, for the consumption
	// reporter.
	ConsumptionSince(ctx context.Context, photographerID uuid.UUID, since time.Time) (int64, error)
	// NextCreditExpiry returns the soonest expires_at among photographerID's
	// unexpired credit grants as of at, or nil if none expire (spec §6
	// GET /credits/balance "current balance and nearest expiry").
	NextCreditExpiry(ctx context.Context, photographerID uuid.UUID, at time.Time) (*time.Time, error)

	GetUploadIntent(ctx context.Context, id uuid.UUID) (*model.UploadIntent, error)
	GetUploadIntentByObjectKey(ctx context.Context, objectKey string) (*model.UploadIntent, error)
	CreateUploadIntent(ctx context.Context, intent *model.UploadIntent) (*model.UploadIntent, error)
	UpdateUploadIntentStatus(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, status model.UploadIntentStatus, errCode, errMsg string) (*model.UploadIntent, error)
	RepresignUploadIntent(ctx context.Context, id uuid.UUID, objectKey string, presignExpiresAt time.Time) (*model.UploadIntent, error)
	ListUploadIntents(ctx context.Context, photographerID uuid.UUID, eventID *uuid.UUID, status *model.UploadIntentStatus) ([]model.UploadIntent, error)
	ExpireStaleIntents(ctx context.Context, before time.Time, limit int) (int64, error)

	GetPromoCode(ctx context.Context, code string) (*model.PromoCode, error)
	CountPromoRedemptions(ctx context.Context, code string) (int, error)
	CountPromoRedemptionsByPhotographer(ctx context.Context, code string, photographerID uuid.UUID) (int, error)
	// InsertPromoUsage records a redemption inside tx, returning
	// model.ErrAlreadyConsumed if (code, photographer_id) or
	// (code, correlation) already exists.
	InsertPromoUsage(ctx context.Context, tx *sqlx.Tx, usage *model.PromoUsage) (*model.PromoUsage, error)

	// SoftDeleteExpiredEvents marks up to limit events whose expires_at is
	// before at as deleted and returns their ids, for the cleanup
	// scheduler's soft-delete producer (spec §4.6).
	SoftDeleteExpiredEvents(ctx context.Context, before time.Time, limit int) ([]uuid.UUID, error)
	// HardDeleteSoftDeletedEvents permanently removes event rows soft-deleted
	// before the given time (the retention window), for the hard-delete producer.
	HardDeleteSoftDeletedEvents(ctx context.Context, before time.Time, limit int) (int64, error)
}
