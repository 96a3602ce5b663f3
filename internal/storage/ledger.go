package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/putto11262002/sabaipics-core/internal/model"
)

const uniqueViolation = pq.ErrorCode("23505")

// isCreditType reports whether t is a balance-increasing entry, used to pick
// the right idempotent-replay sentinel on a unique-constraint conflict.
func isCreditType(t model.LedgerEntryType) bool {
	switch t {
	case model.LedgerTypeCredit, model.LedgerTypePurchase, model.LedgerTypeGift, model.LedgerTypeRefund, model.LedgerTypeAdminAdjust:
		return true
	default:
		return false
	}
}

func (pg *Postgres) InsertLedgerEntry(ctx context.Context, tx *sqlx.Tx, entry *model.LedgerEntry) (*model.LedgerEntry, error) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.IssuedAt.IsZero() {
		entry.IssuedAt = time.Now().UTC()
	}

	var out model.LedgerEntry
	err := tx.GetContext(ctx, &out, `
INSERT INTO ledger_entries
	(id, photographer_id, amount, type, source, expires_at, issued_at,
	 stripe_session_id, apple_transaction_id, admin_op_id, upload_intent_id, gift_redemption_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING id, photographer_id, amount, type, source, expires_at, issued_at,
	stripe_session_id, apple_transaction_id, admin_op_id, upload_intent_id, gift_redemption_id`,
		entry.ID, entry.PhotographerID, entry.Amount, entry.Type, entry.Source, entry.ExpiresAt, entry.IssuedAt,
		entry.StripeSessionID, entry.AppleTransactionID, entry.AdminOpID, entry.UploadIntentID, entry.GiftRedemptionID)
	if err != nil {
		var pgErr *pq.Error
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			if isCreditType(entry.Type) {
				return nil, model.ErrAlreadyGranted
			}
			return nil, model.ErrAlreadyConsumed
		}
		return nil, fmt.Errorf("storage: InsertLedgerEntry: %w", err)
	}
	return &out, nil
}

func (pg *Postgres) LedgerEntryByCorrelation(ctx context.Context, field, value string) (*model.LedgerEntry, error) {
	allowed := map[string]bool{
		"stripe_session_id": true, "apple_transaction_id": true, "admin_op_id": true,
		"upload_intent_id": true, "gift_redemption_id": true,
	}
	if !allowed[field] {
		return nil, fmt.Errorf("storage: LedgerEntryByCorrelation: unknown correlation field %q", field)
	}

	var out model.LedgerEntry
	query := fmt.Sprintf(`
SELECT id, photographer_id, amount, type, source, expires_at, issued_at,
	stripe_session_id, apple_transaction_id, admin_op_id, upload_intent_id, gift_redemption_id
FROM ledger_entries WHERE %s = $1`, field)
	err := pg.db.GetContext(ctx, &out, query, value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, logQueryErr(ctx, "LedgerEntryByCorrelation", err)
	}
	return &out, nil
}

func (pg *Postgres) Balance(ctx context.Context, photographerID uuid.UUID, at time.Time) (int64, error) {
	var balance sql.NullInt64
	err := pg.db.GetContext(ctx, &balance, `
SELECT COALESCE(SUM(amount), 0) FROM ledger_entries
WHERE photographer_id = $1 AND (expires_at IS NULL OR expires_at > $2)`, photographerID, at)
	if err != nil {
		return 0, logQueryErr(ctx, "Balance", err)
	}
	return balance.Int64, nil
}

func (pg *Postgres) OpenCreditsForUpdate(ctx context.Context, tx *sqlx.Tx, photographerID uuid.UUID, at time.Time) ([]model.LedgerEntry, error) {
	var entries []model.LedgerEntry
	err := tx.SelectContext(ctx, &entries, `
SELECT le.id, le.photographer_id,
	(le.amount - COALESCE(consumed.total, 0)) AS amount,
	le.type, le.source, le.expires_at, le.issued_at,
	le.stripe_session_id, le.apple_transaction_id, le.admin_op_id, le.upload_intent_id, le.gift_redemption_id
FROM ledger_entries le
LEFT JOIN (
	SELECT grant_entry_id, SUM(amount) AS total
	FROM ledger_grant_consumptions
	GROUP BY grant_entry_id
) consumed ON consumed.grant_entry_id = le.id
WHERE le.photographer_id = $1
  AND le.amount > 0
  AND (le.expires_at IS NULL OR le.expires_at > $2)
  AND (le.amount - COALESCE(consumed.total, 0)) > 0
ORDER BY le.expires_at ASC NULLS LAST, le.issued_at ASC
FOR UPDATE OF le`, photographerID, at)
	if err != nil {
		return nil, fmt.Errorf("storage: OpenCreditsForUpdate: %w", err)
	}
	return entries, nil
}

// ExpiringBefore returns grants expiring before `before` whose unconsumed
// remainder is still nonzero (spec §4.1 invariant 4): a grant that was
// partially spent before expiring must only have its true remainder
// adjusted out, not its full original amount. The returned entries' Amount
// field is overwritten with that remainder.
func (pg *Postgres) ExpiringBefore(ctx context.Context, before time.Time, limit int) ([]model.LedgerEntry, error) {
	var entries []model.LedgerEntry
	err := pg.db.SelectContext(ctx, &entries, `
SELECT le.id, le.photographer_id,
	(le.amount - COALESCE(consumed.total, 0)) AS amount,
	le.type, le.source, le.expires_at, le.issued_at,
	le.stripe_session_id, le.apple_transaction_id, le.admin_op_id, le.upload_intent_id, le.gift_redemption_id
FROM ledger_entries le
LEFT JOIN (
	SELECT grant_entry_id, SUM(amount) AS total
	FROM ledger_grant_consumptions
	GROUP BY grant_entry_id
) consumed ON consumed.grant_entry_id = le.id
WHERE le.amount > 0
  AND le.expires_at IS NOT NULL
  AND le.expires_at <= $1
  AND NOT EXISTS (
	SELECT 1 FROM ledger_entries adj
	WHERE adj.type = 'expiry_adjust' AND adj.admin_op_id = le.id::text
  )
  AND (le.amount - COALESCE(consumed.total, 0)) > 0
ORDER BY le.expires_at ASC
LIMIT $2`, before, limit)
	if err != nil {
		return nil, logQueryErr(ctx, "ExpiringBefore", err)
	}
	return entries, nil
}

// InsertGrantConsumptions records, inside tx, how much of a debit entry was
// drawn from each grant it FIFO-consumed.
func (pg *Postgres) InsertGrantConsumptions(ctx context.Context, tx *sqlx.Tx, allocations []model.GrantConsumption) error {
	for _, a := range allocations {
		_, err := tx.ExecContext(ctx, `
INSERT INTO ledger_grant_consumptions (debit_entry_id, grant_entry_id, amount)
VALUES ($1, $2, $3)`, a.DebitEntryID, a.GrantEntryID, a.Amount)
		if err != nil {
			return fmt.Errorf("storage: InsertGrantConsumptions: %w", err)
		}
	}
	return nil
}

// NextCreditExpiry returns the soonest expires_at among photographerID's
// unexpired credit grants as of at, or nil if none carry an expiry.
func (pg *Postgres) NextCreditExpiry(ctx context.Context, photographerID uuid.UUID, at time.Time) (*time.Time, error) {
	var expiresAt sql.NullTime
	err := pg.db.GetContext(ctx, &expiresAt, `
SELECT MIN(expires_at) FROM ledger_entries
WHERE photographer_id = $1 AND amount > 0 AND expires_at IS NOT NULL AND expires_at > $2`, photographerID, at)
	if err != nil {
		return nil, logQueryErr(ctx, "NextCreditExpiry", err)
	}
	if !expiresAt.Valid {
		return nil, nil
	}
	t := expiresAt.Time
	return &t, nil
}

func (pg *Postgres) ConsumptionSince(ctx context.Context, photographerID uuid.UUID, since time.Time) (int64, error) {
	var consumed sql.NullInt64
	err := pg.db.GetContext(ctx, &consumed, `
SELECT COALESCE(SUM(-amount), 0) FROM ledger_entries
WHERE photographer_id = $1 AND amount < 0 AND source = 'upload' AND issued_at >= $2`, photographerID, since)
	if err != nil {
		return 0, logQueryErr(ctx, "ConsumptionSince", err)
	}
	return consumed.Int64, nil
}
