// Package ledger implements the append-only credit journal described in
// spec.md §4.1: Grant, Consume, Balance and ExpirySweep, all built on the
// storage.Datastore's unique-constraint idempotency guarantee rather than
// any in-process locking. Modeled on services/skus's transactional order
// settlement style: open a tx, do the reads/writes, commit, with Sentry-
// reported rollback on every exit path that isn't a clean commit.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/putto11262002/sabaipics-core/internal/appctx"
	"github.com/putto11262002/sabaipics-core/internal/dstore"
	"github.com/putto11262002/sabaipics-core/internal/model"
	"github.com/putto11262002/sabaipics-core/internal/storage"
)

// Service is the credit ledger's application-layer entry point.
type Service struct {
	store storage.Datastore
}

// New builds a Service over store.
func New(store storage.Datastore) *Service {
	return &Service{store: store}
}

// GrantRequest describes a single credit grant (spec §4.1 Grant).
type GrantRequest struct {
	PhotographerID uuid.UUID
	Amount         int64
	Source         model.LedgerEntrySource
	ExpiresAt      *time.Time
	// Exactly one of the following must be set, matching LedgerEntry's
	// single-correlation-field invariant.
	StripeSessionID    string
	AppleTransactionID string
	AdminOpID          string
	GiftRedemptionID   string
}

func (r *GrantRequest) toEntry() (*model.LedgerEntry, error) {
	entry := &model.LedgerEntry{
		PhotographerID: r.PhotographerID,
		Amount:         r.Amount,
		Type:           model.LedgerTypeCredit,
		Source:         r.Source,
		ExpiresAt:      r.ExpiresAt,
	}

	set := 0
	if r.StripeSessionID != "" {
		entry.StripeSessionID = dstore.NewNullString(r.StripeSessionID)
		set++
	}
	if r.AppleTransactionID != "" {
		entry.AppleTransactionID = dstore.NewNullString(r.AppleTransactionID)
		set++
	}
	if r.AdminOpID != "" {
		entry.AdminOpID = dstore.NewNullString(r.AdminOpID)
		entry.Type = model.LedgerTypeAdminAdjust
		set++
	}
	if r.GiftRedemptionID != "" {
		entry.GiftRedemptionID = dstore.NewNullString(r.GiftRedemptionID)
		entry.Type = model.LedgerTypeGift
		set++
	}
	if set != 1 {
		return nil, fmt.Errorf("ledger: grant request must set exactly one correlation field, got %d", set)
	}
	if r.Amount <= 0 {
		return nil, errors.New("ledger: grant amount must be positive")
	}
	return entry, nil
}

// Grant records a credit, replaying the existing entry if the request's
// correlation key was already processed (idempotency, spec §3/§9). Returns
// the entry that now represents this correlation key either way.
func (s *Service) Grant(ctx context.Context, req GrantRequest) (*model.LedgerEntry, error) {
	entry, err := req.toEntry()
	if err != nil {
		return nil, err
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStorageUnavailable, err)
	}
	defer s.store.RollbackTx(tx)

	out, err := s.store.InsertLedgerEntry(ctx, tx, entry)
	if errors.Is(err, model.ErrAlreadyGranted) {
		existing, lookupErr := s.store.LedgerEntryByCorrelation(ctx, correlationField(entry), entry.CorrelationKey())
		if lookupErr != nil || existing == nil {
			return nil, model.ErrAlreadyGranted
		}
		appctx.GetLogger(ctx).Info().Str("correlation", entry.CorrelationKey()).Msg("replayed grant")
		return existing, nil
	}
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStorageUnavailable, err)
	}
	return out, nil
}

// GrantWithPromoUsage grants req and, when usage is non-nil, records the
// promo redemption in the same transaction, so the grant and the usage row
// commit or roll back together. A usage row that conflicts with an existing
// one (e.g. the slot checkout reserved) is skipped and the grant still
// commits.
func (s *Service) GrantWithPromoUsage(ctx context.Context, req GrantRequest, usage *model.PromoUsage) (*model.LedgerEntry, error) {
	entry, err := req.toEntry()
	if err != nil {
		return nil, err
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStorageUnavailable, err)
	}
	defer s.store.RollbackTx(tx)

	out, err := s.store.InsertLedgerEntry(ctx, tx, entry)
	if errors.Is(err, model.ErrAlreadyGranted) {
		existing, lookupErr := s.store.LedgerEntryByCorrelation(ctx, correlationField(entry), entry.CorrelationKey())
		if lookupErr != nil || existing == nil {
			return nil, model.ErrAlreadyGranted
		}
		return existing, nil
	}
	if err != nil {
		return nil, err
	}

	if usage != nil {
		// A unique violation aborts the whole Postgres transaction, so the
		// insert runs under a savepoint that a conflict rolls back to.
		if _, err := tx.ExecContext(ctx, "SAVEPOINT promo_usage"); err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrStorageUnavailable, err)
		}
		_, err := s.store.InsertPromoUsage(ctx, tx, usage)
		if errors.Is(err, model.ErrAlreadyConsumed) {
			_, err = tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT promo_usage")
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrStorageUnavailable, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStorageUnavailable, err)
	}
	return out, nil
}

// ConsumeRequest describes a single debit against a photographer's balance
// (spec §4.1 Consume).
type ConsumeRequest struct {
	PhotographerID uuid.UUID
	Amount         int64
	Source         model.LedgerEntrySource
	// Exactly one of the following must be set.
	UploadIntentID string
	AdminOpID      string
}

func (req *ConsumeRequest) correlation() (field, value string, err error) {
	switch {
	case req.UploadIntentID != "":
		return "upload_intent_id", req.UploadIntentID, nil
	case req.AdminOpID != "":
		return "admin_op_id", req.AdminOpID, nil
	default:
		return "", "", errors.New("ledger: consume request must set exactly one correlation field")
	}
}

// Consume debits amount from photographerID's FIFO-by-expiry open credit
// grants in its own transaction, replaying on correlation-key conflict.
// Returns model.ErrInsufficientFunds if the unexpired balance cannot cover
// the debit. Callers that must settle the debit atomically with another
// state change (e.g. the Upload Intent Machine) should use ConsumeTx instead.
func (s *Service) Consume(ctx context.Context, req ConsumeRequest) (*model.LedgerEntry, error) {
	corrField, corrValue, err := req.correlation()
	if err != nil {
		return nil, err
	}
	if existing, err := s.store.LedgerEntryByCorrelation(ctx, corrField, corrValue); err == nil && existing != nil {
		appctx.GetLogger(ctx).Info().Str("correlation", corrValue).Msg("replayed consumption")
		return existing, nil
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStorageUnavailable, err)
	}
	defer s.store.RollbackTx(tx)

	out, err := s.ConsumeTx(ctx, tx, req)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStorageUnavailable, err)
	}
	return out, nil
}

// ConsumeTx performs the same debit as Consume, but within a transaction
// the caller began and will commit, so the debit is atomic with whatever
// other state change the caller makes (spec §4.3: "the state transition and
// debit MUST be in a single transaction; otherwise a crash between them can
// over-consume on retry").
func (s *Service) ConsumeTx(ctx context.Context, tx *sqlx.Tx, req ConsumeRequest) (*model.LedgerEntry, error) {
	if req.Amount <= 0 {
		return nil, errors.New("ledger: consume amount must be positive")
	}
	corrField, corrValue, err := req.correlation()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	grants, err := s.store.OpenCreditsForUpdate(ctx, tx, req.PhotographerID, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStorageUnavailable, err)
	}

	var available int64
	for _, g := range grants {
		available += g.Amount
	}
	if available < req.Amount {
		return nil, model.ErrInsufficientFunds
	}

	// Walk the FIFO-ordered grants and record exactly how much of this debit
	// each one covers, so ExpirySweep can later adjust out a grant's true
	// unconsumed remainder instead of its full original amount (spec §4.1
	// invariant 4).
	remaining := req.Amount
	allocations := make([]model.GrantConsumption, 0, len(grants))
	for _, g := range grants {
		if remaining == 0 {
			break
		}
		drawn := g.Amount
		if drawn > remaining {
			drawn = remaining
		}
		allocations = append(allocations, model.GrantConsumption{GrantEntryID: g.ID, Amount: drawn})
		remaining -= drawn
	}

	entry := &model.LedgerEntry{
		PhotographerID: req.PhotographerID,
		Amount:         -req.Amount,
		Type:           model.LedgerTypeDebit,
		Source:         req.Source,
		IssuedAt:       now,
	}
	if req.UploadIntentID != "" {
		entry.UploadIntentID = dstore.NewNullString(req.UploadIntentID)
	}
	if req.AdminOpID != "" {
		entry.AdminOpID = dstore.NewNullString(req.AdminOpID)
		entry.Type = model.LedgerTypeAdminAdjust
	}

	out, err := s.store.InsertLedgerEntry(ctx, tx, entry)
	if errors.Is(err, model.ErrAlreadyConsumed) {
		existing, lookupErr := s.store.LedgerEntryByCorrelation(ctx, corrField, corrValue)
		if lookupErr != nil || existing == nil {
			return nil, model.ErrAlreadyConsumed
		}
		return existing, nil
	}
	if err != nil {
		return nil, err
	}

	for i := range allocations {
		allocations[i].DebitEntryID = out.ID
	}
	if err := s.store.InsertGrantConsumptions(ctx, tx, allocations); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStorageUnavailable, err)
	}

	return out, nil
}

// LookupByCorrelation returns the ledger entry recorded against field/value,
// or nil if none exists, for callers that must check a grant's existence
// before acting (e.g. refusing a refund with no matching purchase, spec S3).
func (s *Service) LookupByCorrelation(ctx context.Context, field, value string) (*model.LedgerEntry, error) {
	entry, err := s.store.LedgerEntryByCorrelation(ctx, field, value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStorageUnavailable, err)
	}
	return entry, nil
}

// Balance returns photographerID's current spendable balance: the sum of
// all unexpired ledger entries, always computed fresh (spec §9).
func (s *Service) Balance(ctx context.Context, photographerID uuid.UUID) (int64, error) {
	balance, err := s.store.Balance(ctx, photographerID, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", model.ErrStorageUnavailable, err)
	}
	return balance, nil
}

// NextExpiry returns the soonest expires_at among photographerID's
// unexpired credit grants, or nil if none carry an expiry (spec §6
// GET /credits/balance "current balance and nearest expiry").
func (s *Service) NextExpiry(ctx context.Context, photographerID uuid.UUID) (*time.Time, error) {
	expiresAt, err := s.store.NextCreditExpiry(ctx, photographerID, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStorageUnavailable, err)
	}
	return expiresAt, nil
}

// AdjustAdmin records a signed admin_adjust correction against a
// photographer's balance, correlated by opID (minted via
// model.NewCorrelationKey if the caller doesn't supply one). This exercises
// the admin_adjust/admin_adjustment enum values the data model reserves but
// spec.md's operations never give a handler.
func (s *Service) AdjustAdmin(ctx context.Context, photographerID uuid.UUID, amount int64, opID string) (*model.LedgerEntry, error) {
	if opID == "" {
		opID = model.NewCorrelationKey()
	}
	if amount == 0 {
		return nil, errors.New("ledger: admin adjustment amount must be non-zero")
	}
	if amount > 0 {
		return s.Grant(ctx, GrantRequest{
			PhotographerID: photographerID,
			Amount:         amount,
			Source:         model.SourceAdminAdjustment,
			AdminOpID:      opID,
		})
	}
	return s.Consume(ctx, ConsumeRequest{
		PhotographerID: photographerID,
		Amount:         -amount,
		Source:         model.SourceAdminAdjustment,
		AdminOpID:      opID,
	})
}

// ExpirySweep finds credit grants expiring before `before` and writes a
// balancing expiry_adjust entry for each, so the ledger reflects expired
// credits explicitly rather than relying solely on the expires_at filter
// (spec §4.6 / §9). Returns the number of grants adjusted.
func (s *Service) ExpirySweep(ctx context.Context, before time.Time, batchSize int) (int, error) {
	grants, err := s.store.ExpiringBefore(ctx, before, batchSize)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", model.ErrStorageUnavailable, err)
	}

	var adjusted int
	for _, g := range grants {
		tx, err := s.store.BeginTx(ctx)
		if err != nil {
			return adjusted, fmt.Errorf("%w: %v", model.ErrStorageUnavailable, err)
		}

		entry := &model.LedgerEntry{
			PhotographerID: g.PhotographerID,
			Amount:         -g.Amount,
			Type:           model.LedgerTypeExpiryAdjust,
			Source:         g.Source,
			AdminOpID:      dstore.NewNullString(g.ID.String()),
		}
		_, err = s.store.InsertLedgerEntry(ctx, tx, entry)
		if err != nil && !errors.Is(err, model.ErrAlreadyConsumed) {
			s.store.RollbackTx(tx)
			appctx.GetLogger(ctx).Error().Err(err).Str("grant_id", g.ID.String()).Msg("expiry sweep failed to adjust grant")
			continue
		}
		if err := tx.Commit(); err != nil {
			appctx.GetLogger(ctx).Error().Err(err).Str("grant_id", g.ID.String()).Msg("expiry sweep commit failed")
			continue
		}
		adjusted++
	}
	return adjusted, nil
}

func correlationField(e *model.LedgerEntry) string {
	switch {
	case e.StripeSessionID.Valid:
		return "stripe_session_id"
	case e.AppleTransactionID.Valid:
		return "apple_transaction_id"
	case e.AdminOpID.Valid:
		return "admin_op_id"
	case e.UploadIntentID.Valid:
		return "upload_intent_id"
	case e.GiftRedemptionID.Valid:
		return "gift_redemption_id"
	default:
		return ""
	}
}
