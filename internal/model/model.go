// Package model provides the data types the credit & upload pipeline
// operates on: the Photographer tenant, the append-only LedgerEntry
// journal, UploadIntent state objects, and the promotional code primitives.
// Modeled on services/skus/model.Order's shape: database/json dual-tagged
// structs, sentinel Error string constants, and small pure helper methods.
package model

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/putto11262002/sabaipics-core/internal/dstore"
)

// Error is a sentinel business/validation error, matching services/skus/model.Error.
type Error string

func (e Error) Error() string { return string(e) }

const (
	// ErrPhotographerNotFound indicates no such tenant exists.
	ErrPhotographerNotFound Error = "model: photographer not found"
	// ErrEventNotFound indicates the referenced upload event does not exist.
	ErrEventNotFound Error = "model: event not found"
	// ErrEventExpired indicates the referenced upload event has expired.
	ErrEventExpired Error = "model: event expired"
	// ErrEventOwnerMismatch indicates the event does not belong to the caller.
	ErrEventOwnerMismatch Error = "model: event does not belong to photographer"
	// ErrIntentNotFound indicates no such upload intent exists.
	ErrIntentNotFound Error = "model: upload intent not found"
	// ErrIntentStateForbids indicates the requested transition is illegal from the intent's current status.
	ErrIntentStateForbids Error = "model: upload intent status forbids this operation"
	// ErrContentTypeNotAllowed indicates the presign request's content type is not in the allowed set.
	ErrContentTypeNotAllowed Error = "model: content type not allowed"
	// ErrContentTooLarge indicates the presign request's content length exceeds the global max.
	ErrContentTooLarge Error = "model: content length exceeds maximum"

	// ErrInsufficientFunds indicates the photographer's balance cannot cover the requested debit.
	ErrInsufficientFunds Error = "model: insufficient funds"
	// ErrAlreadyGranted indicates a grant with this correlation key was already recorded (idempotent replay).
	ErrAlreadyGranted Error = "model: grant already recorded"
	// ErrAlreadyConsumed indicates a debit with this correlation key was already recorded (idempotent replay).
	ErrAlreadyConsumed Error = "model: consumption already recorded"
	// ErrStorageUnavailable indicates a transient datastore failure; callers may retry.
	ErrStorageUnavailable Error = "model: storage unavailable"

	// ErrPromoNotFound indicates no such promotional code exists.
	ErrPromoNotFound Error = "model: promo code not found"
	// ErrPromoInactive indicates the promotional code is not active or has expired.
	ErrPromoInactive Error = "model: promo code inactive or expired"
	// ErrPromoAlreadyUsed indicates the photographer has exhausted their per-user redemption cap.
	ErrPromoAlreadyUsed Error = "model: promo code already used by this photographer"
	// ErrPromoExhausted indicates the promotional code has hit its global redemption cap.
	ErrPromoExhausted Error = "model: promo code redemption cap reached"
	// ErrPromoNotEligible indicates the photographer is not on the code's allow-list.
	ErrPromoNotEligible Error = "model: photographer not eligible for this promo code"
)

// LedgerEntryType enumerates the `type` column of ledger_entries (spec.md §3).
type LedgerEntryType string

const (
	LedgerTypeCredit        LedgerEntryType = "credit"
	LedgerTypeDebit         LedgerEntryType = "debit"
	LedgerTypePurchase      LedgerEntryType = "purchase"
	LedgerTypeGift          LedgerEntryType = "gift"
	LedgerTypeRefund        LedgerEntryType = "refund"
	LedgerTypeExpiryAdjust  LedgerEntryType = "expiry_adjust"
	LedgerTypeAdminAdjust   LedgerEntryType = "admin_adjust"
)

// LedgerEntrySource enumerates the `source` column of ledger_entries.
type LedgerEntrySource string

const (
	SourcePurchase        LedgerEntrySource = "purchase"
	SourceGift            LedgerEntrySource = "gift"
	SourceDiscount        LedgerEntrySource = "discount"
	SourceRefund          LedgerEntrySource = "refund"
	SourceAdminAdjustment LedgerEntrySource = "admin_adjustment"
	SourceApplePurchase   LedgerEntrySource = "apple_purchase"
	SourceUpload          LedgerEntrySource = "upload"
)

// Photographer is the tenant identity that owns ledger entries and upload intents.
type Photographer struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	ExternalAuthID string    `json:"externalAuthId" db:"external_auth_id"`
	Email         string     `json:"email" db:"email"`
	DisplayName   string     `json:"displayName" db:"display_name"`
	CreatedAt     time.Time  `json:"createdAt" db:"created_at"`
	BannedAt      *time.Time `json:"bannedAt,omitempty" db:"banned_at"`
	DeletedAt     *time.Time `json:"deletedAt,omitempty" db:"deleted_at"`
	// CachedBalance is a read-optimization only; the ledger is always authoritative (§9 open question).
	CachedBalance int64 `json:"cachedBalance" db:"cached_balance"`
}

// LedgerEntry is a single immutable row in the append-only credit journal.
// Exactly one of the correlation fields is set, and each is backed by a
// UNIQUE constraint, which is the idempotency guarantee described in spec §3.
type LedgerEntry struct {
	ID             uuid.UUID           `json:"id" db:"id"`
	PhotographerID uuid.UUID           `json:"photographerId" db:"photographer_id"`
	Amount         int64               `json:"amount" db:"amount"`
	Type           LedgerEntryType     `json:"type" db:"type"`
	Source         LedgerEntrySource   `json:"source" db:"source"`
	ExpiresAt      *time.Time          `json:"expiresAt,omitempty" db:"expires_at"`
	IssuedAt       time.Time           `json:"issuedAt" db:"issued_at"`

	StripeSessionID     dstore.NullString `json:"stripeSessionId,omitempty" db:"stripe_session_id"`
	AppleTransactionID  dstore.NullString `json:"appleTransactionId,omitempty" db:"apple_transaction_id"`
	AdminOpID           dstore.NullString `json:"adminOpId,omitempty" db:"admin_op_id"`
	UploadIntentID      dstore.NullString `json:"uploadIntentId,omitempty" db:"upload_intent_id"`
	GiftRedemptionID    dstore.NullString `json:"giftRedemptionId,omitempty" db:"gift_redemption_id"`
}

// CorrelationKey returns whichever of the five correlation fields is set.
// Exactly one must be non-empty for a well-formed entry.
func (e *LedgerEntry) CorrelationKey() string {
	switch {
	case e.StripeSessionID.Valid:
		return e.StripeSessionID.String
	case e.AppleTransactionID.Valid:
		return e.AppleTransactionID.String
	case e.AdminOpID.Valid:
		return e.AdminOpID.String
	case e.UploadIntentID.Valid:
		return e.UploadIntentID.String
	case e.GiftRedemptionID.Valid:
		return e.GiftRedemptionID.String
	default:
		return ""
	}
}

// IsExpired reports whether the entry's grant has expired as of at.
func (e *LedgerEntry) IsExpired(at time.Time) bool {
	return e.ExpiresAt != nil && !e.ExpiresAt.After(at)
}

// GrantConsumption records how much of a debit entry was drawn from a
// specific credit grant during FIFO consumption, so ExpirySweep can later
// compute a grant's true unconsumed remainder instead of re-debiting its
// full original amount (spec §4.1 invariant 4).
type GrantConsumption struct {
	DebitEntryID uuid.UUID `json:"debitEntryId" db:"debit_entry_id"`
	GrantEntryID uuid.UUID `json:"grantEntryId" db:"grant_entry_id"`
	Amount       int64     `json:"amount" db:"amount"`
}

// UploadIntentStatus enumerates the states of the presigned-upload lifecycle (spec §4.3).
type UploadIntentStatus string

const (
	IntentStatusPending   UploadIntentStatus = "pending"
	IntentStatusUploaded  UploadIntentStatus = "uploaded"
	IntentStatusCompleted UploadIntentStatus = "completed"
	IntentStatusExpired   UploadIntentStatus = "expired"
	IntentStatusFailed    UploadIntentStatus = "failed"
	IntentStatusCancelled UploadIntentStatus = "cancelled"
)

// UploadIntent is the state object for a single pending direct-to-storage upload.
type UploadIntent struct {
	ID                uuid.UUID          `json:"id" db:"id"`
	PhotographerID    uuid.UUID          `json:"photographerId" db:"photographer_id"`
	EventID           uuid.UUID          `json:"eventId" db:"event_id"`
	ObjectKey         string             `json:"objectKey" db:"object_key"`
	ContentType       string             `json:"contentType" db:"content_type"`
	ContentLength     int64              `json:"contentLength" db:"content_length"`
	Status            UploadIntentStatus `json:"status" db:"status"`
	PresignExpiresAt  time.Time          `json:"presignExpiresAt" db:"presign_expires_at"`
	CreatedAt         time.Time          `json:"createdAt" db:"created_at"`
	CompletedAt       *time.Time         `json:"completedAt,omitempty" db:"completed_at"`
	ErrorCode         dstore.NullString  `json:"errorCode,omitempty" db:"error_code"`
	ErrorMessage      dstore.NullString  `json:"errorMessage,omitempty" db:"error_message"`
	PhotoID           *uuid.UUID         `json:"photoId,omitempty" db:"photo_id"`
}

// CanRepresign reports whether the intent may be rotated to a new object key (spec §4.3).
func (i *UploadIntent) CanRepresign() bool {
	switch i.Status {
	case IntentStatusPending, IntentStatusExpired, IntentStatusFailed:
		return true
	default:
		return false
	}
}

// IsExpired reports whether the presign window has lapsed as of at.
func (i *UploadIntent) IsExpired(at time.Time) bool {
	return i.Status == IntentStatusPending && !i.PresignExpiresAt.After(at)
}

// PromoKind distinguishes gift codes (free credits) from discount codes (price reduction).
type PromoKind string

const (
	PromoKindGift     PromoKind = "gift"
	PromoKindDiscount PromoKind = "discount"
)

// PromoCode is the shared shape of GiftCode/DiscountCode (spec §3): the same
// table backs both kinds, distinguished by Kind and the effect fields that
// apply to it.
type PromoCode struct {
	Code                  string           `json:"code" db:"code"`
	Kind                  PromoKind        `json:"kind" db:"kind"`
	GrantAmount           int64            `json:"grantAmount,omitempty" db:"grant_amount"`
	GrantExpiresIn        *time.Duration   `json:"grantExpiresIn,omitempty" db:"grant_expires_in"`
	PercentOff            *int             `json:"percentOff,omitempty" db:"percent_off"`
	AmountOffMinorUnits    *int64          `json:"amountOffMinorUnits,omitempty" db:"amount_off_minor_units"`
	ExpiresAt             *time.Time       `json:"expiresAt,omitempty" db:"expires_at"`
	MaxRedemptions        int              `json:"maxRedemptions" db:"max_redemptions"`
	MaxRedemptionsPerUser int              `json:"maxRedemptionsPerUser" db:"max_redemptions_per_user"`
	TargetPhotographerIDs []uuid.UUID      `json:"targetPhotographerIds,omitempty" db:"target_photographer_ids"`
	Active                bool             `json:"active" db:"active"`
}

// HasAllowList reports whether the code restricts redemption to a set of photographers.
func (p *PromoCode) HasAllowList() bool { return len(p.TargetPhotographerIDs) > 0 }

// IsEligible reports whether photographerID may redeem this code.
func (p *PromoCode) IsEligible(photographerID uuid.UUID) bool {
	if !p.HasAllowList() {
		return true
	}
	for _, id := range p.TargetPhotographerIDs {
		if id == photographerID {
			return true
		}
	}
	return false
}

// IsActive reports whether the code is usable as of at.
func (p *PromoCode) IsActive(at time.Time) bool {
	if !p.Active {
		return false
	}
	if p.ExpiresAt != nil && !p.ExpiresAt.After(at) {
		return false
	}
	return true
}

// PromoUsage records a single redemption of a PromoCode by a photographer,
// uniquely indexed on (code, photographer) and (code, correlation) to back
// the per-user and per-checkout caps described in spec §3.
type PromoUsage struct {
	ID             uuid.UUID         `json:"id" db:"id"`
	Code           string            `json:"code" db:"code"`
	PhotographerID uuid.UUID         `json:"photographerId" db:"photographer_id"`
	Correlation    string            `json:"correlation" db:"correlation"`
	CreatedAt      time.Time         `json:"createdAt" db:"created_at"`
}

// ResolvedPromo is the effect a PromoCode resolves to for a checkout (spec §4.4).
type ResolvedPromo struct {
	Code                string
	Kind                PromoKind
	GrantAmount         int64
	GrantExpiresIn      *time.Duration
	PercentOff          *int
	AmountOffMinorUnits *int64
}

// ApplyToAmount returns the payable amount (in minor units) after a discount
// effect is applied; gift codes do not affect payable amount.
func (r *ResolvedPromo) ApplyToAmount(amount decimal.Decimal) decimal.Decimal {
	switch {
	case r.PercentOff != nil:
		factor := decimal.NewFromInt(100 - int64(*r.PercentOff)).Div(decimal.NewFromInt(100))
		return amount.Mul(factor).Round(0)
	case r.AmountOffMinorUnits != nil:
		result := amount.Sub(decimal.NewFromInt(*r.AmountOffMinorUnits))
		if result.IsNegative() {
			return decimal.Zero
		}
		return result
	default:
		return amount
	}
}

// ConsumptionStatus classifies how much of a grant has been consumed (spec §4.5).
type ConsumptionStatus string

const (
	ConsumptionNotConsumed       ConsumptionStatus = "NOT_CONSUMED"
	ConsumptionPartiallyConsumed ConsumptionStatus = "PARTIALLY_CONSUMED"
	ConsumptionFullyConsumed     ConsumptionStatus = "FULLY_CONSUMED"
)

// ConsumptionReport is the answer to a mobile-store consumption_request.
type ConsumptionReport struct {
	Granted      int64             `json:"granted"`
	ConsumedSince int64            `json:"consumedSince"`
	Status       ConsumptionStatus `json:"status"`
}

// NullTime is a convenience alias used by datastore time-bound queries.
type NullTime = sql.NullTime

// NewCorrelationKey mints a fresh correlation id for operations (e.g. admin
// adjustments) that don't have a naturally-occurring external reference.
func NewCorrelationKey() string {
	return uuid.NewString()
}
