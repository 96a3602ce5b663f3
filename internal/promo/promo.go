// Package promo implements the gift/discount code validation and
// redemption-cap enforcement described in spec.md §4.4, modeled on
// services/skus's order-creation validation style: load, check a battery of
// business invariants in order, and surface the first violation as a typed
// model.Error.
package promo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/putto11262002/sabaipics-core/internal/model"
	"github.com/putto11262002/sabaipics-core/internal/storage"
)

// Resolver validates and resolves promotional codes.
type Resolver struct {
	store storage.Datastore
}

// New builds a Resolver over store.
func New(store storage.Datastore) *Resolver {
	return &Resolver{store: store}
}

// Resolve loads code and validates it against photographer, returning the
// effect to apply to the checkout in progress (spec §4.4).
func (r *Resolver) Resolve(ctx context.Context, code string, photographerID uuid.UUID) (*model.ResolvedPromo, error) {
	promo, err := r.store.GetPromoCode(ctx, code)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if !promo.IsActive(now) {
		return nil, model.ErrPromoInactive
	}
	if !promo.IsEligible(photographerID) {
		return nil, model.ErrPromoNotEligible
	}

	if promo.MaxRedemptions > 0 {
		total, err := r.store.CountPromoRedemptions(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrStorageUnavailable, err)
		}
		if total >= promo.MaxRedemptions {
			return nil, model.ErrPromoExhausted
		}
	}

	if promo.MaxRedemptionsPerUser > 0 {
		used, err := r.store.CountPromoRedemptionsByPhotographer(ctx, code, photographerID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrStorageUnavailable, err)
		}
		if used >= promo.MaxRedemptionsPerUser {
			return nil, model.ErrPromoAlreadyUsed
		}
	}

	resolved := &model.ResolvedPromo{
		Code:                promo.Code,
		Kind:                promo.Kind,
		GrantAmount:         promo.GrantAmount,
		GrantExpiresIn:      promo.GrantExpiresIn,
		PercentOff:          promo.PercentOff,
		AmountOffMinorUnits: promo.AmountOffMinorUnits,
	}
	return resolved, nil
}

// RecordUsage inserts a redemption row for code within tx, backed by the
// (code, photographer) and (code, correlation) unique indices that resolve
// concurrent redemption races (spec §4.4). Returns model.ErrPromoAlreadyUsed
// on conflict.
func (r *Resolver) RecordUsage(ctx context.Context, tx *sqlx.Tx, code string, photographerID uuid.UUID, correlation string) (*model.PromoUsage, error) {
	usage := &model.PromoUsage{
		Code:           code,
		PhotographerID: photographerID,
		Correlation:    correlation,
	}
	out, err := r.store.InsertPromoUsage(ctx, tx, usage)
	if err != nil {
		if errors.Is(err, model.ErrAlreadyConsumed) {
			return nil, model.ErrPromoAlreadyUsed
		}
		return nil, err
	}
	return out, nil
}

// ResolveAndReserve validates code the same way Resolve does and then
// reserves a usage slot for photographerID inside its own transaction,
// before the caller hands a checkout URL back to the client (spec §4.4:
// "the Resolver is always invoked inside the checkout-session-creation
// transaction so that the usage slot is reserved atomically"). This closes
// the race a read-only Resolve leaves open: two concurrent checkout
// creations for the same single-use code now have only one winner, since
// the second's InsertPromoUsage hits the (code, photographer) unique index
// and comes back as model.ErrPromoAlreadyUsed.
func (r *Resolver) ResolveAndReserve(ctx context.Context, code string, photographerID uuid.UUID, correlation string) (*model.ResolvedPromo, error) {
	resolved, err := r.Resolve(ctx, code, photographerID)
	if err != nil {
		return nil, err
	}

	tx, err := r.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStorageUnavailable, err)
	}
	defer r.store.RollbackTx(tx)

	if _, err := r.RecordUsage(ctx, tx, code, photographerID, correlation); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStorageUnavailable, err)
	}
	return resolved, nil
}

// NewUsage builds the model.PromoUsage value for a resolved redemption
// without persisting it, for callers (e.g. the webhook gatekeeper) that
// need to pass it through to ledger.Service.GrantWithPromoUsage so the
// insert happens in the same transaction as the grant.
func NewUsage(code string, photographerID uuid.UUID, correlation string) *model.PromoUsage {
	return &model.PromoUsage{Code: code, PhotographerID: photographerID, Correlation: correlation}
}
