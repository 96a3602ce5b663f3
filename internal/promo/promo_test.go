package promo

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

func activeCode() *model.PromoCode {
	return &model.PromoCode{Code: "SUMMER", Kind: model.PromoKindDiscount, Active: true}
}

func TestResolveInactiveCode(t *testing.T) {
	fake, _ := storagetest.New(t)
	fake.GetPromoCodeFn = func(ctx context.Context, code string) (*model.PromoCode, error) {
		return &model.PromoCode{Code: code, Active: false}, nil
	}

	r := New(fake)
	_, err := r.Resolve(context.Background(), "SUMMER", uuid.New())
	assert.ErrorIs(t, err, model.ErrPromoInactive)
}

func TestResolveNotEligible(t *testing.T) {
	fake, _ := storagetest.New(t)
	allowed := uuid.New()
	fake.GetPromoCodeFn = func(ctx context.Context, code string) (*model.PromoCode, error) {
		c := activeCode()
		c.TargetPhotographerIDs = []uuid.UUID{allowed}
		return c, nil
	}

	r := New(fake)
	_, err := r.Resolve(context.Background(), "SUMMER", uuid.New())
	assert.ErrorIs(t, err, model.ErrPromoNotEligible)
}

func TestResolveExhausted(t *testing.T) {
	fake, _ := storagetest.New(t)
	fake.GetPromoCodeFn = func(ctx context.Context, code string) (*model.PromoCode, error) {
		c := activeCode()
		c.MaxRedemptions = 5
		return c, nil
	}
	fake.CountPromoRedemptionsFn = func(ctx context.Context, code string) (int, error) {
		return 5, nil
	}

	r := New(fake)
	_, err := r.Resolve(context.Background(), "SUMMER", uuid.New())
	assert.ErrorIs(t, err, model.ErrPromoExhausted)
}

func TestResolveAlreadyUsedByPhotographer(t *testing.T) {
	fake, _ := storagetest.New(t)
	fake.GetPromoCodeFn = func(ctx context.Context, code string) (*model.PromoCode, error) {
		c := activeCode()
		c.MaxRedemptionsPerUser = 1
		return c, nil
	}
	fake.CountPromoRedemptionsByPhotographerFn = func(ctx context.Context, code string, photographerID uuid.UUID) (int, error) {
		return 1, nil
	}

	r := New(fake)
	_, err := r.Resolve(context.Background(), "SUMMER", uuid.New())
	assert.ErrorIs(t, err, model.ErrPromoAlreadyUsed)
}

func TestResolveSuccess(t *testing.T) {
	fake, _ := storagetest.New(t)
	percentOff := 15
	fake.GetPromoCodeFn = func(ctx context.Context, code string) (*model.PromoCode, error) {
		c := activeCode()
		c.PercentOff = &percentOff
		return c, nil
	}

	r := New(fake)
	resolved, err := r.Resolve(context.Background(), "SUMMER", uuid.New())
	require.NoError(t, err)
	assert.Equal(t, "SUMMER", resolved.Code)
	assert.Equal(t, &percentOff, resolved.PercentOff)
}

func TestResolveExpiredCode(t *testing.T) {
	fake, _ := storagetest.New(t)
	past := time.Now().UTC().Add(-time.Hour)
	fake.GetPromoCodeFn = func(ctx context.Context, code string) (*model.PromoCode, error) {
		c := activeCode()
		c.ExpiresAt = &past
		return c, nil
	}

	r := New(fake)
	_, err := r.Resolve(context.Background(), "SUMMER", uuid.New())
	assert.ErrorIs(t, err, model.ErrPromoInactive)
}

func TestRecordUsageAlreadyUsedMapsToPromoError(t *testing.T) {
	fake, mock := storagetest.New(t)
	mock.ExpectBegin()

	fake.InsertPromoUsageFn = func(ctx context.Context, tx *sqlx.Tx, usage *model.PromoUsage) (*model.PromoUsage, error) {
		return nil, model.ErrAlreadyConsumed
	}

	r := New(fake)
	tx, err := fake.BeginTx(context.Background())
	require.NoError(t, err)
	defer fake.RollbackTx(tx)

	_, err = r.RecordUsage(context.Background(), tx, "SUMMER", uuid.New(), "checkout-1")
	assert.ErrorIs(t, err, model.ErrPromoAlreadyUsed)
}

func TestResolveAndReserveCommitsUsageInsideTransaction(t *testing.T) {
	fake, mock := storagetest.New(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	percentOff := 15
	fake.GetPromoCodeFn = func(ctx context.Context, code string) (*model.PromoCode, error) {
		c := activeCode()
		c.PercentOff = &percentOff
		return c, nil
	}

	var insertedUsage *model.PromoUsage
	fake.InsertPromoUsageFn = func(ctx context.Context, tx *sqlx.Tx, usage *model.PromoUsage) (*model.PromoUsage, error) {
		insertedUsage = usage
		out := *usage
		return &out, nil
	}

	r := New(fake)
	photographerID := uuid.New()
	resolved, err := r.ResolveAndReserve(context.Background(), "SUMMER", photographerID, "reservation-1")
	require.NoError(t, err)
	assert.Equal(t, "SUMMER", resolved.Code)
	require.NotNil(t, insertedUsage, "usage is reserved before a checkout URL is ever returned")
	assert.Equal(t, photographerID, insertedUsage.PhotographerID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveAndReserveRejectsConcurrentReservation(t *testing.T) {
	fake, mock := storagetest.New(t)
	mock.ExpectBegin()

	fake.GetPromoCodeFn = func(ctx context.Context, code string) (*model.PromoCode, error) {
		return activeCode(), nil
	}
	fake.InsertPromoUsageFn = func(ctx context.Context, tx *sqlx.Tx, usage *model.PromoUsage) (*model.PromoUsage, error) {
		return nil, model.ErrAlreadyConsumed
	}

	r := New(fake)
	_, err := r.ResolveAndReserve(context.Background(), "SUMMER", uuid.New(), "reservation-2")
	assert.ErrorIs(t, err, model.ErrPromoAlreadyUsed, "a second concurrent reservation for the same code+photographer must fail, not silently proceed")
}

func TestNewUsage(t *testing.T) {
	photographerID := uuid.New()
	usage := NewUsage("SUMMER", photographerID, "checkout-1")
	assert.Equal(t, "SUMMER", usage.Code)
	assert.Equal(t, photographerID, usage.PhotographerID)
	assert.Equal(t, "checkout-1", usage.Correlation)
}
