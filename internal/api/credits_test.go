package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/putto11262002/sabaipics-core/internal/appctx"
	"github.com/putto11262002/sabaipics-core/internal/ledger"
	"github.com/putto11262002/sabaipics-core/internal/model"
	"github.com/putto11262002/sabaipics-core/internal/storage/storagetest"
)

func withPhotographer(r *http.Request, id uuid.UUID) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), appctx.PhotographerIDCTXKey, id))
}

func TestBalanceHandler(t *testing.T) {
	fake, _ := storagetest.New(t)
	photographerID := uuid.New()
	nextExpiry := time.Now().UTC().Add(72 * time.Hour)
	fake.BalanceFn = func(ctx context.Context, id uuid.UUID, at time.Time) (int64, error) {
		assert.Equal(t, photographerID, id)
		return 7, nil
	}
	fake.NextCreditExpiryFn = func(ctx context.Context, id uuid.UUID, at time.Time) (*time.Time, error) {
		assert.Equal(t, photographerID, id)
		return &nextExpiry, nil
	}

	r := CreditsRouter(nil, ledger.New(fake))

	req := httptest.NewRequest(http.MethodGet, "/balance", nil)
	req = withPhotographer(req, photographerID)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body balanceResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, int64(7), body.Balance)
	require.NotNil(t, body.NearestExpiry)
}

func TestBalanceHandlerNoExpiringCredits(t *testing.T) {
	fake, _ := storagetest.New(t)
	photographerID := uuid.New()
	fake.BalanceFn = func(ctx context.Context, id uuid.UUID, at time.Time) (int64, error) {
		return 0, nil
	}
	fake.NextCreditExpiryFn = func(ctx context.Context, id uuid.UUID, at time.Time) (*time.Time, error) {
		return nil, nil
	}

	r := CreditsRouter(nil, ledger.New(fake))

	req := httptest.NewRequest(http.MethodGet, "/balance", nil)
	req = withPhotographer(req, photographerID)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body balanceResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Nil(t, body.NearestExpiry, "omitted when no grants carry an expiry")
}

func TestBalanceHandlerUnauthenticated(t *testing.T) {
	fake, _ := storagetest.New(t)
	r := CreditsRouter(nil, ledger.New(fake))

	req := httptest.NewRequest(http.MethodGet, "/balance", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPurchaseStatusNotFulfilled(t *testing.T) {
	fake, _ := storagetest.New(t)
	fake.LedgerEntryByCorrelationFn = func(ctx context.Context, field, value string) (*model.LedgerEntry, error) {
		assert.Equal(t, "stripe_session_id", field)
		return nil, nil
	}

	r := CreditsRouter(nil, ledger.New(fake))

	req := httptest.NewRequest(http.MethodGet, "/purchase/sess_123", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, false, body["fulfilled"])
}

func TestPurchaseStatusFulfilled(t *testing.T) {
	fake, _ := storagetest.New(t)
	fake.LedgerEntryByCorrelationFn = func(ctx context.Context, field, value string) (*model.LedgerEntry, error) {
		assert.Equal(t, "sess_123", value)
		return &model.LedgerEntry{Amount: 10}, nil
	}

	r := CreditsRouter(nil, ledger.New(fake))

	req := httptest.NewRequest(http.MethodGet, "/purchase/sess_123", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, true, body["fulfilled"])
	assert.Equal(t, float64(10), body["credits"])
}
