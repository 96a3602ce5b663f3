package httpmw

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/putto11262002/sabaipics-core/internal/model"
	"github.com/putto11262002/sabaipics-core/internal/storage/storagetest"
)

func passthrough(called *bool, gotID *uuid.UUID) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		id, _ := PhotographerID(r)
		*gotID = id
		w.WriteHeader(http.StatusOK)
	})
}

func TestPhotographerAuthMissingBearer(t *testing.T) {
	fake, _ := storagetest.New(t)
	handler := PhotographerAuth(fake)(passthrough(new(bool), new(uuid.UUID)))

	req := httptest.NewRequest(http.MethodGet, "/uploads/status", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPhotographerAuthUnknownCredentials(t *testing.T) {
	fake, _ := storagetest.New(t)
	fake.GetPhotographerByExternalAuthIDFn = func(ctx context.Context, externalAuthID string) (*model.Photographer, error) {
		return nil, model.ErrPhotographerNotFound
	}
	handler := PhotographerAuth(fake)(passthrough(new(bool), new(uuid.UUID)))

	req := httptest.NewRequest(http.MethodGet, "/uploads/status", nil)
	req.Header.Set("Authorization", "Bearer unknown-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPhotographerAuthBanned(t *testing.T) {
	fake, _ := storagetest.New(t)
	now := time.Now().UTC()
	fake.GetPhotographerByExternalAuthIDFn = func(ctx context.Context, externalAuthID string) (*model.Photographer, error) {
		return &model.Photographer{ID: uuid.New(), BannedAt: &now}, nil
	}
	handler := PhotographerAuth(fake)(passthrough(new(bool), new(uuid.UUID)))

	req := httptest.NewRequest(http.MethodGet, "/uploads/status", nil)
	req.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestPhotographerAuthDeleted(t *testing.T) {
	fake, _ := storagetest.New(t)
	now := time.Now().UTC()
	fake.GetPhotographerByExternalAuthIDFn = func(ctx context.Context, externalAuthID string) (*model.Photographer, error) {
		return &model.Photographer{ID: uuid.New(), DeletedAt: &now}, nil
	}
	handler := PhotographerAuth(fake)(passthrough(new(bool), new(uuid.UUID)))

	req := httptest.NewRequest(http.MethodGet, "/uploads/status", nil)
	req.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPhotographerAuthSuccess(t *testing.T) {
	fake, _ := storagetest.New(t)
	photographerID := uuid.New()
	fake.GetPhotographerByExternalAuthIDFn = func(ctx context.Context, externalAuthID string) (*model.Photographer, error) {
		assert.Equal(t, "auth0|abc", externalAuthID)
		return &model.Photographer{ID: photographerID}, nil
	}

	var called bool
	var gotID uuid.UUID
	handler := PhotographerAuth(fake)(passthrough(&called, &gotID))

	req := httptest.NewRequest(http.MethodGet, "/uploads/status", nil)
	req.Header.Set("Authorization", "bearer auth0|abc")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, called)
	assert.Equal(t, photographerID, gotID)
}
