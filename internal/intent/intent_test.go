package intent

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/putto11262002/sabaipics-core/internal/ledger"
	"github.com/putto11262002/sabaipics-core/internal/model"
	"github.com/putto11262002/sabaipics-core/internal/storage/storagetest"
)

// CreatePresign, Represign, and SettleUpload all drive a concrete
// *objectstore.Client and have no unit tests here or in the API handler
// tests (see DESIGN.md).

func TestStatusSkipsUnknownIntents(t *testing.T) {
	fake, _ := storagetest.New(t)
	known := uuid.New()
	unknown := uuid.New()

	fake.GetUploadIntentFn = func(ctx context.Context, id uuid.UUID) (*model.UploadIntent, error) {
		if id == known {
			return &model.UploadIntent{ID: known, Status: model.IntentStatusCompleted}, nil
		}
		return nil, model.ErrIntentNotFound
	}

	m := New(fake, ledger.New(fake), nil, nil, nil)
	out, err := m.Status(context.Background(), []uuid.UUID{known, unknown})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, known, out[0].ID)
}

func TestStatusPropagatesStorageError(t *testing.T) {
	fake, _ := storagetest.New(t)
	fake.GetUploadIntentFn = func(ctx context.Context, id uuid.UUID) (*model.UploadIntent, error) {
		return nil, assert.AnError
	}

	m := New(fake, ledger.New(fake), nil, nil, nil)
	_, err := m.Status(context.Background(), []uuid.UUID{uuid.New()})
	require.ErrorIs(t, err, model.ErrStorageUnavailable)
}

func TestListIntentsDelegatesToStore(t *testing.T) {
	fake, _ := storagetest.New(t)
	photographerID := uuid.New()
	want := []model.UploadIntent{{ID: uuid.New(), PhotographerID: photographerID}}

	fake.ListUploadIntentsFn = func(ctx context.Context, pid uuid.UUID, eventID *uuid.UUID, status *model.UploadIntentStatus) ([]model.UploadIntent, error) {
		assert.Equal(t, photographerID, pid)
		assert.Nil(t, eventID)
		assert.Nil(t, status)
		return want, nil
	}

	m := New(fake, ledger.New(fake), nil, nil, nil)
	out, err := m.ListIntents(context.Background(), photographerID, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, want, out)
}
