package retention

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/putto11262002/sabaipics-core/internal/ledger"
	"github.com/putto11262002/sabaipics-core/internal/model"
	"github.com/putto11262002/sabaipics-core/internal/storage/storagetest"
)

func TestRunSoftDeleteNoWork(t *testing.T) {
	fake, _ := storagetest.New(t)
	fake.SoftDeleteExpiredEventsFn = func(ctx context.Context, before time.Time, limit int) ([]uuid.UUID, error) {
		return nil, nil
	}

	s := New(DefaultConfig(), fake, ledger.New(fake), nil)
	attempted, err := s.runSoftDelete(context.Background())
	require.NoError(t, err)
	assert.False(t, attempted, "an empty pass reports no work so the ticker idles")
}

func TestRunSoftDeleteFindsWork(t *testing.T) {
	fake, _ := storagetest.New(t)
	fake.SoftDeleteExpiredEventsFn = func(ctx context.Context, before time.Time, limit int) ([]uuid.UUID, error) {
		return []uuid.UUID{uuid.New(), uuid.New()}, nil
	}

	s := New(DefaultConfig(), fake, ledger.New(fake), nil)
	attempted, err := s.runSoftDelete(context.Background())
	require.NoError(t, err)
	assert.True(t, attempted)
}

func TestRunSoftDeletePropagatesError(t *testing.T) {
	fake, _ := storagetest.New(t)
	fake.SoftDeleteExpiredEventsFn = func(ctx context.Context, before time.Time, limit int) ([]uuid.UUID, error) {
		return nil, assert.AnError
	}

	s := New(DefaultConfig(), fake, ledger.New(fake), nil)
	_, err := s.runSoftDelete(context.Background())
	assert.Error(t, err)
}

func TestRunHardDeleteNoWork(t *testing.T) {
	fake, _ := storagetest.New(t)
	fake.HardDeleteSoftDeletedEventsFn = func(ctx context.Context, before time.Time, limit int) (int64, error) {
		return 0, nil
	}

	s := New(DefaultConfig(), fake, ledger.New(fake), nil)
	attempted, err := s.runHardDelete(context.Background())
	require.NoError(t, err)
	assert.False(t, attempted)
}

func TestRunExpireIntentsFindsWork(t *testing.T) {
	fake, _ := storagetest.New(t)
	fake.ExpireStaleIntentsFn = func(ctx context.Context, before time.Time, limit int) (int64, error) {
		return 3, nil
	}

	s := New(DefaultConfig(), fake, ledger.New(fake), nil)
	attempted, err := s.runExpireIntents(context.Background())
	require.NoError(t, err)
	assert.True(t, attempted)
}

func TestRunExpirySweepReportsAttemptedOnlyWhenAdjusted(t *testing.T) {
	fake, _ := storagetest.New(t)
	fake.ExpiringBeforeFn = func(ctx context.Context, before time.Time, limit int) ([]model.LedgerEntry, error) {
		return nil, nil
	}

	s := New(DefaultConfig(), fake, ledger.New(fake), nil)
	attempted, err := s.runExpirySweep(context.Background())
	require.NoError(t, err)
	assert.False(t, attempted)
}

func TestPublishNoopsWithoutWriter(t *testing.T) {
	fake, _ := storagetest.New(t)
	s := New(DefaultConfig(), fake, ledger.New(fake), nil)
	// Must not panic when no kafka.Writer is configured (local/dev run).
	s.publish(context.Background(), topicSoftDelete, []byte("id"))
}
