package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-snapshot-etl/internal/domain"
	"market-snapshot-etl/internal/storage"
)

func floatPtr(f float64) *float64 { return &f }

func snapshot(symbol string, ts time.Time, price float64) *domain.SnapshotRecord {
	return &domain.SnapshotRecord{
		Symbol:       symbol,
		SnapshotTime: ts,
		PriceUSD:     floatPtr(price),
		FetchedAt:    time.Now().UTC(),
	}
}

func TestSnapshotStore_UpsertBulk(t *testing.T) {
	store := NewSnapshotStore()
	ctx := context.Background()
	ts := time.Date(2025, 11, 13, 8, 27, 11, 0, time.UTC)

	n, err := store.UpsertBulk(ctx, []*domain.SnapshotRecord{
		snapshot("bitcoin", ts, 100000),
		snapshot("ethereum", ts, 3500),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestSnapshotStore_UpsertOverwrites(t *testing.T) {
	store := NewSnapshotStore()
	ctx := context.Background()
	ts := time.Date(2025, 11, 13, 8, 27, 11, 0, time.UTC)

	_, err := store.UpsertBulk(ctx, []*domain.SnapshotRecord{snapshot("bitcoin", ts, 100000)})
	require.NoError(t, err)
	_, err = store.UpsertBulk(ctx, []*domain.SnapshotRecord{snapshot("bitcoin", ts, 100500)})
	require.NoError(t, err)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "same key must not create a second row")

	got, err := store.GetByKey(ctx, "bitcoin", ts)
	require.NoError(t, err)
	require.NotNil(t, got.PriceUSD)
	assert.Equal(t, 100500.0, *got.PriceUSD)
}

func TestSnapshotStore_UpsertEmpty(t *testing.T) {
	store := NewSnapshotStore()

	n, err := store.UpsertBulk(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSnapshotStore_UpsertInvalidInput(t *testing.T) {
	store := NewSnapshotStore()
	ts := time.Date(2025, 11, 13, 8, 27, 11, 0, time.UTC)

	_, err := store.UpsertBulk(context.Background(), []*domain.SnapshotRecord{snapshot("", ts, 1)})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestSnapshotStore_GetByKeyNotFound(t *testing.T) {
	store := NewSnapshotStore()

	_, err := store.GetByKey(context.Background(), "bitcoin", time.Now().UTC())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSnapshotStore_GetBySymbolOrdered(t *testing.T) {
	store := NewSnapshotStore()
	ctx := context.Background()
	base := time.Date(2025, 11, 13, 0, 0, 0, 0, time.UTC)

	_, err := store.UpsertBulk(ctx, []*domain.SnapshotRecord{
		snapshot("bitcoin", base.Add(2*time.Hour), 3),
		snapshot("bitcoin", base, 1),
		snapshot("bitcoin", base.Add(time.Hour), 2),
		snapshot("ethereum", base, 10),
	})
	require.NoError(t, err)

	snaps, err := store.GetBySymbol(ctx, "bitcoin")
	require.NoError(t, err)
	require.Len(t, snaps, 3)
	for i := 1; i < len(snaps); i++ {
		assert.True(t, snaps[i-1].SnapshotTime.Before(snaps[i].SnapshotTime))
	}
}

func TestSnapshotStore_CopySemantics(t *testing.T) {
	store := NewSnapshotStore()
	ctx := context.Background()
	ts := time.Date(2025, 11, 13, 8, 27, 11, 0, time.UTC)

	original := snapshot("bitcoin", ts, 100000)
	_, err := store.UpsertBulk(ctx, []*domain.SnapshotRecord{original})
	require.NoError(t, err)

	// Mutating the caller's record must not reach the store.
	original.Symbol = "mutated"

	got, err := store.GetByKey(ctx, "bitcoin", ts)
	require.NoError(t, err)
	assert.Equal(t, "bitcoin", got.Symbol)
}
