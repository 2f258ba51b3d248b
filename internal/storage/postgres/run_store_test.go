package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-snapshot-etl/internal/domain"
	"market-snapshot-etl/internal/storage"
	"market-snapshot-etl/internal/storage/postgres"
)

func newRunRecord() *domain.RunRecord {
	return &domain.RunRecord{
		RunID:   uuid.NewString(),
		JobName: "coingecko_daily_snapshot",
		RunAt:   time.Date(2025, 11, 13, 8, 30, 0, 0, time.UTC),
		Status:  domain.RunStatusRunning,
		LogPath: ptr("logs/etl_20251113T083000Z.log"),
	}
}

func TestRunStore_StartAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewRunStore(pool)
	ctx := context.Background()

	record := newRunRecord()
	require.NoError(t, store.Start(ctx, record))

	got, err := store.GetByRunID(ctx, record.RunID)
	require.NoError(t, err)
	assert.Equal(t, record.RunID, got.RunID)
	assert.Equal(t, "coingecko_daily_snapshot", got.JobName)
	assert.Equal(t, domain.RunStatusRunning, got.Status)
	require.NotNil(t, got.LogPath)
	assert.Equal(t, "logs/etl_20251113T083000Z.log", *got.LogPath)
	assert.Nil(t, got.FinishedAt)
	assert.Nil(t, got.RowsLoaded)
}

func TestRunStore_StartDuplicate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewRunStore(pool)
	ctx := context.Background()

	record := newRunRecord()
	require.NoError(t, store.Start(ctx, record))

	err := store.Start(ctx, record)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestRunStore_FinishSuccess(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewRunStore(pool)
	ctx := context.Background()

	record := newRunRecord()
	require.NoError(t, store.Start(ctx, record))

	finishedAt := record.RunAt.Add(4 * time.Second)
	require.NoError(t, store.Finish(ctx, record.RunID, domain.RunStatusSuccess, finishedAt, 4.0, ptr(int32(8)), nil))

	got, err := store.GetByRunID(ctx, record.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusSuccess, got.Status)
	require.NotNil(t, got.FinishedAt)
	assert.True(t, got.FinishedAt.Equal(finishedAt))
	require.NotNil(t, got.DurationSeconds)
	assert.Equal(t, 4.0, *got.DurationSeconds)
	require.NotNil(t, got.RowsLoaded)
	assert.Equal(t, int32(8), *got.RowsLoaded)
	assert.Nil(t, got.ErrorText)
}

func TestRunStore_FinishFailure(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewRunStore(pool)
	ctx := context.Background()

	record := newRunRecord()
	require.NoError(t, store.Start(ctx, record))

	require.NoError(t, store.Finish(ctx, record.RunID, domain.RunStatusFailed,
		record.RunAt.Add(time.Second), 1.0, nil, ptr("extract: http status 503")))

	got, err := store.GetByRunID(ctx, record.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusFailed, got.Status)
	require.NotNil(t, got.ErrorText)
	assert.Equal(t, "extract: http status 503", *got.ErrorText)
	assert.Nil(t, got.RowsLoaded)
}

func TestRunStore_FinishTerminalRowIsImmutable(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewRunStore(pool)
	ctx := context.Background()

	record := newRunRecord()
	require.NoError(t, store.Start(ctx, record))
	require.NoError(t, store.Finish(ctx, record.RunID, domain.RunStatusSuccess,
		record.RunAt.Add(time.Second), 1.0, ptr(int32(3)), nil))

	err := store.Finish(ctx, record.RunID, domain.RunStatusFailed,
		record.RunAt.Add(2*time.Second), 2.0, nil, ptr("late failure"))
	assert.ErrorIs(t, err, storage.ErrNotFound)

	got, err := store.GetByRunID(ctx, record.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusSuccess, got.Status)
	require.NotNil(t, got.RowsLoaded)
	assert.Equal(t, int32(3), *got.RowsLoaded)
}

func TestRunStore_FinishUnknownRun(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewRunStore(pool)

	err := store.Finish(context.Background(), uuid.NewString(), domain.RunStatusFailed,
		time.Now().UTC(), 0, nil, nil)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRunStore_GetUnknownRun(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewRunStore(pool)

	_, err := store.GetByRunID(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
