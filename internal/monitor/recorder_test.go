package monitor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-snapshot-etl/internal/domain"
	"market-snapshot-etl/internal/notify"
	"market-snapshot-etl/internal/storage/memory"
)

// captureNotifier records every summary it receives.
type captureNotifier struct {
	summaries []notify.Summary
}

func (c *captureNotifier) Notify(_ context.Context, s notify.Summary) {
	c.summaries = append(c.summaries, s)
}

func newTestRecorder() (*Recorder, *memory.RunStore, *captureNotifier) {
	store := memory.NewRunStore()
	notifier := &captureNotifier{}
	logger := logrus.New()
	return NewRecorder(store, notifier, logger), store, notifier
}

func TestRecorder_StartInsertsRunningRecord(t *testing.T) {
	recorder, store, _ := newTestRecorder()
	ctx := context.Background()

	run, err := recorder.Start(ctx, "coingecko_daily_snapshot", "logs/etl_x.log")
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)

	record, err := store.GetByRunID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusRunning, record.Status)
	assert.Equal(t, "coingecko_daily_snapshot", record.JobName)
	require.NotNil(t, record.LogPath)
	assert.Equal(t, "logs/etl_x.log", *record.LogPath)
	assert.Nil(t, record.FinishedAt)
}

func TestRecorder_FinishSuccess(t *testing.T) {
	recorder, store, notifier := newTestRecorder()
	ctx := context.Background()

	run, err := recorder.Start(ctx, "job", "")
	require.NoError(t, err)

	rows := int32(42)
	recorder.Finish(ctx, run, &rows, nil)

	record, err := store.GetByRunID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusSuccess, record.Status)
	require.NotNil(t, record.FinishedAt)
	require.NotNil(t, record.DurationSeconds)
	assert.GreaterOrEqual(t, *record.DurationSeconds, 0.0)
	require.NotNil(t, record.RowsLoaded)
	assert.Equal(t, int32(42), *record.RowsLoaded)
	assert.Nil(t, record.ErrorText)

	require.Len(t, notifier.summaries, 1)
	assert.Equal(t, domain.RunStatusSuccess, notifier.summaries[0].Status)
	assert.Equal(t, run.ID, notifier.summaries[0].RunID)
}

func TestRecorder_FinishFailure(t *testing.T) {
	recorder, store, notifier := newTestRecorder()
	ctx := context.Background()

	run, err := recorder.Start(ctx, "job", "")
	require.NoError(t, err)

	recorder.Finish(ctx, run, nil, errors.New("extract: http status 503"))

	record, err := store.GetByRunID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusFailed, record.Status)
	require.NotNil(t, record.ErrorText)
	assert.Equal(t, "extract: http status 503", *record.ErrorText)
	assert.Nil(t, record.RowsLoaded)

	require.Len(t, notifier.summaries, 1)
	assert.Equal(t, domain.RunStatusFailed, notifier.summaries[0].Status)
}

func TestRecorder_FinishTruncatesLongErrors(t *testing.T) {
	recorder, store, _ := newTestRecorder()
	ctx := context.Background()

	run, err := recorder.Start(ctx, "job", "")
	require.NoError(t, err)

	recorder.Finish(ctx, run, nil, errors.New(strings.Repeat("x", 2000)))

	record, err := store.GetByRunID(ctx, run.ID)
	require.NoError(t, err)
	require.NotNil(t, record.ErrorText)
	assert.Len(t, *record.ErrorText, maxErrorTextLen+len("..."))
}

func TestRecorder_FinishIsIdempotentPerHandle(t *testing.T) {
	recorder, store, notifier := newTestRecorder()
	ctx := context.Background()

	run, err := recorder.Start(ctx, "job", "")
	require.NoError(t, err)

	rows := int32(1)
	recorder.Finish(ctx, run, &rows, nil)
	// The second call must not overwrite the terminal state.
	recorder.Finish(ctx, run, nil, errors.New("late failure"))

	record, err := store.GetByRunID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusSuccess, record.Status)
	assert.Len(t, notifier.summaries, 1)
}

// contextRunStore fails its writes once the given context is done, the way
// a real database client would.
type contextRunStore struct {
	*memory.RunStore
}

func (s *contextRunStore) Finish(ctx context.Context, runID string, status domain.RunStatus, finishedAt time.Time, durationSeconds float64, rowsLoaded *int32, errorText *string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.RunStore.Finish(ctx, runID, status, finishedAt, durationSeconds, rowsLoaded, errorText)
}

func TestRecorder_FinishSurvivesCancelledContext(t *testing.T) {
	mem := memory.NewRunStore()
	store := &contextRunStore{RunStore: mem}
	notifier := &captureNotifier{}
	recorder := NewRecorder(store, notifier, logrus.New())

	ctx, cancel := context.WithCancel(context.Background())
	run, err := recorder.Start(ctx, "job", "")
	require.NoError(t, err)

	// A signal-aborted run reaches Finish with its context already dead.
	cancel()
	recorder.Finish(ctx, run, nil, errors.New("extract: context canceled"))

	record, err := mem.GetByRunID(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusFailed, record.Status,
		"run must not be left in running after an observed failure")
	require.NotNil(t, record.ErrorText)
	require.Len(t, notifier.summaries, 1)
}

func TestRecorder_DistinctRunIDs(t *testing.T) {
	recorder, _, _ := newTestRecorder()
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		run, err := recorder.Start(ctx, "job", "")
		require.NoError(t, err)
		assert.False(t, seen[run.ID], "duplicate run id %s", run.ID)
		seen[run.ID] = true
	}
}

func TestRecorder_DurationUsesClock(t *testing.T) {
	store := memory.NewRunStore()
	recorder := NewRecorder(store, nil, logrus.New())

	start := time.Date(2025, 11, 13, 8, 0, 0, 0, time.UTC)
	recorder.now = func() time.Time { return start }

	ctx := context.Background()
	run, err := recorder.Start(ctx, "job", "")
	require.NoError(t, err)

	recorder.now = func() time.Time { return start.Add(90 * time.Second) }
	recorder.Finish(ctx, run, nil, nil)

	record, err := store.GetByRunID(ctx, run.ID)
	require.NoError(t, err)
	require.NotNil(t, record.DurationSeconds)
	assert.Equal(t, 90.0, *record.DurationSeconds)
}
