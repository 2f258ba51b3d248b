package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"market-snapshot-etl/internal/domain"
	"market-snapshot-etl/internal/storage"
)

// RunStore is an in-memory implementation of storage.RunStore.
type RunStore struct {
	mu   sync.RWMutex
	data map[string]*domain.RunRecord // keyed by run_id
}

// NewRunStore creates a new in-memory run store.
func NewRunStore() *RunStore {
	return &RunStore{
		data: make(map[string]*domain.RunRecord),
	}
}

// Compile-time interface check.
var _ storage.RunStore = (*RunStore)(nil)

// Start inserts a run in status running. Returns ErrDuplicateKey if the
// run id already exists.
func (s *RunStore) Start(_ context.Context, run *domain.RunRecord) error {
	if run == nil || run.RunID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[run.RunID]; exists {
		return storage.ErrDuplicateKey
	}

	runCopy := *run
	runCopy.Status = domain.RunStatusRunning
	s.data[run.RunID] = &runCopy
	return nil
}

// Finish writes the terminal fields of a run. Only a running row can be
// closed; returns ErrNotFound if the run id does not exist or the run is
// already terminal.
func (s *RunStore) Finish(_ context.Context, runID string, status domain.RunStatus, finishedAt time.Time, durationSeconds float64, rowsLoaded *int32, errorText *string) error {
	if runID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	run, exists := s.data[runID]
	if !exists || run.Status != domain.RunStatusRunning {
		return storage.ErrNotFound
	}

	run.Status = status
	run.FinishedAt = &finishedAt
	run.DurationSeconds = &durationSeconds
	run.RowsLoaded = rowsLoaded
	run.ErrorText = errorText
	return nil
}

// List returns all runs ordered by run_at ASC.
func (s *RunStore) List(_ context.Context) ([]*domain.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var runs []*domain.RunRecord
	for _, run := range s.data {
		runCopy := *run
		runs = append(runs, &runCopy)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].RunAt.Before(runs[j].RunAt)
	})

	return runs, nil
}

// GetByRunID retrieves one run. Returns ErrNotFound if not exists.
func (s *RunStore) GetByRunID(_ context.Context, runID string) (*domain.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, exists := s.data[runID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	runCopy := *run
	return &runCopy, nil
}
