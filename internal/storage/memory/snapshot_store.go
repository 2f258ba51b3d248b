// Package memory provides in-memory store implementations for tests and
// dry runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"market-snapshot-etl/internal/domain"
	"market-snapshot-etl/internal/storage"
)

// SnapshotStore is an in-memory implementation of storage.SnapshotStore.
type SnapshotStore struct {
	mu   sync.RWMutex
	data map[domain.Key]*domain.SnapshotRecord
}

// NewSnapshotStore creates a new in-memory snapshot store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		data: make(map[domain.Key]*domain.SnapshotRecord),
	}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// UpsertBulk overwrites existing keys with the incoming rows.
func (s *SnapshotStore) UpsertBulk(_ context.Context, snapshots []*domain.SnapshotRecord) (int, error) {
	if len(snapshots) == 0 {
		return 0, nil
	}

	for _, snap := range snapshots {
		if snap == nil || snap.Symbol == "" {
			return 0, storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, snap := range snapshots {
		// Store a copy to prevent external mutation
		snapCopy := *snap
		s.data[snap.Key()] = &snapCopy
	}
	return len(snapshots), nil
}

// GetByKey retrieves one snapshot. Returns ErrNotFound if not exists.
func (s *SnapshotStore) GetByKey(_ context.Context, symbol string, snapshotTime time.Time) (*domain.SnapshotRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, exists := s.data[domain.Key{Symbol: symbol, SnapshotTime: snapshotTime.UTC()}]
	if !exists {
		return nil, storage.ErrNotFound
	}

	snapCopy := *snap
	return &snapCopy, nil
}

// GetBySymbol retrieves all snapshots for a symbol, ordered by snapshot_time ASC.
func (s *SnapshotStore) GetBySymbol(_ context.Context, symbol string) ([]*domain.SnapshotRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var snaps []*domain.SnapshotRecord
	for _, snap := range s.data {
		if snap.Symbol == symbol {
			snapCopy := *snap
			snaps = append(snaps, &snapCopy)
		}
	}

	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].SnapshotTime.Before(snaps[j].SnapshotTime)
	})

	return snaps, nil
}

// Count returns the total number of stored snapshot rows.
func (s *SnapshotStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(len(s.data)), nil
}
