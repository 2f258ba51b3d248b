package storage

import (
	"context"
	"time"

	"market-snapshot-etl/internal/domain"
)

// SnapshotStore provides access to price snapshot storage.
type SnapshotStore interface {
	// UpsertBulk writes the batch atomically, keyed by (symbol, snapshot_time).
	// Conflicting rows have every non-key column overwritten and updated_at
	// refreshed, so replaying a batch is idempotent. Returns the number of
	// rows submitted; an empty batch is a no-op, not an error.
	UpsertBulk(ctx context.Context, snapshots []*domain.SnapshotRecord) (int, error)

	// GetByKey retrieves one snapshot. Returns ErrNotFound if not exists.
	GetByKey(ctx context.Context, symbol string, snapshotTime time.Time) (*domain.SnapshotRecord, error)

	// GetBySymbol retrieves all snapshots for a symbol, ordered by snapshot_time ASC.
	GetBySymbol(ctx context.Context, symbol string) ([]*domain.SnapshotRecord, error)

	// Count returns the total number of stored snapshot rows.
	Count(ctx context.Context) (int64, error)
}

// RunStore provides access to run bookkeeping storage.
type RunStore interface {
	// Start inserts a run in status running. Returns ErrDuplicateKey if the
	// run id already exists.
	Start(ctx context.Context, run *domain.RunRecord) error

	// Finish writes the terminal fields of a run. Only a running row can be
	// closed; returns ErrNotFound if the run id does not exist or the run
	// is already terminal.
	Finish(ctx context.Context, runID string, status domain.RunStatus, finishedAt time.Time, durationSeconds float64, rowsLoaded *int32, errorText *string) error

	// GetByRunID retrieves one run. Returns ErrNotFound if not exists.
	GetByRunID(ctx context.Context, runID string) (*domain.RunRecord, error)
}
