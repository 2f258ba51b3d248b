package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"market-snapshot-etl/internal/domain"
	"market-snapshot-etl/internal/storage"
)

// RunStore implements storage.RunStore using PostgreSQL.
type RunStore struct {
	pool *Pool
}

// NewRunStore creates a new RunStore.
func NewRunStore(pool *Pool) *RunStore {
	return &RunStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RunStore = (*RunStore)(nil)

// Start inserts a run in status running. Returns ErrDuplicateKey if the
// run id already exists.
func (s *RunStore) Start(ctx context.Context, run *domain.RunRecord) error {
	if run == nil || run.RunID == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO etl_runs (run_id, job_name, run_at, status, log_path)
		VALUES ($1, $2, $3, $4, $5)
	`, run.RunID, run.JobName, run.RunAt, domain.RunStatusRunning, run.LogPath)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert run record: %w", err)
	}
	return nil
}

// Finish writes the terminal fields of a run. Only a running row can be
// closed; returns ErrNotFound if the run id does not exist or the run is
// already terminal.
func (s *RunStore) Finish(ctx context.Context, runID string, status domain.RunStatus, finishedAt time.Time, durationSeconds float64, rowsLoaded *int32, errorText *string) error {
	if runID == "" {
		return storage.ErrInvalidInput
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE etl_runs
		SET status = $2,
		    finished_at = $3,
		    duration_seconds = $4,
		    rows_loaded = $5,
		    error_text = $6
		WHERE run_id = $1 AND status = $7
	`, runID, status, finishedAt, durationSeconds, rowsLoaded, errorText, domain.RunStatusRunning)
	if err != nil {
		return fmt.Errorf("update run record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetByRunID retrieves one run. Returns ErrNotFound if not exists.
func (s *RunStore) GetByRunID(ctx context.Context, runID string) (*domain.RunRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT run_id, job_name, run_at, status, finished_at,
		       duration_seconds, rows_loaded, error_text, log_path
		FROM etl_runs
		WHERE run_id = $1
	`, runID)

	run, err := scanRunRecord(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get run record by id: %w", err)
	}
	return run, nil
}

// scanRunRecord scans a single row into a RunRecord.
func scanRunRecord(row pgx.Row) (*domain.RunRecord, error) {
	var run domain.RunRecord
	err := row.Scan(
		&run.RunID, &run.JobName, &run.RunAt, &run.Status, &run.FinishedAt,
		&run.DurationSeconds, &run.RowsLoaded, &run.ErrorText, &run.LogPath,
	)
	if err != nil {
		return nil, err
	}
	return &run, nil
}
