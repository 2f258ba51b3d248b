// Package monitor brackets pipeline invocations with run bookkeeping.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"market-snapshot-etl/internal/domain"
	"market-snapshot-etl/internal/notify"
	"market-snapshot-etl/internal/storage"
)

// maxErrorTextLen bounds the error summary stored in the run log. Full
// detail lives in the log file.
const maxErrorTextLen = 500

// finishTimeout bounds the terminal bookkeeping write and notification.
const finishTimeout = 10 * time.Second

// Run is the open handle between Start and Finish.
type Run struct {
	ID       string
	JobName  string
	StartAt  time.Time
	LogPath  string
	finished bool
}

// Recorder writes run lifecycle records and notifies on terminal state.
type Recorder struct {
	store    storage.RunStore
	notifier notify.Notifier
	logger   logrus.FieldLogger
	now      func() time.Time
}

// NewRecorder creates a Recorder. A nil notifier disables notifications.
func NewRecorder(store storage.RunStore, notifier notify.Notifier, logger logrus.FieldLogger) *Recorder {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &Recorder{
		store:    store,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Start inserts a running run record and returns the handle needed to
// close it.
func (r *Recorder) Start(ctx context.Context, jobName, logPath string) (*Run, error) {
	run := &Run{
		ID:      uuid.NewString(),
		JobName: jobName,
		StartAt: r.now().UTC(),
		LogPath: logPath,
	}

	record := &domain.RunRecord{
		RunID:   run.ID,
		JobName: run.JobName,
		RunAt:   run.StartAt,
		Status:  domain.RunStatusRunning,
	}
	if logPath != "" {
		record.LogPath = &run.LogPath
	}

	if err := r.store.Start(ctx, record); err != nil {
		return nil, fmt.Errorf("record run start: %w", err)
	}
	return run, nil
}

// Finish writes the terminal state exactly once and sends the best-effort
// notification. Calling it again on the same handle is a no-op, so callers
// can defer it unconditionally. A nil runErr means success.
func (r *Recorder) Finish(ctx context.Context, run *Run, rowsLoaded *int32, runErr error) {
	if run == nil || run.finished {
		return
	}
	run.finished = true

	// The caller's context is often already cancelled when the run failed
	// (signal abort, deadline); the terminal record and alert still have
	// to land.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()

	finishedAt := r.now().UTC()
	duration := finishedAt.Sub(run.StartAt)

	status := domain.RunStatusSuccess
	var errorText *string
	if runErr != nil {
		status = domain.RunStatusFailed
		truncated := truncate(runErr.Error(), maxErrorTextLen)
		errorText = &truncated
	}

	if err := r.store.Finish(ctx, run.ID, status, finishedAt, duration.Seconds(), rowsLoaded, errorText); err != nil {
		// The pipeline outcome is already decided; losing the terminal
		// record is logged but cannot change it.
		r.logger.WithError(err).WithField("run_id", run.ID).
			Error("record run end failed")
	}

	summary := notify.Summary{
		JobName:    run.JobName,
		RunID:      run.ID,
		Status:     status,
		Duration:   duration,
		RowsLoaded: rowsLoaded,
		LogPath:    run.LogPath,
	}
	if errorText != nil {
		summary.ErrorText = *errorText
	}
	r.notifier.Notify(ctx, summary)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
