// Package notify delivers best-effort terminal-state alerts. Implementations
// must never surface an error to the caller: a dead alert channel cannot be
// allowed to change a pipeline outcome.
package notify

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"market-snapshot-etl/internal/domain"
)

// Summary is the terminal state of one run, formatted for humans.
type Summary struct {
	JobName    string
	RunID      string
	Status     domain.RunStatus
	Duration   time.Duration
	RowsLoaded *int32
	ErrorText  string
	LogPath    string
}

// Notifier sends a run summary somewhere. No error return by contract.
type Notifier interface {
	Notify(ctx context.Context, summary Summary)
}

// Noop discards all notifications.
type Noop struct{}

// Notify implements Notifier.
func (Noop) Notify(context.Context, Summary) {}

// LogNotifier writes the summary to the logger.
type LogNotifier struct {
	Logger logrus.FieldLogger
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(_ context.Context, summary Summary) {
	entry := n.Logger.WithFields(logrus.Fields{
		"job":      summary.JobName,
		"run_id":   summary.RunID,
		"status":   summary.Status,
		"duration": summary.Duration.String(),
	})
	if summary.Status == domain.RunStatusFailed {
		entry.WithField("error", summary.ErrorText).Warn("run finished")
		return
	}
	entry.Info("run finished")
}

// renderText formats the summary as the alert message body.
func renderText(s Summary) string {
	rows := "N/A"
	if s.RowsLoaded != nil {
		rows = fmt.Sprintf("%d", *s.RowsLoaded)
	}
	logName := "unknown"
	if s.LogPath != "" {
		logName = filepath.Base(s.LogPath)
	}

	if s.Status == domain.RunStatusFailed {
		return fmt.Sprintf(
			":x: *ETL FAILED*\n> *Job:* %s\n> *Run ID:* `%s`\n> *Duration:* %.3fs\n> *Rows loaded:* %s\n> *Error:* %s\n> *Log:* `%s`",
			s.JobName, s.RunID, s.Duration.Seconds(), rows, s.ErrorText, logName,
		)
	}
	return fmt.Sprintf(
		":white_check_mark: *ETL SUCCESS*\n> *Job:* %s\n> *Run ID:* `%s`\n> *Duration:* %.3fs\n> *Rows loaded:* %s\n> *Log:* `%s`",
		s.JobName, s.RunID, s.Duration.Seconds(), rows, logName,
	)
}
