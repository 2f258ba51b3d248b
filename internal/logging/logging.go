// Package logging configures the pipeline logger: JSON records to a
// per-run file under the log directory, mirrored as text to stdout.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// timestampLayout matches the archive artifact naming: 20060102T150405Z.
const timestampLayout = "20060102T150405Z"

// New creates a logger writing to logs/etl_<UTC ts>.log and stdout.
// The returned path is recorded in the run log so operators can find the
// file for a given run id.
func New(logDir string) (*logrus.Logger, string, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, "", fmt.Errorf("create log dir: %w", err)
	}

	ts := time.Now().UTC().Format(timestampLayout)
	logPath := filepath.Join(logDir, fmt.Sprintf("etl_%s.log", ts))

	fileOut := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    50, // MB
		MaxBackups: 3,
		MaxAge:     30, // days
		Compress:   true,
	}

	logger := logrus.New()
	logger.SetLevel(parseLevel(os.Getenv("LOG_LEVEL")))
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	logger.SetOutput(fileOut)
	logger.AddHook(&consoleHook{
		writer:    os.Stdout,
		formatter: &logrus.TextFormatter{FullTimestamp: true},
	})

	return logger, logPath, nil
}

// consoleHook renders every entry a second time for the terminal, so the
// file sink stays machine-readable JSON.
type consoleHook struct {
	writer    io.Writer
	formatter logrus.Formatter
}

func (h *consoleHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *consoleHook) Fire(entry *logrus.Entry) error {
	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}
	_, err = h.writer.Write(line)
	return err
}

// NewConsole creates a stdout-only logger for the ad-hoc tools.
func NewConsole() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(parseLevel(os.Getenv("LOG_LEVEL")))
	logger.SetOutput(os.Stdout)
	return logger
}

func parseLevel(s string) logrus.Level {
	if s == "" {
		return logrus.InfoLevel
	}
	lvl, err := logrus.ParseLevel(s)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}
