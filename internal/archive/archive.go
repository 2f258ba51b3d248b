// Package archive persists raw API payloads as timestamped JSON artifacts
// for audit and replay.
package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"market-snapshot-etl/internal/domain"
)

const (
	timestampLayout = "20060102T150405Z"
	filePrefix      = "raw_coingecko_"
	fileSuffix      = ".json"
)

// Archiver writes raw batches to an append-only directory.
type Archiver struct {
	dir string
	now func() time.Time
}

// NewArchiver creates an archiver rooted at dir.
func NewArchiver(dir string) *Archiver {
	return &Archiver{dir: dir, now: time.Now}
}

// Write persists the batch body verbatim to raw_coingecko_<UTC ts>.json and
// returns the artifact path. A write failure is fatal to the run: the
// pipeline cannot claim success without its audit trail.
func (a *Archiver) Write(batch *domain.RawBatch) (string, error) {
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}

	ts := a.now().UTC().Format(timestampLayout)
	path := filepath.Join(a.dir, filePrefix+ts+fileSuffix)

	if err := os.WriteFile(path, batch.Body, 0o644); err != nil {
		return "", fmt.Errorf("write raw archive: %w", err)
	}

	return path, nil
}

// Latest returns the newest artifact path, by lexical order of the
// timestamped names. Returns os.ErrNotExist when the directory holds none.
func (a *Archiver) Latest() (string, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return "", fmt.Errorf("read archive dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() && strings.HasPrefix(name, filePrefix) && strings.HasSuffix(name, fileSuffix) {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "", fmt.Errorf("no raw archives in %s: %w", a.dir, os.ErrNotExist)
	}
	sort.Strings(names)

	return filepath.Join(a.dir, names[len(names)-1]), nil
}
