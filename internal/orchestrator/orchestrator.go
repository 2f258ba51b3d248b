// Package orchestrator sequences one pipeline invocation:
// extract → archive → transform → load, bracketed by run bookkeeping.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"market-snapshot-etl/internal/domain"
	"market-snapshot-etl/internal/monitor"
	"market-snapshot-etl/internal/storage"
	"market-snapshot-etl/internal/transform"
)

// Extractor fetches the raw batch for a set of asset ids.
type Extractor interface {
	FetchMarkets(ctx context.Context, ids []string, vsCurrency string) (*domain.RawBatch, error)
}

// Archiver persists the raw batch and returns the artifact path.
type Archiver interface {
	Write(batch *domain.RawBatch) (string, error)
}

// Mirror receives the loaded batch for analytics. Mirror errors never fail
// the run.
type Mirror interface {
	InsertBulk(ctx context.Context, snapshots []*domain.SnapshotRecord) error
}

// Orchestrator coordinates the pipeline stages.
type Orchestrator struct {
	extractor     Extractor
	archiver      Archiver
	snapshotStore storage.SnapshotStore
	mirror        Mirror // optional
	recorder      *monitor.Recorder
	logger        logrus.FieldLogger

	jobName    string
	logPath    string
	assetIDs   []string
	vsCurrency string
}

// Options for creating Orchestrator.
type Options struct {
	Extractor     Extractor
	Archiver      Archiver
	SnapshotStore storage.SnapshotStore
	Mirror        Mirror // optional
	Recorder      *monitor.Recorder
	Logger        logrus.FieldLogger

	JobName    string
	LogPath    string
	AssetIDs   []string
	VsCurrency string
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	return &Orchestrator{
		extractor:     opts.Extractor,
		archiver:      opts.Archiver,
		snapshotStore: opts.SnapshotStore,
		mirror:        opts.Mirror,
		recorder:      opts.Recorder,
		logger:        opts.Logger,
		jobName:       opts.JobName,
		logPath:       opts.LogPath,
		assetIDs:      opts.AssetIDs,
		vsCurrency:    opts.VsCurrency,
	}
}

// RunResult contains results from one invocation.
type RunResult struct {
	RunID       string
	RowsFetched int
	RowsLoaded  int
	ArchivePath string
}

// Run executes one invocation. The run record is opened before the first
// stage and closed on every exit path, including failures unwinding from
// any stage; only a process crash can leave it in running.
func (o *Orchestrator) Run(ctx context.Context) (result *RunResult, err error) {
	run, err := o.recorder.Start(ctx, o.jobName, o.logPath)
	if err != nil {
		return nil, err
	}

	o.logger.WithField("run_id", run.ID).Info("ETL starting")

	result = &RunResult{RunID: run.ID}
	var rowsLoaded *int32
	defer func() {
		o.recorder.Finish(ctx, run, rowsLoaded, err)
	}()

	// 1. Extract
	batch, err := o.extractor.FetchMarkets(ctx, o.assetIDs, o.vsCurrency)
	if err != nil {
		err = fmt.Errorf("extract: %w", err)
		return nil, err
	}
	result.RowsFetched = len(batch.Records)

	// 2. Archive the raw payload; no audit trail, no run.
	archivePath, err := o.archiver.Write(batch)
	if err != nil {
		err = fmt.Errorf("archive: %w", err)
		return nil, err
	}
	result.ArchivePath = archivePath
	o.logger.WithFields(logrus.Fields{
		"path":    archivePath,
		"records": len(batch.Records),
	}).Info("saved raw payload")

	// 3. Transform
	snapshots, err := transform.Transform(batch.Records, batch.FetchedAt)
	if err != nil {
		err = fmt.Errorf("transform: %w", err)
		return nil, err
	}
	o.logger.WithField("rows", len(snapshots)).Info("transformed records")

	// 4. Load
	n, err := o.snapshotStore.UpsertBulk(ctx, snapshots)
	if err != nil {
		err = fmt.Errorf("load: %w", err)
		return nil, err
	}
	result.RowsLoaded = n
	loaded := int32(n)
	rowsLoaded = &loaded
	o.logger.WithField("rows", n).Info("load complete")

	// 5. Analytics mirror, best-effort.
	if o.mirror != nil {
		if mirrorErr := o.mirror.InsertBulk(ctx, snapshots); mirrorErr != nil {
			o.logger.WithError(mirrorErr).Warn("mirror write failed")
		}
	}

	o.logger.WithField("run_id", run.ID).Info("ETL finished successfully")
	return result, nil
}
