// Command etl runs one extract → archive → transform → load invocation.
//
// Exit codes: 0 success, 2 unexpected response shape, 3 terminal HTTP
// failure, 4 any other failure. Schedulers can alert on them without the
// webhook channel.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"market-snapshot-etl/internal/archive"
	"market-snapshot-etl/internal/config"
	"market-snapshot-etl/internal/extract"
	"market-snapshot-etl/internal/logging"
	"market-snapshot-etl/internal/monitor"
	"market-snapshot-etl/internal/notify"
	"market-snapshot-etl/internal/orchestrator"
	"market-snapshot-etl/internal/storage/clickhouse"
	"market-snapshot-etl/internal/storage/migrations"
	"market-snapshot-etl/internal/storage/postgres"
)

const (
	exitSuccess         = 0
	exitUnexpectedShape = 2
	exitHTTPFailure     = 3
	exitUnhandled       = 4
)

func main() {
	os.Exit(run())
}

func run() int {
	ids := flag.String("ids", "", "comma-joined asset ids (overrides COINGECKO_IDS)")
	currency := flag.String("currency", "", "quote currency (overrides COINGECKO_VS_CURRENCY)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return exitUnhandled
	}
	if *ids != "" {
		cfg.AssetIDs = splitIDs(*ids)
	}
	if *currency != "" {
		cfg.VsCurrency = *currency
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return exitUnhandled
	}

	logger, logPath, err := logging.New(cfg.LogDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging error: %v\n", err)
		return exitUnhandled
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.WithField("signal", sig.String()).Warn("received signal, cancelling run")
		cancel()
	}()

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.WithError(err).Error("postgres connection failed")
		return exitUnhandled
	}
	defer pool.Close()

	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		logger.WithError(err).Error("postgres migrations failed")
		return exitUnhandled
	}

	snapshotStore, err := postgres.NewSnapshotStore(pool, cfg.TableName, cfg.LoadPageSize)
	if err != nil {
		logger.WithError(err).Error("snapshot store setup failed")
		return exitUnhandled
	}
	runStore := postgres.NewRunStore(pool)

	// The mirror is optional and best-effort from connection onward.
	var mirror orchestrator.Mirror
	if cfg.ClickHouseURL != "" {
		conn, chErr := clickhouse.NewConn(ctx, cfg.ClickHouseURL)
		if chErr != nil {
			logger.WithError(chErr).Warn("clickhouse mirror unavailable, continuing without it")
		} else {
			defer conn.Close()
			if chErr := migrations.RunClickhouseMigrations(ctx, conn); chErr != nil {
				logger.WithError(chErr).Warn("clickhouse migrations failed, continuing without mirror")
			} else {
				mirror = clickhouse.NewSnapshotMirror(conn)
			}
		}
	}

	var notifier notify.Notifier = &notify.LogNotifier{Logger: logger}
	if cfg.WebhookURL != "" {
		notifier = notify.NewWebhook(cfg.WebhookURL, logger)
	}

	client := extract.NewClient(cfg.APIBaseURL,
		extract.WithTimeout(cfg.Timeout),
		extract.WithMaxRetries(cfg.MaxRetries),
		extract.WithRetryDelay(cfg.BackoffBase),
		extract.WithMaxDelay(cfg.BackoffMax),
		extract.WithPerPage(cfg.PerPage),
		extract.WithLogger(logger),
	)

	orch := orchestrator.New(orchestrator.Options{
		Extractor:     client,
		Archiver:      archive.NewArchiver(cfg.ArchiveDir),
		SnapshotStore: snapshotStore,
		Mirror:        mirror,
		Recorder:      monitor.NewRecorder(runStore, notifier, logger),
		Logger:        logger,
		JobName:       cfg.JobName,
		LogPath:       logPath,
		AssetIDs:      cfg.AssetIDs,
		VsCurrency:    cfg.VsCurrency,
	})

	result, err := orch.Run(ctx)
	if err != nil {
		logger.WithError(err).Error("ETL failed")
		return exitCode(err)
	}

	logger.WithFields(map[string]interface{}{
		"run_id":  result.RunID,
		"fetched": result.RowsFetched,
		"loaded":  result.RowsLoaded,
		"archive": result.ArchivePath,
	}).Info("run complete")
	return exitSuccess
}

// exitCode maps failure kinds to process exit codes.
func exitCode(err error) int {
	var httpErr *extract.HTTPError
	switch {
	case errors.Is(err, extract.ErrUnexpectedShape):
		return exitUnexpectedShape
	case errors.As(err, &httpErr):
		return exitHTTPFailure
	default:
		return exitUnhandled
	}
}

func splitIDs(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
