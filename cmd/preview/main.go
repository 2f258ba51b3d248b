// Command preview fetches the markets endpoint once, archives the payload,
// and prints a compact preview of the first few records. Exploratory tool;
// not part of the pipeline, touches no database.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"market-snapshot-etl/internal/archive"
	"market-snapshot-etl/internal/config"
	"market-snapshot-etl/internal/extract"
	"market-snapshot-etl/internal/logging"
)

func main() {
	os.Exit(run())
}

func run() int {
	count := flag.Int("n", 3, "number of records to preview")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return 4
	}

	logger := logging.NewConsole()
	client := extract.NewClient(cfg.APIBaseURL,
		extract.WithTimeout(cfg.Timeout),
		extract.WithMaxRetries(cfg.MaxRetries),
		extract.WithRetryDelay(cfg.BackoffBase),
		extract.WithMaxDelay(cfg.BackoffMax),
		extract.WithPerPage(cfg.PerPage),
		extract.WithLogger(logger),
	)

	batch, err := client.FetchMarkets(context.Background(), cfg.AssetIDs, cfg.VsCurrency)
	if err != nil {
		var httpErr *extract.HTTPError
		switch {
		case errors.Is(err, extract.ErrUnexpectedShape):
			logger.WithError(err).Error("unexpected response shape")
			return 2
		case errors.As(err, &httpErr):
			logger.WithError(err).Error("HTTP error when fetching data")
			return 3
		default:
			logger.WithError(err).Error("unexpected error")
			return 4
		}
	}

	path, err := archive.NewArchiver(cfg.ArchiveDir).Write(batch)
	if err != nil {
		logger.WithError(err).Error("archive write failed")
		return 4
	}
	logger.WithField("path", path).WithField("records", len(batch.Records)).
		Info("saved raw payload")

	fmt.Printf("\n--- compact preview (first %d records) ---\n", *count)
	for i, rec := range batch.Records {
		if i >= *count {
			break
		}
		fmt.Printf("[%d] id=%v symbol=%v name=%v current_price=%v market_cap=%v last_updated=%v\n",
			i,
			rec.Fields["id"], rec.Fields["symbol"], rec.Fields["name"],
			rec.Fields["current_price"], rec.Fields["market_cap"], rec.Fields["last_updated"],
		)
	}
	fmt.Println("--- end preview ---")

	return 0
}
