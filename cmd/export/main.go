// Command export transforms an archived raw payload into a CSV for manual
// inspection or replay. With no argument it picks the newest archive.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"market-snapshot-etl/internal/archive"
	"market-snapshot-etl/internal/config"
	"market-snapshot-etl/internal/extract"
	"market-snapshot-etl/internal/reporting"
	"market-snapshot-etl/internal/transform"
)

const outputName = "preview_coingecko_snapshot.csv"

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return 1
	}

	rawPath := ""
	if len(os.Args) > 1 {
		rawPath = os.Args[1]
	} else {
		rawPath, err = archive.NewArchiver(cfg.ArchiveDir).Latest()
		if err != nil {
			fmt.Fprintf(os.Stderr, "no raw archive found, run the extractor first: %v\n", err)
			return 1
		}
	}

	body, err := os.ReadFile(rawPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read %s: %v\n", rawPath, err)
		return 1
	}

	records, err := extract.DecodeRecords(body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "decode %s: %v\n", rawPath, err)
		return 1
	}

	snapshots, err := transform.Transform(records, time.Now().UTC())
	if err != nil {
		fmt.Fprintf(os.Stderr, "transform: %v\n", err)
		return 1
	}

	outPath := filepath.Join(cfg.ArchiveDir, outputName)
	out, err := os.Create(outPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create %s: %v\n", outPath, err)
		return 1
	}
	defer out.Close()

	if err := reporting.WriteCSV(out, snapshots); err != nil {
		fmt.Fprintf(os.Stderr, "write csv: %v\n", err)
		return 1
	}

	fmt.Println("Transform completed.")
	fmt.Printf("Input JSON : %s\n", rawPath)
	fmt.Printf("Output CSV : %s\n", outPath)
	fmt.Printf("Rows       : %d\n", len(snapshots))
	return 0
}
