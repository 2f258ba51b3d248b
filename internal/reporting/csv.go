// Package reporting renders snapshot batches for manual inspection.
package reporting

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"market-snapshot-etl/internal/domain"
)

// csvHeader lists the SnapshotRecord columns in table order.
var csvHeader = []string{
	"symbol", "name", "snapshot_time", "price_usd",
	"price_change_24h", "price_change_percentage_24h",
	"market_cap_usd", "market_cap_rank",
	"total_volume", "circulating_supply",
	"fetched_at", "raw_json",
}

// WriteCSV renders the snapshots as delimited rows, raw_json serialized as
// a text cell. Empty cells represent null fields.
func WriteCSV(w io.Writer, snapshots []*domain.SnapshotRecord) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, snap := range snapshots {
		row := []string{
			snap.Symbol,
			stringCell(snap.Name),
			snap.SnapshotTime.UTC().Format(time.RFC3339Nano),
			floatCell(snap.PriceUSD),
			floatCell(snap.PriceChange24h),
			floatCell(snap.PriceChangePercentage24h),
			floatCell(snap.MarketCapUSD),
			intCell(snap.MarketCapRank),
			floatCell(snap.TotalVolume),
			floatCell(snap.CirculatingSupply),
			snap.FetchedAt.UTC().Format(time.RFC3339Nano),
			string(snap.RawJSON),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func stringCell(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func floatCell(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func intCell(v *int32) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(int64(*v), 10)
}
