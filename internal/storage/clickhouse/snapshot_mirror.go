package clickhouse

import (
	"context"
	"fmt"

	"market-snapshot-etl/internal/domain"
)

// SnapshotMirror appends snapshot batches to the ClickHouse mirror table.
// The table is a ReplacingMergeTree keyed by (symbol, snapshot_time) with
// fetched_at as the version column, so replays collapse to the latest write
// at merge time. Postgres remains the source of truth; callers treat mirror
// failures as non-fatal.
type SnapshotMirror struct {
	conn *Conn
}

// NewSnapshotMirror creates a new SnapshotMirror.
func NewSnapshotMirror(conn *Conn) *SnapshotMirror {
	return &SnapshotMirror{conn: conn}
}

// InsertBulk appends the batch. Empty input is a no-op.
func (m *SnapshotMirror) InsertBulk(ctx context.Context, snapshots []*domain.SnapshotRecord) error {
	if len(snapshots) == 0 {
		return nil
	}

	batch, err := m.conn.PrepareBatch(ctx, `
		INSERT INTO crypto_price_snapshots (
			symbol, name, snapshot_time, price_usd, price_change_24h,
			price_change_percentage_24h, market_cap_usd, market_cap_rank,
			total_volume, circulating_supply, fetched_at, raw_json
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, snap := range snapshots {
		err = batch.Append(
			snap.Symbol, snap.Name, snap.SnapshotTime, snap.PriceUSD, snap.PriceChange24h,
			snap.PriceChangePercentage24h, snap.MarketCapUSD, snap.MarketCapRank,
			snap.TotalVolume, snap.CirculatingSupply, snap.FetchedAt, string(snap.RawJSON),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// Count returns the number of distinct snapshot keys after replacement.
func (m *SnapshotMirror) Count(ctx context.Context) (uint64, error) {
	var count uint64
	err := m.conn.QueryRow(ctx, `
		SELECT COUNT(*) FROM (
			SELECT symbol, snapshot_time
			FROM crypto_price_snapshots FINAL
			GROUP BY symbol, snapshot_time
		)
	`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count mirrored snapshots: %w", err)
	}
	return count, nil
}
