package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"market-snapshot-etl/internal/domain"
	"market-snapshot-etl/internal/storage"
)

// Column count per snapshot row in the upsert statement.
const snapshotColumns = 12

// DefaultPageSize bounds the rows per INSERT statement within one transaction.
const DefaultPageSize = 1000

// SnapshotStore implements storage.SnapshotStore using PostgreSQL.
type SnapshotStore struct {
	pool     *Pool
	table    string
	pageSize int
}

// NewSnapshotStore creates a SnapshotStore writing to the given table.
// Empty table or non-positive pageSize fall back to the defaults.
func NewSnapshotStore(pool *Pool, table string, pageSize int) (*SnapshotStore, error) {
	if table == "" {
		table = "crypto_price_snapshots"
	}
	if err := validateIdentifier(table); err != nil {
		return nil, err
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &SnapshotStore{pool: pool, table: table, pageSize: pageSize}, nil
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// UpsertBulk writes all rows in one transaction, paginated into multi-row
// INSERT ... ON CONFLICT statements. Either the whole batch lands or none
// of it does; replaying the same batch leaves the table unchanged except
// for updated_at.
func (s *SnapshotStore) UpsertBulk(ctx context.Context, snapshots []*domain.SnapshotRecord) (int, error) {
	if len(snapshots) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for start := 0; start < len(snapshots); start += s.pageSize {
		end := start + s.pageSize
		if end > len(snapshots) {
			end = len(snapshots)
		}
		if err := s.upsertPage(ctx, tx, snapshots[start:end]); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	return len(snapshots), nil
}

// upsertPage executes one multi-row upsert statement.
func (s *SnapshotStore) upsertPage(ctx context.Context, tx pgx.Tx, page []*domain.SnapshotRecord) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, `
		INSERT INTO %s (
			symbol, name, snapshot_time, price_usd, price_change_24h,
			price_change_percentage_24h, market_cap_usd, market_cap_rank,
			total_volume, circulating_supply, fetched_at, raw_json
		) VALUES `, s.table)

	args := make([]interface{}, 0, len(page)*snapshotColumns)
	for i, snap := range page {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(placeholderGroup(i*snapshotColumns+1, snapshotColumns))
		args = append(args,
			snap.Symbol, snap.Name, snap.SnapshotTime, snap.PriceUSD, snap.PriceChange24h,
			snap.PriceChangePercentage24h, snap.MarketCapUSD, snap.MarketCapRank,
			snap.TotalVolume, snap.CirculatingSupply, snap.FetchedAt, snap.RawJSON,
		)
	}

	sb.WriteString(`
		ON CONFLICT (symbol, snapshot_time) DO UPDATE SET
			name = EXCLUDED.name,
			price_usd = EXCLUDED.price_usd,
			price_change_24h = EXCLUDED.price_change_24h,
			price_change_percentage_24h = EXCLUDED.price_change_percentage_24h,
			market_cap_usd = EXCLUDED.market_cap_usd,
			market_cap_rank = EXCLUDED.market_cap_rank,
			total_volume = EXCLUDED.total_volume,
			circulating_supply = EXCLUDED.circulating_supply,
			fetched_at = EXCLUDED.fetched_at,
			raw_json = EXCLUDED.raw_json,
			updated_at = NOW()
	`)

	if _, err := tx.Exec(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("upsert snapshot page: %w", err)
	}
	return nil
}

// GetByKey retrieves one snapshot. Returns ErrNotFound if not exists.
func (s *SnapshotStore) GetByKey(ctx context.Context, symbol string, snapshotTime time.Time) (*domain.SnapshotRecord, error) {
	query := fmt.Sprintf(`
		SELECT
			symbol, name, snapshot_time, price_usd, price_change_24h,
			price_change_percentage_24h, market_cap_usd, market_cap_rank,
			total_volume, circulating_supply, fetched_at, raw_json
		FROM %s
		WHERE symbol = $1 AND snapshot_time = $2
	`, s.table)

	row := s.pool.QueryRow(ctx, query, symbol, snapshotTime)
	snap, err := scanSnapshot(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get snapshot by key: %w", err)
	}
	return snap, nil
}

// GetBySymbol retrieves all snapshots for a symbol, ordered by snapshot_time ASC.
func (s *SnapshotStore) GetBySymbol(ctx context.Context, symbol string) ([]*domain.SnapshotRecord, error) {
	query := fmt.Sprintf(`
		SELECT
			symbol, name, snapshot_time, price_usd, price_change_24h,
			price_change_percentage_24h, market_cap_usd, market_cap_rank,
			total_volume, circulating_supply, fetched_at, raw_json
		FROM %s
		WHERE symbol = $1
		ORDER BY snapshot_time ASC
	`, s.table)

	rows, err := s.pool.Query(ctx, query, symbol)
	if err != nil {
		return nil, fmt.Errorf("get snapshots by symbol: %w", err)
	}
	defer rows.Close()

	var snaps []*domain.SnapshotRecord
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot rows: %w", err)
	}

	return snaps, nil
}

// Count returns the total number of stored snapshot rows.
func (s *SnapshotStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", s.table)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count snapshots: %w", err)
	}
	return count, nil
}

// scanSnapshot scans a single row into a SnapshotRecord.
func scanSnapshot(row pgx.Row) (*domain.SnapshotRecord, error) {
	var snap domain.SnapshotRecord
	err := row.Scan(
		&snap.Symbol, &snap.Name, &snap.SnapshotTime, &snap.PriceUSD, &snap.PriceChange24h,
		&snap.PriceChangePercentage24h, &snap.MarketCapUSD, &snap.MarketCapRank,
		&snap.TotalVolume, &snap.CirculatingSupply, &snap.FetchedAt, &snap.RawJSON,
	)
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// placeholderGroup renders "($n, $n+1, ...)" for one row.
func placeholderGroup(start, count int) string {
	var sb strings.Builder
	sb.WriteByte('(')
	for i := 0; i < count; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "$%d", start+i)
	}
	sb.WriteByte(')')
	return sb.String()
}

// validateIdentifier rejects table names that cannot be interpolated safely.
func validateIdentifier(name string) error {
	for _, r := range name {
		ok := r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !ok {
			return fmt.Errorf("%w: invalid table name %q", storage.ErrInvalidInput, name)
		}
	}
	if name == "" {
		return fmt.Errorf("%w: empty table name", storage.ErrInvalidInput)
	}
	return nil
}
