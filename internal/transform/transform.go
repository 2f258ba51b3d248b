// Package transform normalizes raw market records into SnapshotRecords.
// Pure: no I/O, deterministic given the records and the fetched-at instant.
package transform

import (
	"fmt"
	"strconv"
	"time"

	"market-snapshot-etl/internal/domain"
)

// Transform projects each raw record onto the snapshot schema, coerces
// numeric fields tolerantly, parses the source timestamp strictly, stamps
// every record with the same fetchedAt, and collapses duplicate
// (symbol, snapshot_time) pairs keeping the last seen. Output order is
// unspecified.
//
// A missing or invalid "id" or "last_updated" fails the whole batch: those
// indicate upstream contract drift, not a bad data point.
func Transform(records []domain.RawRecord, fetchedAt time.Time) ([]*domain.SnapshotRecord, error) {
	byKey := make(map[domain.Key]*domain.SnapshotRecord, len(records))
	order := make([]domain.Key, 0, len(records))

	for i, rec := range records {
		snap, err := transformRecord(rec, fetchedAt)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}

		key := snap.Key()
		if _, seen := byKey[key]; !seen {
			order = append(order, key)
		}
		byKey[key] = snap // last one wins
	}

	out := make([]*domain.SnapshotRecord, 0, len(byKey))
	for _, key := range order {
		out = append(out, byKey[key])
	}
	return out, nil
}

func transformRecord(rec domain.RawRecord, fetchedAt time.Time) (*domain.SnapshotRecord, error) {
	symbol, ok := asString(rec.Fields["id"])
	if !ok || symbol == "" {
		return nil, fmt.Errorf("missing required field %q", "id")
	}

	snapshotTime, err := parseSnapshotTime(rec.Fields["last_updated"])
	if err != nil {
		return nil, err
	}

	return &domain.SnapshotRecord{
		Symbol:                   symbol,
		Name:                     stringOrNil(rec.Fields["name"]),
		SnapshotTime:             snapshotTime,
		PriceUSD:                 floatOrNil(rec.Fields["current_price"]),
		PriceChange24h:           floatOrNil(rec.Fields["price_change_24h"]),
		PriceChangePercentage24h: floatOrNil(rec.Fields["price_change_percentage_24h"]),
		MarketCapUSD:             floatOrNil(rec.Fields["market_cap"]),
		MarketCapRank:            intOrNil(rec.Fields["market_cap_rank"]),
		TotalVolume:              floatOrNil(rec.Fields["total_volume"]),
		CirculatingSupply:        floatOrNil(rec.Fields["circulating_supply"]),
		FetchedAt:                fetchedAt.UTC(),
		RawJSON:                  rec.Raw,
	}, nil
}

// parseSnapshotTime parses the source "last_updated" instant. Malformed time
// data is a hard error; it is never silently nulled.
func parseSnapshotTime(v interface{}) (time.Time, error) {
	s, ok := asString(v)
	if !ok || s == "" {
		return time.Time{}, fmt.Errorf("missing required field %q", "last_updated")
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse last_updated %q: %w", s, err)
	}
	return t.UTC(), nil
}

func asString(v interface{}) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func stringOrNil(v interface{}) *string {
	if s, ok := v.(string); ok {
		return &s
	}
	return nil
}

// floatOrNil coerces JSON numbers and numeric strings. Anything else
// (missing, null, garbage) becomes nil rather than an error.
func floatOrNil(v interface{}) *float64 {
	switch n := v.(type) {
	case float64:
		return &n
	case int:
		f := float64(n)
		return &f
	case int64:
		f := float64(n)
		return &f
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return nil
		}
		return &f
	default:
		return nil
	}
}

func intOrNil(v interface{}) *int32 {
	f := floatOrNil(v)
	if f == nil {
		return nil
	}
	n := int32(*f)
	return &n
}
