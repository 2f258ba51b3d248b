package domain

import (
	"encoding/json"
	"time"
)

// RawRecord is one per-asset object from the markets API, kept both decoded
// and verbatim so downstream stages never re-serialize the source payload.
type RawRecord struct {
	Fields map[string]interface{} // decoded JSON object
	Raw    json.RawMessage        // exact bytes received for this record
}

// RawBatch is the unmodified API response for one extraction.
// Body is the verbatim JSON array; Records are its decoded elements.
type RawBatch struct {
	Body      []byte
	Records   []RawRecord
	FetchedAt time.Time
}

// SnapshotRecord is the normalized unit: one asset at one source timestamp.
// Nullable columns are pointers; coercion failure yields nil, never an error.
type SnapshotRecord struct {
	Symbol                   string // canonical asset identifier (API "id")
	Name                     *string
	SnapshotTime             time.Time // source "last_updated", the natural key component
	PriceUSD                 *float64
	PriceChange24h           *float64
	PriceChangePercentage24h *float64
	MarketCapUSD             *float64
	MarketCapRank            *int32
	TotalVolume              *float64
	CirculatingSupply        *float64
	FetchedAt                time.Time       // wall-clock time this row was produced
	RawJSON                  json.RawMessage // verbatim source record
}

// Key identifies a snapshot row. At most one row exists per Key.
type Key struct {
	Symbol       string
	SnapshotTime time.Time
}

// Key returns the natural key of the record, with SnapshotTime normalized
// to UTC so equal instants in different zones collapse.
func (s *SnapshotRecord) Key() Key {
	return Key{Symbol: s.Symbol, SnapshotTime: s.SnapshotTime.UTC()}
}
