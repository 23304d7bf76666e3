package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// GranularityDaily is the only granularity the pipeline ingests. The column
// exists so historical rows keep their meaning if finer data is ever added.
const GranularityDaily = "daily"

// MarketRecord is the persisted unit: one asset, one UTC calendar day.
// Rows are uniquely keyed by (AssetID, TimestampUTC); re-ingesting a key
// overwrites the non-key columns instead of duplicating the row.
type MarketRecord struct {
	AssetID     string
	AssetName   string
	AssetSymbol string
	// TimestampUTC is truncated to the day boundary by the validator.
	TimestampUTC time.Time
	MarketCap    *decimal.Decimal
	Price        *decimal.Decimal
	Volume24h    *decimal.Decimal
	Granularity  string

	// Anomalous marks a price outside the asset's expected band. The record
	// is stored regardless; the flag only drives logging and summaries.
	Anomalous bool
}

// AssetStats summarises the stored rows for one asset.
type AssetStats struct {
	AssetID  string
	Records  int64
	Earliest time.Time
	Latest   time.Time
}
