package marketdata

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zeromicro/go-zero/core/logx"
	gocache "github.com/zeromicro/go-zero/core/stores/cache"
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	cachekeys "stablecap/internal/cache"
	"stablecap/internal/model"
)

const defaultBatchSize = 1000

// Service persists validated market records into Postgres in bounded pages.
// Each page commits in its own transaction, so a failing page never unwinds
// pages already written. The cache hook is optional and best-effort.
type Service struct {
	sqlConn   sqlx.SqlConn
	cache     gocache.Cache
	ttl       cachekeys.TTLSet
	batchSize int
}

// Config enumerates dependencies required to persist market data.
type Config struct {
	SQLConn   sqlx.SqlConn
	Cache     gocache.Cache
	TTL       cachekeys.TTLSet
	BatchSize int
}

// NewService wires the persistence service.
func NewService(cfg Config) *Service {
	size := cfg.BatchSize
	if size <= 0 {
		size = defaultBatchSize
	}
	return &Service{
		sqlConn:   cfg.SQLConn,
		cache:     cfg.Cache,
		ttl:       cfg.TTL,
		batchSize: size,
	}
}

// PersistError reports a failed page along with how many rows earlier pages
// already committed.
type PersistError struct {
	Page      int
	Committed int
	Err       error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("marketdata: upsert page %d failed after %d committed row(s): %v", e.Page, e.Committed, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// One statement per entry: the pgx driver prepares each Exec, and prepared
// statements cannot hold multiple commands.
var schemaStatements = []string{
	`
CREATE TABLE IF NOT EXISTS public.market_caps (
    id BIGSERIAL PRIMARY KEY,
    asset_id VARCHAR(50) NOT NULL,
    asset_name VARCHAR(100) NOT NULL,
    asset_symbol VARCHAR(10) NOT NULL,
    timestamp_utc TIMESTAMPTZ NOT NULL,
    market_cap NUMERIC(20,2),
    price NUMERIC(12,6),
    volume_24h NUMERIC(20,2),
    granularity VARCHAR(20) NOT NULL DEFAULT 'daily',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CONSTRAINT market_caps_asset_ts_key UNIQUE (asset_id, timestamp_utc)
)`,
	`
CREATE INDEX IF NOT EXISTS idx_market_caps_asset_ts
ON public.market_caps (asset_id, timestamp_utc)`,
	`
CREATE INDEX IF NOT EXISTS idx_market_caps_ts
ON public.market_caps (timestamp_utc)`,
	`
CREATE INDEX IF NOT EXISTS idx_market_caps_asset
ON public.market_caps (asset_id)`,
}

// EnsureSchema creates the table, uniqueness constraint and indexes when
// absent. Safe to run on every start.
func (s *Service) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.sqlConn.ExecCtx(ctx, stmt); err != nil {
			return fmt.Errorf("marketdata: ensure schema: %w", err)
		}
	}
	return nil
}

const upsertRecord = `
INSERT INTO public.market_caps (
    asset_id, asset_name, asset_symbol, timestamp_utc,
    market_cap, price, volume_24h, granularity, created_at, updated_at
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW()
)
ON CONFLICT (asset_id, timestamp_utc) DO UPDATE SET
    asset_name = EXCLUDED.asset_name,
    asset_symbol = EXCLUDED.asset_symbol,
    market_cap = EXCLUDED.market_cap,
    price = EXCLUDED.price,
    volume_24h = EXCLUDED.volume_24h,
    granularity = EXCLUDED.granularity,
    updated_at = NOW();`

// UpsertRecords writes records in pages, one transaction per page. The
// returned count is the number of rows written by committed pages, also when
// a later page fails.
func (s *Service) UpsertRecords(ctx context.Context, records []model.MarketRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	committed := 0
	for pageIdx, page := range paginate(records, s.batchSize) {
		err := s.sqlConn.TransactCtx(ctx, func(ctx context.Context, session sqlx.Session) error {
			for _, rec := range page {
				granularity := rec.Granularity
				if granularity == "" {
					granularity = model.GranularityDaily
				}
				if _, err := session.ExecCtx(ctx, upsertRecord,
					rec.AssetID,
					rec.AssetName,
					rec.AssetSymbol,
					rec.TimestampUTC,
					nullDecimal(rec.MarketCap),
					nullDecimal(rec.Price),
					nullDecimal(rec.Volume24h),
					granularity,
				); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return committed, &PersistError{Page: pageIdx, Committed: committed, Err: err}
		}
		committed += len(page)
	}

	s.cacheLatest(ctx, records)
	return committed, nil
}

const statsQuery = `
SELECT
    asset_id,
    COUNT(*) AS record_count,
    MIN(timestamp_utc) AS earliest,
    MAX(timestamp_utc) AS latest
FROM public.market_caps
GROUP BY asset_id
ORDER BY asset_id`

type statsRow struct {
	AssetID  string    `db:"asset_id"`
	Records  int64     `db:"record_count"`
	Earliest time.Time `db:"earliest"`
	Latest   time.Time `db:"latest"`
}

// Stats reports per-asset row counts and stored time ranges.
func (s *Service) Stats(ctx context.Context) ([]model.AssetStats, error) {
	var rows []statsRow
	if err := s.sqlConn.QueryRowsCtx(ctx, &rows, statsQuery); err != nil {
		return nil, fmt.Errorf("marketdata: stats: %w", err)
	}
	stats := make([]model.AssetStats, 0, len(rows))
	for _, row := range rows {
		stats = append(stats, model.AssetStats{
			AssetID:  row.AssetID,
			Records:  row.Records,
			Earliest: row.Earliest.UTC(),
			Latest:   row.Latest.UTC(),
		})
	}
	return stats, nil
}

// cacheLatest refreshes the newest record per asset in Redis. Errors are
// logged, never returned: the cache is a convenience, not part of the
// persistence contract.
func (s *Service) cacheLatest(ctx context.Context, records []model.MarketRecord) {
	if s.cache == nil {
		return
	}
	newest := make(map[string]model.MarketRecord, 4)
	for _, rec := range records {
		cur, ok := newest[rec.AssetID]
		if !ok || rec.TimestampUTC.After(cur.TimestampUTC) {
			newest[rec.AssetID] = rec
		}
	}
	ttl := cachekeys.LatestRecordTTL(s.ttl)
	if ttl <= 0 {
		return
	}
	for assetID, rec := range newest {
		key := cachekeys.LatestRecordKey(assetID)
		payload := map[string]any{
			"asset_id":     rec.AssetID,
			"symbol":       rec.AssetSymbol,
			"timestamp_ms": rec.TimestampUTC.UnixMilli(),
			"price":        decimalString(rec.Price),
			"market_cap":   decimalString(rec.MarketCap),
			"volume_24h":   decimalString(rec.Volume24h),
		}
		if err := s.cache.SetWithExpireCtx(ctx, key, payload, ttl); err != nil {
			logx.WithContext(ctx).Errorf("marketdata: cache latest key=%s err=%v", key, err)
		}
	}
}

func paginate(records []model.MarketRecord, size int) [][]model.MarketRecord {
	if size <= 0 {
		size = defaultBatchSize
	}
	pages := make([][]model.MarketRecord, 0, (len(records)+size-1)/size)
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		pages = append(pages, records[start:end])
	}
	return pages
}

// nullDecimal renders a decimal for a nullable NUMERIC column. Values travel
// as strings so no float64 conversion can shave precision off the wire.
func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func decimalString(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.String()
}
