package pipeline

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zeromicro/go-zero/core/logx"

	"stablecap/internal/model"
	"stablecap/pkg/coingecko"
)

// Anomalies beyond this many are summarised in one line instead of logged
// individually.
const maxLoggedAnomalies = 5

const (
	pricePlaces  = 6
	amountPlaces = 2
)

// Normalize converts raw provider points into persistable records, applied in
// timestamp order. It never fails: bad points are dropped with a log line,
// out-of-band prices are flagged but kept.
//
// Rules per point:
//   - the timestamp is truncated to its UTC day; when two points land on the
//     same day the later one in input order wins,
//   - negative price, market cap or volume rejects the point,
//   - a price outside the asset's expected band marks the record anomalous,
//   - monetary values are quantised half-up: price to 6 places, market cap
//     and volume to 2.
func Normalize(ctx context.Context, asset coingecko.Asset, points []coingecko.RawPoint) []model.MarketRecord {
	logger := logx.WithContext(ctx)

	var minPrice, maxPrice decimal.Decimal
	checkBand := asset.MinPrice != 0 || asset.MaxPrice != 0
	if checkBand {
		minPrice = decimal.NewFromFloat(asset.MinPrice)
		maxPrice = decimal.NewFromFloat(asset.MaxPrice)
	}

	records := make([]model.MarketRecord, 0, len(points))
	dayIndex := make(map[int64]int, len(points))
	anomalies := 0

	for _, point := range points {
		day := point.Time.UTC().Truncate(24 * time.Hour)

		if point.Price != nil && point.Price.IsNegative() {
			logger.Errorf("validate %s: negative price %s at %s, point dropped", asset.ID, point.Price, day.Format("2006-01-02"))
			continue
		}
		if point.MarketCap != nil && point.MarketCap.IsNegative() {
			logger.Errorf("validate %s: negative market cap %s at %s, point dropped", asset.ID, point.MarketCap, day.Format("2006-01-02"))
			continue
		}
		if point.Volume != nil && point.Volume.IsNegative() {
			logger.Errorf("validate %s: negative volume %s at %s, point dropped", asset.ID, point.Volume, day.Format("2006-01-02"))
			continue
		}

		rec := model.MarketRecord{
			AssetID:      asset.ID,
			AssetName:    asset.Name,
			AssetSymbol:  asset.Symbol,
			TimestampUTC: day,
			Price:        quantize(point.Price, pricePlaces),
			MarketCap:    quantize(point.MarketCap, amountPlaces),
			Volume24h:    quantize(point.Volume, amountPlaces),
			Granularity:  model.GranularityDaily,
		}

		if checkBand && rec.Price != nil && (rec.Price.LessThan(minPrice) || rec.Price.GreaterThan(maxPrice)) {
			rec.Anomalous = true
			anomalies++
			if anomalies <= maxLoggedAnomalies {
				logger.Infof("validate %s: price anomaly $%s at %s (expected [%.2f, %.2f]), record kept",
					asset.ID, rec.Price, day.Format("2006-01-02"), asset.MinPrice, asset.MaxPrice)
			}
		}

		if idx, seen := dayIndex[day.Unix()]; seen {
			// Provider oversampling: the later point overwrites the earlier.
			records[idx] = rec
			continue
		}
		dayIndex[day.Unix()] = len(records)
		records = append(records, rec)
	}

	if anomalies > maxLoggedAnomalies {
		logger.Infof("validate %s: %d price anomalies in total", asset.ID, anomalies)
	}
	return records
}

func quantize(d *decimal.Decimal, places int32) *decimal.Decimal {
	if d == nil {
		return nil
	}
	q := d.Round(places)
	return &q
}
