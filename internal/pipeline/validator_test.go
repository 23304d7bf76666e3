package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"stablecap/internal/model"
	"stablecap/pkg/coingecko"
)

var testAsset = coingecko.Asset{
	ID:       "tether",
	Name:     "Tether",
	Symbol:   "USDT",
	MinPrice: 0.90,
	MaxPrice: 1.10,
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func rawPoint(ts time.Time, price, mcap, volume string) coingecko.RawPoint {
	p := coingecko.RawPoint{Time: ts}
	if price != "" {
		p.Price = dec(price)
	}
	if mcap != "" {
		p.MarketCap = dec(mcap)
	}
	if volume != "" {
		p.Volume = dec(volume)
	}
	return p
}

func TestNormalizeTruncatesToDay(t *testing.T) {
	ts := time.Date(2025, 5, 10, 17, 42, 13, 0, time.UTC)
	records := Normalize(context.Background(), testAsset, []coingecko.RawPoint{
		rawPoint(ts, "1.0003", "112000000000", "48000000000"),
	})

	require.Len(t, records, 1)
	rec := records[0]
	require.Equal(t, time.Date(2025, 5, 10, 0, 0, 0, 0, time.UTC), rec.TimestampUTC)
	require.Equal(t, "tether", rec.AssetID)
	require.Equal(t, "Tether", rec.AssetName)
	require.Equal(t, "USDT", rec.AssetSymbol)
	require.Equal(t, model.GranularityDaily, rec.Granularity)
	require.False(t, rec.Anomalous)
}

func TestNormalizeNonUTCTimestamps(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	// 03:00 on May 11 in UTC+9 is still May 10 in UTC.
	ts := time.Date(2025, 5, 11, 3, 0, 0, 0, loc)
	records := Normalize(context.Background(), testAsset, []coingecko.RawPoint{
		rawPoint(ts, "1.0", "1000", "10"),
	})

	require.Len(t, records, 1)
	require.Equal(t, time.Date(2025, 5, 10, 0, 0, 0, 0, time.UTC), records[0].TimestampUTC)
}

func TestNormalizeSameDayLaterWins(t *testing.T) {
	day := time.Date(2025, 5, 10, 0, 0, 0, 0, time.UTC)
	records := Normalize(context.Background(), testAsset, []coingecko.RawPoint{
		rawPoint(day.Add(2*time.Hour), "0.9990", "111000000000", "40000000000"),
		rawPoint(day.Add(20*time.Hour), "1.0010", "112000000000", "41000000000"),
	})

	require.Len(t, records, 1)
	require.Equal(t, "1.001", records[0].Price.String())
	require.Equal(t, "112000000000", records[0].MarketCap.String())
}

func TestNormalizeSameDayCollapsePreservesOrder(t *testing.T) {
	day1 := time.Date(2025, 5, 10, 0, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)
	records := Normalize(context.Background(), testAsset, []coingecko.RawPoint{
		rawPoint(day1.Add(time.Hour), "1.0001", "1", "1"),
		rawPoint(day2.Add(time.Hour), "1.0002", "2", "2"),
		rawPoint(day1.Add(23*time.Hour), "1.0003", "3", "3"),
	})

	require.Len(t, records, 2)
	require.Equal(t, day1, records[0].TimestampUTC)
	require.Equal(t, "1.0003", records[0].Price.String())
	require.Equal(t, day2, records[1].TimestampUTC)
}

func TestNormalizeRejectsNegativeValues(t *testing.T) {
	day := time.Date(2025, 5, 10, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		point coingecko.RawPoint
	}{
		{"negative price", rawPoint(day, "-0.5", "1000", "10")},
		{"negative market cap", rawPoint(day, "1.0", "-1000", "10")},
		{"negative volume", rawPoint(day, "1.0", "1000", "-10")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := Normalize(context.Background(), testAsset, []coingecko.RawPoint{tt.point})
			require.Empty(t, records)
		})
	}
}

func TestNormalizeRejectionDoesNotStopProcessing(t *testing.T) {
	day := time.Date(2025, 5, 10, 0, 0, 0, 0, time.UTC)
	records := Normalize(context.Background(), testAsset, []coingecko.RawPoint{
		rawPoint(day, "-1.0", "1000", "10"),
		rawPoint(day.Add(24*time.Hour), "1.0002", "1000", "10"),
	})

	require.Len(t, records, 1)
	require.Equal(t, day.Add(24*time.Hour), records[0].TimestampUTC)
}

func TestNormalizeFlagsAnomalyButKeepsRecord(t *testing.T) {
	day := time.Date(2025, 5, 10, 0, 0, 0, 0, time.UTC)
	records := Normalize(context.Background(), testAsset, []coingecko.RawPoint{
		rawPoint(day, "1.50", "1000", "10"),
		rawPoint(day.Add(24*time.Hour), "1.0001", "1000", "10"),
	})

	require.Len(t, records, 2, "anomalous record must be kept and processing must continue")
	require.True(t, records[0].Anomalous)
	require.Equal(t, "1.5", records[0].Price.String())
	require.False(t, records[1].Anomalous)
}

func TestNormalizeNilValuesPassThrough(t *testing.T) {
	day := time.Date(2025, 5, 10, 0, 0, 0, 0, time.UTC)
	records := Normalize(context.Background(), testAsset, []coingecko.RawPoint{
		rawPoint(day, "", "1000", ""),
	})

	require.Len(t, records, 1)
	require.Nil(t, records[0].Price)
	require.Nil(t, records[0].Volume24h)
	require.NotNil(t, records[0].MarketCap)
	require.False(t, records[0].Anomalous, "missing price cannot be anomalous")
}

func TestNormalizeQuantizesDecimals(t *testing.T) {
	day := time.Date(2025, 5, 10, 0, 0, 0, 0, time.UTC)
	records := Normalize(context.Background(), testAsset, []coingecko.RawPoint{
		rawPoint(day, "1.00012345678", "112000000000.456", "48000000000.989"),
	})

	require.Len(t, records, 1)
	require.Equal(t, "1.000123", records[0].Price.String())
	require.Equal(t, "112000000000.46", records[0].MarketCap.String())
	require.Equal(t, "48000000000.99", records[0].Volume24h.String())
}

func TestNormalizeWithoutBandSkipsAnomalyCheck(t *testing.T) {
	asset := coingecko.Asset{ID: "some-coin", Name: "Some Coin", Symbol: "SOME"}
	day := time.Date(2025, 5, 10, 0, 0, 0, 0, time.UTC)
	records := Normalize(context.Background(), asset, []coingecko.RawPoint{
		rawPoint(day, "42.5", "1000", "10"),
	})

	require.Len(t, records, 1)
	require.False(t, records[0].Anomalous)
}
