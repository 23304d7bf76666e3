package coingecko

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Asset describes one tracked coin: the CoinGecko identifier, display
// metadata, and the price band outside which a point is flagged anomalous.
type Asset struct {
	ID       string  `yaml:"id"`
	Name     string  `yaml:"name"`
	Symbol   string  `yaml:"symbol"`
	MinPrice float64 `yaml:"min_price"`
	MaxPrice float64 `yaml:"max_price"`
}

// RawPoint is one provider sample: a timestamp plus up to three values.
// A nil field means the corresponding series had no value at that timestamp.
type RawPoint struct {
	Time      time.Time
	Price     *decimal.Decimal
	MarketCap *decimal.Decimal
	Volume    *decimal.Decimal
}

// marketChartResponse mirrors the /coins/{id}/market_chart payload: three
// parallel series of [unix_ms, value] pairs. Values are kept as json.Number
// so they can be converted to decimals without a float64 round trip.
type marketChartResponse struct {
	Prices       []seriesPoint `json:"prices"`
	MarketCaps   []seriesPoint `json:"market_caps"`
	TotalVolumes []seriesPoint `json:"total_volumes"`
}

type seriesPoint [2]json.Number
