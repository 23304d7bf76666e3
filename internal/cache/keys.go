package cache

import (
	"strings"
	"time"

	"stablecap/internal/config"
)

// Namespace is the Redis key prefix for the pipeline.
const Namespace = "stablecap"

// TTLSet normalises cache TTLs from config into time.Duration values.
type TTLSet struct {
	Short  time.Duration
	Medium time.Duration
	Long   time.Duration
}

// NewTTLSet converts config TTLs (in seconds) into durations.
func NewTTLSet(cfg config.CacheTTL) TTLSet {
	return TTLSet{
		Short:  durationOrDefault(cfg.Short, 10*time.Second),
		Medium: durationOrDefault(cfg.Medium, time.Minute),
		Long:   durationOrDefault(cfg.Long, 5*time.Minute),
	}
}

func durationOrDefault(seconds int, fallback time.Duration) time.Duration {
	if seconds < 0 {
		return 0
	}
	if seconds == 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

// LatestRecordKey addresses the newest persisted record for one asset.
func LatestRecordKey(assetID string) string {
	return formatKey("market_caps", "latest", assetID)
}

// RunSummaryKey addresses the outcome of the most recent pipeline run.
func RunSummaryKey() string {
	return formatKey("runs", "latest")
}

// LatestRecordTTL is how long cached latest records stay fresh. Daily data
// goes stale slowly, so the long bucket applies.
func LatestRecordTTL(set TTLSet) time.Duration { return set.Long }

// RunSummaryTTL bounds how long the last run outcome is kept.
func RunSummaryTTL(set TTLSet) time.Duration { return set.Medium }

func formatKey(parts ...string) string {
	values := make([]string, 0, len(parts)+1)
	values = append(values, Namespace)
	for _, part := range parts {
		clean := strings.TrimSpace(part)
		if clean == "" {
			continue
		}
		values = append(values, clean)
	}
	return strings.Join(values, ":")
}
