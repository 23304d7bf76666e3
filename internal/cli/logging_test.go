package cli

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stablecap/internal/config"
	"stablecap/internal/model"
	"stablecap/internal/pipeline"
	"stablecap/pkg/coingecko"
)

func TestConfigSummaryLines(t *testing.T) {
	cfg := &config.Config{
		Env:       "dev",
		BatchSize: 1000,
	}
	cfg.Postgres.DSN = "postgres://localhost/stablecap"

	lines := ConfigSummaryLines(cfg)
	joined := strings.Join(lines, "\n")

	assert.Contains(t, joined, "Environment: dev")
	assert.Contains(t, joined, "Postgres: configured")
	assert.Contains(t, joined, "Redis: not configured")
	assert.Contains(t, joined, "API key: not configured")
	assert.Contains(t, joined, "6 asset(s)")

	assert.Equal(t, []string{"Configuration: <nil>"}, ConfigSummaryLines(nil))
}

func TestRunSummaryLines(t *testing.T) {
	started := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)
	summary := &pipeline.RunSummary{
		RunID:      uuid.New(),
		StartedAt:  started,
		FinishedAt: started.Add(90 * time.Second),
		Outcomes: []pipeline.AssetOutcome{
			{
				Asset:     coingecko.Asset{ID: "tether", Symbol: "USDT"},
				Status:    pipeline.StatusDone,
				Records:   365,
				Anomalies: 1,
				From:      time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC),
				To:        time.Date(2025, 8, 31, 0, 0, 0, 0, time.UTC),
			},
			{
				Asset:  coingecko.Asset{ID: "frax", Symbol: "FRAX"},
				Status: pipeline.StatusFailed,
				Err:    errors.New("status 404"),
			},
			{
				Asset:  coingecko.Asset{ID: "true-usd", Symbol: "TUSD"},
				Status: pipeline.StatusDone,
			},
		},
	}

	lines := RunSummaryLines(summary)
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "1m30s")
	assert.Contains(t, lines[0], "2 succeeded, 1 failed, 365 record(s)")
	assert.Contains(t, lines[1], "365 record(s), 2024-09-01 to 2025-08-31, 1 anomalous")
	assert.Contains(t, lines[2], "FAILED: status 404")
	assert.Contains(t, lines[3], "no records in window")
}

func TestStatsLines(t *testing.T) {
	stats := []model.AssetStats{
		{AssetID: "tether", Records: 365, Earliest: time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC), Latest: time.Date(2025, 8, 31, 0, 0, 0, 0, time.UTC)},
		{AssetID: "usd-coin", Records: 120, Earliest: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), Latest: time.Date(2025, 8, 28, 0, 0, 0, 0, time.UTC)},
	}

	lines := StatsLines(stats)
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "tether: 365 daily record(s)")
	assert.Contains(t, lines[2], "Total daily records in store: 485")

	assert.Nil(t, StatsLines(nil))
}
