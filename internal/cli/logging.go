package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"stablecap/internal/config"
	"stablecap/internal/model"
	"stablecap/internal/pipeline"
)

// ConfigSummaryLines returns human readable lines describing the loaded app config.
func ConfigSummaryLines(cfg *config.Config) []string {
	if cfg == nil {
		return []string{"Configuration: <nil>"}
	}

	provider := cfg.ProviderConfig()
	lines := []string{
		fmt.Sprintf("Environment: %s", cfg.Env),
		fmt.Sprintf("Postgres: %s", presence(cfg.Postgres.DSN != "")),
		fmt.Sprintf("Redis: %s", presence(strings.TrimSpace(cfg.Redis.Host) != "")),
		fmt.Sprintf("Batch size: %d", cfg.BatchSize),
		fmt.Sprintf("Provider: %s (%d asset(s), window %d day(s))", provider.BaseURL, len(provider.Assets), provider.WindowDays),
		fmt.Sprintf("API key: %s", presence(provider.APIKey != "")),
		fmt.Sprintf("Rate limit: %d calls/min (%s spacing), %d attempt(s)", provider.CallsPerMinute, provider.RateInterval(), provider.MaxAttempts),
	}
	return lines
}

// RunSummaryLines renders the outcome of one pipeline pass.
func RunSummaryLines(summary *pipeline.RunSummary) []string {
	if summary == nil {
		return []string{"Run summary: <nil>"}
	}

	lines := []string{
		fmt.Sprintf("Run %s: %s (%d succeeded, %d failed, %d record(s))",
			summary.RunID,
			summary.FinishedAt.Sub(summary.StartedAt).Round(time.Second),
			len(summary.Succeeded()),
			len(summary.Failed()),
			summary.TotalRecords()),
	}
	for _, outcome := range summary.Outcomes {
		switch outcome.Status {
		case pipeline.StatusDone:
			if outcome.Records == 0 {
				lines = append(lines, fmt.Sprintf("%s (%s): ok, no records in window", outcome.Asset.ID, outcome.Asset.Symbol))
				continue
			}
			lines = append(lines, fmt.Sprintf("%s (%s): %d record(s), %s to %s, %d anomalous",
				outcome.Asset.ID,
				outcome.Asset.Symbol,
				outcome.Records,
				outcome.From.Format("2006-01-02"),
				outcome.To.Format("2006-01-02"),
				outcome.Anomalies))
		default:
			lines = append(lines, fmt.Sprintf("%s (%s): FAILED: %v", outcome.Asset.ID, outcome.Asset.Symbol, outcome.Err))
		}
	}
	return lines
}

// StatsLines renders the stored totals after a run.
func StatsLines(stats []model.AssetStats) []string {
	if len(stats) == 0 {
		return nil
	}
	var total int64
	lines := make([]string, 0, len(stats)+1)
	for _, s := range stats {
		total += s.Records
		lines = append(lines, fmt.Sprintf("%s: %d daily record(s) (%s to %s)",
			s.AssetID, s.Records, s.Earliest.Format("2006-01-02"), s.Latest.Format("2006-01-02")))
	}
	lines = append(lines, fmt.Sprintf("Total daily records in store: %d", total))
	return lines
}

// LogConfigSummary emits the configuration summary using logx.
func LogConfigSummary(cfg *config.Config) {
	logx.Info("configuration summary")
	for _, line := range ConfigSummaryLines(cfg) {
		logx.Infof("config • %s", line)
	}
}

func presence(ok bool) string {
	if ok {
		return "configured"
	}
	return "not configured"
}
