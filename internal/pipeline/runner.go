package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/zeromicro/go-zero/core/logx"

	"stablecap/internal/model"
	"stablecap/pkg/coingecko"
)

// Fetcher retrieves the historical series for one asset.
type Fetcher interface {
	MarketChart(ctx context.Context, assetID string, days int) ([]coingecko.RawPoint, error)
}

// Upserter persists validated records and reports how many rows were written.
type Upserter interface {
	UpsertRecords(ctx context.Context, records []model.MarketRecord) (int, error)
}

// Status tracks one asset through the run.
type Status string

const (
	StatusPending    Status = "pending"
	StatusFetching   Status = "fetching"
	StatusValidating Status = "validating"
	StatusPersisting Status = "persisting"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// AssetOutcome captures the terminal state of one asset's chain.
type AssetOutcome struct {
	Asset     coingecko.Asset
	Status    Status
	Records   int
	Anomalies int
	From      time.Time
	To        time.Time
	Err       error
}

// RunSummary aggregates a full pipeline pass.
type RunSummary struct {
	RunID      uuid.UUID
	StartedAt  time.Time
	FinishedAt time.Time
	Outcomes   []AssetOutcome
}

// Succeeded returns the outcomes that reached DONE.
func (s *RunSummary) Succeeded() []AssetOutcome {
	return s.filter(StatusDone)
}

// Failed returns the outcomes that terminated in FAILED.
func (s *RunSummary) Failed() []AssetOutcome {
	return s.filter(StatusFailed)
}

func (s *RunSummary) filter(status Status) []AssetOutcome {
	var out []AssetOutcome
	for _, o := range s.Outcomes {
		if o.Status == status {
			out = append(out, o)
		}
	}
	return out
}

// TotalRecords sums persisted rows across successful assets.
func (s *RunSummary) TotalRecords() int {
	total := 0
	for _, o := range s.Outcomes {
		if o.Status == StatusDone {
			total += o.Records
		}
	}
	return total
}

// Runner drives the fetch → validate → persist chain across the configured
// asset list, one asset at a time. Sequential processing is load-bearing:
// the provider rate limit is enforced by ordering all outbound requests on
// this single path.
type Runner struct {
	fetcher    Fetcher
	upserter   Upserter
	assets     []coingecko.Asset
	windowDays int
}

// NewRunner wires a pipeline runner.
func NewRunner(fetcher Fetcher, upserter Upserter, assets []coingecko.Asset, windowDays int) *Runner {
	return &Runner{
		fetcher:    fetcher,
		upserter:   upserter,
		assets:     assets,
		windowDays: windowDays,
	}
}

// Run executes one full pass. It never fails as a whole: each asset ends in
// DONE or FAILED and the summary reports both sides. Cancellation is only
// honoured between assets; an in-flight chain runs to its own conclusion.
func (r *Runner) Run(ctx context.Context) *RunSummary {
	summary := &RunSummary{
		RunID:     uuid.New(),
		StartedAt: time.Now().UTC(),
	}
	logger := logx.WithContext(ctx)
	logger.Infof("pipeline: run %s starting for %d asset(s), window %d day(s)", summary.RunID, len(r.assets), r.windowDays)

	for _, asset := range r.assets {
		if err := ctx.Err(); err != nil {
			summary.Outcomes = append(summary.Outcomes, AssetOutcome{
				Asset:  asset,
				Status: StatusFailed,
				Err:    err,
			})
			continue
		}
		summary.Outcomes = append(summary.Outcomes, r.processAsset(ctx, asset))
	}

	summary.FinishedAt = time.Now().UTC()
	logger.Infof("pipeline: run %s finished: %d succeeded, %d failed, %d record(s) persisted",
		summary.RunID, len(summary.Succeeded()), len(summary.Failed()), summary.TotalRecords())
	return summary
}

func (r *Runner) processAsset(ctx context.Context, asset coingecko.Asset) AssetOutcome {
	logger := logx.WithContext(ctx)
	outcome := AssetOutcome{Asset: asset, Status: StatusPending}

	outcome.Status = StatusFetching
	logger.Infof("pipeline: %s: fetching last %d day(s)", asset.ID, r.windowDays)
	points, err := r.fetcher.MarketChart(ctx, asset.ID, r.windowDays)
	if err != nil {
		logger.Errorf("pipeline: %s: fetch failed: %v", asset.ID, err)
		outcome.Status = StatusFailed
		outcome.Err = err
		return outcome
	}

	outcome.Status = StatusValidating
	records := Normalize(ctx, asset, points)
	for _, rec := range records {
		if rec.Anomalous {
			outcome.Anomalies++
		}
	}
	if len(records) == 0 {
		logger.Infof("pipeline: %s: no valid records in window, nothing to persist", asset.ID)
		outcome.Status = StatusDone
		return outcome
	}

	outcome.Status = StatusPersisting
	count, err := r.upserter.UpsertRecords(ctx, records)
	if err != nil {
		logger.Errorf("pipeline: %s: persist failed: %v", asset.ID, err)
		outcome.Status = StatusFailed
		outcome.Err = err
		return outcome
	}

	outcome.Status = StatusDone
	outcome.Records = count
	outcome.From = records[0].TimestampUTC
	outcome.To = records[len(records)-1].TimestampUTC
	logger.Infof("pipeline: %s: persisted %d record(s) spanning %s to %s (%d anomalous)",
		asset.ID, count, outcome.From.Format("2006-01-02"), outcome.To.Format("2006-01-02"), outcome.Anomalies)
	return outcome
}
