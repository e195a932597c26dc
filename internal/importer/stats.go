package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// Stats are the cumulative import counters kept under KeyStatsTotals.
type Stats struct {
	TotalImported     int        `json:"total_imported"`
	Runs              int        `json:"runs"`
	LastRun           time.Time  `json:"last_run"`
	LastCount         int        `json:"last_count"`
	LastSource        SourceKind `json:"last_source"`
	SuccessRate       float64    `json:"success_rate"`
	AvgSecondsPerItem float64    `json:"avg_seconds_per_item"`
}

// StatsAggregator maintains lifetime import statistics across runs.
type StatsAggregator struct {
	kv  KV
	now func() time.Time
}

// NewStatsAggregator builds an aggregator over kv.
func NewStatsAggregator(kv KV) *StatsAggregator {
	return &StatsAggregator{kv: kv, now: time.Now}
}

// RecordRun folds one finished run into the cumulative stats: lifetime
// created count, last-run snapshot, per-run success rate, and a rolling
// average of seconds per created item.
func (a *StatsAggregator) RecordRun(ctx context.Context, res *Result) error {
	stats, err := a.Get(ctx)
	if err != nil {
		return err
	}

	stats.TotalImported += res.Created
	stats.LastRun = a.now()
	stats.LastCount = res.Created
	stats.LastSource = res.Source

	attempted := res.Created + res.Errors
	if attempted > 0 {
		rate := float64(res.Created) / float64(attempted) * 100
		stats.SuccessRate = math.Round(rate*10) / 10
	}

	if res.Created > 0 && res.Duration > 0 {
		perItem := res.Duration.Seconds() / float64(res.Created)
		total := stats.AvgSecondsPerItem*float64(stats.Runs) + perItem
		stats.AvgSecondsPerItem = total / float64(stats.Runs+1)
	}
	stats.Runs++

	raw, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("encoding stats: %w", err)
	}
	if err := a.kv.Set(ctx, KeyStatsTotals, raw); err != nil {
		return fmt.Errorf("writing stats: %w", err)
	}
	return nil
}

// Get returns the cumulative stats, zero-valued when nothing has run yet.
func (a *StatsAggregator) Get(ctx context.Context) (Stats, error) {
	raw, err := a.kv.Get(ctx, KeyStatsTotals)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Stats{}, nil
		}
		return Stats{}, fmt.Errorf("reading stats: %w", err)
	}

	var stats Stats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return Stats{}, fmt.Errorf("decoding stats: %w", err)
	}
	return stats, nil
}
