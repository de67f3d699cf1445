package analytics

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/apuracao/pkg/kafka"
)

// maxLatencySamples bounds the latency window used for percentiles.
const maxLatencySamples = 10000

type AggregatedStats struct {
	TotalDraws       int64            `json:"total_draws"`
	CompleteDraws    int64            `json:"complete_draws"`
	PartialDraws     int64            `json:"partial_draws"`
	FailedDraws      int64            `json:"failed_draws"`
	DrawsByMode      map[string]int64 `json:"draws_by_mode"`
	FailuresByKind   map[string]int64 `json:"failures_by_kind"`
	ExactMatches     int64            `json:"exact_matches"`
	ExactMatchRate   float64          `json:"exact_match_rate"`
	FallbackDraws    int64            `json:"fallback_draws"`
	CacheHits        int64            `json:"cache_hits"`
	CacheMisses      int64            `json:"cache_misses"`
	DatasetsUploaded int64            `json:"datasets_uploaded"`
	AvgLatencyMs     float64          `json:"avg_latency_ms"`
	P50LatencyMs     int64            `json:"p50_latency_ms"`
	P95LatencyMs     int64            `json:"p95_latency_ms"`
	P99LatencyMs     int64            `json:"p99_latency_ms"`
	TopDatasets      []DatasetCount   `json:"top_datasets"`
	DrawsPerMinute   float64          `json:"draws_per_minute"`
}

type DatasetCount struct {
	DatasetID string `json:"dataset_id"`
	Count     int64  `json:"count"`
}

// Runner is satisfied by *kafka.Consumer.
type Runner interface {
	Start(ctx context.Context) error
}

type Aggregator struct {
	mu             sync.RWMutex
	totalDraws     atomic.Int64
	completeDraws  atomic.Int64
	partialDraws   atomic.Int64
	failedDraws    atomic.Int64
	exactMatches   atomic.Int64
	fallbackDraws  atomic.Int64
	cacheHits      atomic.Int64
	cacheMisses    atomic.Int64
	uploads        atomic.Int64
	latencies      []int64
	latencyNext    int
	byMode         map[string]int64
	failuresByKind map[string]int64
	datasetCounts  map[string]int64
	startTime      time.Time
	now            func() time.Time

	logger *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies:      make([]int64, 0, 1024),
		byMode:         make(map[string]int64),
		failuresByKind: make(map[string]int64),
		datasetCounts:  make(map[string]int64),
		startTime:      time.Now(),
		now:            time.Now,
		logger:         slog.Default().With("component", "analytics-aggregator"),
	}
}

// Start consumes events through runner until ctx ends.
func (a *Aggregator) Start(ctx context.Context, runner Runner) error {
	a.logger.Info("analytics aggregator starting")
	return runner.Start(ctx)
}

// HandleEvent routes draw-events messages into agg. Undecodable messages are
// logged and skipped so they do not block the partition.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		var env envelope
		if err := json.Unmarshal(value, &env); err != nil {
			agg.logger.Error("failed to decode analytics event", "error", err)
			return nil
		}
		switch env.Type {
		case EventDraw:
			event, err := kafka.DecodeJSON[DrawEvent](value)
			if err != nil {
				agg.logger.Error("failed to decode draw event", "error", err)
				return nil
			}
			agg.RecordDraw(event)
		case EventDatasetUploaded:
			event, err := kafka.DecodeJSON[DatasetEvent](value)
			if err != nil {
				agg.logger.Error("failed to decode dataset event", "error", err)
				return nil
			}
			agg.RecordDataset(event)
		default:
			agg.logger.Warn("unknown analytics event type", "type", env.Type)
		}
		return nil
	}
}

// RecordDraw folds one draw event into the running totals.
func (a *Aggregator) RecordDraw(event DrawEvent) {
	a.totalDraws.Add(1)
	switch event.Outcome {
	case "complete":
		a.completeDraws.Add(1)
	case "partial":
		a.partialDraws.Add(1)
	default:
		a.failedDraws.Add(1)
	}
	if event.CacheHit {
		a.cacheHits.Add(1)
	} else {
		a.cacheMisses.Add(1)
	}
	if event.FallbackUsed {
		a.fallbackDraws.Add(1)
	}
	failed := event.Outcome != "complete" && event.Outcome != "partial"
	if !failed && event.Match == "exact" {
		a.exactMatches.Add(1)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.byMode[event.Mode]++
	if failed {
		a.failuresByKind[event.Outcome]++
	}
	if event.DatasetID != "" {
		a.datasetCounts[event.DatasetID]++
	}
	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, event.LatencyMs)
		return
	}
	a.latencies[a.latencyNext] = event.LatencyMs
	a.latencyNext = (a.latencyNext + 1) % maxLatencySamples
}

func (a *Aggregator) RecordDataset(event DatasetEvent) {
	if !event.Duplicate {
		a.uploads.Add(1)
	}
}

// Restore seeds the counters from a persisted snapshot so totals survive a
// restart. Latency samples are not carried over.
func (a *Aggregator) Restore(stats AggregatedStats) {
	a.totalDraws.Store(stats.TotalDraws)
	a.completeDraws.Store(stats.CompleteDraws)
	a.partialDraws.Store(stats.PartialDraws)
	a.failedDraws.Store(stats.FailedDraws)
	a.exactMatches.Store(stats.ExactMatches)
	a.fallbackDraws.Store(stats.FallbackDraws)
	a.cacheHits.Store(stats.CacheHits)
	a.cacheMisses.Store(stats.CacheMisses)
	a.uploads.Store(stats.DatasetsUploaded)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.byMode = copyCounts(stats.DrawsByMode)
	a.failuresByKind = copyCounts(stats.FailuresByKind)
	a.datasetCounts = make(map[string]int64, len(stats.TopDatasets))
	for _, dc := range stats.TopDatasets {
		a.datasetCounts[dc.DatasetID] = dc.Count
	}
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalDraws:       a.totalDraws.Load(),
		CompleteDraws:    a.completeDraws.Load(),
		PartialDraws:     a.partialDraws.Load(),
		FailedDraws:      a.failedDraws.Load(),
		DrawsByMode:      copyCounts(a.byMode),
		FailuresByKind:   copyCounts(a.failuresByKind),
		ExactMatches:     a.exactMatches.Load(),
		FallbackDraws:    a.fallbackDraws.Load(),
		CacheHits:        a.cacheHits.Load(),
		CacheMisses:      a.cacheMisses.Load(),
		DatasetsUploaded: a.uploads.Load(),
	}
	if succeeded := stats.CompleteDraws + stats.PartialDraws; succeeded > 0 {
		stats.ExactMatchRate = float64(stats.ExactMatches) / float64(succeeded)
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopDatasets = topN(a.datasetCounts, 10)
	elapsed := a.now().Sub(a.startTime).Minutes()
	if elapsed > 0 {
		stats.DrawsPerMinute = float64(stats.TotalDraws) / elapsed
	}

	return stats
}

func copyCounts(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN orders by count, then by dataset id so equal counts are stable.
func topN(counts map[string]int64, n int) []DatasetCount {
	result := make([]DatasetCount, 0, len(counts))
	for id, count := range counts {
		result = append(result, DatasetCount{DatasetID: id, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].DatasetID < result[j].DatasetID
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
