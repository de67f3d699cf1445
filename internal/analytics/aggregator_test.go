package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func draw(ds, mode, outcome, match string, latency int64) DrawEvent {
	return DrawEvent{
		Type:      EventDraw,
		DatasetID: ds,
		Mode:      mode,
		Outcome:   outcome,
		Match:     match,
		LatencyMs: latency,
	}
}

func TestAggregatorStats(t *testing.T) {
	agg := NewAggregator()
	agg.RecordDraw(draw("a", "flat", "complete", "exact", 10))
	agg.RecordDraw(draw("a", "flat", "partial", "closest_inferior", 20))
	fb := draw("b", "partitioned", "complete", "exact", 30)
	fb.FallbackUsed = true
	fb.CacheHit = true
	agg.RecordDraw(fb)
	agg.RecordDraw(draw("c", "partitioned", "no_eligible_records", "", 40))
	agg.RecordDataset(DatasetEvent{Type: EventDatasetUploaded, DatasetID: "a"})
	agg.RecordDataset(DatasetEvent{Type: EventDatasetUploaded, DatasetID: "a", Duplicate: true})

	stats := agg.Stats()
	assert.Equal(t, int64(4), stats.TotalDraws)
	assert.Equal(t, int64(2), stats.CompleteDraws)
	assert.Equal(t, int64(1), stats.PartialDraws)
	assert.Equal(t, int64(1), stats.FailedDraws)
	assert.Equal(t, map[string]int64{"flat": 2, "partitioned": 2}, stats.DrawsByMode)
	assert.Equal(t, map[string]int64{"no_eligible_records": 1}, stats.FailuresByKind)
	assert.Equal(t, int64(2), stats.ExactMatches)
	assert.InDelta(t, 2.0/3.0, stats.ExactMatchRate, 1e-9)
	assert.Equal(t, int64(1), stats.FallbackDraws)
	assert.Equal(t, int64(1), stats.CacheHits)
	assert.Equal(t, int64(3), stats.CacheMisses)
	assert.Equal(t, int64(1), stats.DatasetsUploaded)
	assert.InDelta(t, 25.0, stats.AvgLatencyMs, 1e-9)
	assert.Equal(t, int64(30), stats.P50LatencyMs)
	assert.Equal(t, int64(40), stats.P99LatencyMs)

	want := []DatasetCount{{"a", 2}, {"b", 1}, {"c", 1}}
	if diff := cmp.Diff(want, stats.TopDatasets); diff != "" {
		t.Errorf("top datasets mismatch (-want +got):\n%s", diff)
	}
}

func TestAggregatorLatencyWindowIsBounded(t *testing.T) {
	agg := NewAggregator()
	for i := 0; i < maxLatencySamples+10; i++ {
		agg.RecordDraw(draw("a", "flat", "complete", "exact", 1))
	}
	agg.mu.RLock()
	defer agg.mu.RUnlock()
	assert.Len(t, agg.latencies, maxLatencySamples)
	assert.Equal(t, 10, agg.latencyNext)
}

func TestAggregatorDrawsPerMinute(t *testing.T) {
	agg := NewAggregator()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	agg.startTime = start
	agg.now = func() time.Time { return start.Add(2 * time.Minute) }
	for i := 0; i < 6; i++ {
		agg.RecordDraw(draw("a", "flat", "complete", "exact", 1))
	}
	assert.InDelta(t, 3.0, agg.Stats().DrawsPerMinute, 1e-9)
}

func TestAggregatorRestore(t *testing.T) {
	agg := NewAggregator()
	agg.Restore(AggregatedStats{
		TotalDraws:     5,
		CompleteDraws:  5,
		ExactMatches:   4,
		DrawsByMode:    map[string]int64{"flat": 5},
		FailuresByKind: nil,
		TopDatasets:    []DatasetCount{{"a", 5}},
	})
	agg.RecordDraw(draw("a", "flat", "complete", "exact", 1))

	stats := agg.Stats()
	assert.Equal(t, int64(6), stats.TotalDraws)
	assert.Equal(t, int64(6), stats.DrawsByMode["flat"])
	assert.Equal(t, []DatasetCount{{"a", 6}}, stats.TopDatasets)
	assert.Empty(t, stats.FailuresByKind)
}

func TestHandleEvent(t *testing.T) {
	agg := NewAggregator()
	handle := HandleEvent(agg)
	ctx := context.Background()

	raw, err := json.Marshal(draw("a", "flat", "complete", "exact", 5))
	require.NoError(t, err)
	require.NoError(t, handle(ctx, []byte("a"), raw))

	raw, err = json.Marshal(DatasetEvent{Type: EventDatasetUploaded, DatasetID: "a"})
	require.NoError(t, err)
	require.NoError(t, handle(ctx, []byte("a"), raw))

	assert.NoError(t, handle(ctx, nil, []byte("not json")), "bad messages are skipped")
	assert.NoError(t, handle(ctx, nil, []byte(`{"type":"unknown"}`)))
	assert.NoError(t, handle(ctx, nil, []byte(`{"type":"draw","found":"x"}`)))

	stats := agg.Stats()
	assert.Equal(t, int64(1), stats.TotalDraws)
	assert.Equal(t, int64(1), stats.DatasetsUploaded)
}

type fakeLister struct {
	limit int
	snaps []AggregatedStats
	err   error
}

func (l *fakeLister) ListSnapshots(_ context.Context, limit int) ([]AggregatedStats, error) {
	l.limit = limit
	return l.snaps, l.err
}

func TestHandler(t *testing.T) {
	agg := NewAggregator()
	agg.RecordDraw(draw("a", "flat", "complete", "exact", 5))

	t.Run("stats", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewHandler(agg, nil).Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		var stats AggregatedStats
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
		assert.Equal(t, int64(1), stats.TotalDraws)
	})

	t.Run("snapshots", func(t *testing.T) {
		lister := &fakeLister{snaps: []AggregatedStats{{TotalDraws: 9}}}
		rec := httptest.NewRecorder()
		NewHandler(agg, lister).Snapshots(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/snapshots?limit=500", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 100, lister.limit)
		assert.Contains(t, rec.Body.String(), `"total_draws":9`)
	})

	t.Run("snapshot errors", func(t *testing.T) {
		cases := []struct {
			name   string
			lister SnapshotLister
			query  string
			want   int
		}{
			{"disabled", nil, "", http.StatusServiceUnavailable},
			{"bad limit", &fakeLister{}, "?limit=0", http.StatusBadRequest},
			{"store failure", &fakeLister{err: errors.New("db down")}, "", http.StatusInternalServerError},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				rec := httptest.NewRecorder()
				NewHandler(agg, tc.lister).Snapshots(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/snapshots"+tc.query, nil))
				assert.Equal(t, tc.want, rec.Code)
			})
		}
	})
}
