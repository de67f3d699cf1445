package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/apuracao/cache"
	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/apuracao/executor"
	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/apuracao/record"
	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/apuracao/walker"
	"github.com/Adithya-Monish-Kumar-K/apuracao/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/apuracao/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/apuracao/pkg/metrics"
)

const datasetID = "7f9c2ba4-e88f-4e1b-9a3c-1d2e3f4a5b6c"

type loader map[string][]record.Row

func (l loader) Load(_ context.Context, id string, width int) (*record.Store, error) {
	rows, ok := l[id]
	if !ok {
		return nil, apperrors.ErrDatasetNotFound
	}
	return record.NewStore(rows, width), nil
}

type memBackend struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (b *memBackend) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.data[key]
	if !ok {
		return nil, redis.Nil
	}
	return v, nil
}

func (b *memBackend) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = value
	return nil
}

func (b *memBackend) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var n int64
	for k := range b.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(b.data, k)
			n++
		}
	}
	return n, nil
}

type tracker struct {
	mu     sync.Mutex
	events []analytics.DrawEvent
}

func (t *tracker) Track(event any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, event.(analytics.DrawEvent))
}

type evictor struct {
	mu      sync.Mutex
	evicted []string
}

func (e *evictor) Evict(id string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.evicted = append(e.evicted, id)
	return 2
}

type cancelledExecutor struct{}

func (cancelledExecutor) ResolveMode(string) (walker.Mode, error) { return walker.ModeFlat, nil }

func (cancelledExecutor) Execute(context.Context, *executor.DrawRequest) (*walker.Selection, error) {
	return nil, apperrors.New(apperrors.ErrCancelled, apperrors.StatusClientClosedRequest, "draw cancelled by caller")
}

type fixture struct {
	mux     *http.ServeMux
	tracker *tracker
	evictor *evictor
	metrics *metrics.Metrics
	backend *memBackend
}

func newFixture(t *testing.T, withCache bool) *fixture {
	t.Helper()
	rows := []record.Row{}
	for i, n := range []string{"4745668", "4745600", "4745500", "4699999", "4612345", "12"} {
		rows = append(rows, record.Row{
			record.ColumnNumber:     n,
			record.ColumnContactKey: string(rune('a' + i)),
		})
	}
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	exec := executor.New(loader{datasetID: rows}, config.DrawConfig{
		DefaultMode:       "flat",
		FlatLength:        3,
		PartitionedLength: 3,
		PartitionWidth:    2,
		Timeout:           time.Second,
	}, m, nil)

	f := &fixture{tracker: &tracker{}, evictor: &evictor{}, metrics: m, backend: &memBackend{data: map[string][]byte{}}}
	var drawCache *cache.DrawCache
	if withCache {
		drawCache = cache.New(f.backend, time.Minute, nil, m)
	}
	h := New(exec, drawCache, f.tracker, m, 5).WithEvictor(f.evictor)

	f.mux = http.NewServeMux()
	f.mux.HandleFunc("POST /api/v1/draws", h.Draw)
	f.mux.HandleFunc("GET /api/v1/draws/cache/stats", h.CacheStats)
	f.mux.HandleFunc("POST /api/v1/draws/cache/invalidate", h.CacheInvalidate)
	return f
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, httptest.NewRequest(method, target, strings.NewReader(body)))
	return rec
}

func TestDrawFlat(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(http.MethodPost, "/api/v1/draws", `{"dataset_id":"`+datasetID+`","numero_sorteado":"4745668"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var sel walker.Selection
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&sel))
	assert.Equal(t, walker.ModeFlat, sel.Mode)
	assert.Equal(t, "exact", sel.Match)
	require.Len(t, sel.Positions, 3)
	assert.Equal(t, "4745668", sel.Positions[0].Number)

	require.Len(t, f.tracker.events, 1)
	ev := f.tracker.events[0]
	assert.Equal(t, "complete", ev.Outcome)
	assert.Equal(t, "exact", ev.Match)
	assert.Equal(t, 3, ev.Found)
	assert.False(t, ev.CacheHit)
}

func TestDrawPartitioned(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(http.MethodPost, "/api/v1/draws",
		`{"dataset_id":"`+datasetID+`","mode":"partitioned","numero_sorteado":"45667","serie_sorteada":"47"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var sel walker.Selection
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&sel))
	assert.Equal(t, walker.ModePartitioned, sel.Mode)
	assert.Equal(t, "closest_inferior", sel.Match)
	for _, p := range sel.Positions {
		assert.NotEmpty(t, p.Partition)
	}
}

func TestDrawCached(t *testing.T) {
	f := newFixture(t, true)
	body := `{"dataset_id":"` + datasetID + `","numero_sorteado":"4745668","chaves_ignoradas":["f"," b "]}`
	first := f.do(http.MethodPost, "/api/v1/draws", body)
	require.Equal(t, http.StatusOK, first.Code)

	body = `{"dataset_id":"` + datasetID + `","numero_sorteado":"4745668","chaves_ignoradas":["b","f"]}`
	second := f.do(http.MethodPost, "/api/v1/draws", body)
	require.Equal(t, http.StatusOK, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String(), "key order does not change the cached answer")

	require.Len(t, f.tracker.events, 2)
	assert.False(t, f.tracker.events[0].CacheHit)
	assert.True(t, f.tracker.events[1].CacheHit)
	assert.Equal(t, 2, f.tracker.events[1].IgnoredKeys)
	assert.Equal(t, 1, testutil.CollectAndCount(f.metrics.DrawLatency.WithLabelValues("flat", "hit").(prometheus.Histogram)))

	stats := f.do(http.MethodGet, "/api/v1/draws/cache/stats", "")
	require.Equal(t, http.StatusOK, stats.Code)
	assert.Contains(t, stats.Body.String(), `"hits":1`)
	assert.Contains(t, stats.Body.String(), `"breaker":"closed"`)

	inv := f.do(http.MethodPost, "/api/v1/draws/cache/invalidate?dataset_id="+datasetID, "")
	require.Equal(t, http.StatusOK, inv.Code)
	assert.Contains(t, inv.Body.String(), `"keys_deleted":1`)
	assert.Equal(t, []string{datasetID}, f.evictor.evicted)
}

func TestDrawErrors(t *testing.T) {
	cases := []struct {
		name string
		body string
		want int
		kind string
	}{
		{"malformed", `{`, http.StatusBadRequest, ""},
		{"missing number", `{"dataset_id":"` + datasetID + `"}`, http.StatusBadRequest, ""},
		{"serie with default flat mode", `{"dataset_id":"` + datasetID + `","numero_sorteado":"1","serie_sorteada":"47"}`, http.StatusBadRequest, ""},
		{"too many ignored keys", `{"dataset_id":"` + datasetID + `","numero_sorteado":"1","chaves_ignoradas":["1","2","3","4","5","6"]}`, http.StatusBadRequest, ""},
		{"unknown dataset", `{"dataset_id":"00000000-0000-4000-8000-000000000000","numero_sorteado":"1"}`, http.StatusNotFound, "dataset_not_found"},
		{"everything ignored", `{"dataset_id":"` + datasetID + `","numero_sorteado":"1","chaves_ignoradas":["a","b","c","d","e"]}`, http.StatusOK, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, false)
			rec := f.do(http.MethodPost, "/api/v1/draws", tc.body)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
			if tc.kind != "" {
				assert.Contains(t, rec.Body.String(), `"kind":"`+tc.kind+`"`)
				require.Len(t, f.tracker.events, 1)
				assert.Equal(t, tc.kind, f.tracker.events[0].Outcome)
			}
		})
	}
}

func TestCacheDisabled(t *testing.T) {
	f := newFixture(t, false)
	assert.Contains(t, f.do(http.MethodGet, "/api/v1/draws/cache/stats", "").Body.String(), "disabled")
	assert.Equal(t, http.StatusServiceUnavailable, f.do(http.MethodPost, "/api/v1/draws/cache/invalidate", "").Code)

	rec := f.do(http.MethodPost, "/api/v1/draws/cache/invalidate?dataset_id="+datasetID, "")
	assert.Equal(t, http.StatusOK, rec.Code, "store eviction still runs without a cache")
	assert.Contains(t, rec.Body.String(), `"stores_evicted":2`)
}

func TestDrawCancelledByCaller(t *testing.T) {
	tr := &tracker{}
	h := New(cancelledExecutor{}, nil, tr, nil, 5)

	rec := httptest.NewRecorder()
	h.Draw(rec, httptest.NewRequest(http.MethodPost, "/api/v1/draws",
		strings.NewReader(`{"dataset_id":"`+datasetID+`","numero_sorteado":"1"}`)))

	assert.Equal(t, apperrors.StatusClientClosedRequest, rec.Code)
	assert.Empty(t, tr.events, "cancelled draws are not analytics outcomes")
}
