package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/apuracao/cache"
	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/apuracao/executor"
	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/apuracao/walker"
	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/apuracao/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/apuracao/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/apuracao/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/apuracao/pkg/middleware"
)

// maxBodyBytes leaves room for a long chaves_ignoradas list.
const maxBodyBytes = 8 << 20

type DrawExecutor interface {
	ResolveMode(s string) (walker.Mode, error)
	Execute(ctx context.Context, req *executor.DrawRequest) (*walker.Selection, error)
}

// Tracker is satisfied by *analytics.Collector.
type Tracker interface {
	Track(event any)
}

// StoreEvictor is satisfied by *catalog.Catalog.
type StoreEvictor interface {
	Evict(datasetID string) int
}

type Handler struct {
	executor       DrawExecutor
	cache          *cache.DrawCache
	tracker        Tracker
	evictor        StoreEvictor
	metrics        *metrics.Metrics
	maxIgnoredKeys int
	logger         *slog.Logger
}

// New creates the draw handler. drawCache, tracker and m may be nil.
func New(exec DrawExecutor, drawCache *cache.DrawCache, tracker Tracker, m *metrics.Metrics, maxIgnoredKeys int) *Handler {
	return &Handler{
		executor:       exec,
		cache:          drawCache,
		tracker:        tracker,
		metrics:        m,
		maxIgnoredKeys: maxIgnoredKeys,
		logger:         slog.Default().With("component", "draw-handler"),
	}
}

// WithEvictor makes cache invalidation for one dataset also drop its in-memory
// record stores.
func (h *Handler) WithEvictor(e StoreEvictor) *Handler {
	h.evictor = e
	return h
}

func (h *Handler) Draw(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var req executor.DrawRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "request body must be a JSON draw request")
		return
	}
	// Resolve first so the flat-mode checks see the configured default.
	if mode, err := h.executor.ResolveMode(req.Mode); err == nil {
		req.Mode = string(mode)
	}
	if err := validator.ValidateDrawRequest(&req, h.maxIgnoredKeys); err != nil {
		var validationErr *validator.ValidationError
		if errors.As(err, &validationErr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": validationErr.Fields,
			})
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	mode := walker.Mode(req.Mode)

	var sel *walker.Selection
	var err error
	cacheHit := false
	if h.cache != nil {
		sel, cacheHit, err = h.cache.GetOrCompute(ctx, mode, &req, func() (*walker.Selection, error) {
			return h.executor.Execute(ctx, &req)
		})
	} else {
		sel, err = h.executor.Execute(ctx, &req)
	}
	elapsed := time.Since(start)
	if errors.Is(err, apperrors.ErrCancelled) {
		// Nobody is left to answer; not a draw outcome.
		log.Info("draw cancelled by caller", "dataset_id", req.DatasetID, "mode", mode)
		w.WriteHeader(apperrors.StatusClientClosedRequest)
		return
	}
	h.track(ctx, mode, &req, sel, err, cacheHit, elapsed)

	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		kind := apperrors.Kind(err)
		if status >= http.StatusInternalServerError {
			log.Error("draw failed", "dataset_id", req.DatasetID, "mode", mode, "error", err)
			h.writeJSON(w, status, map[string]string{"error": "draw failed", "kind": kind})
			return
		}
		log.Info("draw rejected", "dataset_id", req.DatasetID, "mode", mode, "kind", kind)
		h.writeJSON(w, status, map[string]string{"error": err.Error(), "kind": kind})
		return
	}

	if cacheHit && h.metrics != nil {
		h.metrics.DrawLatency.WithLabelValues(string(mode), "hit").Observe(elapsed.Seconds())
	}
	log.Info("draw completed",
		"dataset_id", req.DatasetID,
		"mode", mode,
		"found", sel.Stats.Found,
		"cache_hit", cacheHit,
		"latency_ms", elapsed.Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, sel)
}

func (h *Handler) track(ctx context.Context, mode walker.Mode, req *executor.DrawRequest, sel *walker.Selection, err error, cacheHit bool, elapsed time.Duration) {
	if h.tracker == nil {
		return
	}
	event := analytics.DrawEvent{
		Type:        analytics.EventDraw,
		DatasetID:   req.DatasetID,
		Mode:        string(mode),
		Outcome:     executor.Outcome(sel, err),
		IgnoredKeys: len(req.IgnoredKeys),
		CacheHit:    cacheHit,
		LatencyMs:   elapsed.Milliseconds(),
		Timestamp:   time.Now().UTC(),
		RequestID:   middleware.GetRequestID(ctx),
	}
	if err == nil {
		event.Match = sel.Match
		event.Found = sel.Stats.Found
		event.Target = sel.Stats.Target
		event.FallbackUsed = sel.Stats.FallbackPartition != ""
	}
	h.tracker.Track(event)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
		"breaker":  h.cache.BreakerState().String(),
	})
}

// CacheInvalidate drops cached draws. ?dataset_id= limits it to one dataset
// and also evicts that dataset's record stores.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	datasetID := r.URL.Query().Get("dataset_id")
	evict := h.evictor != nil && datasetID != ""
	if h.cache == nil && !evict {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}

	var deleted int64
	if h.cache != nil {
		var err error
		deleted, err = h.cache.Invalidate(r.Context(), datasetID)
		if err != nil {
			h.logger.Error("cache invalidation failed", "dataset_id", datasetID, "error", err)
			h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
			return
		}
	}
	evicted := 0
	if evict {
		evicted = h.evictor.Evict(datasetID)
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":         "invalidated",
		"keys_deleted":   deleted,
		"stores_evicted": evicted,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
