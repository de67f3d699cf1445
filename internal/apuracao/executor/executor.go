// Package executor runs draws for the API: it loads the dataset's record
// store, picks the walker for the requested mode and runs it under the
// configured deadline.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/apuracao/record"
	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/apuracao/walker"
	"github.com/Adithya-Monish-Kumar-K/apuracao/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/apuracao/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/apuracao/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/apuracao/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/apuracao/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/apuracao/pkg/tracing"
)

// DrawRequest is the JSON body of POST /api/v1/draws.
type DrawRequest struct {
	DatasetID      string   `json:"dataset_id"`
	Mode           string   `json:"mode,omitempty"`
	DrawnNumber    string   `json:"numero_sorteado"`
	DrawnPartition string   `json:"serie_sorteada,omitempty"`
	IgnoredKeys    []string `json:"chaves_ignoradas,omitempty"`
}

// StoreLoader returns the record store of a dataset built with the given
// partition width.
type StoreLoader interface {
	Load(ctx context.Context, datasetID string, partitionWidth int) (*record.Store, error)
}

type Executor struct {
	loader      StoreLoader
	walkers     map[walker.Mode]*walker.Walker
	defaultMode walker.Mode
	timeout     time.Duration
	tracer      *tracing.Tracer
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// New builds one walker per mode from cfg. m and tracer may be nil.
func New(loader StoreLoader, cfg config.DrawConfig, m *metrics.Metrics, tracer *tracing.Tracer) *Executor {
	observer := walker.MultiObserver(walker.NewLogObserver(nil), newMetricsObserver(m))
	defaultMode, err := walker.ParseMode(cfg.DefaultMode)
	if err != nil {
		defaultMode = walker.ModeFlat
	}
	return &Executor{
		loader: loader,
		walkers: map[walker.Mode]*walker.Walker{
			walker.ModeFlat: walker.New(walker.Config{Length: cfg.FlatLength}, walker.WithObserver(observer)),
			walker.ModePartitioned: walker.New(walker.Config{
				PartitionWidth: cfg.PartitionWidth,
				Length:         cfg.PartitionedLength,
			}, walker.WithObserver(observer)),
		},
		defaultMode: defaultMode,
		timeout:     cfg.Timeout,
		tracer:      tracer,
		metrics:     m,
		logger:      slog.Default().With("component", "draw-executor"),
	}
}

// ResolveMode maps the request's mode string to a Mode, applying the
// configured default to an empty string.
func (e *Executor) ResolveMode(s string) (walker.Mode, error) {
	if s == "" {
		return e.defaultMode, nil
	}
	return walker.ParseMode(s)
}

// Execute runs one draw. Failures carry the pkg/errors sentinels; a run that
// overruns the deadline fails with ErrTimeout.
func (e *Executor) Execute(ctx context.Context, req *DrawRequest) (*walker.Selection, error) {
	start := time.Now()
	mode, err := e.ResolveMode(req.Mode)
	if err != nil {
		return nil, err
	}
	w := e.walkers[mode]

	ctx, span := e.tracer.Start(ctx, "draw", logger.RequestID(ctx))
	defer e.tracer.Finish(span)
	span.SetAttr("dataset_id", req.DatasetID)
	span.SetAttr("mode", string(mode))

	var sel *walker.Selection
	err = resilience.WithTimeout(ctx, e.timeout, "draw", func(ctx context.Context) error {
		loadCtx, loadSpan := tracing.StartChildSpan(ctx, "load-dataset")
		store, err := e.loader.Load(loadCtx, req.DatasetID, w.Config().PartitionWidth)
		loadSpan.End()
		if err != nil {
			return fmt.Errorf("loading dataset %s: %w", req.DatasetID, err)
		}
		loadSpan.SetAttr("records", store.Len())

		_, walkSpan := tracing.StartChildSpan(ctx, "walk")
		result, err := w.Run(store, walker.Request{
			DrawnNumber:    req.DrawnNumber,
			DrawnPartition: req.DrawnPartition,
			IgnoredKeys:    req.IgnoredKeys,
		})
		walkSpan.End()
		if err != nil {
			return err
		}
		walkSpan.SetAttr("found", result.Stats.Found)
		sel = result
		return nil
	})
	if err != nil {
		// sel may still be written by an abandoned run; never read it here.
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			err = apperrors.Newf(apperrors.ErrTimeout, http.StatusServiceUnavailable, "draw exceeded %v", e.timeout)
		case errors.Is(err, context.Canceled), errors.Is(ctx.Err(), context.Canceled):
			err = apperrors.New(apperrors.ErrCancelled, apperrors.StatusClientClosedRequest, "draw cancelled by caller")
		}
		span.SetAttr("outcome", Outcome(nil, err))
		e.record(mode, nil, err, time.Since(start))
		return nil, err
	}
	span.SetAttr("outcome", Outcome(sel, nil))
	e.record(mode, sel, nil, time.Since(start))

	logger.FromContext(ctx).Info("draw executed",
		"dataset_id", req.DatasetID,
		"mode", mode,
		"match", sel.Match,
		"found", sel.Stats.Found,
		"target", sel.Stats.Target,
	)
	return sel, nil
}

func (e *Executor) record(mode walker.Mode, sel *walker.Selection, err error, elapsed time.Duration) {
	if e.metrics == nil {
		return
	}
	e.metrics.DrawsTotal.WithLabelValues(string(mode), Outcome(sel, err)).Inc()
	e.metrics.DrawLatency.WithLabelValues(string(mode), "miss").Observe(elapsed.Seconds())
	if sel != nil {
		e.metrics.DrawPositionsFilled.WithLabelValues(string(mode)).Observe(float64(sel.Stats.Found))
	}
}

// Outcome is complete, partial, or the error kind of err.
func Outcome(sel *walker.Selection, err error) string {
	switch {
	case err != nil:
		return apperrors.Kind(err)
	case sel.Complete():
		return "complete"
	default:
		return "partial"
	}
}
