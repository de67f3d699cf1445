// Package publisher stores uploaded datasets in PostgreSQL and announces them
// on Kafka. Uploads are deduplicated by an xxh3 fingerprint of the raw bytes,
// so re-sending the same file returns the dataset already stored.
package publisher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/zeebo/xxh3"

	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/apuracao/record"
	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/dataset"
	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/ingestion/parser"
	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/apuracao/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/apuracao/pkg/metrics"
)

// Repository is the storage the publisher writes to.
type Repository interface {
	FindByFingerprint(ctx context.Context, fp string) (*dataset.Dataset, error)
	Create(ctx context.Context, ds *dataset.Dataset, rows []record.Row) error
}

// Tracker is satisfied by *analytics.Collector.
type Tracker interface {
	Track(event any)
}

type Publisher struct {
	repo     Repository
	producer kafka.Publisher
	tracker  Tracker
	maxBytes int64
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New creates a Publisher. producer and m may be nil.
func New(repo Repository, producer kafka.Publisher, maxBytes int64, m *metrics.Metrics) *Publisher {
	return &Publisher{
		repo:     repo,
		producer: producer,
		maxBytes: maxBytes,
		metrics:  m,
		logger:   slog.Default().With("component", "publisher"),
	}
}

// WithTracker reports accepted uploads as analytics events.
func (p *Publisher) WithTracker(t Tracker) *Publisher {
	p.tracker = t
	return p
}

// Fingerprint is the hex xxh3-128 of raw.
func Fingerprint(raw []byte) string {
	h := xxh3.Hash128(raw)
	return fmt.Sprintf("%016x%016x", h.Hi, h.Lo)
}

// Publish parses, validates, stores and announces one upload.
func (p *Publisher) Publish(ctx context.Context, name string, raw []byte) (*ingestion.UploadResponse, error) {
	name = strings.TrimSpace(name)
	if p.maxBytes > 0 && int64(len(raw)) > p.maxBytes {
		p.count("rejected")
		return nil, validator.ValidateUpload(name, int64(len(raw)), p.maxBytes, nil)
	}
	fp := Fingerprint(raw)

	existing, err := p.repo.FindByFingerprint(ctx, fp)
	if err != nil {
		return nil, fmt.Errorf("checking fingerprint: %w", err)
	}
	if existing != nil {
		return p.duplicate(existing), nil
	}

	var rows []record.Row
	if len(raw) > 0 {
		parsed, err := parser.Parse(bytes.NewReader(raw))
		if err != nil {
			p.count("rejected")
			return nil, err
		}
		rows = parsed.Rows
	}
	if err := validator.ValidateUpload(name, int64(len(raw)), p.maxBytes, rows); err != nil {
		p.count("rejected")
		return nil, err
	}
	if name == "" {
		name = "dataset-" + fp[:8]
	}

	ds := &dataset.Dataset{Name: name, Fingerprint: fp}
	if err := p.repo.Create(ctx, ds, rows); err != nil {
		if errors.Is(err, dataset.ErrDuplicate) {
			// Lost a race with a concurrent upload of the same file.
			existing, findErr := p.repo.FindByFingerprint(ctx, fp)
			if findErr == nil && existing != nil {
				return p.duplicate(existing), nil
			}
		}
		return nil, fmt.Errorf("storing dataset: %w", err)
	}
	p.count("created")
	if p.metrics != nil {
		p.metrics.RowsIngested.Add(float64(ds.RowCount))
	}

	p.announce(ctx, ds)
	p.track(ds, false)
	p.logger.Info("dataset stored",
		"dataset_id", ds.ID,
		"name", ds.Name,
		"rows", ds.RowCount,
		"fingerprint", fp,
	)
	return &ingestion.UploadResponse{
		DatasetID:   ds.ID,
		Name:        ds.Name,
		RowCount:    ds.RowCount,
		Fingerprint: fp,
		CreatedAt:   ds.CreatedAt,
	}, nil
}

// announce publishes the ingested event. A Kafka failure only costs the
// catalog its warm-up, so it is logged and not returned.
func (p *Publisher) announce(ctx context.Context, ds *dataset.Dataset) {
	if p.producer == nil {
		return
	}
	err := p.producer.Publish(ctx, kafka.Event{
		Key: ds.ID,
		Value: ingestion.DatasetIngestedEvent{
			DatasetID:   ds.ID,
			Name:        ds.Name,
			Fingerprint: ds.Fingerprint,
			RowCount:    ds.RowCount,
			IngestedAt:  time.Now().UTC(),
		},
	})
	if err != nil {
		p.logger.Error("failed to publish dataset event", "dataset_id", ds.ID, "error", err)
	}
}

func (p *Publisher) track(ds *dataset.Dataset, duplicate bool) {
	if p.tracker == nil {
		return
	}
	p.tracker.Track(analytics.DatasetEvent{
		Type:      analytics.EventDatasetUploaded,
		DatasetID: ds.ID,
		Rows:      ds.RowCount,
		Duplicate: duplicate,
		Timestamp: time.Now().UTC(),
	})
}

func (p *Publisher) duplicate(ds *dataset.Dataset) *ingestion.UploadResponse {
	p.count("duplicate")
	p.track(ds, true)
	p.logger.Info("duplicate upload detected", "dataset_id", ds.ID, "fingerprint", ds.Fingerprint)
	return &ingestion.UploadResponse{
		DatasetID:   ds.ID,
		Name:        ds.Name,
		RowCount:    ds.RowCount,
		Fingerprint: ds.Fingerprint,
		Duplicate:   true,
		CreatedAt:   ds.CreatedAt,
	}
}

func (p *Publisher) count(status string) {
	if p.metrics != nil {
		p.metrics.DatasetsIngested.WithLabelValues(status).Inc()
	}
}
