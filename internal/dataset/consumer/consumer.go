// Package consumer warms the dataset catalog from dataset-ingested events so
// the first draw over a new dataset does not pay for the load.
package consumer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/apuracao/pkg/kafka"
)

// Warmer is implemented by catalog.Catalog.
type Warmer interface {
	Warm(ctx context.Context, datasetID string, widths ...int) error
}

// Runner is the consume loop, a *kafka.Consumer in production.
type Runner interface {
	Start(ctx context.Context) error
}

type WarmConsumer struct {
	runner Runner
	logger *slog.Logger
}

func New(runner Runner) *WarmConsumer {
	return &WarmConsumer{
		runner: runner,
		logger: slog.Default().With("component", "dataset-consumer"),
	}
}

// Start blocks until ctx is cancelled.
func (c *WarmConsumer) Start(ctx context.Context) error {
	c.logger.Info("dataset consumer starting")
	return c.runner.Start(ctx)
}

// HandleMessage returns a MessageHandler that loads each ingested dataset at
// the given partition widths. Undecodable messages are logged and skipped so
// they do not block the partition.
func HandleMessage(warmer Warmer, widths ...int) kafka.MessageHandler {
	logger := slog.Default().With("component", "dataset-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[ingestion.DatasetIngestedEvent](value)
		if err != nil {
			logger.Error("failed to decode dataset event", "error", err, "key", string(key))
			return nil
		}
		if event.DatasetID == "" {
			logger.Warn("dataset event without id", "key", string(key))
			return nil
		}
		if err := warmer.Warm(ctx, event.DatasetID, widths...); err != nil {
			return fmt.Errorf("warming dataset %s: %w", event.DatasetID, err)
		}
		logger.Info("dataset warmed",
			"dataset_id", event.DatasetID,
			"rows", event.RowCount,
		)
		return nil
	}
}
