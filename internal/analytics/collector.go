package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/apuracao/pkg/kafka"
)

// BatchPublisher is satisfied by *kafka.Producer.
type BatchPublisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Keyed events choose their Kafka partition key.
type Keyed interface {
	EventKey() string
}

// Collector buffers analytics events and publishes them in batches from a
// single goroutine. Track never blocks: when the buffer is full the event is
// dropped.
type Collector struct {
	producer      BatchPublisher
	eventCh       chan any
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewCollector(producer BatchPublisher, bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	return &Collector{
		producer:      producer,
		eventCh:       make(chan any, bufferSize),
		batchSize:     100,
		flushInterval: time.Second,
		logger:        slog.Default().With("component", "analytics-collector"),
		done:          make(chan struct{}),
	}
}

// Start launches the publish loop. It runs until Close, or until ctx ends,
// in which case whatever is buffered is flushed first.
func (c *Collector) Start(ctx context.Context) {
	go c.loop(ctx)
	c.logger.Info("analytics collector started", "buffer_size", cap(c.eventCh))
}

func (c *Collector) loop(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	batch := make([]kafka.Event, 0, c.batchSize)
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := c.producer.PublishBatch(ctx, batch); err != nil {
			c.logger.Error("failed to publish analytics batch", "events", len(batch), "error", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				flush(context.Background())
				return
			}
			batch = append(batch, toKafka(event))
			if len(batch) >= c.batchSize {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			c.drain(&batch)
			flush(shutdownCtx)
			cancel()
			return
		}
	}
}

func (c *Collector) drain(batch *[]kafka.Event) {
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return
			}
			*batch = append(*batch, toKafka(event))
		default:
			return
		}
	}
}

func toKafka(event any) kafka.Event {
	key := "analytics"
	if k, ok := event.(Keyed); ok && k.EventKey() != "" {
		key = k.EventKey()
	}
	return kafka.Event{Key: key, Value: event}
}

// Track queues an event. It is safe to call after Close; the event is
// dropped.
func (c *Collector) Track(event any) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.eventCh <- event:
	default:
		c.logger.Warn("analytics event dropped (buffer full)")
	}
}

// Close stops accepting events, flushes the buffer and waits for the loop.
// Start must have been called.
func (c *Collector) Close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.eventCh)
	}
	c.mu.Unlock()
	<-c.done
}
