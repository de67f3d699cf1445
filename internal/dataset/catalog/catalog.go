// Package catalog keeps record stores of recently drawn datasets in memory.
// Stores are immutable, so one built store serves every concurrent draw over
// the same dataset and partition width. When a capacity is set the least
// recently used stores are dropped first.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v4"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/apuracao/record"
	apperrors "github.com/Adithya-Monish-Kumar-K/apuracao/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/apuracao/pkg/metrics"
)

// RowSource reads a dataset's rows in upload order.
type RowSource interface {
	Rows(ctx context.Context, datasetID string) ([]record.Row, error)
}

type entry struct {
	store    *record.Store
	lastUsed atomic.Uint64
}

type Catalog struct {
	source   RowSource
	stores   *xsync.Map[string, *entry]
	capacity int
	clock    atomic.Uint64
	evictMu  sync.Mutex
	group    singleflight.Group
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New creates a catalog holding at most capacity stores; 0 is unbounded.
func New(source RowSource, capacity int, m *metrics.Metrics) *Catalog {
	return &Catalog{
		source:   source,
		stores:   xsync.NewMap[string, *entry](),
		capacity: capacity,
		metrics:  m,
		logger:   slog.Default().With("component", "dataset-catalog"),
	}
}

func storeKey(datasetID string, width int) string {
	return fmt.Sprintf("%s/%d", datasetID, width)
}

// Load returns the dataset's store for partitionWidth, reading it from the
// source on first use. Concurrent first loads share one read.
func (c *Catalog) Load(ctx context.Context, datasetID string, partitionWidth int) (*record.Store, error) {
	key := storeKey(datasetID, partitionWidth)
	if e, ok := c.stores.Load(key); ok {
		c.touch(e)
		c.count("hit")
		return e.store, nil
	}

	val, err, _ := c.group.Do(key, func() (any, error) {
		if e, ok := c.stores.Load(key); ok {
			c.touch(e)
			return e.store, nil
		}
		rows, err := c.source.Rows(ctx, datasetID)
		if err != nil {
			return nil, err
		}
		store := record.NewStore(rows, partitionWidth)
		e := &entry{store: store}
		c.touch(e)
		c.stores.Store(key, e)
		c.enforceCapacity()
		c.gauge()
		c.logger.Info("dataset loaded",
			"dataset_id", datasetID,
			"partition_width", partitionWidth,
			"records", store.Len(),
			"usable", store.Usable(),
		)
		return store, nil
	})
	if err != nil {
		c.count(apperrors.Kind(err))
		return nil, err
	}
	c.count("loaded")
	return val.(*record.Store), nil
}

// Warm loads the dataset for each width ahead of the first draw.
func (c *Catalog) Warm(ctx context.Context, datasetID string, widths ...int) error {
	for _, w := range widths {
		if _, err := c.Load(ctx, datasetID, w); err != nil {
			return fmt.Errorf("warming %s width %d: %w", datasetID, w, err)
		}
	}
	return nil
}

// Evict drops every cached store of datasetID and returns how many were
// removed.
func (c *Catalog) Evict(datasetID string) int {
	prefix := datasetID + "/"
	removed := 0
	c.stores.Range(func(key string, _ *entry) bool {
		if strings.HasPrefix(key, prefix) {
			if _, ok := c.stores.LoadAndDelete(key); ok {
				removed++
			}
		}
		return true
	})
	c.gauge()
	return removed
}

// Len is the number of cached stores.
func (c *Catalog) Len() int {
	return c.stores.Size()
}

func (c *Catalog) touch(e *entry) {
	e.lastUsed.Store(c.clock.Add(1))
}

// enforceCapacity drops least recently used stores until the catalog fits.
func (c *Catalog) enforceCapacity() {
	if c.capacity <= 0 {
		return
	}
	c.evictMu.Lock()
	defer c.evictMu.Unlock()
	for c.stores.Size() > c.capacity {
		oldestKey := ""
		var oldest uint64
		c.stores.Range(func(key string, e *entry) bool {
			if used := e.lastUsed.Load(); oldestKey == "" || used < oldest {
				oldestKey, oldest = key, used
			}
			return true
		})
		if oldestKey == "" {
			return
		}
		c.stores.Delete(oldestKey)
		c.count("evicted")
		c.logger.Debug("dataset store evicted", "key", oldestKey)
	}
}

func (c *Catalog) count(status string) {
	if c.metrics != nil {
		c.metrics.CatalogLoads.WithLabelValues(status).Inc()
	}
}

func (c *Catalog) gauge() {
	if c.metrics != nil {
		c.metrics.CatalogDatasets.Set(float64(c.stores.Size()))
	}
}
