package publisher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/apuracao/record"
	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/dataset"
	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/apuracao/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/apuracao/pkg/metrics"
)

type memRepo struct {
	mu       sync.Mutex
	byFP     map[string]*dataset.Dataset
	rows     map[string][]record.Row
	createFn func(ds *dataset.Dataset) error
}

func newMemRepo() *memRepo {
	return &memRepo{byFP: map[string]*dataset.Dataset{}, rows: map[string][]record.Row{}}
}

func (r *memRepo) FindByFingerprint(_ context.Context, fp string) (*dataset.Dataset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byFP[fp], nil
}

func (r *memRepo) Create(_ context.Context, ds *dataset.Dataset, rows []record.Row) error {
	if r.createFn != nil {
		if err := r.createFn(ds); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ds.ID = "id-" + ds.Fingerprint[:6]
	ds.RowCount = len(rows)
	ds.CreatedAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r.byFP[ds.Fingerprint] = ds
	r.rows[ds.ID] = rows
	return nil
}

type recordingProducer struct {
	events []kafka.Event
	err    error
}

func (p *recordingProducer) Publish(_ context.Context, e kafka.Event) error {
	p.events = append(p.events, e)
	return p.err
}

const csv = "numero_sorte,chave_contato,data,produto\n4745668,c1,2024-01-01,seguro\n4745001,c2,,\n"

func TestPublishStoresAndAnnounces(t *testing.T) {
	repo := newMemRepo()
	prod := &recordingProducer{}
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	p := New(repo, prod, 1<<20, m)

	resp, err := p.Publish(context.Background(), " base ", []byte(csv))
	require.NoError(t, err)
	assert.False(t, resp.Duplicate)
	assert.Equal(t, "base", resp.Name)
	assert.Equal(t, 2, resp.RowCount)
	assert.Equal(t, Fingerprint([]byte(csv)), resp.Fingerprint)
	assert.Len(t, resp.Fingerprint, 32)

	stored := repo.rows[resp.DatasetID]
	require.Len(t, stored, 2)
	assert.Equal(t, "4745001", stored[1][record.ColumnNumber])

	require.Len(t, prod.events, 1)
	ev := prod.events[0].Value.(ingestion.DatasetIngestedEvent)
	assert.Equal(t, resp.DatasetID, ev.DatasetID)
	assert.Equal(t, resp.DatasetID, prod.events[0].Key)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.DatasetsIngested.WithLabelValues("created")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RowsIngested))
}

func TestPublishDuplicate(t *testing.T) {
	repo := newMemRepo()
	prod := &recordingProducer{}
	p := New(repo, prod, 0, nil)

	first, err := p.Publish(context.Background(), "a", []byte(csv))
	require.NoError(t, err)
	second, err := p.Publish(context.Background(), "b", []byte(csv))
	require.NoError(t, err)

	assert.True(t, second.Duplicate)
	assert.Equal(t, first.DatasetID, second.DatasetID)
	assert.Equal(t, "a", second.Name)
	assert.Len(t, prod.events, 1, "duplicates are not re-announced")
}

func TestPublishLostRaceReturnsWinner(t *testing.T) {
	repo := newMemRepo()
	winner := &dataset.Dataset{ID: "winner", Name: "w", Fingerprint: Fingerprint([]byte(csv)), RowCount: 2}
	repo.createFn = func(ds *dataset.Dataset) error {
		repo.mu.Lock()
		repo.byFP[ds.Fingerprint] = winner
		repo.mu.Unlock()
		return dataset.ErrDuplicate
	}
	resp, err := New(repo, nil, 0, nil).Publish(context.Background(), "", []byte(csv))
	require.NoError(t, err)
	assert.True(t, resp.Duplicate)
	assert.Equal(t, "winner", resp.DatasetID)
}

func TestPublishRejects(t *testing.T) {
	p := New(newMemRepo(), nil, 0, nil)

	_, err := p.Publish(context.Background(), "x", []byte("numero_sorte,chave_contato\n"))
	assert.ErrorContains(t, err, "no data rows")

	_, err = p.Publish(context.Background(), "x", []byte("foo,bar\n1,2\n"))
	assert.ErrorContains(t, err, "missing required columns")

	_, err = p.Publish(context.Background(), "x", nil)
	assert.ErrorContains(t, err, "file is required")
}

func TestPublishKafkaFailureIsNotFatal(t *testing.T) {
	prod := &recordingProducer{err: errors.New("broker down")}
	resp, err := New(newMemRepo(), prod, 0, nil).Publish(context.Background(), "", []byte(csv))
	require.NoError(t, err)
	assert.Contains(t, resp.Name, "dataset-")
}

type trackFunc func(event any)

func (f trackFunc) Track(event any) { f(event) }

func TestPublishTracksUploads(t *testing.T) {
	var events []analytics.DatasetEvent
	p := New(newMemRepo(), nil, 0, nil).WithTracker(trackFunc(func(e any) {
		events = append(events, e.(analytics.DatasetEvent))
	}))

	_, err := p.Publish(context.Background(), "a", []byte(csv))
	require.NoError(t, err)
	_, err = p.Publish(context.Background(), "a", []byte(csv))
	require.NoError(t, err)

	require.Len(t, events, 2)
	assert.False(t, events[0].Duplicate)
	assert.Equal(t, 2, events[0].Rows)
	assert.True(t, events[1].Duplicate)
	assert.Equal(t, events[0].DatasetID, events[1].DatasetID)
}
