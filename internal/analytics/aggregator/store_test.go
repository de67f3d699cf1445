package aggregator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/analytics"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type memSaver struct {
	mu    sync.Mutex
	saved []analytics.AggregatedStats
}

func (s *memSaver) SaveSnapshot(ctx context.Context, stats analytics.AggregatedStats) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, stats)
	return nil
}

func (s *memSaver) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

func TestRunPeriodic(t *testing.T) {
	agg := analytics.NewAggregator()
	agg.RecordDraw(analytics.DrawEvent{Type: analytics.EventDraw, Outcome: "complete"})
	saver := &memSaver{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		RunPeriodic(ctx, saver, agg, 5*time.Millisecond)
	}()

	assert.Eventually(t, func() bool { return saver.count() >= 2 }, time.Second, time.Millisecond)
	cancel()
	<-done

	before := saver.count()
	assert.GreaterOrEqual(t, before, 3, "a final snapshot is written on shutdown")
	saver.mu.Lock()
	last := saver.saved[len(saver.saved)-1]
	saver.mu.Unlock()
	assert.Equal(t, int64(1), last.TotalDraws)
}
