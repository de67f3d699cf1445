package executor

import (
	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/apuracao/walker"
	"github.com/Adithya-Monish-Kumar-K/apuracao/pkg/metrics"
)

// metricsObserver counts primary match types and series fallbacks.
type metricsObserver struct {
	m *metrics.Metrics
}

func newMetricsObserver(m *metrics.Metrics) walker.Observer {
	if m == nil {
		return nil
	}
	return &metricsObserver{m: m}
}

func (o *metricsObserver) Observe(e walker.Event) {
	switch e.Kind {
	case walker.EventPrimaryResolved:
		o.m.DrawPrimaryMatches.WithLabelValues(string(e.Mode), e.Match.String()).Inc()
	case walker.EventFallback:
		result := "filled"
		switch {
		case e.Partition == "":
			result = "no_lower_series"
		case e.Found == 0:
			result = "empty"
		}
		o.m.PartitionFallbacks.WithLabelValues(result).Inc()
	}
}
