package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/voyago/leadharvest/internal/event"
)

// PrometheusSink exports fetch latency and byte-volume metrics from the
// event stream, complementing the counters the crawl core registers itself.
type PrometheusSink struct {
	fetchDuration *prometheus.HistogramVec
	fetchBytes    *prometheus.CounterVec
	leadScore     prometheus.Histogram
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "leadharvest_fetch_duration_seconds",
			Help:    "Fetch duration partitioned by domain and outcome.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"domain", "outcome"}),
		fetchBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leadharvest_fetch_bytes_total",
			Help: "Bytes downloaded per domain.",
		}, []string{"domain"}),
		leadScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "leadharvest_lead_final_score",
			Help:    "Final score distribution of upserted leads.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
	}
	for _, c := range []prometheus.Collector{s.fetchDuration, s.fetchBytes, s.leadScore} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register event collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []event.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case event.StageFetchDone:
			s.fetchDuration.WithLabelValues(evt.Domain, evt.Outcome).Observe(evt.Dur.Seconds())
			if evt.Bytes > 0 {
				s.fetchBytes.WithLabelValues(evt.Domain).Add(float64(evt.Bytes))
			}
		case event.StageLeadUpserted:
			s.leadScore.Observe(evt.Score)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error { return nil }
