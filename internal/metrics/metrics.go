package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "market_intel_cycles_total",
		Help: "Live analysis cycles by result",
	}, []string{"result"})

	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "market_intel_cycle_duration_seconds",
		Help:    "Wall time of one live cycle",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	VendorRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "market_intel_vendor_requests_total",
		Help: "Vendor calls by endpoint and outcome",
	}, []string{"endpoint", "outcome"})

	AlertsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "market_intel_alerts_emitted_total",
		Help: "Alerts emitted by category",
	}, []string{"category"})

	DedupHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "market_intel_state_dedup_hits_total",
		Help: "State saves short-circuited by the time-bucket dedup cache",
	})

	StatesLabeled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "market_intel_states_labeled_total",
		Help: "Outcome labels written by label",
	}, []string{"label"})
)
