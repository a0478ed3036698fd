package search

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metricSearchDuration times Engine.Search end-to-end (spec §4.5's
// pad-availability fetch through leg enumeration and ranking), the same
// promauto style as internal/processor/metrics.go, grounded on the teacher's
// client/doublezerod/internal/liveness/metrics.go.
var metricSearchDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "scheduler_search_duration_seconds",
		Help:    "Time to enumerate and rank itinerary candidates for one query",
		Buckets: prometheus.DefBuckets,
	},
)
