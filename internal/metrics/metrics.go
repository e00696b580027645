package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for counterfactual runs.
// Tracks search outcomes, search durations and classifier query counts.
type Metrics struct {
	Searches       *prometheus.CounterVec
	SearchDuration prometheus.Histogram
	Expansions     prometheus.Histogram
	RunsStarted    prometheus.Counter
	RunsFailed     prometheus.Counter
	ActiveRuns     prometheus.Gauge
}

// New creates a Metrics instance registered on reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Searches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "amcc_searches_total",
			Help: "Total counterfactual searches by outcome (found, absent, timeout)",
		}, []string{"status"}),
		SearchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "amcc_search_duration_seconds",
			Help:    "Duration of searches that finished within their budget",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		Expansions: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "amcc_search_expansions",
			Help:    "Classifier queries made per completed search",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		}),
		RunsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "amcc_runs_started_total",
			Help: "Total batch runs started",
		}),
		RunsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "amcc_runs_failed_total",
			Help: "Total batch runs that ended with an error",
		}),
		ActiveRuns: factory.NewGauge(prometheus.GaugeOpts{
			Name: "amcc_active_runs",
			Help: "Batch runs currently in progress",
		}),
	}
}

// ObserveSearch records one search outcome. elapsed is ignored for
// timeouts.
func (m *Metrics) ObserveSearch(status string, elapsed time.Duration, expansions int) {
	m.Searches.WithLabelValues(status).Inc()
	if status == "timeout" {
		return
	}
	m.SearchDuration.Observe(elapsed.Seconds())
	m.Expansions.Observe(float64(expansions))
}

// RunStarted marks a batch run as in progress
func (m *Metrics) RunStarted() {
	m.RunsStarted.Inc()
	m.ActiveRuns.Inc()
}

// RunFinished marks a batch run as done
func (m *Metrics) RunFinished(err error) {
	m.ActiveRuns.Dec()
	if err != nil {
		m.RunsFailed.Inc()
	}
}
