package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ndbc_transfer"

// Metrics holds the Prometheus counters, histograms, and gauges for the transfer pipeline.
type Metrics struct {
	RunsTotal        *prometheus.CounterVec // labels: status={success,partial_failure,total_failure}
	RunDuration      prometheus.Histogram
	PipelineRunning  prometheus.Gauge
	LastSuccess      prometheus.Gauge
	RecordsBuilt     prometheus.Counter
	FilesWritten     prometheus.Counter
	FilesTransferred prometheus.Counter
	Failures         *prometheus.CounterVec // labels: kind

	// Upstream metrics.
	FetchDuration    *prometheus.HistogramVec // labels: sensor
	UpstreamRequests *prometheus.CounterVec   // labels: endpoint={info,data}, outcome={success,empty,error}
	MetadataCache    *prometheus.CounterVec   // labels: result={hit,miss}
}

func newMetrics() *Metrics {
	return &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Completed pipeline runs by final status.",
		}, []string{"status"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete fetch-build-upload run.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a run is in progress, 0 otherwise.",
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last run that finished with status success.",
		}),
		RecordsBuilt: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_built_total",
			Help:      "Exchange messages built across all feeds.",
		}),
		FilesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_written_total",
			Help:      "Upload files written to the staging area.",
		}),
		FilesTransferred: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_transferred_total",
			Help:      "Files acknowledged by the destination server.",
		}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Recorded run failures by kind.",
		}, []string{"kind"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Upstream fetch duration per feed, by sensor type.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"sensor"}),
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "ERDDAP requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		MetadataCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metadata_cache_total",
			Help:      "Dataset variable cache lookups by result.",
		}, []string{"result"}),
	}
}

// Collectors returns every metric for registration or pushing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.RunsTotal,
		m.RunDuration,
		m.PipelineRunning,
		m.LastSuccess,
		m.RecordsBuilt,
		m.FilesWritten,
		m.FilesTransferred,
		m.Failures,
		m.FetchDuration,
		m.UpstreamRequests,
		m.MetadataCache,
	}
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.Collectors()...)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
