package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Sync metrics
	SyncJobsTotal        *prometheus.CounterVec
	SyncJobDuration      *prometheus.HistogramVec
	SyncJobsInProgress   prometheus.Gauge
	SyncRecordsProcessed *prometheus.CounterVec
	SyncRecordsRejected  *prometheus.CounterVec

	// External API metrics
	ExternalAPICalls    *prometheus.CounterVec
	ExternalAPIDuration *prometheus.HistogramVec
	ExternalAPIFailures *prometheus.CounterVec

	// Report metrics
	ReportsComputed   *prometheus.CounterVec
	ReportDuration    *prometheus.HistogramVec
	RecordsAggregated *prometheus.CounterVec
	RefundCost        prometheus.Counter
	ArsenalOperations *prometheus.CounterVec
}

// New registers every collector on a private registry so several instances can coexist.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		HTTPRequestsInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
		),

		SyncJobsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sync_jobs_total",
				Help: "Total number of transaction sync jobs",
			},
			[]string{"status", "source"},
		),

		SyncJobDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sync_job_duration_seconds",
				Help:    "Transaction sync job duration in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"source"},
		),

		SyncJobsInProgress: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "sync_jobs_in_progress",
				Help: "Number of sync jobs currently in progress",
			},
		),

		SyncRecordsProcessed: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sync_records_processed_total",
				Help: "Total number of transaction records processed by sync",
			},
			[]string{"source", "status"},
		),

		SyncRecordsRejected: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sync_records_rejected_total",
				Help: "Total number of transaction records rejected during normalisation",
			},
			[]string{"source", "reason"},
		),

		ExternalAPICalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "external_api_calls_total",
				Help: "Total number of external API calls",
			},
			[]string{"api", "status"},
		),

		ExternalAPIDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "external_api_duration_seconds",
				Help:    "External API call duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"api"},
		),

		ExternalAPIFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "external_api_failures_total",
				Help: "Total number of external API failures",
			},
			[]string{"api", "error_type"},
		),

		ReportsComputed: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reports_computed_total",
				Help: "Total number of reports computed",
			},
			[]string{"dimension", "status"},
		),

		ReportDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "report_duration_seconds",
				Help:    "Report computation duration in seconds",
				Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"dimension"},
		),

		RecordsAggregated: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "records_aggregated_total",
				Help: "Total number of transaction records folded into reports",
			},
			[]string{"dimension"},
		),

		RefundCost: f.NewCounter(
			prometheus.CounterOpts{
				Name: "refund_cost_observed_total",
				Help: "Sum of refund and chargeback cost seen in report grand totals",
			},
		),

		ArsenalOperations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arsenal_operations_total",
				Help: "Total number of arsenal operations",
			},
			[]string{"operation", "status"},
		),
	}
}

// Handler serves the private registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Gatherer exposes the registry for tests
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// HTTP request metrics
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// Sync job metrics
func (m *Metrics) RecordSyncJob(status, source string, duration time.Duration) {
	m.SyncJobsTotal.WithLabelValues(status, source).Inc()
	m.SyncJobDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// Sync record metrics
func (m *Metrics) RecordSyncRecords(source, status string, count int) {
	m.SyncRecordsProcessed.WithLabelValues(source, status).Add(float64(count))
}

func (m *Metrics) RecordSyncRejected(source, reason string) {
	m.SyncRecordsRejected.WithLabelValues(source, reason).Inc()
}

// External API call metrics
func (m *Metrics) RecordExternalAPICall(api, status string, duration time.Duration) {
	m.ExternalAPICalls.WithLabelValues(api, status).Inc()
	m.ExternalAPIDuration.WithLabelValues(api).Observe(duration.Seconds())
}

// External API failure metrics
func (m *Metrics) RecordExternalAPIFailure(api, errorType string) {
	m.ExternalAPIFailures.WithLabelValues(api, errorType).Inc()
}

// Report computation
func (m *Metrics) RecordReport(dimension, status string, records int, duration time.Duration) {
	m.ReportsComputed.WithLabelValues(dimension, status).Inc()
	m.ReportDuration.WithLabelValues(dimension).Observe(duration.Seconds())
	m.RecordsAggregated.WithLabelValues(dimension).Add(float64(records))
}

func (m *Metrics) ObserveRefundCost(amount float64) {
	if amount > 0 {
		m.RefundCost.Add(amount)
	}
}

func (m *Metrics) RecordArsenalOperation(operation, status string) {
	m.ArsenalOperations.WithLabelValues(operation, status).Inc()
}

// Sync jobs in progress counter
func (m *Metrics) IncSyncJobsInProgress() {
	m.SyncJobsInProgress.Inc()
}

// Sync jobs in progress counter
func (m *Metrics) DecSyncJobsInProgress() {
	m.SyncJobsInProgress.Dec()
}

// HTTP requests in flight counter
func (m *Metrics) IncHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Inc()
}

// HTTP requests in flight counter
func (m *Metrics) DecHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Dec()
}
