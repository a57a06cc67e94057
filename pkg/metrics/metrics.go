package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// ETL metrics
	ETLJobsTotal      *prometheus.CounterVec
	ETLJobDuration    *prometheus.HistogramVec
	ETLJobsInProgress prometheus.Gauge
	ETLRecords        *prometheus.CounterVec
	ETLAccountsFailed *prometheus.CounterVec

	// External API metrics
	ExternalAPICalls    *prometheus.CounterVec
	ExternalAPIDuration *prometheus.HistogramVec
	ExternalAPIFailures *prometheus.CounterVec

	// Token lifecycle metrics
	TokenStates    *prometheus.CounterVec
	TokenRefreshes *prometheus.CounterVec

	// Warehouse metrics
	SchemaColumnsAdded *prometheus.CounterVec
	WarehouseLoads     *prometheus.CounterVec
}

// New registers every collector with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		HTTPRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
		),

		ETLJobsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "etl_jobs_total",
				Help: "Total number of pipeline runs by outcome",
			},
			[]string{"status", "mode"},
		),

		ETLJobDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "etl_job_duration_seconds",
				Help:    "Pipeline run duration in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"mode"},
		),

		ETLJobsInProgress: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "etl_jobs_in_progress",
				Help: "Number of pipeline runs currently in progress",
			},
		),

		ETLRecords: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "etl_records_total",
				Help: "Records seen by the pipeline per stage",
			},
			[]string{"stage"},
		),

		ETLAccountsFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "etl_account_fetch_failures_total",
				Help: "Failed insight fetches per ad account",
			},
			[]string{"account_id", "error_type"},
		),

		ExternalAPICalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "external_api_calls_total",
				Help: "Total number of external API calls",
			},
			[]string{"api", "status"},
		),

		ExternalAPIDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "external_api_duration_seconds",
				Help:    "External API call duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"api"},
		),

		ExternalAPIFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "external_api_failures_total",
				Help: "Total number of external API failures",
			},
			[]string{"api", "error_type"},
		),

		TokenStates: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "token_lifecycle_states_total",
				Help: "Token lifecycle outcomes per run",
			},
			[]string{"state"},
		),

		TokenRefreshes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "token_refreshes_total",
				Help: "Token refresh attempts by result",
			},
			[]string{"result"},
		),

		SchemaColumnsAdded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warehouse_schema_columns_added_total",
				Help: "Columns appended to the target table",
			},
			[]string{"table"},
		),

		WarehouseLoads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warehouse_loads_total",
				Help: "Batch loads into the warehouse by result",
			},
			[]string{"table", "status"},
		),
	}
}

// NewUnregistered is for tests that build many services.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}

// HTTP request metrics
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// ETL job metrics
func (m *Metrics) RecordETLJob(status, mode string, duration time.Duration) {
	m.ETLJobsTotal.WithLabelValues(status, mode).Inc()
	m.ETLJobDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// Records per pipeline stage (fetched, duplicate, filtered, flattened, loaded)
func (m *Metrics) RecordETLRecords(stage string, count int) {
	m.ETLRecords.WithLabelValues(stage).Add(float64(count))
}

func (m *Metrics) RecordAccountFailure(accountID, errorType string) {
	m.ETLAccountsFailed.WithLabelValues(accountID, errorType).Inc()
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

func (m *Metrics) RecordTokenState(state string) {
	m.TokenStates.WithLabelValues(state).Inc()
}

func (m *Metrics) RecordTokenRefresh(result string) {
	m.TokenRefreshes.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordSchemaColumnsAdded(table string, count int) {
	m.SchemaColumnsAdded.WithLabelValues(table).Add(float64(count))
}

func (m *Metrics) RecordWarehouseLoad(table, status string) {
	m.WarehouseLoads.WithLabelValues(table, status).Inc()
}

// ETL jobs in progress counter
func (m *Metrics) IncETLJobsInProgress() {
	m.ETLJobsInProgress.Inc()
}

// ETL jobs in progress counter
func (m *Metrics) DecETLJobsInProgress() {
	m.ETLJobsInProgress.Dec()
}

// HTTP requests in flight counter
func (m *Metrics) IncHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Inc()
}

// HTTP requests in flight counter
func (m *Metrics) DecHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Dec()
}
