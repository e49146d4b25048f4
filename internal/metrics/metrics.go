package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formwright_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "formwright_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "formwright_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "formwright_http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
		},
		[]string{"method", "path"},
	)

	dbConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "formwright_db_connections_open",
			Help: "Number of open database connections",
		},
	)

	dbConnectionsInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "formwright_db_connections_in_use",
			Help: "Number of database connections currently in use",
		},
	)

	dbConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "formwright_db_connections_idle",
			Help: "Number of idle database connections",
		},
	)

	realtimeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "formwright_realtime_connections",
			Help: "Number of active WebSocket connections on the live submission feed",
		},
	)

	formSubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formwright_form_submissions_total",
			Help: "Total number of form responses submitted",
		},
		[]string{"form_id", "is_draft"},
	)

	approvalTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formwright_approval_transitions_total",
			Help: "Total number of response approval status transitions",
		},
		[]string{"to_status"},
	)

	workflowExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formwright_workflow_executions_total",
			Help: "Total number of workflow matches executed after a submission",
		},
		[]string{"action_type"},
	)

	webhookDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formwright_webhook_deliveries_total",
			Help: "Total number of webhook delivery attempts",
		},
		[]string{"outcome"},
	)
)

func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration, responseSize int) {
	statusStr := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

func IncrementInFlight() {
	httpRequestsInFlight.Inc()
}

func DecrementInFlight() {
	httpRequestsInFlight.Dec()
}

func UpdateDBStats(open, inUse, idle int) {
	dbConnectionsOpen.Set(float64(open))
	dbConnectionsInUse.Set(float64(inUse))
	dbConnectionsIdle.Set(float64(idle))
}

func UpdateRealtimeConnections(connections int) {
	realtimeConnections.Set(float64(connections))
}

// RecordSubmission is called once per successful C5 Submit.
func RecordSubmission(formID string, isDraft bool) {
	formSubmissionsTotal.WithLabelValues(formID, strconv.FormatBool(isDraft)).Inc()
}

// RecordApprovalTransition is called once per successful C7 Transition.
func RecordApprovalTransition(toStatus string) {
	approvalTransitionsTotal.WithLabelValues(toStatus).Inc()
}

// RecordWorkflowExecution is called once per C8 action the engine executes.
func RecordWorkflowExecution(actionType string) {
	workflowExecutionsTotal.WithLabelValues(actionType).Inc()
}

// RecordWebhookDelivery is called once per C9 delivery attempt outcome
// ("succeeded", "retrying", "failed").
func RecordWebhookDelivery(outcome string) {
	webhookDeliveriesTotal.WithLabelValues(outcome).Inc()
}

func NormalizePath(path string) string {
	if len(path) > 100 {
		path = path[:100]
	}

	normalized := ""
	inParam := false
	for i := 0; i < len(path); i++ {
		if path[i] == '{' {
			inParam = true
			normalized += ":"
			continue
		}
		if path[i] == '}' {
			inParam = false
			continue
		}
		if !inParam {
			normalized += string(path[i])
		}
	}
	return normalized
}
