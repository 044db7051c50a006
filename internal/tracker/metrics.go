package tracker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics: Prometheus-метрики клиента трекера. Nil-значение допустимо.
type Metrics struct {
	requests      *prometheus.CounterVec
	retries       *prometheus.CounterVec
	jobsReceived  prometheus.Counter
	jobsCompleted prometheus.Counter
	jobsFlagged   prometheus.Counter
}

// NewMetrics создаёт метрики и регистрирует их в reg.
// Если reg == nil, метрики не регистрируются (удобно в тестах).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "distcompute_tracker_requests_total",
			Help: "Tracker responses by endpoint and classified outcome",
		}, []string{"endpoint", "outcome"}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "distcompute_tracker_transport_retries_total",
			Help: "Requests retried after a transport-level failure",
		}, []string{"endpoint"}),
		jobsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "distcompute_jobs_received_total",
			Help: "Jobs assigned to this worker",
		}),
		jobsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "distcompute_jobs_completed_total",
			Help: "Jobs reported as complete",
		}),
		jobsFlagged: factory.NewCounter(prometheus.CounterOpts{
			Name: "distcompute_jobs_flagged_total",
			Help: "Jobs whose input was flagged as invalid",
		}),
	}
}

func (m *Metrics) observeRequest(endpoint string, kind OutcomeKind) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(endpoint, kind.String()).Inc()
}

func (m *Metrics) observeRetry(endpoint string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(endpoint).Inc()
}

func (m *Metrics) observeJobReceived() {
	if m == nil {
		return
	}
	m.jobsReceived.Inc()
}

func (m *Metrics) observeJobCompleted() {
	if m == nil {
		return
	}
	m.jobsCompleted.Inc()
}

func (m *Metrics) observeJobFlagged() {
	if m == nil {
		return
	}
	m.jobsFlagged.Inc()
}
