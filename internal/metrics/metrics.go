package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the engine's Prometheus collectors. All recording methods are
// safe to call on a nil *Registry so tests and tools can run without metrics.
type Registry struct {
	reg                 *prometheus.Registry
	OrdersCreated       *prometheus.CounterVec
	OrderTransitions    *prometheus.CounterVec
	UnresolvedDeficits  prometheus.Counter
	NotificationResults *prometheus.CounterVec
	ReceiptPublishes    *prometheus.CounterVec
	JobRuns             *prometheus.CounterVec
	JobRetries          *prometheus.CounterVec
	JobDurationSec      *prometheus.HistogramVec
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	ordersCreated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cafeteria_purchase_orders_created_total",
		Help: "Purchase orders created, by origin.",
	}, []string{"origin"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cafeteria_purchase_order_transitions_total",
		Help: "Purchase order state transitions, by target state.",
	}, []string{"state"})
	unresolved := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cafeteria_unresolved_deficits_total",
		Help: "Deficits for which no rated supplier was found.",
	})
	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cafeteria_notification_attempts_total",
		Help: "Notification delivery attempts, by outcome.",
	}, []string{"outcome"})
	receipts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cafeteria_receipt_events_total",
		Help: "Receipt events handed to the inventory collaborator, by outcome.",
	}, []string{"outcome"})
	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cafeteria_job_runs_total",
		Help: "Scheduled job executions, by job and outcome.",
	}, []string{"job", "outcome"})
	jobRetries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cafeteria_job_retries_total",
		Help: "Scheduled job retries, by job.",
	}, []string{"job"})
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cafeteria_job_duration_seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})

	r.MustRegister(ordersCreated, transitions, unresolved, notifications, receipts, jobRuns, jobRetries, jobDuration)
	return &Registry{
		reg:                 r,
		OrdersCreated:       ordersCreated,
		OrderTransitions:    transitions,
		UnresolvedDeficits:  unresolved,
		NotificationResults: notifications,
		ReceiptPublishes:    receipts,
		JobRuns:             jobRuns,
		JobRetries:          jobRetries,
		JobDurationSec:      jobDuration,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }

func (r *Registry) OrderCreated(origin string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.OrdersCreated.WithLabelValues(origin).Add(float64(n))
}

func (r *Registry) OrderTransition(state string) {
	if r == nil {
		return
	}
	r.OrderTransitions.WithLabelValues(state).Inc()
}

func (r *Registry) Unresolved(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.UnresolvedDeficits.Add(float64(n))
}

func (r *Registry) NotificationAttempt(outcome string) {
	if r == nil {
		return
	}
	r.NotificationResults.WithLabelValues(outcome).Inc()
}

func (r *Registry) ReceiptPublished(outcome string) {
	if r == nil {
		return
	}
	r.ReceiptPublishes.WithLabelValues(outcome).Inc()
}

func (r *Registry) JobRun(job, outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.JobRuns.WithLabelValues(job, outcome).Inc()
	r.JobDurationSec.WithLabelValues(job).Observe(elapsed.Seconds())
}

func (r *Registry) JobRetry(job string) {
	if r == nil {
		return
	}
	r.JobRetries.WithLabelValues(job).Inc()
}
