package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the settlement pipeline collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	JobsProcessed  *prometheus.CounterVec
	JobDuration    *prometheus.HistogramVec
	LockContention *prometheus.CounterVec
	QueueDepth     *prometheus.GaugeVec
	WebhookEvents  *prometheus.CounterVec
	JournalErrors  prometheus.Counter
}

func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		JobsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "settlement_jobs_processed_total",
				Help: "Jobs handled by pipeline stages, by outcome.",
			},
			[]string{"queue", "outcome"},
		),
		JobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "settlement_job_duration_seconds",
				Help:    "Stage processing time in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"queue"},
		),
		LockContention: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "settlement_lock_contention_total",
				Help: "Jobs re-delayed because their entity lock was held.",
			},
			[]string{"queue"},
		),
		QueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "settlement_queue_depth",
				Help: "Jobs per queue list.",
			},
			[]string{"queue", "list"},
		),
		WebhookEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "settlement_webhook_events_total",
				Help: "Webhook deliveries by event type and result.",
			},
			[]string{"event", "result"},
		),
		JournalErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "settlement_journal_errors_total",
				Help: "Balance movements the journal mirror failed to record.",
			},
		),
	}

	registry.MustRegister(
		m.JobsProcessed, m.JobDuration, m.LockContention, m.QueueDepth, m.WebhookEvents, m.JournalErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveJob(queue, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.JobsProcessed.WithLabelValues(queue, outcome).Inc()
	m.JobDuration.WithLabelValues(queue).Observe(duration.Seconds())
}

func (m *Metrics) ObserveLockContention(queue string) {
	if m == nil {
		return
	}
	m.LockContention.WithLabelValues(queue).Inc()
}

func (m *Metrics) SetQueueDepth(queue, list string, depth int64) {
	if m == nil {
		return
	}
	m.QueueDepth.WithLabelValues(queue, list).Set(float64(depth))
}

func (m *Metrics) ObserveWebhook(event, result string) {
	if m == nil {
		return
	}
	m.WebhookEvents.WithLabelValues(event, result).Inc()
}

func (m *Metrics) ObserveJournalError() {
	if m == nil {
		return
	}
	m.JournalErrors.Inc()
}
