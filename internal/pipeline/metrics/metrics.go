package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the message pipeline.
// Tracks per-outcome message counts and per-stage latency.
type Metrics struct {
	MessagesProcessed  *prometheus.CounterVec
	StageDuration      *prometheus.HistogramVec
	ExtractionRetries  prometheus.Counter
	ExtractionDegraded prometheus.Counter
	VersionConflicts   prometheus.Counter
	QuotaRejections    prometheus.Counter
	Redeliveries       prometheus.Counter
	Quarantined        prometheus.Counter
}

// New creates a Metrics instance with all pipeline metrics registered.
func New() *Metrics {
	return &Metrics{
		MessagesProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mailroom_messages_processed_total",
			Help: "Messages processed, labeled by terminal outcome",
		}, []string{"outcome"}),
		StageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mailroom_stage_duration_seconds",
			Help:    "Duration of each pipeline stage",
			Buckets: []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"stage"}),
		ExtractionRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mailroom_extraction_retries_total",
			Help: "AI extraction attempts beyond the first",
		}),
		ExtractionDegraded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mailroom_extraction_degraded_total",
			Help: "Messages recorded without structured extraction",
		}),
		VersionConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mailroom_project_version_conflicts_total",
			Help: "Optimistic concurrency conflicts on project writes",
		}),
		QuotaRejections: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mailroom_quota_rejections_total",
			Help: "Messages degraded because the organization exceeded its AI budget",
		}),
		Redeliveries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mailroom_redeliveries_total",
			Help: "Messages released back to the queue for retry",
		}),
		Quarantined: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mailroom_quarantined_total",
			Help: "Messages moved to the quarantine topic",
		}),
	}
}

// IncrementProcessed records a message reaching a terminal outcome
// (processed, degraded, rejected, quarantined).
func (m *Metrics) IncrementProcessed(outcome string) {
	m.MessagesProcessed.WithLabelValues(outcome).Inc()
}

// ObserveStage records the duration of one pipeline stage.
// Call with time.Now() at the start of the stage.
func (m *Metrics) ObserveStage(stage string, start time.Time) {
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
