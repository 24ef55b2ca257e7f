// Package metrics exposes Prometheus collectors for the pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Tracker holds the pipeline's Prometheus collectors.
type Tracker struct {
	jobsEnqueued    *prometheus.CounterVec
	jobsCompleted   *prometheus.CounterVec
	jobsFailed      *prometheus.CounterVec
	jobsRetried     *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	postsPublished  prometheus.Counter
	quotaRejections prometheus.Counter
	cyclesRun       *prometheus.CounterVec
}

// NewTracker registers the pipeline collectors on reg.
func NewTracker(reg prometheus.Registerer) *Tracker {
	factory := promauto.With(reg)
	return &Tracker{
		jobsEnqueued: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_jobs_enqueued_total",
			Help: "Jobs handed to the dispatcher, by lane.",
		}, []string{"lane"}),
		jobsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_jobs_completed_total",
			Help: "Jobs finished successfully, by lane.",
		}, []string{"lane"}),
		jobsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_jobs_failed_total",
			Help: "Jobs that failed terminally or pending retry, by lane and failure kind.",
		}, []string{"lane", "kind"}),
		jobsRetried: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_jobs_retried_total",
			Help: "Retries scheduled after transient failures, by lane.",
		}, []string{"lane"}),
		jobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pipeline_job_duration_seconds",
			Help:    "Processing time of one job attempt, by lane.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"lane"}),
		postsPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_posts_published_total",
			Help: "Successful platform publishes.",
		}),
		quotaRejections: factory.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_quota_rejections_total",
			Help: "Publish attempts rejected by the daily quota.",
		}),
		cyclesRun: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_cycles_run_total",
			Help: "Scheduling cycles executed, by stage and outcome.",
		}, []string{"stage", "outcome"}),
	}
}

// JobEnqueued counts one dispatcher handoff.
func (t *Tracker) JobEnqueued(lane string) {
	t.jobsEnqueued.WithLabelValues(lane).Inc()
}

// JobCompleted counts one successful job and observes its duration.
func (t *Tracker) JobCompleted(lane string, seconds float64) {
	t.jobsCompleted.WithLabelValues(lane).Inc()
	t.jobDuration.WithLabelValues(lane).Observe(seconds)
}

// JobFailed counts one failed attempt by classification.
func (t *Tracker) JobFailed(lane, kind string, seconds float64) {
	t.jobsFailed.WithLabelValues(lane, kind).Inc()
	t.jobDuration.WithLabelValues(lane).Observe(seconds)
}

// JobRetried counts one scheduled retry.
func (t *Tracker) JobRetried(lane string) {
	t.jobsRetried.WithLabelValues(lane).Inc()
}

// PostPublished counts one successful platform publish.
func (t *Tracker) PostPublished() {
	t.postsPublished.Inc()
}

// QuotaRejected counts one quota fail-fast.
func (t *Tracker) QuotaRejected() {
	t.quotaRejections.Inc()
}

// CycleRun counts one stage cycle by outcome ("success" or "error").
func (t *Tracker) CycleRun(stage, outcome string) {
	t.cyclesRun.WithLabelValues(stage, outcome).Inc()
}
