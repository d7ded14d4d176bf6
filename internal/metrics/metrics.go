// Package metrics exposes Prometheus collectors for the review workflow.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// statusTransitions counts version status changes by source and target.
	statusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "banner_version_status_transitions_total",
		Help: "Total number of image version status changes",
	}, []string{"from", "to"})

	// versionsUploaded counts new image versions, including first versions.
	versionsUploaded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "banner_versions_uploaded_total",
		Help: "Total number of image versions created",
	}, []string{"kind"}) // kind: initial, revision

	// authorizationDenials counts rejected workflow operations.
	authorizationDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "banner_authorization_denials_total",
		Help: "Total number of operations denied by policy",
	}, []string{"operation"})

	commentsPosted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "banner_comments_posted_total",
		Help: "Total number of comments posted",
	})

	commentsDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "banner_comments_deleted_total",
		Help: "Total number of comments deleted",
	})

	// importRows counts processed import rows by outcome.
	importRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "banner_import_rows_total",
		Help: "Total number of bulk import rows by outcome",
	}, []string{"outcome"}) // outcome: success, failed

	importDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "banner_import_duration_seconds",
		Help:    "Time taken to process a bulk import",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})

	// alertedProducts is the size of the last computed needs-attention list.
	alertedProducts = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "banner_alerted_products",
		Help: "Number of products in the last computed alert list by tier",
	}, []string{"tier"})
)

// Recorder records workflow metrics.
type Recorder struct{}

// NewRecorder creates a new metrics recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) StatusTransition(from, to string) {
	statusTransitions.WithLabelValues(from, to).Inc()
}

func (r *Recorder) VersionUploaded(initial bool) {
	kind := "revision"
	if initial {
		kind = "initial"
	}
	versionsUploaded.WithLabelValues(kind).Inc()
}

func (r *Recorder) Denied(operation string) {
	authorizationDenials.WithLabelValues(operation).Inc()
}

func (r *Recorder) CommentPosted() {
	commentsPosted.Inc()
}

func (r *Recorder) CommentDeleted() {
	commentsDeleted.Inc()
}

// ImportFinished records the outcome of one bulk import.
func (r *Recorder) ImportFinished(success, failed int, duration time.Duration) {
	importRows.WithLabelValues("success").Add(float64(success))
	importRows.WithLabelValues("failed").Add(float64(failed))
	importDuration.Observe(duration.Seconds())
}

// AlertsComputed replaces the per-tier alert gauge.
func (r *Recorder) AlertsComputed(byTier map[string]int) {
	alertedProducts.Reset()
	for tier, n := range byTier {
		alertedProducts.WithLabelValues(tier).Set(float64(n))
	}
}
