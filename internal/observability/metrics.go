// Package observability provides Prometheus metrics and the operational
// HTTP endpoints.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "interview_capture"

// Metrics holds all Prometheus instruments for the service.
type Metrics struct {
	SessionsStarted   prometheus.Counter
	SessionsActive    prometheus.Gauge
	SessionReconnects prometheus.Counter

	AudioChunksReceived prometheus.Counter
	AudioChunksDropped  prometheus.Counter

	TranscriptsPartial prometheus.Counter
	TranscriptsFinal   prometheus.Counter

	VideoChunksSaved prometheus.Counter
	MergesSucceeded  prometheus.Counter
	MergesFailed     prometheus.Counter
	MergeDuration    prometheus.Histogram

	EventsPublished    *prometheus.CounterVec
	EventPublishErrors prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Total number of capture sessions started",
		}),
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently active capture sessions",
		}),
		SessionReconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_reconnects_total",
			Help:      "Total number of provider stream reconnect attempts",
		}),
		AudioChunksReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_chunks_received_total",
			Help:      "Total number of audio chunks accepted from clients",
		}),
		AudioChunksDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_chunks_dropped_total",
			Help:      "Total number of audio chunks dropped before reaching the provider",
		}),
		TranscriptsPartial: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_partial_total",
			Help:      "Total number of interim transcript updates",
		}),
		TranscriptsFinal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_final_total",
			Help:      "Total number of finalized transcript segments",
		}),
		VideoChunksSaved: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "video_chunks_saved_total",
			Help:      "Total number of video chunks written to scratch storage",
		}),
		MergesSucceeded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merges_succeeded_total",
			Help:      "Total number of successful merge-and-deliver runs",
		}),
		MergesFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merges_failed_total",
			Help:      "Total number of merge-and-deliver runs that exhausted retries",
		}),
		MergeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "merge_duration_seconds",
			Help:      "Wall time of merge-and-deliver runs in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 900},
		}),
		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Total number of transcript events published downstream",
		}, []string{"event_type"}),
		EventPublishErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_errors_total",
			Help:      "Total number of failed transcript event publishes",
		}),
	}
}
