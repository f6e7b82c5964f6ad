// Package metrics exposes Prometheus instrumentation for the relay.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the voice relay service.
type Metrics struct {
	// Session lifecycle
	SessionsStarted prometheus.Counter
	SessionsFailed  prometheus.Counter
	ActiveSessions  prometheus.Gauge

	// Audio relay
	ChunksForwarded prometheus.Counter
	BytesForwarded  prometheus.Counter
	AudioFramesSent prometheus.Counter
	BytesSent       prometheus.Counter

	// Transcript events by type
	TranscriptEvents *prometheus.CounterVec

	// Secondary transcription
	SecondaryDispatched prometheus.Counter
	SecondarySucceeded  prometheus.Counter
	SecondaryFailed     prometheus.Counter
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		SessionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voxbridge_sessions_started_total",
			Help: "Total number of live sessions opened upstream",
		}),
		SessionsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voxbridge_sessions_failed_total",
			Help: "Total number of live sessions ended by an unrecoverable error",
		}),
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "voxbridge_active_sessions",
			Help: "Current number of active live sessions",
		}),
		ChunksForwarded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voxbridge_audio_chunks_forwarded_total",
			Help: "Total number of client audio chunks forwarded upstream",
		}),
		BytesForwarded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voxbridge_audio_bytes_forwarded_total",
			Help: "Total client audio bytes forwarded upstream",
		}),
		AudioFramesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voxbridge_audio_frames_sent_total",
			Help: "Total number of model audio frames relayed to the client",
		}),
		BytesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voxbridge_audio_bytes_sent_total",
			Help: "Total model audio bytes relayed to the client",
		}),
		TranscriptEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voxbridge_transcript_events_total",
			Help: "Total transcript events relayed to the client, by event type",
		}, []string{"type"}),
		SecondaryDispatched: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voxbridge_secondary_transcriptions_dispatched_total",
			Help: "Total turn audio snapshots submitted for secondary transcription",
		}),
		SecondarySucceeded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voxbridge_secondary_transcriptions_succeeded_total",
			Help: "Total secondary transcriptions that produced a transcript",
		}),
		SecondaryFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voxbridge_secondary_transcriptions_failed_total",
			Help: "Total secondary transcriptions that failed",
		}),
	}
}
