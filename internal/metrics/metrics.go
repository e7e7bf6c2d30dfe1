// Package metrics defines the Prometheus metrics of the recording pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Segment outcomes for SegmentsProcessed.
const (
	StatusOK      = "ok"
	StatusEmpty   = "empty"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

// Pipeline holds all metrics for one process.
type Pipeline struct {
	// Capture and transcription
	SegmentsCaptured     prometheus.Counter
	SegmentsProcessed    *prometheus.CounterVec
	TranscriptionSeconds prometheus.Histogram
	AudioQueueDepth      prometheus.Gauge
	BreakerState         *prometheus.GaugeVec

	// Scheduling and analysis
	Flushes          prometheus.Counter
	FlushesDeferred  prometheus.Counter
	AnalyzerUpdates  *prometheus.CounterVec
	AnalyzerSeconds  *prometheus.HistogramVec
	TokensTotal      prometheus.Counter
	RateLimitRetries prometheus.Counter

	// Sessions
	Sessions       *prometheus.CounterVec
	Persists       *prometheus.CounterVec
	SinkDropped    prometheus.Counter
	ActiveSessions prometheus.Gauge
}

// NewPipeline registers the pipeline metrics on reg.
func NewPipeline(reg prometheus.Registerer) *Pipeline {
	factory := promauto.With(reg)

	return &Pipeline{
		SegmentsCaptured: factory.NewCounter(prometheus.CounterOpts{
			Name: "meetscribe_segments_captured_total",
			Help: "Audio segments produced by capture",
		}),
		SegmentsProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meetscribe_segments_processed_total",
				Help: "Audio segments handled by transcription workers",
			},
			[]string{"status"},
		),
		TranscriptionSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "meetscribe_transcription_seconds",
			Help:    "Transcription backend latency",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		AudioQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "meetscribe_audio_queue_depth",
			Help: "Segments waiting for a transcription worker",
		}),
		BreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "meetscribe_breaker_state",
				Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
			},
			[]string{"breaker"},
		),

		Flushes: factory.NewCounter(prometheus.CounterOpts{
			Name: "meetscribe_flushes_total",
			Help: "Transcript chunks submitted to analyzers",
		}),
		FlushesDeferred: factory.NewCounter(prometheus.CounterOpts{
			Name: "meetscribe_flushes_deferred_total",
			Help: "Flush windows skipped because a summary was still in flight",
		}),
		AnalyzerUpdates: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meetscribe_analyzer_updates_total",
				Help: "Analyzer calls by outcome",
			},
			[]string{"analyzer", "phase", "status"},
		),
		AnalyzerSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "meetscribe_analyzer_seconds",
				Help:    "Analyzer call latency",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"analyzer"},
		),
		TokensTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "meetscribe_llm_tokens_total",
			Help: "LLM tokens consumed",
		}),
		RateLimitRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "meetscribe_llm_rate_limit_retries_total",
			Help: "LLM calls retried after throttling",
		}),

		Sessions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meetscribe_sessions_total",
				Help: "Recording sessions by lifecycle event",
			},
			[]string{"event"},
		),
		Persists: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meetscribe_persist_total",
				Help: "Meeting record saves by outcome",
			},
			[]string{"status"},
		),
		SinkDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "meetscribe_sink_dropped_total",
			Help: "UI events dropped because the hand-off buffer was full",
		}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "meetscribe_active_sessions",
			Help: "Sessions currently recording or finalizing",
		}),
	}
}

// NewNop returns metrics registered on a private registry, for tests and
// headless runs that never expose them.
func NewNop() *Pipeline {
	return NewPipeline(prometheus.NewRegistry())
}

// AddTokens records tokens spent; non-positive values are ignored.
func (p *Pipeline) AddTokens(n int64) {
	if n > 0 {
		p.TokensTotal.Add(float64(n))
	}
}
