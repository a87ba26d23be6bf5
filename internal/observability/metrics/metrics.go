// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "voice_search"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Session metrics
	SessionsTotal  prometheus.Counter
	SessionsActive prometheus.Gauge

	// Recognition metrics
	RecognitionStarts   prometheus.Counter
	RecognitionEnds     prometheus.Counter
	RecognitionErrors   *prometheus.CounterVec
	RecognitionDropped  *prometheus.CounterVec
	TranscriptsInterim  prometheus.Counter
	TranscriptsFinal    prometheus.Counter
	AudioBytesReceived  prometheus.Counter
	AudioFramesReceived prometheus.Counter

	// Reconciler metrics
	ReconcileApplied *prometheus.CounterVec

	// Resolver metrics
	ResolverDecisions *prometheus.CounterVec
	SearchWait        prometheus.Histogram
	SearchTimeouts    prometheus.Counter
	StoreErrors       *prometheus.CounterVec

	// Search metrics
	SearchRequests *prometheus.CounterVec
	SearchLatency  *prometheus.HistogramVec

	// Agent metrics
	AgentStreams        *prometheus.CounterVec
	AgentStreamDuration prometheus.Histogram
	ToolCalls           *prometheus.CounterVec

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// Backpressure metrics
	RecognitionLimitExceeded *prometheus.CounterVec

	// API metrics
	HTTPRequests     *prometheus.CounterVec
	HTTPLatency      *prometheus.HistogramVec
	GRPCCalls        *prometheus.CounterVec
	GRPCLatency      *prometheus.HistogramVec
	WebSocketsActive prometheus.Gauge
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics on the default registerer.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates metrics registered on reg.
// Tests pass a fresh prometheus.NewRegistry() to avoid duplicate registration.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		// Session metrics
		SessionsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of assistant sessions created",
		}),
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently open assistant sessions",
		}),

		// Recognition metrics
		RecognitionStarts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognition_starts_total",
			Help:      "Total number of speech recognition sessions started",
		}),
		RecognitionEnds: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognition_ends_total",
			Help:      "Total number of speech recognition sessions ended",
		}),
		RecognitionErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognition_errors_total",
			Help:      "Total number of speech recognition errors by code",
		}, []string{"code", "recoverable"}),
		RecognitionDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognition_dropped_total",
			Help:      "Total number of recognition sessions whose transcript was discarded",
		}, []string{"reason"}),
		TranscriptsInterim: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_interim_total",
			Help:      "Total number of interim transcripts received",
		}),
		TranscriptsFinal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_final_total",
			Help:      "Total number of final transcripts received",
		}),
		AudioBytesReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_received_total",
			Help:      "Total audio bytes received",
		}),
		AudioFramesReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_received_total",
			Help:      "Total audio frames received",
		}),

		// Reconciler metrics
		ReconcileApplied: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_applied_total",
			Help:      "Total number of transcripts reconciled into the input buffer",
		}, []string{"result"}),

		// Resolver metrics
		ResolverDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolver_decisions_total",
			Help:      "Total number of submissions by cache decision",
		}, []string{"decision"}),
		SearchWait: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_wait_seconds",
			Help:      "Time spent waiting for search results matching a submitted query",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.2, 0.3, 0.45, 0.6, 1},
		}),
		SearchTimeouts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_wait_timeouts_total",
			Help:      "Total number of submissions that proceeded with stale search results",
		}),
		StoreErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Total number of suggestion store errors",
		}, []string{"operation"}),

		// Search metrics
		SearchRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_requests_total",
			Help:      "Total number of search index requests",
		}, []string{"operation", "status"}),
		SearchLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_latency_seconds",
			Help:      "Search index request latency in seconds",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		}, []string{"operation"}),

		// Agent metrics
		AgentStreams: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_streams_total",
			Help:      "Total number of agent completion streams",
		}, []string{"status"}),
		AgentStreamDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_stream_duration_seconds",
			Help:      "Duration of agent completion streams in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}),
		ToolCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Total number of agent tool calls resolved",
		}, []string{"tool", "state"}),

		// Kafka publish metrics
		KafkaPublishTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		// Backpressure metrics
		RecognitionLimitExceeded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognition_limit_exceeded_total",
			Help:      "Total number of times recognition limits were exceeded",
		}, []string{"limit_type"}),

		// API metrics
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP API requests",
		}, []string{"route", "method", "status"}),
		HTTPLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP API request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		GRPCCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_calls_total",
			Help:      "Total number of gRPC calls",
		}, []string{"method", "code"}),
		GRPCLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "grpc_call_duration_seconds",
			Help:      "gRPC call duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		WebSocketsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websockets_active",
			Help:      "Number of open session WebSocket connections",
		}),
	}
}

// RecordSessionOpened records a new assistant session.
func (m *Metrics) RecordSessionOpened() {
	m.SessionsTotal.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionClosed records an assistant session being closed.
func (m *Metrics) RecordSessionClosed() {
	m.SessionsActive.Dec()
}

// RecordRecognitionStart records a recognizer start event.
func (m *Metrics) RecordRecognitionStart() {
	m.RecognitionStarts.Inc()
}

// RecordRecognitionEnd records a recognizer end event.
func (m *Metrics) RecordRecognitionEnd() {
	m.RecognitionEnds.Inc()
}

// RecordRecognitionError records a recognizer error code.
func (m *Metrics) RecordRecognitionError(code string, recoverable bool) {
	r := "false"
	if recoverable {
		r = "true"
	}
	m.RecognitionErrors.WithLabelValues(code, r).Inc()
}

// RecordRecognitionDropped records a discarded recognition transcript.
func (m *Metrics) RecordRecognitionDropped(reason string) {
	m.RecognitionDropped.WithLabelValues(reason).Inc()
}

// RecordTranscript records a transcript result received.
func (m *Metrics) RecordTranscript(final bool) {
	if final {
		m.TranscriptsFinal.Inc()
		return
	}
	m.TranscriptsInterim.Inc()
}

// RecordAudioReceived records audio bytes and frames received.
func (m *Metrics) RecordAudioReceived(bytes int) {
	m.AudioBytesReceived.Add(float64(bytes))
	m.AudioFramesReceived.Inc()
}

// RecordReconcile records the outcome of merging a transcript.
func (m *Metrics) RecordReconcile(changed bool) {
	if changed {
		m.ReconcileApplied.WithLabelValues("changed").Inc()
		return
	}
	m.ReconcileApplied.WithLabelValues("noop").Inc()
}

// RecordDecision records a resolver cache decision.
func (m *Metrics) RecordDecision(decision string) {
	m.ResolverDecisions.WithLabelValues(decision).Inc()
}

// RecordSearchWait records how long a submission waited for matching results.
func (m *Metrics) RecordSearchWait(seconds float64, matched bool) {
	m.SearchWait.Observe(seconds)
	if !matched {
		m.SearchTimeouts.Inc()
	}
}

// RecordStoreError records a suggestion store failure.
func (m *Metrics) RecordStoreError(operation string) {
	m.StoreErrors.WithLabelValues(operation).Inc()
}

// RecordSearchRequest records a search index request.
func (m *Metrics) RecordSearchRequest(operation string, err error, latencySeconds float64) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.SearchRequests.WithLabelValues(operation, status).Inc()
	m.SearchLatency.WithLabelValues(operation).Observe(latencySeconds)
}

// RecordAgentStream records a finished agent stream.
func (m *Metrics) RecordAgentStream(err error, durationSeconds float64) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.AgentStreams.WithLabelValues(status).Inc()
	m.AgentStreamDuration.Observe(durationSeconds)
}

// RecordToolCall records a resolved agent tool call.
func (m *Metrics) RecordToolCall(tool, state string) {
	m.ToolCalls.WithLabelValues(tool, state).Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordLimitExceeded records when a recognition limit is exceeded.
func (m *Metrics) RecordLimitExceeded(limitType string) {
	m.RecognitionLimitExceeded.WithLabelValues(limitType).Inc()
}

// RecordHTTPRequest records a completed HTTP API request.
func (m *Metrics) RecordHTTPRequest(route, method string, status int, latencySeconds float64) {
	m.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.HTTPLatency.WithLabelValues(route).Observe(latencySeconds)
}

// RecordGRPCCall records a completed gRPC call.
func (m *Metrics) RecordGRPCCall(method, code string, latencySeconds float64) {
	m.GRPCCalls.WithLabelValues(method, code).Inc()
	m.GRPCLatency.WithLabelValues(method).Observe(latencySeconds)
}

// RecordWebSocketOpened records a session WebSocket connection opening.
func (m *Metrics) RecordWebSocketOpened() {
	m.WebSocketsActive.Inc()
}

// RecordWebSocketClosed records a session WebSocket connection closing.
func (m *Metrics) RecordWebSocketClosed() {
	m.WebSocketsActive.Dec()
}
