package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Connection metrics
	connectionState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voice_console_connection_state",
		Help: "Current connection state (0=disconnected, 1=connecting, 2=connected, 3=error)",
	})

	connectAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_console_connect_attempts_total",
		Help: "Connection attempts by result",
	}, []string{"result"})

	connectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_console_connection_duration_seconds",
		Help:    "Lifetime of live sessions in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
	})

	// Streaming metrics
	audioBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_console_audio_bytes_total",
		Help: "Audio bytes streamed",
	}, []string{"direction"}) // direction: "in" or "out"

	sendFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_console_send_failures_total",
		Help: "Realtime packets that failed to send",
	}, []string{"kind"})

	decodeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_console_decode_failures_total",
		Help: "Inbound audio payloads that could not be decoded",
	})

	playbackStalls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_console_playback_stalls_total",
		Help: "Times the playback clock fell behind and was clamped forward",
	})

	interruptions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_console_interruptions_total",
		Help: "Barge-in signals received from the live service",
	})

	transcriptCommits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_console_transcript_commits_total",
		Help: "Committed chat messages by role",
	}, []string{"role"})

	screenFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_console_screen_frames_total",
		Help: "Screen frames sent to the live service",
	})

	toolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_console_tool_calls_total",
		Help: "Tool calls handled by name and status",
	}, []string{"tool", "status"})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_console_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "voice_console_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_console_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})
)

// Metrics tracks one live connection from open to teardown.
type Metrics struct {
	connectionID string
	startTime    time.Time
	ended        bool
	mu           sync.Mutex
}

// NewConnectionMetrics creates a tracker for one connection attempt.
func NewConnectionMetrics(connectionID string) *Metrics {
	return &Metrics{
		connectionID: connectionID,
		startTime:    time.Now(),
	}
}

// RecordConnected marks the connection as open.
func (m *Metrics) RecordConnected() {
	m.mu.Lock()
	m.startTime = time.Now()
	m.mu.Unlock()
	connectAttempts.WithLabelValues("success").Inc()
}

// RecordConnectFailed counts a failed attempt by error kind.
func (m *Metrics) RecordConnectFailed(kind string) {
	connectAttempts.WithLabelValues(kind).Inc()
}

// RecordClosed observes the connection lifetime once.
func (m *Metrics) RecordClosed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ended {
		return
	}
	m.ended = true
	connectionDuration.Observe(time.Since(m.startTime).Seconds())
}

// RecordError records an error
func (m *Metrics) RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// SetConnectionState publishes the numeric connection state.
func SetConnectionState(state int) {
	connectionState.Set(float64(state))
}

// RecordAudioBytes records audio bytes streamed in a direction ("in" or "out").
func RecordAudioBytes(direction string, n int) {
	audioBytes.WithLabelValues(direction).Add(float64(n))
}

// RecordSendFailure counts a realtime packet that could not be sent.
func RecordSendFailure(kind string) {
	sendFailures.WithLabelValues(kind).Inc()
}

// RecordDecodeFailure counts an undecodable inbound payload.
func RecordDecodeFailure() {
	decodeFailures.Inc()
}

// RecordPlaybackStall counts a clamp of the playback clock.
func RecordPlaybackStall() {
	playbackStalls.Inc()
}

// RecordInterruption counts a barge-in.
func RecordInterruption() {
	interruptions.Inc()
}

// RecordCommit counts a committed message.
func RecordCommit(role string) {
	transcriptCommits.WithLabelValues(role).Inc()
}

// RecordScreenFrame counts a sent screen frame.
func RecordScreenFrame() {
	screenFrames.Inc()
}

// RecordToolCall counts a handled tool call.
func RecordToolCall(tool string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	toolCalls.WithLabelValues(tool, status).Inc()
}

// RecordError records an error outside a connection scope.
func RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
