package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the capture client and the
// transcription server. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Capture session metrics
	SessionsStarted  *prometheus.CounterVec
	SessionsFinished *prometheus.CounterVec
	Recording        prometheus.Gauge
	SessionLatency   prometheus.Histogram
	FramesCaptured   prometheus.Counter

	// Chunking metrics
	ChunksDetached prometheus.Counter
	ChunksSkipped  prometheus.Counter
	ChunkSize      prometheus.Histogram

	// Conversion metrics
	ConversionFailures prometheus.Counter
	ConversionDuration prometheus.Histogram

	// Submission metrics
	SubmissionRequests  *prometheus.CounterVec
	SubmissionSuccesses prometheus.Counter
	SubmissionFailures  prometheus.Counter
	SubmissionDuration  prometheus.Histogram
	InFlight            prometheus.Gauge

	// Network microphone metrics
	PacketsReceived prometheus.Counter
	PacketsLost     prometheus.Counter
	ParseErrors     prometheus.Counter

	// Transcription server metrics
	TranscriptionRequests *prometheus.CounterVec
	TranscriptionFailures *prometheus.CounterVec
	ProviderDuration      prometheus.Histogram
	UploadSize            prometheus.Histogram

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		SessionsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stt_sessions_started_total",
			Help: "Total number of capture sessions started",
		}, []string{"mode"}),
		SessionsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stt_sessions_finished_total",
			Help: "Total number of capture sessions whose submissions all resolved",
		}, []string{"mode", "outcome"}),
		Recording: factory.NewGauge(prometheus.GaugeOpts{
			Name: "stt_recording",
			Help: "1 while a capture session is recording",
		}),
		SessionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "stt_session_latency_seconds",
			Help:    "Time from the stop signal to the last resolved submission",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}),
		FramesCaptured: factory.NewCounter(prometheus.CounterOpts{
			Name: "stt_frames_captured_total",
			Help: "Total number of capture frames appended to sessions",
		}),

		ChunksDetached: factory.NewCounter(prometheus.CounterOpts{
			Name: "stt_chunks_detached_total",
			Help: "Total number of non-empty chunks detached for submission",
		}),
		ChunksSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "stt_chunks_skipped_total",
			Help: "Total number of timer ticks that found no pending frames",
		}),
		ChunkSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "stt_chunk_size_bytes",
			Help:    "Size of detached chunks in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 12), // 1KB to ~4MB
		}),

		ConversionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "stt_conversion_failures_total",
			Help: "Total number of chunks that could not be converted to WAV",
		}),
		ConversionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "stt_conversion_duration_seconds",
			Help:    "Time spent converting chunks to WAV",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
		}),

		SubmissionRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stt_submission_requests_total",
			Help: "Total number of transcription submissions sent",
		}, []string{"target"}),
		SubmissionSuccesses: factory.NewCounter(prometheus.CounterOpts{
			Name: "stt_submission_successes_total",
			Help: "Total number of successful transcription submissions",
		}),
		SubmissionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "stt_submission_failures_total",
			Help: "Total number of failed transcription submissions",
		}),
		SubmissionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "stt_submission_duration_seconds",
			Help:    "Duration of transcription submissions",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1 minute
		}),
		InFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "stt_submissions_in_flight",
			Help: "Current number of unresolved submissions",
		}),

		PacketsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "stt_udp_packets_received_total",
			Help: "Total number of network microphone packets received",
		}),
		PacketsLost: factory.NewCounter(prometheus.CounterOpts{
			Name: "stt_udp_packets_lost_total",
			Help: "Total number of network microphone packets declared lost",
		}),
		ParseErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "stt_udp_parse_errors_total",
			Help: "Total number of network microphone packet parsing errors",
		}),

		TranscriptionRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stt_server_transcription_requests_total",
			Help: "Total number of transcription requests received",
		}, []string{"endpoint"}),
		TranscriptionFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stt_server_transcription_failures_total",
			Help: "Total number of transcription requests that failed",
		}, []string{"endpoint", "reason"}),
		ProviderDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "stt_server_provider_duration_seconds",
			Help:    "Duration of provider transcription calls",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		UploadSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "stt_server_upload_size_bytes",
			Help:    "Size of uploaded audio files",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 15), // 1KB to ~16MB
		}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stt_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stt_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stt_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordSessionStarted counts a started session and raises the recording gauge
func (m *Metrics) RecordSessionStarted(mode string) {
	if m == nil {
		return
	}
	m.SessionsStarted.WithLabelValues(mode).Inc()
	m.Recording.Set(1)
}

// RecordSessionStopped lowers the recording gauge
func (m *Metrics) RecordSessionStopped() {
	if m == nil {
		return
	}
	m.Recording.Set(0)
}

// RecordSessionFinished records the outcome and latency of a finished session
func (m *Metrics) RecordSessionFinished(mode, outcome string, latencySeconds float64) {
	if m == nil {
		return
	}
	m.SessionsFinished.WithLabelValues(mode, outcome).Inc()
	m.SessionLatency.Observe(latencySeconds)
}

// RecordFrame counts a captured frame
func (m *Metrics) RecordFrame() {
	if m == nil {
		return
	}
	m.FramesCaptured.Inc()
}

// RecordChunkDetached records a detached chunk
func (m *Metrics) RecordChunkDetached(sizeBytes int) {
	if m == nil {
		return
	}
	m.ChunksDetached.Inc()
	m.ChunkSize.Observe(float64(sizeBytes))
}

// RecordChunkSkipped counts a tick with nothing to detach
func (m *Metrics) RecordChunkSkipped() {
	if m == nil {
		return
	}
	m.ChunksSkipped.Inc()
}

// RecordConversion records a conversion attempt
func (m *Metrics) RecordConversion(durationSeconds float64, err error) {
	if m == nil {
		return
	}
	m.ConversionDuration.Observe(durationSeconds)
	if err != nil {
		m.ConversionFailures.Inc()
	}
}

// RecordSubmissionStarted counts a submission and raises the in-flight gauge
func (m *Metrics) RecordSubmissionStarted(target string) {
	if m == nil {
		return
	}
	m.SubmissionRequests.WithLabelValues(target).Inc()
	m.InFlight.Inc()
}

// RecordSubmissionResult records a resolved submission
func (m *Metrics) RecordSubmissionResult(durationSeconds float64, err error) {
	if m == nil {
		return
	}
	m.InFlight.Dec()
	m.SubmissionDuration.Observe(durationSeconds)
	if err != nil {
		m.SubmissionFailures.Inc()
	} else {
		m.SubmissionSuccesses.Inc()
	}
}

// RecordPacketReceived increments the packets received counter
func (m *Metrics) RecordPacketReceived() {
	if m == nil {
		return
	}
	m.PacketsReceived.Inc()
}

// RecordPacketsLost adds to the lost packets counter
func (m *Metrics) RecordPacketsLost(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.PacketsLost.Add(float64(n))
}

// RecordParseError increments the parse errors counter
func (m *Metrics) RecordParseError() {
	if m == nil {
		return
	}
	m.ParseErrors.Inc()
}

// RecordTranscriptionRequest records a received upload
func (m *Metrics) RecordTranscriptionRequest(endpoint string, sizeBytes int64) {
	if m == nil {
		return
	}
	m.TranscriptionRequests.WithLabelValues(endpoint).Inc()
	m.UploadSize.Observe(float64(sizeBytes))
}

// RecordTranscriptionFailure records a rejected or failed upload
func (m *Metrics) RecordTranscriptionFailure(endpoint, reason string) {
	if m == nil {
		return
	}
	m.TranscriptionFailures.WithLabelValues(endpoint, reason).Inc()
}

// RecordProviderCall records the duration of a provider call
func (m *Metrics) RecordProviderCall(durationSeconds float64) {
	if m == nil {
		return
	}
	m.ProviderDuration.Observe(durationSeconds)
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
