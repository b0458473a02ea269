package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/trillhause/speech-to-text/internal/audio"
	"github.com/trillhause/speech-to-text/internal/config"
	"github.com/trillhause/speech-to-text/internal/metrics"
	"github.com/trillhause/speech-to-text/internal/provider"
)

const (
	// FormField is the multipart field the WAV upload arrives in.
	FormField = "audio"

	serviceName    = "speech-to-text"
	serviceVersion = "1.0.0"
)

// TranscriptionResponse is the success body of both transcription endpoints
type TranscriptionResponse struct {
	Transcription string `json:"transcription"`
}

// ErrorResponse is returned for rejected uploads and provider failures
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// ServerStats contains request counters for the transcription endpoints
type ServerStats struct {
	TotalRequests   uint64  `json:"total_requests"`
	SuccessRequests uint64  `json:"success_requests"`
	FailedRequests  uint64  `json:"failed_requests"`
	RejectedUploads uint64  `json:"rejected_uploads"`
	ActiveRequests  int     `json:"active_requests"`
	SuccessRate     float64 `json:"success_rate"`
	AvgProviderTime string  `json:"avg_provider_time"`
}

// HTTPServer accepts WAV uploads and forwards them to a speech provider
type HTTPServer struct {
	echo     *echo.Echo
	logger   *zap.Logger
	config   *config.Config
	provider provider.Provider
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer

	startTime time.Time

	mu              sync.RWMutex
	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	rejectedUploads uint64
	activeRequests  int
	providerTime    time.Duration
}

// NewHTTPServer creates the transcription server. gatherer serves /metrics
// and may be nil, in which case the default registry is used.
func NewHTTPServer(cfg *config.Config, p provider.Provider, logger *zap.Logger,
	m *metrics.Metrics, gatherer prometheus.Gatherer) *HTTPServer {

	if logger == nil {
		logger = zap.NewNop()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	h := &HTTPServer{
		echo:      echo.New(),
		logger:    logger,
		config:    cfg,
		provider:  p,
		metrics:   m,
		gatherer:  gatherer,
		startTime: time.Now(),
	}

	h.echo.HideBanner = true
	h.echo.HidePort = true
	h.echo.Server.ReadTimeout = cfg.Server.GetReadTimeoutDuration()
	h.echo.Server.WriteTimeout = cfg.Server.GetWriteTimeoutDuration()
	h.echo.Server.IdleTimeout = 60 * time.Second

	h.echo.Use(middleware.Recover())
	h.echo.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	h.echo.Use(middleware.CORS())
	h.echo.Use(h.requestLogger)

	h.setupRoutes()
	return h
}

// Handler exposes the router, mainly for tests
func (h *HTTPServer) Handler() http.Handler {
	return h.echo
}

func (h *HTTPServer) setupRoutes() {
	e := h.echo

	e.POST("/transcribe", h.handleTranscribe, h.withMetrics("/transcribe"))
	e.POST("/transcribe-chunk", h.handleTranscribe, h.withMetrics("/transcribe-chunk"))

	e.GET("/health", h.handleHealth, h.withMetrics("/health"))
	e.GET("/config", h.handleConfig, h.withMetrics("/config"))
	e.GET("/stats", h.handleStats, h.withMetrics("/stats"))

	// metrics scrapes are not themselves recorded
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))

	e.GET("/", h.handleRoot, h.withMetrics("/"))
}

// withMetrics records request count, duration and errors per endpoint
func (h *HTTPServer) withMetrics(endpoint string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			startTime := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			method := c.Request().Method
			h.metrics.RecordHTTPRequest(method, endpoint, strconv.Itoa(status), time.Since(startTime).Seconds())

			if status >= 400 {
				errorType := "client_error"
				if status >= 500 {
					errorType = "server_error"
				}
				h.metrics.RecordHTTPError(method, endpoint, errorType)
			}
			return nil
		}
	}
}

func (h *HTTPServer) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		startTime := time.Now()
		err := next(c)

		req := c.Request()
		h.logger.Debug("HTTP request",
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", time.Since(startTime)),
			zap.String("remote_ip", c.RealIP()),
			zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
		)
		return err
	}
}

// Start begins serving in the background
func (h *HTTPServer) Start() error {
	addr := h.config.Server.ListenAddr()
	h.logger.Info("Starting transcription HTTP server",
		zap.String("address", addr),
		zap.String("provider", h.provider.Name()),
	)

	go func() {
		if err := h.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping transcription HTTP server...")
	return h.echo.Shutdown(ctx)
}

// handleTranscribe serves /transcribe and /transcribe-chunk. Both endpoints
// accept a single canonical WAV in the "audio" form field.
func (h *HTTPServer) handleTranscribe(c echo.Context) error {
	endpoint := c.Path()
	req := c.Request()
	req.Body = http.MaxBytesReader(c.Response(), req.Body, h.config.Server.MaxUploadBytes)

	fileHeader, err := c.FormFile(FormField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return h.reject(c, endpoint, "too_large", http.StatusRequestEntityTooLarge,
				ErrorResponse{Error: "Audio file too large"})
		}
		return h.reject(c, endpoint, "missing_file", http.StatusBadRequest,
			ErrorResponse{Error: "No audio file provided"})
	}

	wav, err := readUpload(fileHeader)
	if err != nil {
		return h.reject(c, endpoint, "read_failed", http.StatusBadRequest,
			ErrorResponse{Error: "Failed to read audio file", Details: err.Error()})
	}

	if err := audio.ValidateWAV(wav); err != nil {
		return h.reject(c, endpoint, "invalid_wav", http.StatusBadRequest,
			ErrorResponse{Error: "Invalid WAV file", Details: err.Error()})
	}

	h.metrics.RecordTranscriptionRequest(endpoint, int64(len(wav)))
	h.beginRequest()

	providerStart := time.Now()
	text, err := h.provider.Transcribe(req.Context(), wav)
	elapsed := time.Since(providerStart)
	h.metrics.RecordProviderCall(elapsed.Seconds())
	h.endRequest(elapsed, err == nil)

	if err != nil {
		h.logger.Error("Transcription failed",
			zap.String("endpoint", endpoint),
			zap.String("provider", h.provider.Name()),
			zap.Int("size", len(wav)),
			zap.Error(err),
		)
		h.metrics.RecordTranscriptionFailure(endpoint, "provider_error")
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to transcribe audio",
			Details: err.Error(),
		})
	}

	h.logger.Info("Transcription completed",
		zap.String("endpoint", endpoint),
		zap.Int("size", len(wav)),
		zap.Duration("provider_time", elapsed),
		zap.Int("text_length", len(text)),
	)

	return c.JSON(http.StatusOK, TranscriptionResponse{Transcription: text})
}

func (h *HTTPServer) reject(c echo.Context, endpoint, reason string, status int, body ErrorResponse) error {
	h.mu.Lock()
	h.rejectedUploads++
	h.mu.Unlock()

	h.metrics.RecordTranscriptionFailure(endpoint, reason)
	h.logger.Warn("Rejected upload",
		zap.String("endpoint", endpoint),
		zap.String("reason", reason),
		zap.String("details", body.Details),
	)
	return c.JSON(status, body)
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (h *HTTPServer) beginRequest() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.totalRequests++
	h.activeRequests++
}

func (h *HTTPServer) endRequest(elapsed time.Duration, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.activeRequests--
	h.providerTime += elapsed
	if ok {
		h.successRequests++
	} else {
		h.failedRequests++
	}
}

// GetStats returns a snapshot of the request counters
func (h *HTTPServer) GetStats() ServerStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := ServerStats{
		TotalRequests:   h.totalRequests,
		SuccessRequests: h.successRequests,
		FailedRequests:  h.failedRequests,
		RejectedUploads: h.rejectedUploads,
		ActiveRequests:  h.activeRequests,
		AvgProviderTime: "0s",
	}
	if h.totalRequests > 0 {
		stats.SuccessRate = float64(h.successRequests) / float64(h.totalRequests)
		stats.AvgProviderTime = (h.providerTime / time.Duration(h.totalRequests)).String()
	}
	return stats
}

func (h *HTTPServer) handleHealth(c echo.Context) error {
	stats := h.GetStats()

	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    serviceName,
			"version": serviceVersion,
		},
		"components": map[string]interface{}{
			"provider": map[string]interface{}{
				"name":            h.provider.Name(),
				"total_requests":  stats.TotalRequests,
				"success_rate":    stats.SuccessRate,
				"active_requests": stats.ActiveRequests,
			},
		},
	})
}

// handleConfig returns the server-side configuration without credentials
func (h *HTTPServer) handleConfig(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"server": map[string]interface{}{
			"address":          h.config.Server.Address,
			"port":             h.config.Server.Port,
			"max_upload_bytes": h.config.Server.MaxUploadBytes,
			"read_timeout":     h.config.Server.ReadTimeout,
			"write_timeout":    h.config.Server.WriteTimeout,
		},
		"provider": map[string]interface{}{
			"name":     h.config.Provider.Name,
			"base_url": h.config.Provider.BaseURL,
			"model":    h.config.Provider.Model,
			"language": h.config.Provider.Language,
			"timeout":  h.config.Provider.Timeout,
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	})
}

func (h *HTTPServer) handleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"uptime":        time.Since(h.startTime).String(),
		"timestamp":     time.Now().UTC(),
		"transcription": h.GetStats(),
	})
}

// handleRoot lists the available endpoints
func (h *HTTPServer) handleRoot(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"service": fmt.Sprintf("%s transcription server", serviceName),
		"version": serviceVersion,
		"endpoints": map[string]interface{}{
			"GET /":                  "API documentation",
			"GET /health":            "Service health check",
			"GET /config":            "Get service configuration",
			"GET /stats":             "Get transcription statistics",
			"GET /metrics":           "Prometheus metrics",
			"POST /transcribe":       "Transcribe a complete recording (multipart field 'audio')",
			"POST /transcribe-chunk": "Transcribe one chunk of a chunked session (multipart field 'audio')",
		},
		"timestamp": time.Now().UTC(),
	})
}
