package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lexiqai/voice-console/internal/bridge"
	"github.com/lexiqai/voice-console/internal/capture"
	"github.com/lexiqai/voice-console/internal/config"
	"github.com/lexiqai/voice-console/internal/conversation"
	"github.com/lexiqai/voice-console/internal/live"
	"github.com/lexiqai/voice-console/internal/observability"
	"github.com/lexiqai/voice-console/internal/playback"
	"github.com/lexiqai/voice-console/internal/report"
	"github.com/lexiqai/voice-console/internal/resilience"
	"github.com/lexiqai/voice-console/internal/screen"
	"github.com/lexiqai/voice-console/internal/session"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("live_model", cfg.LiveModel).
		Str("voice", cfg.Voice).
		Str("store", cfg.StoreBackend).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Voice Console starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Conversation storage
	var (
		store      conversation.Store
		closeStore = func(context.Context) error { return nil }
	)
	switch cfg.StoreBackend {
	case "mongo":
		mongoStore, err := conversation.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to open session store")
		}
		store, closeStore = mongoStore, mongoStore.Close
	default:
		store = conversation.NewFileStore(cfg.StorePath)
	}

	sessions := conversation.NewManager(store, logger)
	if err := sessions.Load(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to load sessions")
	}

	// Remote service
	dialer, err := live.NewGeminiDialer(ctx, cfg.GeminiAPIKey, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create Gemini client")
	}

	retry := &resilience.RetryConfig{
		MaxAttempts:       cfg.RetryMaxAttempts,
		InitialBackoff:    time.Duration(cfg.RetryInitialBackoff) * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
	reports := report.NewGenerator(report.NewGeminiModel(dialer.Client(), cfg.ReportModel), live.DefaultSystemInstruction, retry, logger)

	// Session core and its presentation bridge
	hub := bridge.NewHub(sessions, reports, cfg.ActivityFPS, logger)
	controller := session.NewController(session.Config{
		Model:              cfg.LiveModel,
		Voice:              cfg.Voice,
		SystemInstruction:  live.DefaultSystemInstruction,
		ThinkingBudget:     cfg.ThinkingBudget,
		FrameSize:          cfg.CaptureFrameSize,
		PlaybackPeriod:     cfg.PlaybackChunk(),
		VoiceSwitchPause:   cfg.VoiceSwitchPause(),
		ScreenInterval:     cfg.ScreenPeriod(),
		ScreenWidth:        cfg.ScreenWidth,
		ScreenQuality:      cfg.ScreenQuality,
		BreakerMaxFailures: cfg.CircuitBreakerMaxFailures,
		BreakerReset:       time.Duration(cfg.CircuitBreakerResetTimeout) * time.Second,
		Retry:              retry,
	}, session.Deps{
		Dialer:  dialer,
		Mic:     capture.NewFFmpegDevice(cfg.CaptureSampleRate, cfg.CaptureFormat, cfg.CaptureDevice),
		Speaker: playback.NewFFplayOutput(),
		Screen:  screen.NewFFmpegSource(cfg.ScreenFormat, cfg.ScreenDevice),
	}, hub.Listener(), logger)
	hub.Attach(controller)
	go hub.Run(ctx)

	// Create HTTP server
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.HandleWS())

	// Health check endpoint
	mux.HandleFunc("/health", observability.HealthCheckHandler())

	// Readiness endpoint
	mux.HandleFunc("/ready", observability.ReadinessHandler(map[string]observability.HealthCheckFunc{
		"session_store": func(ctx context.Context) (bool, error) {
			if err := store.Ping(ctx); err != nil {
				return false, err
			}
			return true, nil
		},
		"gemini": func(ctx context.Context) (bool, error) {
			if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
				return false, errors.New("API key not configured")
			}
			return true, nil
		},
	}))

	// Metrics endpoint (Prometheus)
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	// Create HTTP server with timeouts. Websocket connections are hijacked
	// and unaffected by them.
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", fmt.Sprintf("ws://localhost:%s/ws", cfg.Port)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	<-ctx.Done()
	logger.Info().Msg("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// End the live session first so its last transcript is stored.
	controller.Disconnect()
	hub.Close()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := closeStore(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Failed to close session store")
	}

	logger.Info().Msg("Server exited gracefully")
}
