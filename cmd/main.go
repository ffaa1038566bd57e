package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/hanifka/lentera/adapters/capture"
	"github.com/hanifka/lentera/adapters/gemini"
	adaptermemory "github.com/hanifka/lentera/adapters/memory"
	adaptermongo "github.com/hanifka/lentera/adapters/mongo"
	"github.com/hanifka/lentera/adapters/playback"
	"github.com/hanifka/lentera/adapters/stt"
	"github.com/hanifka/lentera/domain/entities"
	"github.com/hanifka/lentera/domain/repositories"
	"github.com/hanifka/lentera/internal/api"
	"github.com/hanifka/lentera/internal/audio"
	"github.com/hanifka/lentera/internal/quality"
	"github.com/hanifka/lentera/internal/session"
	"github.com/hanifka/lentera/internal/websocket"
	"github.com/hanifka/lentera/usecase"
)

const defaultSystemInstruction = "You are Lentera, a patient one-on-one tutor. " +
	"The student talks to you over live audio while their camera shows you their workspace. " +
	"Explain step by step, check understanding often, and keep answers short enough to say out loud."

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found, using environment as-is")
	}

	// Create Echo instance
	e := echo.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Realtime channel: real Gemini Live when an API key is configured,
	// otherwise a scripted mock so the server stays runnable in development.
	var channel repositories.RealtimeChannel
	var liveChannel *gemini.LiveChannel
	if os.Getenv("GEMINI_API_KEY") != "" {
		var err error
		liveChannel, err = gemini.NewLiveChannel(logger)
		if err != nil {
			logger.Fatal("Failed to initialize Gemini Live channel", zap.Error(err))
		}
		channel = liveChannel
	} else {
		logger.Warn("GEMINI_API_KEY not set, using mock realtime channel")
		channel = gemini.NewMockChannel()
	}

	// Media capture: ffmpeg when present, synthetic devices otherwise.
	var media repositories.MediaCapture
	if ffmpegCapture, err := capture.NewFFmpegCapture(logger); err == nil {
		media = ffmpegCapture
	} else {
		logger.Warn("ffmpeg unavailable, using mock capture devices", zap.Error(err))
		media = capture.NewMockCapture()
	}

	// Playback: ffplay when present, otherwise discard inbound audio.
	var sink audio.Sink
	inboundRate := envInt("INBOUND_SAMPLE_RATE", 24000)
	if ffplaySink, err := playback.NewFFPlaySink(inboundRate, 1, logger); err == nil {
		sink = ffplaySink
	} else {
		logger.Warn("ffplay unavailable", zap.Error(err))
		sink = playback.NewNullSink(logger)
	}

	// Network telemetry is optional; without it the quality controller
	// stays on the manual cadence.
	var telemetry repositories.NetworkTelemetry
	if endpoint := os.Getenv("TELEMETRY_PROBE_URL"); endpoint != "" {
		telemetry = quality.NewHTTPProber(endpoint, envFloat("TELEMETRY_DOWNLINK_MBPS", 0))
	}

	// Local speech-to-text covers the user side when service-side
	// transcription is turned off.
	var transcriber repositories.Transcriber
	transcribeUser := envBool("TRANSCRIBE_USER", true)
	if !transcribeUser {
		if os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") == "" {
			logger.Warn("TRANSCRIBE_USER disabled but GOOGLE_APPLICATION_CREDENTIALS not set, user turns will be untranscribed")
		} else {
			transcriber = stt.NewGoogleTranscriber(logger)
		}
	}

	// Session store: MongoDB when reachable, in-memory otherwise.
	var sessions repositories.SessionRepository
	var mongoClient *adaptermongo.Client
	if client, err := adaptermongo.NewClient(logger); err == nil {
		mongoClient = client
		sessions = adaptermongo.NewSessionRepository(client.Database)
	} else {
		logger.Warn("MongoDB unavailable, session history is in-memory only", zap.Error(err))
		sessions = adaptermemory.NewSessionRepository()
	}

	// Summaries need the real Gemini client.
	var summarizer repositories.Summarizer
	if liveChannel != nil {
		summarizer = gemini.NewSummarizer(liveChannel, logger)
	}

	// Initialize WebSocket hub. The quality closure resolves against the
	// orchestrator assigned below; the hub only calls it per status frame.
	var orch *session.Orchestrator
	hub := websocket.NewHub(func() entities.QualityState {
		if orch == nil {
			return entities.QualityState{}
		}
		return orch.Quality()
	}, logger)
	go hub.Run()

	orch, err := session.NewOrchestrator(session.Config{
		Model:                 envString("GEMINI_LIVE_MODEL", "gemini-2.0-flash-live-001"),
		SystemInstruction:     envString("SYSTEM_INSTRUCTION", defaultSystemInstruction),
		VoiceName:             envString("VOICE_NAME", "Aoede"),
		Language:              envString("LANGUAGE_CODE", "en-US"),
		SampleRate:            envInt("CAPTURE_SAMPLE_RATE", 16000),
		InboundSampleRate:     inboundRate,
		CameraDevice:          os.Getenv("CAMERA_DEVICE"),
		CameraEnabled:         envBool("CAMERA_ENABLED", true),
		TranscribeUser:        transcribeUser,
		TranscribeAgent:       envBool("TRANSCRIBE_AGENT", true),
		TelemetryPollInterval: envDuration("TELEMETRY_POLL_INTERVAL", 10*time.Second),
	}, session.Dependencies{
		Channel:     channel,
		Capture:     media,
		Sink:        sink,
		Telemetry:   telemetry,
		Transcriber: transcriber,
		Publisher:   hub,
		Logger:      logger,
	})
	if err != nil {
		logger.Fatal("Failed to initialize session orchestrator", zap.Error(err))
	}
	orch.RegisterDiagramTool(hub)

	// Initialize usecase services
	historyService := usecase.NewHistoryService(sessions, summarizer, logger)
	retention := usecase.NewRetentionService(historyService, envDuration("SESSION_RETENTION", 0), logger)
	retention.Start()

	// Initialize API routes
	api.NewServer(orch, historyService, hub, logger).InitRoutes(e)

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	go func() {
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("port", port))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Close out a live session before the process goes away so its
	// transcript is not lost.
	if orch.State() != session.StateDisconnected {
		sessionID := orch.SessionID()
		transcript := orch.Transcript()
		orch.Stop()
		if _, err := historyService.SaveConversation(ctx, sessionID, transcript); err != nil {
			logger.Error("Failed to save session during shutdown", zap.Error(err))
		}
	}
	retention.Stop()

	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}
	if mongoClient != nil {
		mongoClient.Close(ctx)
	}

	logger.Info("Server exited")
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
