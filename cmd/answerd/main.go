package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/mikhail-dubov/answerd/internal/cache"
	cacheRedis "github.com/mikhail-dubov/answerd/internal/cache/redis"
	"github.com/mikhail-dubov/answerd/internal/config"
	"github.com/mikhail-dubov/answerd/internal/domain"
	engineOpenAI "github.com/mikhail-dubov/answerd/internal/engine/openai"
	engineProcess "github.com/mikhail-dubov/answerd/internal/engine/process"
	logpkg "github.com/mikhail-dubov/answerd/internal/logger"
	"github.com/mikhail-dubov/answerd/internal/metrics"
	"github.com/mikhail-dubov/answerd/internal/transport/httpapi"
	answeruc "github.com/mikhail-dubov/answerd/internal/usecase/answer"
	healthuc "github.com/mikhail-dubov/answerd/internal/usecase/health"
	"github.com/mikhail-dubov/answerd/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting answerd relay",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("engine_driver", cfg.Engine.Driver),
		zap.Bool("cache_enabled", cfg.Cache.Enabled),
	)

	// Register engine metrics explicitly (no init())
	metrics.RegisterEngineMetrics()

	// Build engine chain — composition root
	engine := buildEngine(cfg, logger)

	// Optional answer cache
	var cacheStore *cacheRedis.Store
	if cfg.Cache.Enabled {
		cacheStore, err = cacheRedis.NewStore(cacheRedis.Config{
			Addrs:    cfg.Cache.Addrs,
			Password: cfg.Cache.Password,
		})
		if err != nil {
			logger.Fatal("Failed to create cache store", zap.Error(err))
		}
		defer cacheStore.Close()

		readiness := time.Duration(cfg.Cache.ReadinessTimeout) * time.Second
		if err := cacheStore.WaitForReady(context.Background(), readiness); err != nil {
			logger.Fatal("Cache store not ready", zap.Error(err))
		}
		logger.Info("Connected to cache store", zap.Strings("addrs", cfg.Cache.Addrs))

		engine = cache.New(
			engine, cacheStore, cfg.Cache.KeyPrefix,
			time.Duration(cfg.Cache.TTLSec)*time.Second, logger,
		)
	}

	// Create use case services
	answerSvc := answeruc.New(engine, logger)

	// Health service — cache pinger is nil when caching is disabled.
	var cachePinger healthuc.CachePinger
	if cacheStore != nil {
		cachePinger = cacheStore
	}
	healthSvc := healthuc.New(newEngineHealthChecker(engine), cachePinger)

	// Create HTTP server
	server := httpapi.NewServer(answerSvc, healthSvc, cfg.HTTP.ContentType, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(httpapi.TimeoutMiddleware(time.Duration(cfg.HTTP.RequestTimeoutSec)*time.Second, logger))
	r.Use(metrics.Middleware())
	server.Register(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildEngine selects the answering engine driver.
func buildEngine(cfg config.Config, logger *zap.Logger) domain.Engine {
	switch cfg.Engine.Driver {
	case "process":
		return engineProcess.New(engineProcess.Config{
			Command:       cfg.Engine.Process.Command,
			Args:          cfg.Engine.Process.Args,
			DataFile:      cfg.Engine.Process.DataFile,
			StopwordsFile: cfg.Engine.Process.StopwordsFile,
			Timeout:       time.Duration(cfg.Engine.Process.TimeoutSec) * time.Second,
			MaxConcurrent: int64(cfg.Engine.Process.MaxConcurrent),
			Logger:        logger,
		})
	case "openai":
		return engineOpenAI.New(&engineOpenAI.Config{
			APIKey:       cfg.Engine.OpenAI.APIKey,
			BaseURL:      cfg.Engine.OpenAI.BaseURL,
			Model:        cfg.Engine.OpenAI.Model,
			SystemPrompt: cfg.Engine.OpenAI.SystemPrompt,
			Logger:       logger,
		})
	default:
		logger.Fatal("Unknown engine driver", zap.String("driver", cfg.Engine.Driver))
		return nil
	}
}

// engineHealthChecker wraps domain.Engine to implement health.EngineChecker.
type engineHealthChecker struct {
	engine domain.Engine
}

func newEngineHealthChecker(engine domain.Engine) *engineHealthChecker {
	return &engineHealthChecker{engine: engine}
}

func (h *engineHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.engine.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("engine health check: %w", err)
		}
	}
	return nil
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
