// Package httpapi is the HTTP transport for the answer relay.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mikhail-dubov/answerd/internal/domain"
	logpkg "github.com/mikhail-dubov/answerd/internal/logger"
	answeruc "github.com/mikhail-dubov/answerd/internal/usecase/answer"
	healthuc "github.com/mikhail-dubov/answerd/internal/usecase/health"
)

// Error codes returned in JSON error bodies.
const (
	codeMissingQuery      = "missing_query"
	codeEngineUnavailable = "engine_unavailable"
	codeEngineFailed      = "engine_failed"
	codeEngineEmptyOutput = "engine_empty_output"
	codeEngineTimeout     = "engine_timeout"
	codeNotFound          = "not_found"
	codeMethodNotAllowed  = "method_not_allowed"
	codeInternalError     = "internal_error"
)

// ErrorResponse is the JSON body of every non-200 response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server exposes the relay over HTTP: one answer endpoint plus the
// operational healthz/metrics pair.
type Server struct {
	answers       *answeruc.Service
	health        *healthuc.Service
	contentType   string
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates the HTTP API server. contentType is applied to
// successful answer bodies (application/json unless a legacy client
// needs the legacy text/json).
func NewServer(
	answers *answeruc.Service,
	health *healthuc.Service,
	contentType string,
	logger *zap.Logger,
) *Server {
	if contentType == "" {
		contentType = "application/json"
	}
	s := &Server{
		answers:     answers,
		health:      health,
		contentType: contentType,
		logger:      logger,
	}
	s.errorHandlers = []errorHandler{
		engineExitHandler,
		sentinelHandler(domain.ErrMissingQuery, http.StatusBadRequest, codeMissingQuery),
		sentinelHandler(domain.ErrEngineStart, http.StatusBadGateway, codeEngineUnavailable),
		sentinelHandler(domain.ErrEmptyAnswer, http.StatusBadGateway, codeEngineEmptyOutput),
		sentinelHandler(domain.ErrEngineFailed, http.StatusBadGateway, codeEngineFailed),
		sentinelHandler(context.DeadlineExceeded, http.StatusGatewayTimeout, codeEngineTimeout),
	}
	return s
}

// Register mounts all routes on the router. Every path/method pair
// outside the table gets an explicit JSON 404 or 405.
func (s *Server) Register(r chi.Router) {
	r.Get("/answer", s.GetAnswer)
	r.Get("/healthz", s.GetHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, codeNotFound, "no such endpoint")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
	})
}

// GetAnswer handles GET /answer?q=<query>.
//
// On success the engine payload is relayed verbatim: the configured
// Content-Type, a Content-Length equal to the exact payload byte
// count, then the bytes themselves, untouched.
func (s *Server) GetAnswer(w http.ResponseWriter, r *http.Request) {
	// First value wins when q is supplied more than once.
	query := r.URL.Query().Get("q")

	out, err := s.answers.Answer(r.Context(), query)
	if err != nil {
		s.handleDomainError(r.Context(), w, err)
		return
	}

	w.Header().Set("Content-Type", s.contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(out)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

// GetHealth handles GET /healthz.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrMissingQuery,
		domain.ErrEngineStart,
		domain.ErrEmptyAnswer,
		domain.ErrEngineFailed,
		context.DeadlineExceeded,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// engineExitHandler handles EngineExitError with exit code and stderr detail.
func engineExitHandler(w http.ResponseWriter, err error, msg string) bool {
	var xe *domain.EngineExitError
	if !errors.As(err, &xe) {
		return false
	}
	writeJSON(w, http.StatusBadGateway, map[string]any{
		"code":      codeEngineFailed,
		"message":   msg,
		"exit_code": xe.ExitCode,
		"detail":    xe.Stderr,
	})
	return true
}

func (s *Server) handleDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	// Request-scoped logger carries the request_id set by the
	// wide-event middleware.
	logpkg.FromContext(ctx).Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
