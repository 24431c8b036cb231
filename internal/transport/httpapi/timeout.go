package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TimeoutMiddleware enforces a per-request deadline. When the handler
// overruns and has not started writing, the client gets an explicit
// 504 instead of a connection held open behind a stuck engine.
func TimeoutMiddleware(timeout time.Duration, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			done := make(chan struct{})
			panicChan := make(chan any, 1)
			tw := &timeoutWriter{ResponseWriter: w}
			go func() {
				// Re-raise handler panics on the parent goroutine,
				// where the recovery middleware (and net/http's own
				// per-connection recover) can see them. A panic that
				// escapes a bare goroutine kills the whole process.
				defer func() {
					if p := recover(); p != nil {
						panicChan <- p
					}
				}()
				next.ServeHTTP(tw, r.WithContext(ctx))
				close(done)
			}()

			select {
			case p := <-panicChan:
				panic(p)
			case <-done:
			case <-ctx.Done():
				if tw.timeout() {
					logger.Warn("request timed out",
						zap.String("method", r.Method),
						zap.String("path", r.URL.Path),
						zap.Duration("timeout", timeout),
					)
					writeError(w, http.StatusGatewayTimeout, codeEngineTimeout, "request timeout")
				}
				select {
				case p := <-panicChan:
					panic(p)
				case <-done:
				}
			}
		})
	}
}

// timeoutWriter serializes the handler and the middleware on one
// underlying writer: once the deadline fires, late handler writes are
// dropped so the 504 is the only response on the connection.
type timeoutWriter struct {
	http.ResponseWriter
	mu       sync.Mutex
	wrote    bool
	timedOut bool
}

func (tw *timeoutWriter) WriteHeader(code int) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.timedOut {
		return
	}
	tw.wrote = true
	tw.ResponseWriter.WriteHeader(code)
}

func (tw *timeoutWriter) Write(b []byte) (int, error) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.timedOut {
		return len(b), nil
	}
	tw.wrote = true
	return tw.ResponseWriter.Write(b)
}

// timeout marks the writer as timed out. Returns true when the 504 may
// be written, i.e. the handler had not produced any output yet.
func (tw *timeoutWriter) timeout() bool {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	tw.timedOut = true
	return !tw.wrote
}
