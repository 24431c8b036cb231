package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/mikhail-dubov/answerd/internal/domain"
	"github.com/mikhail-dubov/answerd/internal/metrics"
)

const driverName = "process"

// stderrExcerptLimit bounds how much captured stderr is carried into
// the diagnostic error.
const stderrExcerptLimit = 512

// Compile-time check: Engine implements domain.Engine.
var _ domain.Engine = (*Engine)(nil)

// Config holds the child-process engine settings.
type Config struct {
	Command       string
	Args          []string
	DataFile      string
	StopwordsFile string
	Timeout       time.Duration
	MaxConcurrent int64
	Logger        *zap.Logger
}

// Engine invokes the external question answerer as a child process per
// query, with the argument vector
//
//	command args... <data-file> <stopword-file> <query>
//
// The query is a single argv element handed straight to the kernel; no
// shell ever sees it, so shell metacharacters in it carry no meaning.
// Stdout is captured in full and relayed verbatim; stderr is kept only
// for diagnostics.
type Engine struct {
	command       string
	args          []string
	dataFile      string
	stopwordsFile string
	timeout       time.Duration
	sem           *semaphore.Weighted
	logger        *zap.Logger
}

// New creates a child-process engine.
func New(cfg Config) *Engine {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		command:       cfg.Command,
		args:          cfg.Args,
		dataFile:      cfg.DataFile,
		stopwordsFile: cfg.StopwordsFile,
		timeout:       timeout,
		sem:           semaphore.NewWeighted(maxConcurrent),
		logger:        logger,
	}
}

// Answer runs one engine invocation and returns its captured stdout.
// Blocks until the child terminates, the per-invocation timeout fires,
// or ctx is cancelled. Concurrent invocations beyond MaxConcurrent
// queue on a semaphore in arrival order.
func (e *Engine) Answer(ctx context.Context, query string) ([]byte, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire engine slot: %w", err)
	}
	defer e.sem.Release(1)

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	argv := make([]string, 0, len(e.args)+3)
	argv = append(argv, e.args...)
	argv = append(argv, e.dataFile, e.stopwordsFile, query)

	cmd := exec.CommandContext(ctx, e.command, argv...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			metrics.EngineInvocationsTotal.WithLabelValues(driverName, "timeout").Inc()
			e.logger.Warn("Engine invocation aborted",
				zap.Duration("after", duration),
				zap.Error(ctxErr),
			)
			return nil, fmt.Errorf("engine invocation aborted: %w", ctxErr)
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			metrics.EngineInvocationsTotal.WithLabelValues(driverName, "exit_error").Inc()
			excerpt := stderrExcerpt(stderr.String())
			e.logger.Warn("Engine exited with error",
				zap.Int("exit_code", exitErr.ExitCode()),
				zap.Duration("duration", duration),
				zap.String("stderr", excerpt),
			)
			return nil, domain.NewEngineExit(exitErr.ExitCode(), excerpt)
		}

		metrics.EngineInvocationsTotal.WithLabelValues(driverName, "start_error").Inc()
		return nil, fmt.Errorf("%w: %v", domain.ErrEngineStart, err)
	}

	out := stdout.Bytes()
	if len(out) == 0 {
		metrics.EngineInvocationsTotal.WithLabelValues(driverName, "empty").Inc()
		return nil, domain.ErrEmptyAnswer
	}

	metrics.EngineInvocationsTotal.WithLabelValues(driverName, "success").Inc()
	metrics.EngineInvocationDuration.WithLabelValues(driverName).Observe(duration.Seconds())

	e.logger.Debug("Engine invocation finished",
		zap.Duration("duration", duration),
		zap.Int("output_bytes", len(out)),
	)
	return out, nil
}

// HealthCheck verifies the engine command resolves to an executable.
func (e *Engine) HealthCheck(_ context.Context) error {
	if _, err := exec.LookPath(e.command); err != nil {
		return fmt.Errorf("look path %q: %w", e.command, err)
	}
	return nil
}

func stderrExcerpt(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > stderrExcerptLimit {
		s = s[:stderrExcerptLimit]
	}
	return s
}
