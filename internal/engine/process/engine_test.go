package process

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mikhail-dubov/answerd/internal/domain"
)

// writeStub creates an executable shell script standing in for the
// answering engine.
func writeStub(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func newTestEngine(command string, timeout time.Duration) *Engine {
	return New(Config{
		Command:       command,
		DataFile:      "data/data.json",
		StopwordsFile: "data/stopwords.txt",
		Timeout:       timeout,
	})
}

func TestAnswer_RelaysStdoutVerbatim(t *testing.T) {
	stub := writeStub(t, `printf '{"answer":"National Health Service"}'`)
	e := newTestEngine(stub, time.Second)

	out, err := e.Answer(context.Background(), "What is NHS")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != `{"answer":"National Health Service"}` {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestAnswer_ArgumentVectorOrder(t *testing.T) {
	// The stub prints each argv element on its own line, so a query
	// containing spaces or shell metacharacters must come back as one
	// single element.
	stub := writeStub(t, `for a in "$@"; do printf '%s\n' "$a"; done`)
	e := newTestEngine(stub, time.Second)

	query := `what is the NHS; echo "pwned" $(id)`
	out, err := e.Answer(context.Background(), query)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := strings.Split(strings.TrimRight(string(out), "\n"), "\n")
	want := []string{"data/data.json", "data/stopwords.txt", query}
	if len(lines) != len(want) {
		t.Fatalf("expected %d argv elements, got %d: %q", len(want), len(lines), lines)
	}
	for i, w := range want {
		if lines[i] != w {
			t.Errorf("argv[%d] = %q, want %q", i, lines[i], w)
		}
	}
}

func TestAnswer_FixedLeadingArgs(t *testing.T) {
	stub := writeStub(t, `printf '%s\n' "$1" "$2"`)
	e := New(Config{
		Command:       stub,
		Args:          []string{"-Dfile.encoding=UTF-8", "com.example.QuestionAnswerer"},
		DataFile:      "data/data.json",
		StopwordsFile: "data/stopwords.txt",
		Timeout:       time.Second,
	})

	out, err := e.Answer(context.Background(), "q")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != "-Dfile.encoding=UTF-8\ncom.example.QuestionAnswerer\n" {
		t.Errorf("leading args not passed first: %q", out)
	}
}

func TestAnswer_NonZeroExit(t *testing.T) {
	stub := writeStub(t, `echo "partial" ; echo "boom" >&2 ; exit 3`)
	e := newTestEngine(stub, time.Second)

	_, err := e.Answer(context.Background(), "q")
	if !errors.Is(err, domain.ErrEngineFailed) {
		t.Fatalf("expected ErrEngineFailed, got %v", err)
	}

	var exitErr *domain.EngineExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected EngineExitError, got %T", err)
	}
	if exitErr.ExitCode != 3 {
		t.Errorf("expected exit code 3, got %d", exitErr.ExitCode)
	}
	if exitErr.Stderr != "boom" {
		t.Errorf("expected stderr excerpt %q, got %q", "boom", exitErr.Stderr)
	}
}

func TestAnswer_MissingExecutable(t *testing.T) {
	e := newTestEngine(filepath.Join(t.TempDir(), "no-such-engine"), time.Second)

	_, err := e.Answer(context.Background(), "q")
	if !errors.Is(err, domain.ErrEngineStart) {
		t.Fatalf("expected ErrEngineStart, got %v", err)
	}
}

func TestAnswer_EmptyOutput(t *testing.T) {
	stub := writeStub(t, `exit 0`)
	e := newTestEngine(stub, time.Second)

	_, err := e.Answer(context.Background(), "q")
	if !errors.Is(err, domain.ErrEmptyAnswer) {
		t.Fatalf("expected ErrEmptyAnswer, got %v", err)
	}
}

func TestAnswer_Timeout(t *testing.T) {
	stub := writeStub(t, `sleep 5`)
	e := newTestEngine(stub, 100*time.Millisecond)

	start := time.Now()
	_, err := e.Answer(context.Background(), "q")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("timeout did not interrupt the child promptly")
	}
}

func TestAnswer_ContextCancelled(t *testing.T) {
	stub := writeStub(t, `sleep 5`)
	e := newTestEngine(stub, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := e.Answer(ctx, "q")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected Canceled, got %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	e := newTestEngine("sh", time.Second)
	if err := e.HealthCheck(context.Background()); err != nil {
		t.Errorf("unexpected error for sh: %v", err)
	}

	e = newTestEngine("answerd-no-such-binary", time.Second)
	if err := e.HealthCheck(context.Background()); err == nil {
		t.Error("expected error for missing binary")
	}
}
