package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingQuery signals a request without the q parameter.
	ErrMissingQuery = errors.New("missing query parameter")
	// ErrEngineStart signals that the engine process could not be started.
	ErrEngineStart = errors.New("engine failed to start")
	// ErrEngineFailed signals an engine invocation that ran but did not succeed.
	ErrEngineFailed = errors.New("engine invocation failed")
	// ErrEmptyAnswer signals an engine that terminated successfully without output.
	ErrEmptyAnswer = errors.New("engine produced no output")
)

// EngineExitError wraps ErrEngineFailed with the child's exit code and
// captured stderr.
type EngineExitError struct {
	ExitCode int
	Stderr   string
}

func (e *EngineExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s: exit status %d", ErrEngineFailed.Error(), e.ExitCode)
	}
	return fmt.Sprintf("%s: exit status %d: %s", ErrEngineFailed.Error(), e.ExitCode, e.Stderr)
}

func (e *EngineExitError) Unwrap() error { return ErrEngineFailed }

// NewEngineExit creates an engine exit error.
func NewEngineExit(exitCode int, stderr string) error {
	return &EngineExitError{ExitCode: exitCode, Stderr: stderr}
}
