package domain

import "context"

// Engine produces the raw answer payload for a query. Implementations
// may launch a child process per call or keep a persistent worker; the
// contract is the same either way, so the invocation strategy can be
// swapped without touching callers.
type Engine interface {
	Answer(ctx context.Context, query string) ([]byte, error)
}

// HealthChecker is implemented by engines that can verify their
// collaborator is reachable without answering a query.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
