package health

import "context"

// CachePinger checks cache store availability.
type CachePinger interface {
	Ping(ctx context.Context) error
}

// EngineChecker checks answering engine availability.
type EngineChecker interface {
	HealthCheck(ctx context.Context) error
}
