package answer

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/mikhail-dubov/answerd/internal/domain"
)

// Service relays questions to the answering engine. The payload is
// opaque: it is returned to the transport byte-for-byte, with no
// parsing or validation.
type Service struct {
	engine Engine
	group  singleflight.Group
	logger *zap.Logger
}

// New creates a Service.
func New(engine Engine, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{engine: engine, logger: logger}
}

// Answer validates the query and returns the engine's raw payload.
// Identical queries in flight at the same time share one engine
// invocation: the engine computes deterministically per query, so the
// duplicates would only burn a process launch each.
func (s *Service) Answer(ctx context.Context, query string) ([]byte, error) {
	if query == "" {
		return nil, domain.ErrMissingQuery
	}

	// The invocation is shared by every caller in the flight, so it
	// must not die with whichever caller happened to start it: detach
	// it from the leader's cancellation and let the engine's own
	// timeout bound it.
	v, err, shared := s.group.Do(query, func() (interface{}, error) {
		return s.engine.Answer(context.WithoutCancel(ctx), query)
	})
	if err != nil {
		return nil, fmt.Errorf("answer query: %w", err)
	}

	if shared {
		s.logger.Debug("Answer shared with concurrent identical query", zap.String("query", query))
	}

	out, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected singleflight result type %T", v)
	}
	return out, nil
}
