package answer

import "context"

// Engine produces the raw answer payload for a query.
type Engine interface {
	Answer(ctx context.Context, query string) ([]byte, error)
}
