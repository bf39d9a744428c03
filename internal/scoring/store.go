package scoring

import "context"

// Store persists finished analyses for audit and review. Persistence is
// fire-and-forget: the engine never fails a batch on a store error.
type Store interface {
	Record(ctx context.Context, analysis *Analysis) error
	ListRecent(ctx context.Context, limit int) ([]*Analysis, error)
}
