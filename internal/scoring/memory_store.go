package scoring

import (
	"context"
	"sync"

	"github.com/mbd888/fraudsight/internal/explain"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu       sync.RWMutex
	analyses []*Analysis
}

// NewMemoryStore creates an in-memory analysis store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Record(ctx context.Context, analysis *Analysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analyses = append(s.analyses, copyAnalysis(analysis))
	return nil
}

func (s *MemoryStore) ListRecent(ctx context.Context, limit int) ([]*Analysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.analyses) == 0 {
		return nil, nil
	}

	// Most recent first, up to limit
	start := len(s.analyses) - limit
	if start < 0 {
		start = 0
	}
	result := make([]*Analysis, 0, len(s.analyses)-start)
	for i := len(s.analyses) - 1; i >= start; i-- {
		result = append(result, copyAnalysis(s.analyses[i]))
	}
	return result, nil
}

func copyAnalysis(a *Analysis) *Analysis {
	c := *a
	c.RiskFactors = append([]string(nil), a.RiskFactors...)
	c.Attributions = append([]explain.Attribution(nil), a.Attributions...)
	return &c
}
