package history

import (
	"context"
	"sync"

	"github.com/storyloom/storyloom-orchestrator/internal/domain"
)

// MemoryRecorder keeps results in memory. Used when no storage backend
// is configured and in tests.
type MemoryRecorder struct {
	mu      sync.RWMutex
	results []*domain.Result
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

func (m *MemoryRecorder) Record(ctx context.Context, res *domain.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, res)
	return nil
}

// Results returns a copy of everything recorded so far, oldest first.
func (m *MemoryRecorder) Results() []*domain.Result {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Result, len(m.results))
	copy(out, m.results)
	return out
}
