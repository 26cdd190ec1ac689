package stylestore

import (
	"context"
	"sync"

	"inkpost/internal/domain"
)

// MemoryStore keeps the style table in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	table domain.StyleTable
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(context.Context) (domain.StyleTable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.table) == 0 {
		return nil, domain.ErrNoStyleTable
	}
	return copyTable(s.table), nil
}

func (s *MemoryStore) Replace(_ context.Context, table domain.StyleTable) error {
	next := copyTable(table)
	s.mu.Lock()
	s.table = next
	s.mu.Unlock()
	return nil
}

func copyTable(table domain.StyleTable) domain.StyleTable {
	out := make(domain.StyleTable, len(table))
	for k, v := range table {
		out[k] = v
	}
	return out
}
