package memstore

import (
	"context"
	"fmt"
	"sync"

	"ragqa/internal/adapter/index"
	"ragqa/internal/domain"
)

// MemoryIndex is a vector index without persistence. It backs ephemeral
// sessions and tests.
type MemoryIndex struct {
	mu      sync.RWMutex
	flat    *index.FlatL2
	entries []domain.Entry
}

func NewMemoryIndex(dim int) *MemoryIndex {
	return &MemoryIndex{flat: index.NewFlatL2(dim)}
}

func (s *MemoryIndex) Add(ctx context.Context, entries []domain.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	vectors := make([][]float32, len(entries))
	for i, e := range entries {
		if len(e.Vector) != s.flat.Dim() {
			return fmt.Errorf("%w: entry %d has %d components, index has %d", domain.ErrDimensionMismatch, i, len(e.Vector), s.flat.Dim())
		}
		vectors[i] = e.Vector
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.flat.Add(vectors); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDimensionMismatch, err)
	}
	for _, e := range entries {
		e.Vector = nil
		s.entries = append(s.entries, e)
	}
	return nil
}

func (s *MemoryIndex) Search(ctx context.Context, q domain.SearchQuery) ([]domain.SearchResult, error) {
	if q.K <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", domain.ErrInput, q.K)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(q.Vector) != s.flat.Dim() {
		return nil, fmt.Errorf("%w: query has %d components, index has %d", domain.ErrDimensionMismatch, len(q.Vector), s.flat.Dim())
	}

	var allow func(int) bool
	if q.Tenant != "" {
		allow = func(pos int) bool { return s.entries[pos].Tenant == q.Tenant }
	}
	hits, err := s.flat.Search(q.Vector, q.K, allow)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDimensionMismatch, err)
	}

	results := make([]domain.SearchResult, len(hits))
	for i, h := range hits {
		e := s.entries[h.Pos]
		results[i] = domain.SearchResult{Text: e.Text, Distance: h.Distance, Metadata: e.Metadata}
	}
	return results, nil
}

func (s *MemoryIndex) DeleteTenant(ctx context.Context, tenant string) (int, error) {
	if tenant == "" {
		return 0, fmt.Errorf("%w: tenant is required", domain.ErrInput)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.entries
	kept := make([]domain.Entry, 0, len(old))
	for _, e := range old {
		if e.Tenant != tenant {
			kept = append(kept, e)
		}
	}
	s.flat.Rebuild(func(pos int) bool { return old[pos].Tenant != tenant })
	s.entries = kept
	return len(old) - len(kept), nil
}

func (s *MemoryIndex) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *MemoryIndex) Dimension() int {
	return s.flat.Dim()
}
