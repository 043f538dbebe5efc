package port

import (
	"context"

	"ragqa/internal/domain"
)

// VectorIndex stores entries and answers nearest-neighbour queries.
type VectorIndex interface {
	// Add appends entries in order. It returns only after the new state is durable.
	Add(ctx context.Context, entries []domain.Entry) error

	// Search returns up to q.K entries ordered by ascending distance.
	Search(ctx context.Context, q domain.SearchQuery) ([]domain.SearchResult, error)

	// Count returns the number of stored entries.
	Count() int

	// Dimension returns the fixed vector dimension.
	Dimension() int
}

// TenantDeleter is implemented by indexes that support per-tenant removal.
type TenantDeleter interface {
	DeleteTenant(ctx context.Context, tenant string) (int, error)
}
