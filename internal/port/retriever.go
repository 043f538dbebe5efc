package port

import (
	"context"

	"ragqa/internal/domain"
)

// Searcher fetches ranked candidates for a question.
type Searcher interface {
	Search(ctx context.Context, tenant, question string, k int) ([]domain.SearchResult, error)
}
