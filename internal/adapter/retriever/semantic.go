package retriever

import (
	"context"
	"fmt"
	"strings"

	"ragqa/internal/domain"
	"ragqa/internal/port"
)

// SemanticRetriever embeds a question and asks the vector index for its
// nearest entries.
type SemanticRetriever struct {
	index    port.VectorIndex
	embedder port.Embedder
}

func NewSemanticRetriever(index port.VectorIndex, embedder port.Embedder) *SemanticRetriever {
	return &SemanticRetriever{
		index:    index,
		embedder: embedder,
	}
}

// Search returns up to k candidates for question within tenant. A blank
// question or an empty index yields no candidates without calling the embedder.
func (r *SemanticRetriever) Search(ctx context.Context, tenant, question string, k int) ([]domain.SearchResult, error) {
	if strings.TrimSpace(question) == "" || r.index.Count() == 0 {
		return []domain.SearchResult{}, nil
	}

	embeddings, err := r.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(embeddings) != 1 {
		return nil, fmt.Errorf("%w: embedder returned %d vectors for one question", domain.ErrUpstream, len(embeddings))
	}

	results, err := r.index.Search(ctx, domain.SearchQuery{
		Vector: embeddings[0],
		K:      k,
		Tenant: tenant,
	})
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	return results, nil
}
