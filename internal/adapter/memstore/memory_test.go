package memstore

import (
	"context"
	"errors"
	"testing"

	"ragqa/internal/domain"
)

func TestMemoryIndex_AddAndSearch(t *testing.T) {
	idx := NewMemoryIndex(2)
	ctx := context.Background()

	results, err := idx.Search(ctx, domain.SearchQuery{Vector: []float32{0, 0}, K: 2})
	if err != nil || len(results) != 0 {
		t.Fatalf("expected empty search on empty index, got %v, %v", results, err)
	}

	err = idx.Add(ctx, []domain.Entry{
		{Vector: []float32{2, 0}, Text: "two"},
		{Vector: []float32{1, 0}, Text: "one"},
		{Vector: []float32{0, 1}, Text: "one-too"},
	})
	if err != nil {
		t.Fatal(err)
	}

	results, err = idx.Search(ctx, domain.SearchQuery{Vector: []float32{0, 0}, K: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 || results[0].Text != "one" || results[1].Text != "one-too" {
		t.Errorf("unexpected results %+v", results)
	}
	if idx.Count() != 3 || idx.Dimension() != 2 {
		t.Errorf("count=%d dim=%d", idx.Count(), idx.Dimension())
	}
}

func TestMemoryIndex_Errors(t *testing.T) {
	idx := NewMemoryIndex(2)
	ctx := context.Background()

	if err := idx.Add(ctx, []domain.Entry{{Vector: []float32{1}}}); !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
	if _, err := idx.Search(ctx, domain.SearchQuery{Vector: []float32{1, 1}, K: -1}); !errors.Is(err, domain.ErrInput) {
		t.Errorf("expected ErrInput, got %v", err)
	}
	if _, err := idx.DeleteTenant(ctx, ""); !errors.Is(err, domain.ErrInput) {
		t.Errorf("expected ErrInput, got %v", err)
	}
}

func TestMemoryIndex_Tenants(t *testing.T) {
	idx := NewMemoryIndex(1)
	ctx := context.Background()

	_ = idx.Add(ctx, []domain.Entry{
		{Vector: []float32{0}, Text: "x", Tenant: "t1"},
		{Vector: []float32{0}, Text: "y", Tenant: "t2"},
	})

	results, _ := idx.Search(ctx, domain.SearchQuery{Vector: []float32{0}, K: 5, Tenant: "t2"})
	if len(results) != 1 || results[0].Text != "y" {
		t.Errorf("unexpected tenant results %+v", results)
	}

	n, err := idx.DeleteTenant(ctx, "t2")
	if err != nil || n != 1 {
		t.Fatalf("expected 1 removed, got %d, %v", n, err)
	}
	results, _ = idx.Search(ctx, domain.SearchQuery{Vector: []float32{0}, K: 5})
	if len(results) != 1 || results[0].Text != "x" {
		t.Errorf("unexpected results after delete %+v", results)
	}
}
