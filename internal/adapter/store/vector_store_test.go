package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"ragqa/internal/domain"
)

func openTestIndex(t *testing.T, dim int) (*BoltIndex, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := OpenIndex(path, dim)
	if err != nil {
		t.Fatalf("failed to open index: %v", err)
	}
	return idx, path
}

func entry(text string, v ...float32) domain.Entry {
	return domain.Entry{Vector: v, Text: text}
}

func TestBoltIndex_SearchEmpty(t *testing.T) {
	idx, _ := openTestIndex(t, 2)
	defer idx.Close()

	results, err := idx.Search(context.Background(), domain.SearchQuery{Vector: []float32{1, 0}, K: 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}

func TestBoltIndex_SearchOrderingAndBound(t *testing.T) {
	idx, _ := openTestIndex(t, 2)
	defer idx.Close()
	ctx := context.Background()

	err := idx.Add(ctx, []domain.Entry{
		entry("far", 3, 0),
		entry("near", 1, 0),
		entry("tie", 0, 1),
		entry("mid", 2, 0),
	})
	if err != nil {
		t.Fatal(err)
	}

	results, err := idx.Search(ctx, domain.SearchQuery{Vector: []float32{0, 0}, K: 3})
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"near", "tie", "mid"}
	if len(results) != len(want) {
		t.Fatalf("expected %d results, got %d", len(want), len(results))
	}
	for i, r := range results {
		if r.Text != want[i] {
			t.Errorf("result %d: expected %q, got %q", i, want[i], r.Text)
		}
		if i > 0 && r.Distance < results[i-1].Distance {
			t.Errorf("results not ascending at %d", i)
		}
	}
	if results[2].Distance != 4 {
		t.Errorf("expected squared distance 4, got %v", results[2].Distance)
	}

	results, _ = idx.Search(ctx, domain.SearchQuery{Vector: []float32{0, 0}, K: 10})
	if len(results) != 4 {
		t.Errorf("expected k capped at 4, got %d", len(results))
	}
}

func TestBoltIndex_InvalidK(t *testing.T) {
	idx, _ := openTestIndex(t, 1)
	defer idx.Close()

	_, err := idx.Search(context.Background(), domain.SearchQuery{Vector: []float32{0}, K: 0})
	if !errors.Is(err, domain.ErrInput) {
		t.Errorf("expected ErrInput, got %v", err)
	}
}

func TestBoltIndex_DimensionMismatch(t *testing.T) {
	idx, _ := openTestIndex(t, 3)
	defer idx.Close()
	ctx := context.Background()

	err := idx.Add(ctx, []domain.Entry{entry("ok", 1, 2, 3), entry("bad", 1, 2)})
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	if idx.Count() != 0 {
		t.Errorf("expected nothing added, got %d", idx.Count())
	}

	_, err = idx.Search(ctx, domain.SearchQuery{Vector: []float32{1}, K: 1})
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch on search, got %v", err)
	}
}

func TestBoltIndex_PersistAndReload(t *testing.T) {
	idx, path := openTestIndex(t, 2)
	ctx := context.Background()

	entries := []domain.Entry{
		{Vector: []float32{0.1, 0.2}, Text: "birinci", Metadata: map[string]string{domain.MetaSource: "a.txt"}},
		{Vector: []float32{0.3, 0.4}, Text: "ikinci", Tenant: "acme"},
	}
	if err := idx.Add(ctx, entries[:1]); err != nil {
		t.Fatal(err)
	}
	if err := idx.Add(ctx, entries[1:]); err != nil {
		t.Fatal(err)
	}

	query := domain.SearchQuery{Vector: []float32{0.2, 0.2}, K: 2}
	before, err := idx.Search(ctx, query)
	if err != nil {
		t.Fatal(err)
	}
	idx.Close()

	reopened, err := OpenIndex(path, 2)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	if reopened.Count() != 2 {
		t.Fatalf("expected 2 entries after reload, got %d", reopened.Count())
	}
	after, err := reopened.Search(ctx, query)
	if err != nil {
		t.Fatal(err)
	}
	for i := range before {
		if before[i].Text != after[i].Text || before[i].Distance != after[i].Distance {
			t.Errorf("result %d differs after reload: %+v vs %+v", i, before[i], after[i])
		}
	}
	if after[0].Metadata[domain.MetaSource] != "a.txt" && after[1].Metadata[domain.MetaSource] != "a.txt" {
		t.Errorf("metadata lost after reload: %+v", after)
	}
}

func TestBoltIndex_ReopenDimension(t *testing.T) {
	idx, path := openTestIndex(t, 4)
	idx.Close()

	if _, err := OpenIndex(path, 8); !errors.Is(err, domain.ErrPersistence) {
		t.Errorf("expected ErrPersistence for different dimension, got %v", err)
	}

	adopted, err := OpenIndex(path, 0)
	if err != nil {
		t.Fatalf("expected persisted dimension to be adopted: %v", err)
	}
	defer adopted.Close()
	if adopted.Dimension() != 4 {
		t.Errorf("expected dimension 4, got %d", adopted.Dimension())
	}
}

func TestOpenIndex_NewWithoutDimension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	if _, err := OpenIndex(path, 0); !errors.Is(err, domain.ErrInput) {
		t.Errorf("expected ErrInput, got %v", err)
	}
}

func TestBoltIndex_FailedWriteRollsBack(t *testing.T) {
	idx, _ := openTestIndex(t, 1)
	ctx := context.Background()

	if err := idx.Add(ctx, []domain.Entry{entry("kept", 1)}); err != nil {
		t.Fatal(err)
	}

	// A closed database makes every write transaction fail.
	idx.db.Close()

	err := idx.Add(ctx, []domain.Entry{entry("lost", 2)})
	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if idx.Count() != 1 {
		t.Errorf("expected count rolled back to 1, got %d", idx.Count())
	}

	results, err := idx.Search(ctx, domain.SearchQuery{Vector: []float32{2}, K: 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Text != "kept" {
		t.Errorf("unexpected results after rollback: %+v", results)
	}
}

func TestBoltIndex_FailedDeleteRollsBack(t *testing.T) {
	idx, _ := openTestIndex(t, 1)
	ctx := context.Background()

	err := idx.Add(ctx, []domain.Entry{
		{Vector: []float32{0}, Text: "a-0", Tenant: "a"},
		{Vector: []float32{1}, Text: "b-1", Tenant: "b"},
		{Vector: []float32{2}, Text: "a-2", Tenant: "a"},
	})
	if err != nil {
		t.Fatal(err)
	}

	idx.db.Close()

	if _, err := idx.DeleteTenant(ctx, "a"); !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if idx.Count() != 3 {
		t.Errorf("expected all 3 entries kept, got %d", idx.Count())
	}

	results, err := idx.Search(ctx, domain.SearchQuery{Vector: []float32{0}, K: 5})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"a-0", "b-1", "a-2"}
	if len(results) != len(want) {
		t.Fatalf("expected %d results after rollback, got %+v", len(want), results)
	}
	for i, r := range results {
		if r.Text != want[i] || r.Distance != float64(i*i) {
			t.Errorf("result %d = %q at %v, want %q at %d", i, r.Text, r.Distance, want[i], i*i)
		}
	}
}

func TestBoltIndex_CancelledContext(t *testing.T) {
	idx, _ := openTestIndex(t, 1)
	defer idx.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := idx.Add(ctx, []domain.Entry{entry("x", 1)}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if idx.Count() != 0 {
		t.Errorf("expected nothing added, got %d", idx.Count())
	}
}

func TestBoltIndex_TenantIsolation(t *testing.T) {
	idx, path := openTestIndex(t, 1)
	ctx := context.Background()

	err := idx.Add(ctx, []domain.Entry{
		{Vector: []float32{0}, Text: "a-0", Tenant: "a"},
		{Vector: []float32{1}, Text: "b-1", Tenant: "b"},
		{Vector: []float32{2}, Text: "a-2", Tenant: "a"},
	})
	if err != nil {
		t.Fatal(err)
	}

	results, _ := idx.Search(ctx, domain.SearchQuery{Vector: []float32{1}, K: 3, Tenant: "a"})
	if len(results) != 2 {
		t.Fatalf("expected 2 results for tenant a, got %d", len(results))
	}
	for _, r := range results {
		if r.Text == "b-1" {
			t.Error("tenant b leaked into tenant a search")
		}
	}

	removed, err := idx.DeleteTenant(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if removed != 2 || idx.Count() != 1 {
		t.Errorf("expected 2 removed and 1 left, got %d and %d", removed, idx.Count())
	}
	idx.Close()

	reopened, err := OpenIndex(path, 1)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	results, _ = reopened.Search(ctx, domain.SearchQuery{Vector: []float32{0}, K: 5})
	if len(results) != 1 || results[0].Text != "b-1" {
		t.Errorf("unexpected results after delete and reload: %+v", results)
	}
}

func TestBoltIndex_ConcurrentAddAndSearch(t *testing.T) {
	idx, _ := openTestIndex(t, 2)
	defer idx.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				e := entry(fmt.Sprintf("w%d-%d", w, i), float32(w), float32(i))
				if err := idx.Add(ctx, []domain.Entry{e}); err != nil {
					t.Errorf("add failed: %v", err)
					return
				}
			}
		}(w)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				if _, err := idx.Search(ctx, domain.SearchQuery{Vector: []float32{1, 1}, K: 3}); err != nil {
					t.Errorf("search failed: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if idx.Count() != 40 {
		t.Errorf("expected 40 entries, got %d", idx.Count())
	}
}
