package qdrant

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"ragqa/internal/adapter/embedding"
	"ragqa/internal/adapter/retriever"
	"ragqa/internal/domain"
)

type fakePoint struct {
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

// fakeQdrant implements the handful of REST endpoints the index uses.
type fakeQdrant struct {
	mu      sync.Mutex
	size    int
	created bool
	points  []fakePoint
	fail    bool
}

func matches(p fakePoint, filter map[string]any) bool {
	if filter == nil {
		return true
	}
	for _, c := range filter["must"].([]any) {
		cond := c.(map[string]any)
		want := cond["match"].(map[string]any)["value"]
		if p.Payload[cond["key"].(string)] != want {
			return false
		}
	}
	return true
}

func (f *fakeQdrant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fail {
		http.Error(w, "boom", http.StatusInternalServerError)
		return
	}

	var body map[string]any
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	filter, _ := body["filter"].(map[string]any)
	path := strings.TrimPrefix(r.URL.Path, "/collections/test")

	switch {
	case r.Method == http.MethodGet && path == "":
		if !f.created {
			http.Error(w, "missing", http.StatusNotFound)
			return
		}
		writeResult(w, map[string]any{"config": map[string]any{"params": map[string]any{"vectors": map[string]any{"size": f.size}}}})

	case r.Method == http.MethodPut && path == "":
		vectors := body["vectors"].(map[string]any)
		if vectors["distance"] != "Euclid" {
			http.Error(w, "unexpected distance", http.StatusBadRequest)
			return
		}
		f.size = int(vectors["size"].(float64))
		f.created = true
		writeResult(w, true)

	case r.Method == http.MethodPut && path == "/points":
		raw, _ := json.Marshal(body["points"])
		var pts []fakePoint
		_ = json.Unmarshal(raw, &pts)
		f.points = append(f.points, pts...)
		writeResult(w, map[string]any{"status": "completed"})

	case r.Method == http.MethodPost && path == "/points/search":
		raw, _ := json.Marshal(body["vector"])
		var q []float32
		_ = json.Unmarshal(raw, &q)
		type hit struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		}
		var hits []hit
		for _, p := range f.points {
			if !matches(p, filter) {
				continue
			}
			var sum float64
			for i := range q {
				d := float64(q[i]) - float64(p.Vector[i])
				sum += d * d
			}
			hits = append(hits, hit{Score: math.Sqrt(sum), Payload: p.Payload})
		}
		sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score < hits[j].Score })
		if limit := int(body["limit"].(float64)); len(hits) > limit {
			hits = hits[:limit]
		}
		writeResult(w, hits)

	case r.Method == http.MethodPost && path == "/points/count":
		n := 0
		for _, p := range f.points {
			if matches(p, filter) {
				n++
			}
		}
		writeResult(w, map[string]any{"count": n})

	case r.Method == http.MethodPost && path == "/points/delete":
		kept := f.points[:0]
		for _, p := range f.points {
			if !matches(p, filter) {
				kept = append(kept, p)
			}
		}
		f.points = kept
		writeResult(w, map[string]any{"status": "completed"})

	default:
		http.Error(w, "unexpected "+r.Method+" "+r.URL.Path, http.StatusNotFound)
	}
}

func writeResult(w http.ResponseWriter, result any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"result": result, "status": "ok"})
}

func openTest(t *testing.T, fake *fakeQdrant, dim int) (*Index, error) {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return Open(context.Background(), Config{URL: srv.URL, Collection: "test"}, dim)
}

func TestIndex_AddSearch(t *testing.T) {
	fake := &fakeQdrant{}
	idx, err := openTest(t, fake, 2)
	if err != nil {
		t.Fatal(err)
	}
	fake.mu.Lock()
	created, size := fake.created, fake.size
	fake.mu.Unlock()
	if !created || size != 2 {
		t.Fatalf("collection not created: created=%v size=%d", created, size)
	}

	ctx := context.Background()
	err = idx.Add(ctx, []domain.Entry{
		{Vector: []float32{0, 0}, Text: "origin"},
		{Vector: []float32{3, 4}, Text: "far"},
		{Vector: []float32{1, 0}, Text: "near"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if idx.Count() != 3 {
		t.Errorf("expected count 3, got %d", idx.Count())
	}

	results, err := idx.Search(ctx, domain.SearchQuery{Vector: []float32{0, 0}, K: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 || results[0].Text != "origin" || results[1].Text != "near" {
		t.Fatalf("unexpected results %+v", results)
	}
	if results[1].Distance != 1 {
		t.Errorf("expected squared distance 1, got %v", results[1].Distance)
	}

	results, _ = idx.Search(ctx, domain.SearchQuery{Vector: []float32{0, 0}, K: 3})
	if math.Abs(results[2].Distance-25) > 1e-9 {
		t.Errorf("expected squared distance 25, got %v", results[2].Distance)
	}
}

func TestIndex_Validation(t *testing.T) {
	idx, err := openTest(t, &fakeQdrant{}, 2)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := idx.Add(ctx, []domain.Entry{{Vector: []float32{1}}}); !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
	if _, err := idx.Search(ctx, domain.SearchQuery{Vector: []float32{1, 2}, K: 0}); !errors.Is(err, domain.ErrInput) {
		t.Errorf("expected ErrInput, got %v", err)
	}
	if _, err := idx.Search(ctx, domain.SearchQuery{Vector: []float32{1}, K: 1}); !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
	if _, err := idx.DeleteTenant(ctx, ""); !errors.Is(err, domain.ErrInput) {
		t.Errorf("expected ErrInput, got %v", err)
	}
}

func TestOpen_DimensionMismatch(t *testing.T) {
	fake := &fakeQdrant{created: true, size: 3}
	if _, err := openTest(t, fake, 2); !errors.Is(err, domain.ErrPersistence) {
		t.Errorf("expected ErrPersistence, got %v", err)
	}
}

func TestIndex_Tenants(t *testing.T) {
	fake := &fakeQdrant{}
	idx, err := openTest(t, fake, 2)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	_ = idx.Add(ctx, []domain.Entry{
		{Vector: []float32{0, 0}, Text: "a1", Tenant: "a"},
		{Vector: []float32{1, 1}, Text: "b1", Tenant: "b"},
		{Vector: []float32{2, 2}, Text: "b2", Tenant: "b"},
	})

	results, err := idx.Search(ctx, domain.SearchQuery{Vector: []float32{0, 0}, K: 5, Tenant: "b"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 || results[0].Text != "b1" {
		t.Errorf("unexpected tenant results %+v", results)
	}

	n, err := idx.DeleteTenant(ctx, "b")
	if err != nil || n != 2 {
		t.Fatalf("expected 2 deleted, got %d, %v", n, err)
	}
	fake.mu.Lock()
	remote := len(fake.points)
	fake.mu.Unlock()
	if idx.Count() != 1 || remote != 1 {
		t.Errorf("expected 1 point left, got %d/%d", idx.Count(), remote)
	}

	// Reopening picks up the remote count.
	reopened, err := Open(ctx, Config{URL: idx.url, Collection: "test"}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if reopened.Count() != 1 {
		t.Errorf("expected reopened count 1, got %d", reopened.Count())
	}
}

func TestIndex_CountSeesOtherWriters(t *testing.T) {
	fake := &fakeQdrant{}
	reader, err := openTest(t, fake, 2)
	if err != nil {
		t.Fatal(err)
	}
	if reader.Count() != 0 {
		t.Fatalf("expected empty collection, got %d", reader.Count())
	}

	ctx := context.Background()
	writer, err := Open(ctx, Config{URL: reader.url, Collection: "test"}, 2)
	if err != nil {
		t.Fatal(err)
	}
	err = writer.Add(ctx, []domain.Entry{
		{Vector: []float32{0, 0}, Text: "ilk"},
		{Vector: []float32{1, 1}, Text: "ikinci"},
	})
	if err != nil {
		t.Fatal(err)
	}

	if reader.Count() != 2 {
		t.Errorf("expected reader to see 2 points, got %d", reader.Count())
	}

	results, err := retriever.NewSemanticRetriever(reader, embedding.NewMockEmbedder(2)).Search(ctx, "", "kim?", 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Errorf("expected 2 candidates from the shared collection, got %+v", results)
	}
}

func TestIndex_SeqFollowsInsertionOrder(t *testing.T) {
	fake := &fakeQdrant{}
	idx, err := openTest(t, fake, 1)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	for _, batch := range [][]domain.Entry{
		{{Vector: []float32{1}, Text: "bir"}, {Vector: []float32{1}, Text: "iki"}},
		{{Vector: []float32{1}, Text: "üç"}},
	} {
		if err := idx.Add(ctx, batch); err != nil {
			t.Fatal(err)
		}
	}

	fake.mu.Lock()
	var seqs []float64
	for _, p := range fake.points {
		seqs = append(seqs, p.Payload["seq"].(float64))
	}
	fake.mu.Unlock()
	for i := 1; i < len(seqs); i++ {
		if seqs[i] <= seqs[i-1] {
			t.Errorf("seq must grow with every insert, got %v", seqs)
		}
	}

	results, err := idx.Search(ctx, domain.SearchQuery{Vector: []float32{1}, K: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 || results[0].Text != "bir" || results[1].Text != "iki" || results[2].Text != "üç" {
		t.Errorf("ties must keep insertion order, got %+v", results)
	}
}

func TestIndex_ServerFailure(t *testing.T) {
	fake := &fakeQdrant{}
	idx, err := openTest(t, fake, 2)
	if err != nil {
		t.Fatal(err)
	}
	fake.mu.Lock()
	fake.fail = true
	fake.mu.Unlock()

	err = idx.Add(context.Background(), []domain.Entry{{Vector: []float32{1, 1}, Text: "x"}})
	if !errors.Is(err, domain.ErrPersistence) {
		t.Errorf("expected ErrPersistence, got %v", err)
	}
	if idx.Count() != 0 {
		t.Errorf("failed add must not change the count, got %d", idx.Count())
	}
	if _, err := idx.Search(context.Background(), domain.SearchQuery{Vector: []float32{1, 1}, K: 1}); !errors.Is(err, domain.ErrUpstream) {
		t.Errorf("expected ErrUpstream, got %v", err)
	}
}
