package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"ragqa/internal/domain"
)

// Index is a vector index backed by a Qdrant collection over its REST API.
// The collection uses Euclid distance; scores are squared on the way out so
// they match the local indexes.
//
// Every point carries a seq payload used to break distance ties. Within one
// process seq grows with each Add, so ties keep insertion order. Each process
// seeds seq from its wall clock in microseconds at Open, which keeps the value
// exact for JSON readers that decode numbers as float64. Ties between points
// written by different processes therefore follow the writers' clocks rather
// than the order the server applied the writes.
type Index struct {
	url        string
	apiKey     string
	collection string
	dimension  int
	client     *http.Client

	mu    sync.Mutex
	count int
	seq   int64
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// Open connects to the collection, creating it when missing. An existing
// collection with another vector size is rejected.
func Open(ctx context.Context, cfg Config, dimension int) (*Index, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: qdrant index needs a positive dimension, got %d", domain.ErrInput, dimension)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	s := &Index{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		dimension:  dimension,
		client:     &http.Client{Timeout: timeout},
	}

	size, found, err := s.collectionSize(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	if !found {
		body := map[string]any{
			"vectors": map[string]any{
				"size":     dimension,
				"distance": "Euclid",
			},
		}
		if err := s.do(ctx, http.MethodPut, s.collectionURL(""), body, nil); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
		}
	} else if size != dimension {
		return nil, fmt.Errorf("%w: collection %s has dimension %d, requested %d", domain.ErrPersistence, s.collection, size, dimension)
	}

	n, err := s.countPoints(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	s.count = n
	s.seq = time.Now().UnixMicro()
	return s, nil
}

func (s *Index) collectionSize(ctx context.Context) (int, bool, error) {
	var resp struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	err := s.do(ctx, http.MethodGet, s.collectionURL(""), nil, &resp)
	if errors.Is(err, errNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return resp.Result.Config.Params.Vectors.Size, true, nil
}

// Add upserts entries as new points. The request waits for the write to be
// applied before returning.
func (s *Index) Add(ctx context.Context, entries []domain.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	for i, e := range entries {
		if len(e.Vector) != s.dimension {
			return fmt.Errorf("%w: entry %d has %d components, index has %d", domain.ErrDimensionMismatch, i, len(e.Vector), s.dimension)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	points := make([]map[string]any, len(entries))
	for i, e := range entries {
		points[i] = map[string]any{
			"id":     uuid.NewString(),
			"vector": e.Vector,
			"payload": map[string]any{
				"text":     e.Text,
				"metadata": e.Metadata,
				"tenant":   e.Tenant,
				"seq":      s.seq + int64(i),
			},
		}
	}

	body := map[string]any{"points": points}
	if err := s.do(ctx, http.MethodPut, s.collectionURL("/points?wait=true"), body, nil); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	s.seq += int64(len(entries))
	s.count += len(entries)
	return nil
}

type scoredPoint struct {
	Score   float64 `json:"score"`
	Payload struct {
		Text     string            `json:"text"`
		Metadata map[string]string `json:"metadata"`
		Seq      int64             `json:"seq"`
	} `json:"payload"`
}

// Search returns up to q.K nearest points. Ties keep insertion order.
func (s *Index) Search(ctx context.Context, q domain.SearchQuery) ([]domain.SearchResult, error) {
	if q.K <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", domain.ErrInput, q.K)
	}
	if len(q.Vector) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d components, index has %d", domain.ErrDimensionMismatch, len(q.Vector), s.dimension)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req := map[string]any{
		"vector":       q.Vector,
		"limit":        q.K,
		"with_payload": true,
	}
	if f := tenantFilter(q.Tenant); f != nil {
		req["filter"] = f
	}

	var resp struct {
		Result []scoredPoint `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, s.collectionURL("/points/search"), req, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstream, err)
	}

	hits := resp.Result
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score < hits[j].Score
		}
		return hits[i].Payload.Seq < hits[j].Payload.Seq
	})

	results := make([]domain.SearchResult, len(hits))
	for i, h := range hits {
		results[i] = domain.SearchResult{
			Text:     h.Payload.Text,
			Distance: h.Score * h.Score,
			Metadata: h.Payload.Metadata,
		}
	}
	return results, nil
}

// DeleteTenant removes every point whose payload carries tenant.
func (s *Index) DeleteTenant(ctx context.Context, tenant string) (int, error) {
	if tenant == "" {
		return 0, fmt.Errorf("%w: tenant is required", domain.ErrInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	filter := tenantFilter(tenant)
	n, err := s.countPoints(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	if n == 0 {
		return 0, nil
	}

	body := map[string]any{"filter": filter}
	if err := s.do(ctx, http.MethodPost, s.collectionURL("/points/delete?wait=true"), body, nil); err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	s.count -= n
	return n, nil
}

// Count asks the server for the number of points in the collection, so
// points written by other clients are included. When the server cannot be
// reached the last known count is returned.
func (s *Index) Count() int {
	n, err := s.countPoints(context.Background(), nil)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		return s.count
	}
	s.count = n
	return n
}

func (s *Index) Dimension() int {
	return s.dimension
}

func (s *Index) countPoints(ctx context.Context, filter map[string]any) (int, error) {
	body := map[string]any{"exact": true}
	if filter != nil {
		body["filter"] = filter
	}
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, s.collectionURL("/points/count"), body, &resp); err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

func tenantFilter(tenant string) map[string]any {
	if tenant == "" {
		return nil
	}
	return map[string]any{
		"must": []map[string]any{
			{"key": "tenant", "match": map[string]any{"value": tenant}},
		},
	}
}

func (s *Index) collectionURL(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", s.url, s.collection, suffix)
}

type statusError struct {
	method string
	url    string
	status string
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("qdrant %s %s failed: %s: %s", e.method, e.url, e.status, e.body)
}

var errNotFound = errors.New("qdrant: not found")

func (s *Index) do(ctx context.Context, method, url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound && method == http.MethodGet {
		return errNotFound
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{method: method, url: url, status: resp.Status, body: string(msg)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
