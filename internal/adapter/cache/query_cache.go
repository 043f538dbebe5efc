package cache

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sync"
	"time"

	"ragqa/internal/domain"
	"ragqa/internal/port"
)

// QueryCache is an LRU of search candidates with a TTL. Entries written
// before the last Invalidate are never served.
type QueryCache struct {
	mu       sync.Mutex
	entries  map[string]*list.Element
	lru      *list.List // front is most recently used
	maxSize  int
	ttl      time.Duration
	indexGen uint64
	now      func() time.Time
}

type cacheEntry struct {
	key       string
	results   []domain.SearchResult
	timestamp time.Time
	indexGen  uint64
}

func NewQueryCache(maxSize int, ttl time.Duration) *QueryCache {
	if maxSize <= 0 {
		maxSize = 100
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &QueryCache{
		entries: make(map[string]*list.Element),
		lru:     list.New(),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

func cacheKey(tenant, question string, k int) string {
	h := sha256.New()
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(tenant)))
	h.Write(n[:])
	h.Write([]byte(tenant))
	h.Write([]byte(question))
	binary.BigEndian.PutUint64(n[:], uint64(k))
	h.Write(n[:])
	return hex.EncodeToString(h.Sum(nil)[:16])
}

func (c *QueryCache) Get(tenant, question string, k int) ([]domain.SearchResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(tenant, question, k)
	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}

	entry := el.Value.(*cacheEntry)
	if c.now().Sub(entry.timestamp) > c.ttl || entry.indexGen != c.indexGen {
		c.lru.Remove(el)
		delete(c.entries, key)
		return nil, false
	}

	c.lru.MoveToFront(el)
	return append([]domain.SearchResult(nil), entry.results...), true
}

func (c *QueryCache) Put(tenant, question string, k int, results []domain.SearchResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(tenant, question, k)
	entry := &cacheEntry{
		key:       key,
		results:   append([]domain.SearchResult(nil), results...),
		timestamp: c.now(),
		indexGen:  c.indexGen,
	}

	if el, ok := c.entries[key]; ok {
		el.Value = entry
		c.lru.MoveToFront(el)
		return
	}

	if c.lru.Len() >= c.maxSize {
		if oldest := c.lru.Back(); oldest != nil {
			c.lru.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheEntry).key)
		}
	}
	c.entries[key] = c.lru.PushFront(entry)
}

// Invalidate drops everything; call it after every index mutation.
func (c *QueryCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*list.Element)
	c.lru.Init()
	c.indexGen++
}

func (c *QueryCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// CachedSearcher serves repeated searches from a QueryCache.
type CachedSearcher struct {
	searcher port.Searcher
	cache    *QueryCache
}

func NewCachedSearcher(searcher port.Searcher, cache *QueryCache) *CachedSearcher {
	return &CachedSearcher{
		searcher: searcher,
		cache:    cache,
	}
}

func (s *CachedSearcher) Search(ctx context.Context, tenant, question string, k int) ([]domain.SearchResult, error) {
	if results, hit := s.cache.Get(tenant, question, k); hit {
		return results, nil
	}

	results, err := s.searcher.Search(ctx, tenant, question, k)
	if err != nil {
		return nil, err
	}

	s.cache.Put(tenant, question, k, results)
	return results, nil
}
