package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.etcd.io/bbolt"
	"ragqa/internal/adapter/index"
	"ragqa/internal/domain"
)

// BoltIndex is a persistent vector index. The whole state lives in memory and
// every mutation is written to bbolt in a single transaction before it returns.
type BoltIndex struct {
	db      *bbolt.DB
	mu      sync.RWMutex
	flat    *index.FlatL2
	entries []storedEntry
}

// OpenIndex opens or creates the index at path. When a snapshot exists it is
// restored exactly; a dim of 0 adopts the persisted dimension.
func OpenIndex(path string, dim int) (*BoltIndex, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	idx := &BoltIndex{db: db}
	if err := idx.load(dim); err != nil {
		db.Close()
		return nil, err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		return putInt(tx.Bucket(bucketMeta), keyDimension, idx.flat.Dim())
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return idx, nil
}

func (s *BoltIndex) load(dim int) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(bucketMeta)

		stored, ok, err := getInt(meta, keyDimension)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
		}
		if !ok {
			if dim <= 0 {
				return fmt.Errorf("%w: new index needs a positive dimension, got %d", domain.ErrInput, dim)
			}
			s.flat = index.NewFlatL2(dim)
			return nil
		}
		if dim > 0 && stored != dim {
			return fmt.Errorf("%w: index has dimension %d, requested %d", domain.ErrPersistence, stored, dim)
		}

		s.flat = index.NewFlatL2(stored)
		if blob := tx.Bucket(bucketIndex).Get(keyFlat); blob != nil {
			if err := s.flat.UnmarshalBinary(blob); err != nil {
				return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
			}
		}
		if s.flat.Dim() != stored {
			return fmt.Errorf("%w: search structure has dimension %d, meta says %d", domain.ErrPersistence, s.flat.Dim(), stored)
		}

		err = tx.Bucket(bucketEntries).ForEach(func(k, v []byte) error {
			var e storedEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("entry %x: %w", k, err)
			}
			s.entries = append(s.entries, e)
			return nil
		})
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
		}

		if len(s.entries) != s.flat.Len() {
			return fmt.Errorf("%w: %d entries but %d vectors", domain.ErrPersistence, len(s.entries), s.flat.Len())
		}
		return nil
	})
}

// Add appends entries and persists the new snapshot. On a failed write the
// in-memory state is truncated back and ErrPersistence is returned.
func (s *BoltIndex) Add(ctx context.Context, entries []domain.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dim := s.flat.Dim()
	vectors := make([][]float32, len(entries))
	added := make([]storedEntry, len(entries))
	for i, e := range entries {
		if len(e.Vector) != dim {
			return fmt.Errorf("%w: entry %d has %d components, index has %d", domain.ErrDimensionMismatch, i, len(e.Vector), dim)
		}
		vectors[i] = e.Vector
		added[i] = storedEntry{Text: e.Text, Metadata: e.Metadata, Tenant: e.Tenant}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	prev := len(s.entries)
	if err := s.flat.Add(vectors); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDimensionMismatch, err)
	}
	s.entries = append(s.entries, added...)

	err := s.db.Update(func(tx *bbolt.Tx) error {
		if err := s.writeHeader(tx); err != nil {
			return err
		}
		return putEntries(tx.Bucket(bucketEntries), prev, added)
	})
	if err != nil {
		s.flat.Truncate(prev)
		s.entries = s.entries[:prev]
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return nil
}

// writeHeader stores the dimension, the entry count and the search structure.
func (s *BoltIndex) writeHeader(tx *bbolt.Tx) error {
	blob, err := s.flat.MarshalBinary()
	if err != nil {
		return err
	}
	if err := tx.Bucket(bucketIndex).Put(keyFlat, blob); err != nil {
		return err
	}
	meta := tx.Bucket(bucketMeta)
	if err := putInt(meta, keyDimension, s.flat.Dim()); err != nil {
		return err
	}
	return putInt(meta, keyCount, len(s.entries))
}

// Search returns up to q.K nearest entries by squared Euclidean distance.
func (s *BoltIndex) Search(ctx context.Context, q domain.SearchQuery) ([]domain.SearchResult, error) {
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
		results[i] = domain.SearchResult{
			Text:     e.Text,
			Distance: h.Distance,
			Metadata: e.Metadata,
		}
	}
	return results, nil
}

// DeleteTenant removes every entry of tenant and rewrites the snapshot.
func (s *BoltIndex) DeleteTenant(ctx context.Context, tenant string) (int, error) {
	if tenant == "" {
		return 0, fmt.Errorf("%w: tenant is required", domain.ErrInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, e := range s.entries {
		if e.Tenant == tenant {
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	oldFlat, oldEntries := s.flat, s.entries

	kept := make([]storedEntry, 0, len(s.entries)-removed)
	for _, e := range s.entries {
		if e.Tenant != tenant {
			kept = append(kept, e)
		}
	}
	s.flat = oldFlat.Clone()
	s.flat.Rebuild(func(pos int) bool { return oldEntries[pos].Tenant != tenant })
	s.entries = kept

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b, err := resetBucket(tx, bucketEntries)
		if err != nil {
			return err
		}
		if err := putEntries(b, 0, kept); err != nil {
			return err
		}
		return s.writeHeader(tx)
	})
	if err != nil {
		s.flat, s.entries = oldFlat, oldEntries
		return 0, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return removed, nil
}

// Count returns the number of entries.
func (s *BoltIndex) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Dimension returns the fixed vector dimension.
func (s *BoltIndex) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.flat.Dim()
}

func (s *BoltIndex) Close() error {
	return s.db.Close()
}
