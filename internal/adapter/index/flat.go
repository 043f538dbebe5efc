package index

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
)

var ErrCorrupt = errors.New("flat index: invalid data")

// FlatL2 is an exact nearest-neighbour structure over squared Euclidean
// distance. Positions are insertion order and never change except through
// Truncate or Rebuild.
type FlatL2 struct {
	dim  int
	vecs [][]float32
}

// Hit is a position in the structure together with its distance to the query.
type Hit struct {
	Pos      int
	Distance float64
}

func NewFlatL2(dim int) *FlatL2 {
	return &FlatL2{dim: dim}
}

func (f *FlatL2) Dim() int { return f.dim }

func (f *FlatL2) Len() int { return len(f.vecs) }

// Add appends vectors after checking all of them.
func (f *FlatL2) Add(vectors [][]float32) error {
	for i, v := range vectors {
		if len(v) != f.dim {
			return fmt.Errorf("flat index: vector %d has dim %d, want %d", i, len(v), f.dim)
		}
	}
	for _, v := range vectors {
		f.vecs = append(f.vecs, append([]float32(nil), v...))
	}
	return nil
}

// Truncate drops every vector at position n or later.
func (f *FlatL2) Truncate(n int) {
	if n < 0 {
		n = 0
	}
	if n < len(f.vecs) {
		f.vecs = f.vecs[:n]
	}
}

// Clone returns a copy that can be changed without affecting f. Stored
// vectors are never modified in place, so they are shared.
func (f *FlatL2) Clone() *FlatL2 {
	return &FlatL2{dim: f.dim, vecs: append([][]float32(nil), f.vecs...)}
}

// Rebuild replaces the content with the vectors kept by keep, preserving order.
func (f *FlatL2) Rebuild(keep func(pos int) bool) {
	kept := f.vecs[:0:0]
	for pos, v := range f.vecs {
		if keep(pos) {
			kept = append(kept, v)
		}
	}
	f.vecs = kept
}

// Search returns up to k hits ordered by ascending distance, ties by position.
// A nil allow admits every position.
func (f *FlatL2) Search(query []float32, k int, allow func(pos int) bool) ([]Hit, error) {
	if len(query) != f.dim {
		return nil, fmt.Errorf("flat index: query dim %d != index dim %d", len(query), f.dim)
	}
	if k <= 0 || len(f.vecs) == 0 {
		return []Hit{}, nil
	}

	hits := make([]Hit, 0, len(f.vecs))
	for pos, v := range f.vecs {
		if allow != nil && !allow(pos) {
			continue
		}
		hits = append(hits, Hit{Pos: pos, Distance: squaredL2(query, v)})
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].Distance < hits[b].Distance })

	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// MarshalBinary stores: dim(uint32), n(uint32), then n*dim float32 values.
func (f *FlatL2) MarshalBinary() ([]byte, error) {
	out := make([]byte, 8, 8+4*f.dim*len(f.vecs))
	binary.LittleEndian.PutUint32(out[0:4], uint32(f.dim))
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(f.vecs)))

	var b [4]byte
	for _, v := range f.vecs {
		for _, x := range v {
			binary.LittleEndian.PutUint32(b[:], math.Float32bits(x))
			out = append(out, b[:]...)
		}
	}
	return out, nil
}

// UnmarshalBinary restores the structure from bytes written by MarshalBinary.
func (f *FlatL2) UnmarshalBinary(data []byte) error {
	if len(data) < 8 {
		return ErrCorrupt
	}
	dim := int(binary.LittleEndian.Uint32(data[0:4]))
	n := int(binary.LittleEndian.Uint32(data[4:8]))
	if len(data) != 8+4*dim*n {
		return fmt.Errorf("%w: %d bytes for %d vectors of dim %d", ErrCorrupt, len(data), n, dim)
	}

	off := 8
	vecs := make([][]float32, n)
	for i := range vecs {
		v := make([]float32, dim)
		for j := range v {
			v[j] = math.Float32frombits(binary.LittleEndian.Uint32(data[off : off+4]))
			off += 4
		}
		vecs[i] = v
	}

	f.dim = dim
	f.vecs = vecs
	return nil
}

func squaredL2(a, b []float32) float64 {
	var s float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		s += d * d
	}
	return s
}
