package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/nickcecere/docrag/internal/rag"
)

// Store is an immutable collection of indexed entries with a fixed vector
// dimension. It is safe for concurrent searches without locking.
type Store struct {
	info    Info
	dim     int
	entries []rag.Entry
	norms   []float64
}

// Build creates a store from entries in ingestion order. The first vector
// fixes the dimension; an empty entry list yields an empty store with no
// dimension yet. Fragment ids must be unique and vectors finite; entries
// with equal text are kept as they are.
func Build(info Info, entries []rag.Entry) (*Store, error) {
	s := &Store{
		info:    info,
		entries: make([]rag.Entry, len(entries)),
		norms:   make([]float64, len(entries)),
	}

	seen := make(map[int]struct{}, len(entries))
	for i, e := range entries {
		if len(e.Vector) == 0 {
			return nil, &rag.DimensionMismatchError{Expected: s.dim, Got: 0, Index: i}
		}
		if s.dim == 0 {
			s.dim = len(e.Vector)
		}
		if len(e.Vector) != s.dim {
			return nil, &rag.DimensionMismatchError{Expected: s.dim, Got: len(e.Vector), Index: i}
		}
		if err := rag.CheckFinite(e.Vector, i); err != nil {
			return nil, err
		}
		if _, dup := seen[e.Fragment.ID]; dup {
			return nil, &rag.InvalidEntryError{Index: i, Reason: fmt.Sprintf("duplicate fragment id %d", e.Fragment.ID)}
		}
		seen[e.Fragment.ID] = struct{}{}

		vec := make(rag.Vector, len(e.Vector))
		copy(vec, e.Vector)
		s.entries[i] = rag.Entry{Fragment: e.Fragment, Vector: vec}
		s.norms[i] = norm(vec)
	}

	return s, nil
}

// Search ranks every entry by cosine similarity to q and returns the top k,
// highest first, ties broken by lower fragment id.
func (s *Store) Search(q rag.Vector, k int) ([]rag.Result, error) {
	if k < 1 {
		return nil, &rag.ConfigError{Field: "k", Reason: fmt.Sprintf("must be at least 1, got %d", k)}
	}
	if s.Count() == 0 {
		return []rag.Result{}, nil
	}
	if len(q) != s.dim {
		return nil, &rag.DimensionMismatchError{Expected: s.dim, Got: len(q), Index: -1}
	}
	if err := rag.CheckFinite(q, -1); err != nil {
		return nil, err
	}

	qNorm := norm(q)
	results := make([]rag.Result, len(s.entries))
	for i, e := range s.entries {
		results[i] = rag.Result{
			Fragment:   e.Fragment,
			Similarity: cosine(q, e.Vector, qNorm, s.norms[i]),
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].Fragment.ID < results[j].Fragment.ID
	})

	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

// Count returns the number of entries. A nil store has none.
func (s *Store) Count() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Dimension returns the vector dimension, or 0 for an empty store.
func (s *Store) Dimension() int {
	if s == nil {
		return 0
	}
	return s.dim
}

// Info returns the build description.
func (s *Store) Info() Info {
	return s.info
}

// Name returns the store name.
func (s *Store) Name() string {
	return s.info.Name
}

// Model returns the embedding model the store was built with.
func (s *Store) Model() string {
	return s.info.Model
}

// Fingerprint returns the corpus fingerprint the store was built from.
func (s *Store) Fingerprint() string {
	return s.info.Fingerprint
}

// Entries returns a copy of the entries in ingestion order.
func (s *Store) Entries() []rag.Entry {
	if s == nil {
		return nil
	}
	out := make([]rag.Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Fragment returns the fragment with the given id.
func (s *Store) Fragment(id int) (rag.Fragment, bool) {
	for _, e := range s.entries {
		if e.Fragment.ID == id {
			return e.Fragment, true
		}
	}
	return rag.Fragment{}, false
}

// Sources returns the distinct document sources in ingestion order.
func (s *Store) Sources() []string {
	seen := make(map[string]bool)
	var sources []string
	for _, e := range s.Entries() {
		if !seen[e.Fragment.Source] {
			seen[e.Fragment.Source] = true
			sources = append(sources, e.Fragment.Source)
		}
	}
	return sources
}

// IsValid reports whether the store holds at least one entry and every
// vector has the store's dimension.
func (s *Store) IsValid() bool {
	if s.Count() == 0 || s.dim == 0 {
		return false
	}
	for _, e := range s.entries {
		if len(e.Vector) != s.dim {
			return false
		}
	}
	return true
}

// Checksum hashes every entry in order, so a persisted copy can be verified.
func (s *Store) Checksum() string {
	h := xxhash.New()
	var buf [8]byte
	for _, e := range s.entries {
		binary.LittleEndian.PutUint64(buf[:], uint64(e.Fragment.ID))
		h.Write(buf[:])
		binary.LittleEndian.PutUint64(buf[:], uint64(e.Fragment.Index))
		h.Write(buf[:])
		h.WriteString(e.Fragment.Source)
		h.WriteString("\x00")
		h.WriteString(e.Fragment.Text)
		h.WriteString("\x00")
		h.Write(serializeVector(e.Vector))
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// NeedsRebuild decides, from the result of loading a persisted store,
// whether the caller should build a fresh one. A missing or empty store
// needs a rebuild. A corrupt store needs one only when discardCorrupt is
// set; otherwise the corruption is returned. Any other load error is
// returned unchanged.
func NeedsRebuild(s *Store, loadErr error, discardCorrupt bool) (bool, error) {
	switch {
	case loadErr == nil:
		return !s.IsValid(), nil
	case errors.Is(loadErr, rag.ErrStoreNotFound):
		return true, nil
	case errors.Is(loadErr, rag.ErrStoreCorrupt):
		if discardCorrupt {
			return true, nil
		}
		return false, loadErr
	default:
		return false, loadErr
	}
}

func norm(v rag.Vector) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// cosine returns 0 when either vector has zero magnitude.
func cosine(a, b rag.Vector, aNorm, bNorm float64) float64 {
	if aNorm == 0 || bNorm == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (aNorm * bNorm)
}

// serializeVector converts a vector to the little-endian float32 blob sqlite-vec reads.
func serializeVector(v rag.Vector) []byte {
	buf := make([]byte, len(v)*4)
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	return buf
}

// deserializeVector is the inverse of serializeVector.
func deserializeVector(blob []byte) (rag.Vector, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(blob))
	}
	v := make(rag.Vector, len(blob)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return v, nil
}
