// Package rag holds the domain types shared by the retrieval engine: fragments,
// vectors, indexed entries, ranked results and the error taxonomy.
package rag

// Vector is a fixed-length embedding.
type Vector []float32

// Fragment is a contiguous, trimmed slice of a source document's text.
type Fragment struct {
	ID     int    `json:"id"`
	Source string `json:"source"`
	// Index is the position of the fragment within its source, starting at 0.
	Index int    `json:"index_in_source"`
	Text  string `json:"text"`
}

// Entry is a fragment together with its embedding, the unit a store holds.
type Entry struct {
	Fragment Fragment `json:"fragment"`
	Vector   Vector   `json:"vector"`
}

// Passage is what downstream consumers need from a retrieved fragment.
type Passage interface {
	Text() string
	Source() string
	Score() float64
}

// Result is one ranked hit returned by a store search.
type Result struct {
	Fragment   Fragment `json:"fragment"`
	Similarity float64  `json:"score"`
}

var _ Passage = Result{}

// Text returns the fragment text.
func (r Result) Text() string { return r.Fragment.Text }

// Source returns the originating document identifier.
func (r Result) Source() string { return r.Fragment.Source }

// Score returns the cosine similarity to the query.
func (r Result) Score() float64 { return r.Similarity }

// Sources returns the distinct sources of results in ranking order.
func Sources[P Passage](results []P) []string {
	seen := make(map[string]bool, len(results))
	var out []string
	for _, r := range results {
		src := r.Source()
		if seen[src] {
			continue
		}
		seen[src] = true
		out = append(out, src)
	}
	return out
}
