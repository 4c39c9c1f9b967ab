// Package retriever answers a query with the top-k most similar fragments of
// the current store.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/nickcecere/docrag/internal/rag"
	"github.com/nickcecere/docrag/internal/store"
)

// Source supplies the store to search. store.Manager implements it.
type Source interface {
	Current() (*store.Store, error)
}

// QueryEmbedder turns a query into a vector. embeddings.Batcher implements it.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, query string) (rag.Vector, error)
}

// Retriever provides fragment retrieval over a store source.
type Retriever struct {
	source   Source
	embedder QueryEmbedder
}

// New creates a new Retriever.
func New(src Source, emb QueryEmbedder) *Retriever {
	return &Retriever{
		source:   src,
		embedder: emb,
	}
}

// Retrieve returns at most k results for query, best first. A missing or
// empty store yields an empty result; a corrupt store is an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]rag.Result, error) {
	st, err := r.source.Current()
	if err != nil && !errors.Is(err, rag.ErrStoreNotFound) {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	if err != nil {
		log.Debug("No store available", "error", err)
		st = nil
	}
	return Retrieve(ctx, query, k, st, r.embedder)
}

// Retrieve embeds query and searches st. The ranking is returned unchanged.
func Retrieve(ctx context.Context, query string, k int, st *store.Store, emb QueryEmbedder) ([]rag.Result, error) {
	if k < 1 {
		return nil, &rag.ConfigError{Field: "k", Reason: fmt.Sprintf("must be at least 1, got %d", k)}
	}
	if strings.TrimSpace(query) == "" {
		return nil, &rag.ConfigError{Field: "query", Reason: "cannot be empty"}
	}
	if st.Count() == 0 {
		return []rag.Result{}, nil
	}

	log.Debug("Generating query embedding", "query", truncate(query, 50))
	q, err := emb.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	log.Debug("Searching store", "store", st.Name(), "k", k)
	results, err := st.Search(q, k)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	log.Debug("Search complete", "results", len(results))
	return results, nil
}

// Static serves one fixed store.
type Static struct {
	Store *store.Store
}

// Current returns the fixed store.
func (s Static) Current() (*store.Store, error) {
	return s.Store, nil
}

// truncate shortens a string for display.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
