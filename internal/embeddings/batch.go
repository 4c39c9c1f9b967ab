package embeddings

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/nickcecere/docrag/internal/config"
	"github.com/nickcecere/docrag/internal/rag"
)

// BatchOptions controls how texts are grouped into provider calls.
type BatchOptions struct {
	// BatchSize is the maximum number of texts per provider call.
	BatchSize int

	// Workers bounds concurrent provider calls. 1 means sequential.
	Workers int

	// Dimensions pins the expected vector length. 0 lets the first vector decide.
	Dimensions int
}

// DefaultBatchOptions returns sequential batching with the provider limit of ten.
func DefaultBatchOptions() BatchOptions {
	return BatchOptions{
		BatchSize: config.DefaultEmbedBatchSize,
		Workers:   config.DefaultEmbedWorkers,
	}
}

// Batcher embeds arbitrarily many texts through a Service, respecting the
// provider's batch limit and checking every response.
type Batcher struct {
	svc  Service
	opts BatchOptions
}

// NewBatcher wraps svc.
func NewBatcher(svc Service, opts BatchOptions) (*Batcher, error) {
	if svc == nil {
		return nil, &rag.ConfigError{Field: "embeddings.provider", Reason: "no embedding service configured"}
	}
	if opts.BatchSize < 1 {
		return nil, &rag.ConfigError{Field: "embeddings.batch_size", Reason: fmt.Sprintf("must be at least 1, got %d", opts.BatchSize)}
	}
	if opts.Workers < 1 {
		return nil, &rag.ConfigError{Field: "embeddings.workers", Reason: fmt.Sprintf("must be at least 1, got %d", opts.Workers)}
	}
	if opts.Dimensions < 0 {
		return nil, &rag.ConfigError{Field: "embeddings.dimensions", Reason: "must not be negative"}
	}
	return &Batcher{svc: svc, opts: opts}, nil
}

// Service returns the wrapped service.
func (b *Batcher) Service() Service {
	return b.svc
}

// Model returns the provider-qualified model identifier.
func (b *Batcher) Model() string {
	return ModelID(b.svc)
}

// EmbedTexts returns one vector per text, in input order. The call fails as a
// whole if any batch fails, returns the wrong number of vectors, or yields a
// vector whose length disagrees with the others.
func (b *Batcher) EmbedTexts(ctx context.Context, texts []string) ([]rag.Vector, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([]rag.Vector, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Workers)

	batches := 0
	for start := 0; start < len(texts); start += b.opts.BatchSize {
		end := min(start+b.opts.BatchSize, len(texts))
		batch := texts[start:end]
		offset := start
		batches++

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			got, err := b.svc.EmbedBatch(gctx, batch)
			if err != nil {
				return &rag.ProviderError{Provider: string(b.svc.Provider()), Err: err}
			}
			if len(got) != len(batch) {
				return &rag.CountMismatchError{Expected: len(batch), Got: len(got)}
			}
			for i, v := range got {
				vectors[offset+i] = rag.Vector(v)
			}
			return nil
		})
	}

	log.Debug("Embedding texts", "count", len(texts), "batches", batches, "workers", b.opts.Workers)

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if _, err := checkDimensions(vectors, b.opts.Dimensions); err != nil {
		return nil, err
	}

	return vectors, nil
}

// EmbedQuery embeds a single query text.
func (b *Batcher) EmbedQuery(ctx context.Context, query string) (rag.Vector, error) {
	v, err := b.svc.EmbedQuery(ctx, query)
	if err != nil {
		return nil, &rag.ProviderError{Provider: string(b.svc.Provider()), Err: err}
	}
	if len(v) == 0 {
		return nil, &rag.CountMismatchError{Expected: 1, Got: 0}
	}
	if b.opts.Dimensions > 0 && len(v) != b.opts.Dimensions {
		return nil, &rag.DimensionMismatchError{Expected: b.opts.Dimensions, Got: len(v), Index: -1}
	}
	if err := rag.CheckFinite(v, -1); err != nil {
		return nil, err
	}
	return rag.Vector(v), nil
}

// checkDimensions verifies that every vector is non-empty, finite and of
// equal length and returns that length. want pins the length when positive.
func checkDimensions(vectors []rag.Vector, want int) (int, error) {
	dim := want
	for i, v := range vectors {
		if len(v) == 0 {
			return 0, &rag.DimensionMismatchError{Expected: dim, Got: 0, Index: i}
		}
		if dim == 0 {
			dim = len(v)
		}
		if len(v) != dim {
			return 0, &rag.DimensionMismatchError{Expected: dim, Got: len(v), Index: i}
		}
		if err := rag.CheckFinite(v, i); err != nil {
			return 0, err
		}
	}
	return dim, nil
}
