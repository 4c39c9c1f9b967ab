// Package indexer turns a document corpus into a vector store and keeps the
// persisted store in step with the corpus.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/nickcecere/docrag/internal/config"
	"github.com/nickcecere/docrag/internal/embeddings"
	"github.com/nickcecere/docrag/internal/extract"
	"github.com/nickcecere/docrag/internal/fs"
	"github.com/nickcecere/docrag/internal/rag"
	"github.com/nickcecere/docrag/internal/store"
)

// Reasons reported by Ensure.
const (
	ReasonMissing      = "no store found"
	ReasonInvalid      = "store is empty"
	ReasonCorrupt      = "store is corrupt"
	ReasonForced       = "rebuild forced"
	ReasonModelChanged = "embedding model changed"
	ReasonCorpus       = "documents changed"
)

// Indexer orchestrates extraction, chunking and embedding of a corpus.
type Indexer struct {
	batcher *embeddings.Batcher
	chunker *fs.TextChunker
	cfg     *config.Config

	// Progress tracking
	progress Progress
	mu       sync.Mutex
}

// Progress tracks indexing progress.
type Progress struct {
	TotalFiles      int
	ProcessedFiles  int
	SkippedFiles    int
	TotalChunks     int
	ProcessedChunks int
	Errors          int
	StartTime       time.Time
	CurrentFile     string
}

// ProgressFunc is called to report progress during indexing.
type ProgressFunc func(Progress)

// BuildOptions configures a build.
type BuildOptions struct {
	// Path is the corpus directory, or a single document.
	Path string

	// StoreName names the resulting store.
	StoreName string

	// IgnorePatterns are added to the configured ignore patterns.
	IgnorePatterns []string

	// Force rebuilds even when the persisted store is current. Only Ensure
	// looks at it.
	Force bool

	// OnProgress is called to report progress.
	OnProgress ProgressFunc
}

// Corpus is the walked document set a build starts from.
type Corpus struct {
	Root        string
	Files       []fs.FileInfo
	Fingerprint string
}

// Plan is a corpus split into fragments, ready to embed.
type Plan struct {
	Corpus
	Fragments []rag.Fragment
	// Documents counts the files that produced at least one fragment.
	Documents int
}

// EnsureResult describes what Ensure did.
type EnsureResult struct {
	Store   *store.Store
	Rebuilt bool
	// Reason explains a rebuild; empty when the persisted store was reused.
	Reason string
}

// New creates an Indexer using the chunking settings in cfg.
func New(batcher *embeddings.Batcher, cfg *config.Config) (*Indexer, error) {
	if batcher == nil {
		return nil, &rag.ConfigError{Field: "embeddings", Reason: "no embedder configured"}
	}

	mode, err := fs.ParseChunkMode(cfg.Chunking.Mode)
	if err != nil {
		return nil, err
	}

	chunker, err := fs.NewTextChunker(fs.ChunkOptions{
		Size:       cfg.Chunking.Size,
		Overlap:    cfg.Chunking.Overlap,
		Mode:       mode,
		Separators: cfg.Chunking.Separators,
	})
	if err != nil {
		return nil, err
	}

	return &Indexer{
		batcher: batcher,
		chunker: chunker,
		cfg:     cfg,
	}, nil
}

// Model returns the embedding model identifier stores are built with.
func (idx *Indexer) Model() string {
	return idx.batcher.Model()
}

// Scan walks the corpus and fingerprints it without reading documents.
func (idx *Indexer) Scan(opts BuildOptions) (*Corpus, error) {
	walker, err := fs.NewFileWalker(fs.WalkOptions{
		Root:             opts.Path,
		MaxFileSize:      int64(idx.cfg.Documents.MaxFileSize),
		MaxFileCount:     idx.cfg.Documents.MaxFileCount,
		IgnorePatterns:   append(append([]string{}, idx.cfg.Ignore...), opts.IgnorePatterns...),
		UseGitignore:     true,
		Extensions:       extract.Extensions(),
		BinaryExtensions: extract.BinaryExtensions(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create file walker: %w", err)
	}

	files, err := fs.Collect(walker)
	if err != nil {
		return nil, fmt.Errorf("failed to walk documents: %w", err)
	}

	stats := walker.Stats()
	log.Debug("Scanned corpus", "path", opts.Path, "files", len(files), "skipped", stats.FilesSkipped)

	return &Corpus{
		Root:        opts.Path,
		Files:       files,
		Fingerprint: idx.fingerprint(files),
	}, nil
}

// fingerprint covers the chunking settings as well as the files, so a
// changed chunk size also invalidates the store.
func (idx *Indexer) fingerprint(files []fs.FileInfo) string {
	o := idx.chunker.Options()
	key := strings.Join([]string{
		fs.Fingerprint(files),
		string(o.Mode),
		strconv.Itoa(o.Size),
		strconv.Itoa(o.Overlap),
		strings.Join(o.Separators, "\x1f"),
	}, "\x00")
	return fmt.Sprintf("%016x", xxhash.Sum64String(key))
}

// Plan extracts and chunks every document of the corpus. Fragment ids are
// assigned in ingestion order; index_in_source restarts at 0 per document.
// A document that cannot be extracted is logged and skipped.
func (idx *Indexer) Plan(ctx context.Context, c *Corpus, onProgress ProgressFunc) (*Plan, error) {
	idx.mu.Lock()
	idx.progress = Progress{
		StartTime:  time.Now(),
		TotalFiles: len(c.Files),
	}
	idx.mu.Unlock()

	plan := &Plan{Corpus: *c}

	for _, fi := range c.Files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		idx.mu.Lock()
		idx.progress.CurrentFile = fi.RelPath
		idx.mu.Unlock()

		text, err := extract.Extract(fi.Path)
		if err != nil {
			log.Warn("Failed to extract document", "path", fi.RelPath, "error", err)
			idx.update(onProgress, func(p *Progress) { p.Errors++ })
			continue
		}

		chunks := idx.chunker.Chunk(text)
		if len(chunks) == 0 {
			log.Debug("No text in document", "path", fi.RelPath)
			idx.update(onProgress, func(p *Progress) { p.SkippedFiles++ })
			continue
		}

		for _, ch := range chunks {
			plan.Fragments = append(plan.Fragments, rag.Fragment{
				ID:     len(plan.Fragments),
				Source: fi.RelPath,
				Index:  ch.ChunkIndex,
				Text:   ch.Content,
			})
		}
		plan.Documents++

		log.Debug("Chunked document", "path", fi.RelPath, "chunks", len(chunks))
		idx.update(onProgress, func(p *Progress) {
			p.ProcessedFiles++
			p.TotalChunks += len(chunks)
		})
	}

	return plan, nil
}

// Embed vectorizes a plan and builds the store from it.
func (idx *Indexer) Embed(ctx context.Context, plan *Plan, name string, onProgress ProgressFunc) (*store.Store, error) {
	texts := make([]string, len(plan.Fragments))
	for i, f := range plan.Fragments {
		texts[i] = f.Text
	}

	log.Info("Embedding fragments", "count", len(texts), "model", idx.Model())
	vectors, err := idx.batcher.EmbedTexts(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed fragments: %w", err)
	}
	idx.update(onProgress, func(p *Progress) { p.ProcessedChunks = len(vectors) })

	entries := make([]rag.Entry, len(plan.Fragments))
	for i, f := range plan.Fragments {
		entries[i] = rag.Entry{Fragment: f, Vector: vectors[i]}
	}

	return store.Build(store.Info{
		Name:        name,
		Model:       idx.Model(),
		Fingerprint: plan.Fingerprint,
		BuildID:     uuid.NewString(),
		CreatedAt:   time.Now(),
	}, entries)
}

// Build walks, extracts, chunks and embeds the corpus into a new store. The
// store is not persisted.
func (idx *Indexer) Build(ctx context.Context, opts BuildOptions) (*store.Store, error) {
	corpus, err := idx.Scan(opts)
	if err != nil {
		return nil, err
	}
	return idx.build(ctx, corpus, opts)
}

func (idx *Indexer) build(ctx context.Context, corpus *Corpus, opts BuildOptions) (*store.Store, error) {
	log.Info("Found documents to index", "count", len(corpus.Files))

	plan, err := idx.Plan(ctx, corpus, opts.OnProgress)
	if err != nil {
		return nil, err
	}
	if len(plan.Fragments) == 0 {
		log.Warn("No fragments produced", "path", corpus.Root)
	}

	st, err := idx.Embed(ctx, plan, opts.StoreName, opts.OnProgress)
	if err != nil {
		return nil, err
	}

	log.Info("Indexing complete",
		"documents", plan.Documents,
		"fragments", st.Count(),
		"dimension", st.Dimension(),
		"duration", time.Since(idx.Progress().StartTime).Round(time.Millisecond),
	)
	return st, nil
}

// Ensure serves the persisted store when it is current and rebuilds it
// otherwise. A rebuild happens when the store is missing or empty, when it
// is corrupt and the manager discards corrupt stores, when Force is set, or
// when the embedding model or the corpus changed. A rebuilt store is
// persisted and swapped into m.
func (idx *Indexer) Ensure(ctx context.Context, m *store.Manager, opts BuildOptions) (*EnsureResult, error) {
	current, loadErr := m.Current()
	rebuild, err := m.NeedsRebuild()
	if err != nil {
		return nil, fmt.Errorf("failed to load store: %w", err)
	}

	corpus, err := idx.Scan(opts)
	if err != nil {
		return nil, err
	}

	reason := ""
	switch {
	case rebuild && errors.Is(loadErr, rag.ErrStoreNotFound):
		reason = ReasonMissing
	case rebuild && errors.Is(loadErr, rag.ErrStoreCorrupt):
		reason = ReasonCorrupt
	case rebuild:
		reason = ReasonInvalid
	case opts.Force:
		reason = ReasonForced
	case current.Model() != idx.Model():
		reason = ReasonModelChanged
	case current.Fingerprint() != corpus.Fingerprint:
		reason = ReasonCorpus
	}

	if reason == "" {
		log.Info("Store is up to date", "store", current.Name(), "fragments", current.Count())
		return &EnsureResult{Store: current}, nil
	}

	log.Info("Rebuilding store", "reason", reason, "path", m.Path())
	if reason == ReasonCorrupt {
		log.Warn("Discarding corrupt store", "path", m.Path(), "error", loadErr)
		if err := m.Discard(); err != nil {
			return nil, err
		}
	}

	st, err := idx.build(ctx, corpus, opts)
	if err != nil {
		return nil, err
	}
	if err := m.Replace(st); err != nil {
		return nil, fmt.Errorf("failed to persist store: %w", err)
	}

	return &EnsureResult{Store: st, Rebuilt: true, Reason: reason}, nil
}

func (idx *Indexer) update(onProgress ProgressFunc, fn func(*Progress)) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	fn(&idx.progress)
	if onProgress != nil {
		onProgress(idx.progress)
	}
}

// Progress returns the current indexing progress.
func (idx *Indexer) Progress() Progress {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.progress
}
