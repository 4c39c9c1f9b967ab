package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickcecere/docrag/internal/config"
	"github.com/nickcecere/docrag/internal/embeddings"
	"github.com/nickcecere/docrag/internal/indexer"
	"github.com/nickcecere/docrag/internal/rag"
	"github.com/nickcecere/docrag/internal/store"
)

// lengthEmbedder embeds a text as [len, 1].
type lengthEmbedder struct{}

func (lengthEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text)), 1}, nil
}

func (e lengthEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.Embed(ctx, text)
}

func (e lengthEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = e.Embed(ctx, t)
	}
	return out, nil
}

func (lengthEmbedder) Dimensions() int               { return 2 }
func (lengthEmbedder) Provider() embeddings.Provider { return embeddings.ProviderOllama }
func (lengthEmbedder) ModelName() string             { return "length" }

// recorder collects watcher events.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) record(event, detail string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event+":"+detail)
}

func (r *recorder) has(event string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if strings.HasPrefix(e, event) {
			return true
		}
	}
	return false
}

func setupWatcher(t *testing.T, options ...Option) (*Watcher, *store.Manager, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "battery.md"), []byte("Replace the battery every two years."), 0644))

	cfg := config.DefaultConfig()
	batcher, err := embeddings.NewBatcher(lengthEmbedder{}, embeddings.DefaultBatchOptions())
	require.NoError(t, err)
	idx, err := indexer.New(batcher, cfg)
	require.NoError(t, err)

	m := store.NewManager(filepath.Join(t.TempDir(), "manuals.db"), false)
	w, err := New(idx, m, indexer.BuildOptions{Path: dir, StoreName: "manuals"}, options...)
	require.NoError(t, err)
	return w, m, dir
}

func TestNew(t *testing.T) {
	w, _, dir := setupWatcher(t, WithDebounceTime(50*time.Millisecond))
	assert.Equal(t, dir, w.Root())
	assert.Equal(t, 50*time.Millisecond, w.debounceTime)
	assert.False(t, w.opts.Force)
}

func TestHandleEvent(t *testing.T) {
	w, _, dir := setupWatcher(t)

	tests := []struct {
		name    string
		event   fsnotify.Event
		pending bool
	}{
		{"markdown write", fsnotify.Event{Name: filepath.Join(dir, "battery.md"), Op: fsnotify.Write}, true},
		{"pdf removed", fsnotify.Event{Name: filepath.Join(dir, "gone.pdf"), Op: fsnotify.Remove}, true},
		{"unsupported file", fsnotify.Event{Name: filepath.Join(dir, "main.go"), Op: fsnotify.Write}, false},
		{"hidden file", fsnotify.Event{Name: filepath.Join(dir, ".notes.md"), Op: fsnotify.Write}, false},
		{"office lock file", fsnotify.Event{Name: filepath.Join(dir, "~$report.docx"), Op: fsnotify.Create}, false},
		{"chmod only", fsnotify.Event{Name: filepath.Join(dir, "battery.md"), Op: fsnotify.Chmod}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w.pending = make(map[string]fsnotify.Op)
			w.handleEvent(tt.event, nil)
			assert.Equal(t, tt.pending, w.Pending() == 1)
		})
	}
}

func TestShouldSkipDir(t *testing.T) {
	w, _, _ := setupWatcher(t)
	assert.True(t, w.shouldSkipDir(".git"))
	assert.True(t, w.shouldSkipDir("node_modules"))
	assert.False(t, w.shouldSkipDir("manuals"))
}

func TestFlushRebuilds(t *testing.T) {
	rec := &recorder{}
	w, m, dir := setupWatcher(t, WithEventCallback(rec.record))
	ctx := context.Background()

	// nothing pending, nothing happens
	w.Flush(ctx)
	_, err := m.Current()
	assert.ErrorIs(t, err, rag.ErrStoreNotFound, "store is untouched")

	w.rebuild(ctx)
	first, err := m.Current()
	require.NoError(t, err)
	assert.Equal(t, []string{"battery.md"}, first.Sources())

	path := filepath.Join(dir, "screen.txt")
	require.NoError(t, os.WriteFile(path, []byte("Clean the screen."), 0644))
	w.handleEvent(fsnotify.Event{Name: path, Op: fsnotify.Create}, nil)
	w.Flush(ctx)

	second, err := m.Current()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"battery.md", "screen.txt"}, second.Sources())
	assert.Zero(t, w.Pending())
	assert.True(t, rec.has(EventChanged+":screen.txt"))
	assert.True(t, rec.has(EventRebuilt))

	// a touch without a content change keeps the store
	w.handleEvent(fsnotify.Event{Name: path, Op: fsnotify.Write}, nil)
	w.Flush(ctx)
	third, err := m.Current()
	require.NoError(t, err)
	assert.Same(t, second, third)
	assert.True(t, rec.has(EventCurrent))
}

func TestStartWatchesChanges(t *testing.T) {
	rec := &recorder{}
	w, m, dir := setupWatcher(t, WithDebounceTime(50*time.Millisecond), WithEventCallback(rec.record))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	require.Eventually(t, func() bool {
		st, err := m.Current()
		return err == nil && st.Count() > 0
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "warranty.txt"), []byte("The warranty lasts one year."), 0644))

	assert.Eventually(t, func() bool {
		st, err := m.Current()
		if err != nil {
			return false
		}
		for _, s := range st.Sources() {
			if s == "warranty.txt" {
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
