// Package watcher rebuilds the store when documents in the corpus change.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/nickcecere/docrag/internal/extract"
	"github.com/nickcecere/docrag/internal/indexer"
	"github.com/nickcecere/docrag/internal/store"
)

// Events passed to the event callback.
const (
	EventChanged = "changed"
	EventRebuilt = "rebuilt"
	EventCurrent = "current"
	EventFailed  = "failed"
)

// Watcher watches a corpus directory and rebuilds the store after changes.
// Every rebuild is a full rebuild swapped into the manager; queries in
// flight keep the store they started with.
type Watcher struct {
	root    string
	indexer *indexer.Indexer
	manager *store.Manager
	opts    indexer.BuildOptions

	// pending holds changed paths until the debounce interval passes quietly
	pending      map[string]fsnotify.Op
	lastEvent    time.Time
	pendingMu    sync.Mutex
	debounceTime time.Duration

	// rebuildMu serializes rebuilds
	rebuildMu sync.Mutex

	// callback for status updates
	onEvent func(event string, detail string)
}

// Option configures the watcher.
type Option func(*Watcher)

// WithDebounceTime sets how long the corpus must stay quiet before a rebuild.
func WithDebounceTime(d time.Duration) Option {
	return func(w *Watcher) {
		w.debounceTime = d
	}
}

// WithEventCallback sets a callback for watcher events.
func WithEventCallback(fn func(event string, detail string)) Option {
	return func(w *Watcher) {
		w.onEvent = fn
	}
}

// New creates a watcher for the corpus described by opts.
func New(idx *indexer.Indexer, m *store.Manager, opts indexer.BuildOptions, options ...Option) (*Watcher, error) {
	absRoot, err := filepath.Abs(opts.Path)
	if err != nil {
		return nil, err
	}
	opts.Path = absRoot
	opts.Force = false

	w := &Watcher{
		root:         absRoot,
		indexer:      idx,
		manager:      m,
		opts:         opts,
		pending:      make(map[string]fsnotify.Op),
		debounceTime: time.Second,
		onEvent:      func(string, string) {},
	}

	for _, opt := range options {
		opt(w)
	}

	return w, nil
}

// Root returns the watched directory.
func (w *Watcher) Root() string {
	return w.root
}

// Start brings the store up to date and then watches for changes. Blocks
// until the context is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := w.addDirectories(watcher); err != nil {
		return err
	}

	w.rebuild(ctx)
	log.Info("Watching for document changes", "root", w.root)

	go w.processDebounced(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event, watcher)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error("Watcher error", "error", err)
		}
	}
}

// addDirectories recursively adds all directories to the watcher.
func (w *Watcher) addDirectories(watcher *fsnotify.Watcher) error {
	return filepath.WalkDir(w.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}

		if !d.IsDir() {
			return nil
		}

		if path != w.root && w.shouldSkipDir(d.Name()) {
			return filepath.SkipDir
		}

		if err := watcher.Add(path); err != nil {
			log.Debug("Failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

var skipDirs = []string{
	"node_modules", "vendor", "dist", "build", "__pycache__", "venv",
}

// shouldSkipDir returns true if directory should not be watched.
func (w *Watcher) shouldSkipDir(name string) bool {
	return strings.HasPrefix(name, ".") || slices.Contains(skipDirs, name)
}

// handleEvent records a change to a document. New directories are watched.
func (w *Watcher) handleEvent(event fsnotify.Event, watcher *fsnotify.Watcher) {
	path := event.Name
	name := filepath.Base(path)

	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~$") {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if watcher != nil && !w.shouldSkipDir(name) {
				if err := w.addDirectories(watcher); err != nil {
					log.Debug("Failed to watch new directory", "path", path, "error", err)
				}
			}
			w.record(path, event.Op)
			return
		}
	}

	if event.Op == fsnotify.Chmod || !extract.Supported(path) {
		return
	}

	w.record(path, event.Op)
}

func (w *Watcher) record(path string, op fsnotify.Op) {
	w.pendingMu.Lock()
	w.pending[path] |= op
	w.lastEvent = time.Now()
	w.pendingMu.Unlock()

	relPath, err := filepath.Rel(w.root, path)
	if err != nil {
		relPath = path
	}
	log.Debug("Document changed", "path", relPath, "op", op)
	w.onEvent(EventChanged, filepath.ToSlash(relPath))
}

// Pending returns the number of changed paths awaiting a rebuild.
func (w *Watcher) Pending() int {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	return len(w.pending)
}

// processDebounced checks for quiet periods and flushes pending changes.
func (w *Watcher) processDebounced(ctx context.Context) {
	ticker := time.NewTicker(w.debounceTime / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.pendingMu.Lock()
			quiet := len(w.pending) > 0 && time.Since(w.lastEvent) >= w.debounceTime
			w.pendingMu.Unlock()
			if quiet {
				w.Flush(ctx)
			}
		}
	}
}

// Flush rebuilds the store if any change is pending.
func (w *Watcher) Flush(ctx context.Context) {
	w.pendingMu.Lock()
	if len(w.pending) == 0 {
		w.pendingMu.Unlock()
		return
	}
	changed := len(w.pending)
	w.pending = make(map[string]fsnotify.Op)
	w.pendingMu.Unlock()

	log.Info("Documents changed", "count", changed)
	w.rebuild(ctx)
}

// rebuild brings the store in line with the corpus. Ensure compares
// fingerprints, so changes that leave every document's content intact do
// not trigger a rebuild.
func (w *Watcher) rebuild(ctx context.Context) {
	w.rebuildMu.Lock()
	defer w.rebuildMu.Unlock()

	if ctx.Err() != nil {
		return
	}

	res, err := w.indexer.Ensure(ctx, w.manager, w.opts)
	if err != nil {
		log.Error("Failed to rebuild store", "error", err)
		w.onEvent(EventFailed, err.Error())
		return
	}

	if !res.Rebuilt {
		w.onEvent(EventCurrent, "")
		return
	}
	log.Info("Store rebuilt", "reason", res.Reason, "fragments", res.Store.Count())
	w.onEvent(EventRebuilt, res.Reason)
}
