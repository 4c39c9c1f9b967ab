package store

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/nickcecere/docrag/internal/rag"
)

// snapshot is the outcome of the last load or swap.
type snapshot struct {
	store *Store
	err   error
}

// Manager owns one persisted store and the snapshot currently served to
// queries. Replacing the snapshot is atomic; searches in flight keep the
// store they started with.
type Manager struct {
	path           string
	discardCorrupt bool

	loadMu  sync.Mutex
	current atomic.Pointer[snapshot]
}

// NewManager creates a manager for the store persisted at path. When
// discardCorrupt is set, a corrupt store is treated as absent.
func NewManager(path string, discardCorrupt bool) *Manager {
	return &Manager{path: path, discardCorrupt: discardCorrupt}
}

// Path returns the store file.
func (m *Manager) Path() string {
	return m.path
}

// Open loads the persisted store, replacing the current snapshot with the
// result, successful or not.
func (m *Manager) Open() (*Store, error) {
	m.loadMu.Lock()
	defer m.loadMu.Unlock()

	s, err := Load(m.path)
	m.current.Store(&snapshot{store: s, err: err})
	return s, err
}

// Current returns the snapshot served to queries, loading it on first use.
func (m *Manager) Current() (*Store, error) {
	if snap := m.current.Load(); snap != nil {
		return snap.store, snap.err
	}
	return m.Open()
}

// NeedsRebuild reports whether the current snapshot should be rebuilt.
func (m *Manager) NeedsRebuild() (bool, error) {
	s, err := m.Current()
	return NeedsRebuild(s, err, m.discardCorrupt)
}

// Replace persists s and then makes it the current snapshot.
func (m *Manager) Replace(s *Store) error {
	if s == nil {
		return fmt.Errorf("cannot replace with a nil store")
	}
	m.loadMu.Lock()
	defer m.loadMu.Unlock()

	if err := Save(s, m.path); err != nil {
		return err
	}

	m.current.Store(&snapshot{store: s})
	log.Debug("Swapped store", "path", m.path, "entries", s.Count())
	return nil
}

// Discard deletes the persisted store. Subsequent reads see it as absent.
func (m *Manager) Discard() error {
	m.loadMu.Lock()
	defer m.loadMu.Unlock()

	if err := Remove(m.path); err != nil {
		return err
	}
	m.current.Store(&snapshot{err: fmt.Errorf("%w: %s", rag.ErrStoreNotFound, m.path)})
	return nil
}

// Meta returns the persisted header without loading vectors.
func (m *Manager) Meta() (*Meta, error) {
	return ReadMeta(m.path)
}

// IsAbsent reports whether err means there is no store to serve.
func IsAbsent(err error) bool {
	return errors.Is(err, rag.ErrStoreNotFound)
}
