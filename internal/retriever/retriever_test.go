package retriever

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickcecere/docrag/internal/rag"
	"github.com/nickcecere/docrag/internal/store"
)

// mockEmbedder maps known queries to fixed vectors and counts calls.
type mockEmbedder struct {
	vectors map[string]rag.Vector
	err     error
	calls   int
}

func (m *mockEmbedder) EmbedQuery(ctx context.Context, query string) (rag.Vector, error) {
	m.calls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.err != nil {
		return nil, m.err
	}
	v, ok := m.vectors[query]
	if !ok {
		return nil, fmt.Errorf("unexpected query %q", query)
	}
	return v, nil
}

// errSource always fails to provide a store.
type errSource struct{ err error }

func (e errSource) Current() (*store.Store, error) { return nil, e.err }

func createTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Build(store.Info{Name: "manuals", Model: "test-model"}, []rag.Entry{
		{Fragment: rag.Fragment{ID: 0, Source: "battery.md", Index: 0, Text: "Replace the battery every two years."}, Vector: rag.Vector{1, 0, 0, 0}},
		{Fragment: rag.Fragment{ID: 1, Source: "screen.md", Index: 0, Text: "Calibrate the screen."}, Vector: rag.Vector{0, 1, 0, 0}},
		{Fragment: rag.Fragment{ID: 2, Source: "battery.md", Index: 1, Text: "Use only approved chargers."}, Vector: rag.Vector{0.9, 0.1, 0, 0}},
	})
	require.NoError(t, err)
	return st
}

func newEmbedder() *mockEmbedder {
	return &mockEmbedder{vectors: map[string]rag.Vector{
		"battery": {1, 0, 0, 0},
		"screen":  {0, 1, 0, 0},
		"wrong":   {1, 0},
	}}
}

func TestRetrieve(t *testing.T) {
	r := New(Static{Store: createTestStore(t)}, newEmbedder())

	results, err := r.Retrieve(context.Background(), "battery", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, 0, results[0].Fragment.ID)
	assert.Equal(t, 2, results[1].Fragment.ID)
	assert.Equal(t, "battery.md", results[0].Source())
	assert.Equal(t, 1, results[1].Fragment.Index)
	assert.Equal(t, []string{"battery.md"}, rag.Sources(results))
}

func TestRetrieveTopK(t *testing.T) {
	r := New(Static{Store: createTestStore(t)}, newEmbedder())

	results, err := r.Retrieve(context.Background(), "screen", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "screen.md", results[0].Source())

	results, err = r.Retrieve(context.Background(), "screen", 50)
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestRetrieveInvalidInput(t *testing.T) {
	emb := newEmbedder()
	r := New(Static{Store: createTestStore(t)}, emb)

	_, err := r.Retrieve(context.Background(), "battery", 0)
	var ce *rag.ConfigError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "k", ce.Field)

	_, err = r.Retrieve(context.Background(), "   ", 3)
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "query", ce.Field)

	assert.Zero(t, emb.calls)
}

func TestRetrieveWithoutStore(t *testing.T) {
	tests := []struct {
		name string
		src  Source
	}{
		{"nil store", Static{}},
		{"not found", errSource{fmt.Errorf("%w: x.db", rag.ErrStoreNotFound)}},
		{"missing file", store.NewManager(filepath.Join(t.TempDir(), "missing.db"), false)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emb := newEmbedder()
			results, err := New(tt.src, emb).Retrieve(context.Background(), "battery", 3)
			require.NoError(t, err)
			assert.Empty(t, results)
			assert.Zero(t, emb.calls, "no embedding call without a store")
		})
	}

	t.Run("empty store", func(t *testing.T) {
		empty, err := store.Build(store.Info{Name: "empty"}, nil)
		require.NoError(t, err)

		results, err := New(Static{Store: empty}, newEmbedder()).Retrieve(context.Background(), "battery", 3)
		require.NoError(t, err)
		assert.Empty(t, results)
	})
}

func TestRetrieveCorruptStore(t *testing.T) {
	src := errSource{fmt.Errorf("%w: x.db: checksum mismatch", rag.ErrStoreCorrupt)}
	_, err := New(src, newEmbedder()).Retrieve(context.Background(), "battery", 3)
	assert.ErrorIs(t, err, rag.ErrStoreCorrupt)
}

func TestRetrieveErrors(t *testing.T) {
	st := createTestStore(t)

	t.Run("embedding failure", func(t *testing.T) {
		emb := newEmbedder()
		emb.err = &rag.ProviderError{Provider: "ollama", Err: errors.New("connection refused")}

		_, err := Retrieve(context.Background(), "battery", 3, st, emb)
		var pe *rag.ProviderError
		assert.True(t, errors.As(err, &pe))
	})

	t.Run("query dimension mismatch", func(t *testing.T) {
		_, err := Retrieve(context.Background(), "wrong", 3, st, newEmbedder())
		var dm *rag.DimensionMismatchError
		assert.True(t, errors.As(err, &dm))
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := Retrieve(ctx, "battery", 3, st, newEmbedder())
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestRetrieveFromManager(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manuals.db")
	m := store.NewManager(path, false)
	require.NoError(t, m.Replace(createTestStore(t)))

	reopened := store.NewManager(path, false)
	results, err := New(reopened, newEmbedder()).Retrieve(context.Background(), "battery", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Replace the battery every two years.", results[0].Text())
}

// TestTruncate tests string truncation.
func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", truncate("hello", 10))

	result := truncate("hello world this is a long string", 10)
	assert.Len(t, result, 10)
	assert.True(t, strings.HasSuffix(result, "..."))

	assert.Equal(t, "hello", truncate("hello", 5))
	assert.Equal(t, "电池更...", truncate("电池更换步骤说明", 6))
}
