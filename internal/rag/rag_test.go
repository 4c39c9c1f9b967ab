package rag

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultPassage(t *testing.T) {
	r := Result{
		Fragment:   Fragment{ID: 7, Source: "manual.pdf", Index: 2, Text: "replace the battery"},
		Similarity: 0.91,
	}

	var p Passage = r
	assert.Equal(t, "replace the battery", p.Text())
	assert.Equal(t, "manual.pdf", p.Source())
	assert.InDelta(t, 0.91, p.Score(), 1e-9)
}

func TestSources(t *testing.T) {
	results := []Result{
		{Fragment: Fragment{Source: "a.md"}},
		{Fragment: Fragment{Source: "b.pdf"}},
		{Fragment: Fragment{Source: "a.md"}},
	}
	assert.Equal(t, []string{"a.md", "b.pdf"}, Sources(results))
	assert.Nil(t, Sources([]Result{}))
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"config", &ConfigError{Field: "overlap", Reason: "must be less than size"}, "invalid overlap: must be less than size"},
		{"provider", &ProviderError{Provider: "ollama", Err: errors.New("connection refused")}, "ollama provider error: connection refused"},
		{"dimension", &DimensionMismatchError{Expected: 4, Got: 3, Index: 2}, "dimension mismatch: vector 2 has 3 dimensions, expected 4"},
		{"empty vector", &DimensionMismatchError{Index: 0}, "dimension mismatch: vector 0 is empty"},
		{"query dimension", &DimensionMismatchError{Expected: 4, Got: 2, Index: -1}, "dimension mismatch: query has 2 dimensions, store has 4"},
		{"count", &CountMismatchError{Expected: 3, Got: 2}, "count mismatch: sent 3 texts, received 2 vectors"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestProviderErrorUnwrap(t *testing.T) {
	inner := errors.New("401 unauthorized")
	err := fmt.Errorf("failed to embed: %w", &ProviderError{Provider: "openai", Err: inner})

	var pe *ProviderError
	assert.True(t, errors.As(err, &pe))
	assert.Equal(t, "openai", pe.Provider)
	assert.ErrorIs(t, err, inner)
}

func TestIsIntegrityError(t *testing.T) {
	assert.True(t, IsIntegrityError(fmt.Errorf("wrap: %w", &DimensionMismatchError{Expected: 2, Got: 1})))
	assert.True(t, IsIntegrityError(&CountMismatchError{Expected: 2, Got: 1}))
	assert.False(t, IsIntegrityError(&ProviderError{Provider: "x", Err: errors.New("boom")}))
	assert.True(t, IsIntegrityError(&InvalidEntryError{Index: 0, Reason: "duplicate fragment id 0"}))
	assert.False(t, IsIntegrityError(nil))
}

func TestCheckFinite(t *testing.T) {
	assert.NoError(t, CheckFinite(Vector{0, -1, 2.5}, 0))

	tests := []struct {
		name  string
		v     Vector
		index int
		want  string
	}{
		{"nan", Vector{1, float32(math.NaN())}, 3, "invalid entry 3: component 1 is NaN"},
		{"positive infinity", Vector{float32(math.Inf(1))}, 0, "invalid entry 0: component 0 is +Inf"},
		{"query", Vector{0, float32(math.Inf(-1))}, -1, "invalid query vector: component 1 is -Inf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckFinite(tt.v, tt.index)
			var inv *InvalidEntryError
			require.ErrorAs(t, err, &inv)
			assert.Equal(t, tt.want, err.Error())
			assert.True(t, IsIntegrityError(err))
		})
	}
}
