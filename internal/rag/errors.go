package rag

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrStoreNotFound is returned when no persisted store exists at a path.
	// Callers treat it as a signal to build a fresh store.
	ErrStoreNotFound = errors.New("store not found")

	// ErrStoreCorrupt is returned when a persisted store exists but cannot be
	// read back into a consistent store.
	ErrStoreCorrupt = errors.New("store corrupt")
)

// ConfigError reports an invalid parameter supplied by the caller.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ProviderError wraps a failed call to an embedding or language-model provider.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider error: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// DimensionMismatchError reports a vector whose length disagrees with the
// dimension already fixed for a batch, a store or a query.
type DimensionMismatchError struct {
	Expected int
	Got      int
	// Index is the position of the offending vector, or -1 for a query.
	Index int
}

func (e *DimensionMismatchError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("dimension mismatch: query has %d dimensions, store has %d", e.Got, e.Expected)
	}
	if e.Got == 0 {
		return fmt.Sprintf("dimension mismatch: vector %d is empty", e.Index)
	}
	return fmt.Sprintf("dimension mismatch: vector %d has %d dimensions, expected %d", e.Index, e.Got, e.Expected)
}

// CountMismatchError reports a provider returning a different number of
// vectors than inputs it was given.
type CountMismatchError struct {
	Expected int
	Got      int
}

func (e *CountMismatchError) Error() string {
	return fmt.Sprintf("count mismatch: sent %d texts, received %d vectors", e.Expected, e.Got)
}

// InvalidEntryError reports an entry or vector that cannot be indexed: a
// non-finite component or a fragment id already used in the same store.
type InvalidEntryError struct {
	// Index is the position of the offending entry, or -1 for a query.
	Index  int
	Reason string
}

func (e *InvalidEntryError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("invalid query vector: %s", e.Reason)
	}
	return fmt.Sprintf("invalid entry %d: %s", e.Index, e.Reason)
}

// IsIntegrityError reports whether err is a dimension or count mismatch or
// an invalid entry.
func IsIntegrityError(err error) bool {
	var dim *DimensionMismatchError
	var cnt *CountMismatchError
	var inv *InvalidEntryError
	return errors.As(err, &dim) || errors.As(err, &cnt) || errors.As(err, &inv)
}

// CheckFinite returns an InvalidEntryError for the first NaN or infinite
// component of v. index is reported as given.
func CheckFinite(v Vector, index int) error {
	for j, x := range v {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return &InvalidEntryError{Index: index, Reason: fmt.Sprintf("component %d is %v", j, x)}
		}
	}
	return nil
}
