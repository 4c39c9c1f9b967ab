// Package store holds the immutable in-memory vector store, its SQLite
// persistence, and the manager that swaps rebuilt stores in place.
package store

import "time"

// Info describes how and from what a store was built.
type Info struct {
	Name        string    `json:"name"`
	Model       string    `json:"model"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	BuildID     string    `json:"build_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Meta is the persisted header of a store, readable without loading vectors.
type Meta struct {
	Info
	SchemaVersion int    `json:"schema_version"`
	Dimension     int    `json:"dimension"`
	Count         int    `json:"count"`
	Checksum      string `json:"checksum"`
}

// Metadata keys in the store_meta table.
const (
	metaName        = "name"
	metaModel       = "model"
	metaFingerprint = "fingerprint"
	metaBuildID     = "build_id"
	metaCreatedAt   = "created_at"
	metaDimension   = "dimension"
	metaCount       = "entry_count"
	metaChecksum    = "checksum"
)
