package store

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"

	"github.com/nickcecere/docrag/internal/rag"
)

func init() {
	// Register sqlite-vec extension
	sqlite_vec.Auto()
}

// Save persists s to path. The store is written to a temporary file in the
// same directory and renamed into place, so readers never see a partial file.
func Save(s *Store, path string) error {
	if s == nil {
		return fmt.Errorf("cannot save a nil store")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	tmpPath := filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", filepath.Base(path), uuid.NewString()))
	if err := write(s, tmpPath); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to move store into place: %w", err)
	}

	log.Debug("Saved store", "path", path, "entries", s.Count(), "dimension", s.Dimension())
	return nil
}

func write(s *Store, path string) error {
	db, err := sql.Open("sqlite3", dsn(path, url.Values{
		"mode":          {"rwc"},
		"_journal_mode": {"DELETE"},
		"_synchronous":  {"FULL"},
	}))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := initSchema(tx); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	if s.Dimension() > 0 {
		if err := createVectorTable(tx, s.Dimension()); err != nil {
			return fmt.Errorf("failed to create vector table: %w", err)
		}
	}

	info := s.Info()
	createdAt := info.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	meta := map[string]string{
		metaName:        info.Name,
		metaModel:       info.Model,
		metaFingerprint: info.Fingerprint,
		metaBuildID:     info.BuildID,
		metaCreatedAt:   createdAt.UTC().Format(time.RFC3339),
		metaDimension:   strconv.Itoa(s.Dimension()),
		metaCount:       strconv.Itoa(s.Count()),
		metaChecksum:    s.Checksum(),
	}
	for k, v := range meta {
		if _, err := tx.Exec("INSERT OR REPLACE INTO store_meta (key, value) VALUES (?, ?)", k, v); err != nil {
			return fmt.Errorf("failed to write metadata %s: %w", k, err)
		}
	}

	fragStmt, err := tx.Prepare(`
		INSERT INTO fragments (position, id, source, chunk_index, content)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare fragment insert: %w", err)
	}
	defer fragStmt.Close()

	var vecStmt *sql.Stmt
	if s.Dimension() > 0 {
		vecStmt, err = tx.Prepare("INSERT INTO fragment_vectors (position, embedding) VALUES (?, ?)")
		if err != nil {
			return fmt.Errorf("failed to prepare vector insert: %w", err)
		}
		defer vecStmt.Close()
	}

	for i, e := range s.entries {
		pos := i + 1
		f := e.Fragment
		if _, err := fragStmt.Exec(pos, f.ID, f.Source, f.Index, f.Text); err != nil {
			return fmt.Errorf("failed to insert fragment %d: %w", f.ID, err)
		}
		if _, err := vecStmt.Exec(pos, serializeVector(e.Vector)); err != nil {
			return fmt.Errorf("failed to insert vector for fragment %d: %w", f.ID, err)
		}
	}

	return tx.Commit()
}

// openReadOnly opens an existing store file without creating it.
func openReadOnly(path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", rag.ErrStoreNotFound, path)
		}
		return nil, fmt.Errorf("failed to stat store: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn(path, url.Values{"mode": {"ro"}}))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, corrupt(path, "cannot open database: %v", err)
	}
	return db, nil
}

// dsn builds a file: URI for path. Each segment is escaped so that '?', '#'
// and '%' in directory names reach SQLite as part of the filename.
func dsn(path string, params url.Values) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	segments := strings.Split(filepath.ToSlash(path), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	escaped := strings.Join(segments, "/")
	if !strings.HasPrefix(escaped, "/") {
		escaped = "/" + escaped
	}
	return "file:" + escaped + "?" + params.Encode()
}

func corrupt(path, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", rag.ErrStoreCorrupt, path, fmt.Sprintf(format, args...))
}

// ReadMeta reads the persisted header of the store at path.
func ReadMeta(path string) (*Meta, error) {
	db, err := openReadOnly(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	return readMeta(db, path)
}

func readMeta(db *sql.DB, path string) (*Meta, error) {
	version, err := schemaVersion(db)
	if err != nil {
		return nil, corrupt(path, "%v", err)
	}
	if version == 0 || version > currentSchemaVersion {
		return nil, corrupt(path, "unsupported schema version %d", version)
	}

	rows, err := db.Query("SELECT key, value FROM store_meta")
	if err != nil {
		return nil, corrupt(path, "cannot read metadata: %v", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, corrupt(path, "cannot read metadata: %v", err)
		}
		values[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, corrupt(path, "cannot read metadata: %v", err)
	}

	for _, k := range []string{metaName, metaModel, metaDimension, metaCount, metaChecksum} {
		if _, ok := values[k]; !ok {
			return nil, corrupt(path, "metadata %q missing", k)
		}
	}

	meta := &Meta{
		Info: Info{
			Name:        values[metaName],
			Model:       values[metaModel],
			Fingerprint: values[metaFingerprint],
			BuildID:     values[metaBuildID],
		},
		SchemaVersion: version,
		Checksum:      values[metaChecksum],
	}
	if meta.Dimension, err = strconv.Atoi(values[metaDimension]); err != nil || meta.Dimension < 0 {
		return nil, corrupt(path, "invalid dimension %q", values[metaDimension])
	}
	if meta.Count, err = strconv.Atoi(values[metaCount]); err != nil || meta.Count < 0 {
		return nil, corrupt(path, "invalid entry count %q", values[metaCount])
	}
	if (meta.Count == 0) != (meta.Dimension == 0) {
		return nil, corrupt(path, "%d entries with dimension %d", meta.Count, meta.Dimension)
	}
	if ts := values[metaCreatedAt]; ts != "" {
		meta.CreatedAt, _ = time.Parse(time.RFC3339, ts)
	}

	return meta, nil
}

// Load reads the store persisted at path. A missing file yields
// rag.ErrStoreNotFound; anything structurally wrong yields rag.ErrStoreCorrupt.
func Load(path string) (*Store, error) {
	db, err := openReadOnly(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	meta, err := readMeta(db, path)
	if err != nil {
		return nil, err
	}

	entries, err := readEntries(db, path, meta)
	if err != nil {
		return nil, err
	}

	s, err := Build(meta.Info, entries)
	if err != nil {
		return nil, corrupt(path, "%v", err)
	}
	if s.Dimension() != meta.Dimension {
		return nil, corrupt(path, "dimension %d recorded, %d found", meta.Dimension, s.Dimension())
	}
	if sum := s.Checksum(); sum != meta.Checksum {
		return nil, corrupt(path, "checksum mismatch: recorded %s, computed %s", meta.Checksum, sum)
	}

	log.Debug("Loaded store", "path", path, "entries", s.Count(), "dimension", s.Dimension())
	return s, nil
}

func readEntries(db *sql.DB, path string, meta *Meta) ([]rag.Entry, error) {
	rows, err := db.Query("SELECT position, id, source, chunk_index, content FROM fragments ORDER BY position")
	if err != nil {
		return nil, corrupt(path, "cannot read fragments: %v", err)
	}
	defer rows.Close()

	var entries []rag.Entry
	positions := make(map[int64]int)
	for rows.Next() {
		var pos int64
		var f rag.Fragment
		if err := rows.Scan(&pos, &f.ID, &f.Source, &f.Index, &f.Text); err != nil {
			return nil, corrupt(path, "cannot read fragment: %v", err)
		}
		positions[pos] = len(entries)
		entries = append(entries, rag.Entry{Fragment: f})
	}
	if err := rows.Err(); err != nil {
		return nil, corrupt(path, "cannot read fragments: %v", err)
	}

	if len(entries) != meta.Count {
		return nil, corrupt(path, "%d entries recorded, %d found", meta.Count, len(entries))
	}
	if meta.Count == 0 {
		return entries, nil
	}

	vrows, err := db.Query("SELECT position, vec_length(embedding), embedding FROM fragment_vectors")
	if err != nil {
		return nil, corrupt(path, "cannot read vectors: %v", err)
	}
	defer vrows.Close()

	for vrows.Next() {
		var pos int64
		var length int
		var blob []byte
		if err := vrows.Scan(&pos, &length, &blob); err != nil {
			return nil, corrupt(path, "cannot read vector: %v", err)
		}
		idx, ok := positions[pos]
		if !ok {
			return nil, corrupt(path, "vector %d has no fragment", pos)
		}
		if length != meta.Dimension || len(blob) != meta.Dimension*4 {
			return nil, corrupt(path, "vector %d has %d dimensions, expected %d", pos, length, meta.Dimension)
		}
		vec, err := deserializeVector(blob)
		if err != nil {
			return nil, corrupt(path, "vector %d: %v", pos, err)
		}
		entries[idx].Vector = vec
	}
	if err := vrows.Err(); err != nil {
		return nil, corrupt(path, "cannot read vectors: %v", err)
	}

	for _, e := range entries {
		if e.Vector == nil {
			return nil, corrupt(path, "fragment %d has no vector", e.Fragment.ID)
		}
	}

	return entries, nil
}

// Remove deletes the store file at path and any SQLite side files.
func Remove(path string) error {
	for _, p := range []string{path, path + "-wal", path + "-shm", path + "-journal"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove %s: %w", p, err)
		}
	}
	return nil
}
