// Package fs walks a document corpus and splits extracted text into fragments.
package fs

import "time"

// FileInfo represents metadata about a document on disk.
type FileInfo struct {
	Path    string    // Absolute path to the file
	RelPath string    // Path relative to the root, used as the fragment source
	Size    int64     // File size in bytes
	ModTime time.Time // Last modification time
	Hash    string    // xxhash of file contents
}

// Chunk is one piece of a document's text.
type Chunk struct {
	Content    string `json:"content"`     // Trimmed text of the chunk
	StartChar  int    `json:"start_char"`  // Rune offset where the untrimmed window starts
	EndChar    int    `json:"end_char"`    // Rune offset where the untrimmed window ends (exclusive)
	ChunkIndex int    `json:"chunk_index"` // Index of this chunk within the document, from 0
}

// ChunkMode selects the splitting strategy.
type ChunkMode string

const (
	// ModeFixed cuts fixed-size character windows.
	ModeFixed ChunkMode = "fixed"
	// ModeRecursive splits on a separator hierarchy and merges small pieces.
	ModeRecursive ChunkMode = "recursive"
)

// WalkOptions configures the file walker.
type WalkOptions struct {
	// Root is the directory to walk, or a single file.
	Root string

	// MaxFileSize is the maximum file size to process (in bytes).
	MaxFileSize int64

	// MaxFileCount is the maximum number of files to process.
	MaxFileCount int

	// IgnorePatterns are additional patterns to ignore (gitignore syntax).
	IgnorePatterns []string

	// IncludeHidden includes hidden files and directories.
	IncludeHidden bool

	// UseGitignore respects .gitignore and .docragignore files at the root.
	UseGitignore bool

	// Extensions limits to specific file extensions (e.g., ".pdf", ".md").
	// Empty means all files.
	Extensions []string

	// BinaryExtensions are container formats (pdf, docx, xlsx) that are
	// binary on disk and must not be rejected by content sniffing.
	BinaryExtensions []string
}

// ChunkOptions configures the chunker.
type ChunkOptions struct {
	// Size is the maximum fragment length in characters.
	Size int

	// Overlap is the number of characters repeated across fragment boundaries.
	Overlap int

	// Mode selects fixed-window or recursive-separator splitting.
	Mode ChunkMode

	// Separators override the recursive separator hierarchy, coarsest first.
	Separators []string
}

// DefaultWalkOptions returns sensible defaults for walking.
func DefaultWalkOptions() WalkOptions {
	return WalkOptions{
		MaxFileSize:  50 << 20,
		MaxFileCount: 10000,
		UseGitignore: true,
	}
}

// DefaultChunkOptions returns sensible defaults for chunking.
func DefaultChunkOptions() ChunkOptions {
	return ChunkOptions{
		Size:    500,
		Overlap: 50,
		Mode:    ModeRecursive,
	}
}

// Walker walks a corpus and yields document files.
type Walker interface {
	// Walk walks the corpus and calls fn for each file.
	// The walk stops if fn returns an error.
	Walk(fn func(FileInfo) error) error

	// Stats returns statistics about the walk.
	Stats() WalkStats
}

// WalkStats contains statistics from a corpus walk.
type WalkStats struct {
	FilesFound   int   // Total files found
	FilesSkipped int   // Files skipped due to size/pattern/etc
	DirsSkipped  int   // Directories skipped
	TotalBytes   int64 // Total bytes of files found
	SkippedBytes int64 // Total bytes of skipped files
}

// Chunker splits document text into chunks.
type Chunker interface {
	Chunk(content string) []Chunk
}
