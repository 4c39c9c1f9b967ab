package fs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/charmbracelet/log"
	gitignore "github.com/sabhiram/go-gitignore"
)

// Ignorer defines the interface for pattern matching.
type Ignorer interface {
	MatchesPath(path string) bool
}

// combinedIgnorer matches if any of its ignorers match.
type combinedIgnorer []Ignorer

// MatchesPath returns true if the path matches any ignore pattern.
func (c combinedIgnorer) MatchesPath(path string) bool {
	for _, ig := range c {
		if ig.MatchesPath(path) {
			return true
		}
	}
	return false
}

// ignoreFiles are read from the corpus root when UseGitignore is set.
var ignoreFiles = []string{".gitignore", ".docragignore"}

// FileWalker implements Walker for a directory of documents or a single file.
type FileWalker struct {
	opts      WalkOptions
	single    bool
	ignorer   Ignorer
	stats     WalkStats
	extSet    map[string]bool
	binaryExt map[string]bool
}

// NewFileWalker creates a new file walker.
func NewFileWalker(opts WalkOptions) (*FileWalker, error) {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root path: %w", err)
	}
	opts.Root = root

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("root path does not exist: %w", err)
	}

	w := &FileWalker{
		opts:      opts,
		single:    !info.IsDir(),
		extSet:    extensionSet(opts.Extensions),
		binaryExt: extensionSet(opts.BinaryExtensions),
	}

	w.initIgnorer()
	return w, nil
}

func extensionSet(exts []string) map[string]bool {
	if len(exts) == 0 {
		return nil
	}
	set := make(map[string]bool, len(exts))
	for _, ext := range exts {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		set[strings.ToLower(ext)] = true
	}
	return set
}

// initIgnorer combines configured patterns with ignore files at the root.
func (w *FileWalker) initIgnorer() {
	patterns := append([]string{}, w.opts.IgnorePatterns...)
	patterns = append(patterns, defaultIgnorePatterns...)

	combined := combinedIgnorer{gitignore.CompileIgnoreLines(patterns...)}

	if w.opts.UseGitignore && !w.single {
		for _, name := range ignoreFiles {
			path := filepath.Join(w.opts.Root, name)
			if _, err := os.Stat(path); err != nil {
				continue
			}
			gi, err := gitignore.CompileIgnoreFile(path)
			if err != nil {
				log.Warn("Failed to parse ignore file", "path", path, "error", err)
				continue
			}
			combined = append(combined, gi)
		}
	}

	w.ignorer = combined
}

// Walk traverses the corpus.
func (w *FileWalker) Walk(fn func(FileInfo) error) error {
	w.stats = WalkStats{}

	if w.single {
		info, err := os.Stat(w.opts.Root)
		if err != nil {
			return fmt.Errorf("failed to stat file: %w", err)
		}
		fi, ok := w.inspect(w.opts.Root, filepath.Base(w.opts.Root), info)
		if !ok {
			return nil
		}
		return fn(fi)
	}

	return filepath.WalkDir(w.opts.Root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			log.Debug("Error accessing path", "path", path, "error", err)
			return nil
		}

		relPath, err := filepath.Rel(w.opts.Root, path)
		if err != nil {
			relPath = path
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if path != w.opts.Root && w.shouldSkipDir(d.Name(), relPath) {
				w.stats.DirsSkipped++
				return filepath.SkipDir
			}
			return nil
		}

		if w.opts.MaxFileCount > 0 && w.stats.FilesFound >= w.opts.MaxFileCount {
			return filepath.SkipAll
		}

		if w.shouldSkipFile(d.Name(), relPath) {
			w.stats.FilesSkipped++
			return nil
		}

		info, err := d.Info()
		if err != nil {
			log.Debug("Failed to get file info", "path", path, "error", err)
			return nil
		}

		fi, ok := w.inspect(path, relPath, info)
		if !ok {
			return nil
		}
		return fn(fi)
	})
}

// inspect applies the size, extension and binary filters and hashes the file.
func (w *FileWalker) inspect(path, relPath string, info os.FileInfo) (FileInfo, bool) {
	if w.opts.MaxFileSize > 0 && info.Size() > w.opts.MaxFileSize {
		w.stats.FilesSkipped++
		w.stats.SkippedBytes += info.Size()
		return FileInfo{}, false
	}

	ext := strings.ToLower(filepath.Ext(path))
	if w.extSet != nil && !w.extSet[ext] {
		w.stats.FilesSkipped++
		return FileInfo{}, false
	}

	if !w.binaryExt[ext] {
		if isBinary, err := isBinaryFile(path); err != nil || isBinary {
			w.stats.FilesSkipped++
			return FileInfo{}, false
		}
	}

	hash, err := hashFile(path)
	if err != nil {
		log.Debug("Failed to hash file", "path", path, "error", err)
		w.stats.FilesSkipped++
		return FileInfo{}, false
	}

	w.stats.FilesFound++
	w.stats.TotalBytes += info.Size()

	return FileInfo{
		Path:    path,
		RelPath: relPath,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		Hash:    hash,
	}, true
}

// Stats returns the walk statistics.
func (w *FileWalker) Stats() WalkStats {
	return w.stats
}

// shouldSkipDir checks if a directory should be skipped.
func (w *FileWalker) shouldSkipDir(name, relPath string) bool {
	if name == ".git" {
		return true
	}
	if !w.opts.IncludeHidden && strings.HasPrefix(name, ".") {
		return true
	}
	return w.ignorer != nil && w.ignorer.MatchesPath(relPath+"/")
}

// shouldSkipFile checks if a file should be skipped.
func (w *FileWalker) shouldSkipFile(name, relPath string) bool {
	if !w.opts.IncludeHidden && strings.HasPrefix(name, ".") {
		return true
	}
	return w.ignorer != nil && w.ignorer.MatchesPath(relPath)
}

// Collect walks the corpus and returns every accepted file.
func Collect(w Walker) ([]FileInfo, error) {
	var files []FileInfo
	err := w.Walk(func(fi FileInfo) error {
		files = append(files, fi)
		return nil
	})
	return files, err
}

// Fingerprint identifies a corpus by its relative paths and content hashes,
// independent of walk order.
func Fingerprint(files []FileInfo) string {
	sorted := make([]FileInfo, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].RelPath < sorted[j].RelPath })

	h := xxhash.New()
	for _, f := range sorted {
		h.WriteString(f.RelPath)
		h.WriteString("\x00")
		h.WriteString(f.Hash)
		h.WriteString("\n")
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// hashFile computes the xxhash of a file's contents.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return fmt.Sprintf("%016x", h.Sum64()), nil
}

// HashContent computes the xxhash of content bytes.
func HashContent(content []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(content))
}

// isBinaryFile checks if a file appears to be binary.
func isBinaryFile(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	buf := make([]byte, 8192)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return false, err
	}

	return isBinaryContent(buf[:n]), nil
}

// isBinaryContent checks if content appears to be binary.
func isBinaryContent(content []byte) bool {
	if len(content) == 0 {
		return false
	}

	nonPrintable := 0
	for _, b := range content {
		if b == 0 {
			return true
		}
		if b < 32 && b != '\t' && b != '\n' && b != '\r' {
			nonPrintable++
		}
	}

	// If more than 30% non-printable, consider binary
	return float64(nonPrintable)/float64(len(content)) > 0.3
}

// Default patterns to ignore regardless of configuration.
var defaultIgnorePatterns = []string{
	// Office lock files
	"~\\$*", // the $ is a regexp anchor unless escaped
	".~lock.*",

	// OS files
	".DS_Store",
	"Thumbs.db",

	// Stores and databases
	"*.db",
	"*.db-wal",
	"*.db-shm",
	"*.sqlite",
	"*.sqlite3",
}
