package fs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHashContent tests content hashing.
func TestHashContent(t *testing.T) {
	content := []byte("hello world")
	hash1 := HashContent(content)
	hash2 := HashContent(content)
	assert.Equal(t, hash1, hash2)

	hash3 := HashContent([]byte("hello world!"))
	assert.NotEqual(t, hash1, hash3)

	// 64-bit hash as hex
	assert.Len(t, hash1, 16)
}

// TestIsBinaryContent tests binary detection.
func TestIsBinaryContent(t *testing.T) {
	assert.False(t, isBinaryContent([]byte("Hello, World!\n")))
	assert.False(t, isBinaryContent([]byte("line1\nline2\tindented")))
	assert.False(t, isBinaryContent([]byte("电池更换步骤")))
	assert.True(t, isBinaryContent([]byte("hello\x00world")))
	assert.False(t, isBinaryContent([]byte{}))
}

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for path, content := range files {
		fullPath := filepath.Join(root, path)
		require.NoError(t, os.MkdirAll(filepath.Dir(fullPath), 0755))
		require.NoError(t, os.WriteFile(fullPath, []byte(content), 0644))
	}
}

func walkRelPaths(t *testing.T, opts WalkOptions) []string {
	t.Helper()
	walker, err := NewFileWalker(opts)
	require.NoError(t, err)

	var found []string
	require.NoError(t, walker.Walk(func(info FileInfo) error {
		found = append(found, info.RelPath)
		return nil
	}))
	return found
}

func TestFileWalker(t *testing.T) {
	tmpDir := t.TempDir()

	writeFiles(t, tmpDir, map[string]string{
		"manual.md":             "# Battery\nReplace it.\n",
		"faq.txt":               "Q: How?\nA: Like this.\n",
		"report.pdf":            "%PDF-1.4\x00\x01\x02binary",
		"guide/setup.md":        "Setup steps\n",
		"drafts/wip.md":         "not ready\n",
		".hidden.md":            "hidden file",
		"~$manual.docx":         "office lock",
		"node_modules/x/doc.md": "vendored",
		"index.db":              "sqlite",
	})
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".gitignore"), []byte("node_modules/\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".docragignore"), []byte("drafts/\n"), 0644))

	docExts := []string{".md", ".txt", ".pdf"}

	t.Run("walks documents honouring ignore files", func(t *testing.T) {
		found := walkRelPaths(t, WalkOptions{
			Root:             tmpDir,
			UseGitignore:     true,
			Extensions:       docExts,
			BinaryExtensions: []string{".pdf"},
		})

		assert.ElementsMatch(t, []string{"manual.md", "faq.txt", "report.pdf", "guide/setup.md"}, found)
	})

	t.Run("rejects binary content without a binary extension", func(t *testing.T) {
		found := walkRelPaths(t, WalkOptions{
			Root:         tmpDir,
			UseGitignore: true,
			Extensions:   docExts,
		})

		assert.NotContains(t, found, "report.pdf")
		assert.Contains(t, found, "manual.md")
	})

	t.Run("respects extension filter", func(t *testing.T) {
		found := walkRelPaths(t, WalkOptions{
			Root:         tmpDir,
			UseGitignore: true,
			Extensions:   []string{"txt"},
		})
		assert.Equal(t, []string{"faq.txt"}, found)
	})

	t.Run("applies configured patterns", func(t *testing.T) {
		found := walkRelPaths(t, WalkOptions{
			Root:           tmpDir,
			UseGitignore:   true,
			Extensions:     docExts,
			IgnorePatterns: []string{"guide/"},
		})
		for _, f := range found {
			assert.False(t, strings.HasPrefix(f, "guide/"), "unexpected file: %s", f)
		}
	})

	t.Run("respects max file count", func(t *testing.T) {
		found := walkRelPaths(t, WalkOptions{
			Root:         tmpDir,
			MaxFileCount: 2,
			Extensions:   docExts,
		})
		assert.Len(t, found, 2)
	})

	t.Run("respects max file size", func(t *testing.T) {
		found := walkRelPaths(t, WalkOptions{
			Root:        tmpDir,
			MaxFileSize: 15,
			Extensions:  []string{".md"},
		})
		assert.Contains(t, found, "guide/setup.md")
		assert.NotContains(t, found, "manual.md")
	})

	t.Run("includes hidden files when configured", func(t *testing.T) {
		found := walkRelPaths(t, WalkOptions{
			Root:          tmpDir,
			IncludeHidden: true,
			Extensions:    []string{".md"},
		})
		assert.Contains(t, found, ".hidden.md")
	})

	t.Run("provides stats and hashes", func(t *testing.T) {
		walker, err := NewFileWalker(WalkOptions{Root: tmpDir, UseGitignore: true, Extensions: docExts})
		require.NoError(t, err)

		files, err := Collect(walker)
		require.NoError(t, err)
		require.NotEmpty(t, files)
		for _, f := range files {
			assert.Len(t, f.Hash, 16)
			assert.True(t, filepath.IsAbs(f.Path))
		}

		stats := walker.Stats()
		assert.Equal(t, len(files), stats.FilesFound)
		assert.Greater(t, stats.TotalBytes, int64(0))
		assert.Greater(t, stats.FilesSkipped, 0)
	})
}

func TestFileWalkerSingleFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "manual.md")
	require.NoError(t, os.WriteFile(path, []byte("# Manual\n"), 0644))

	found := walkRelPaths(t, WalkOptions{Root: path, Extensions: []string{".md"}})
	assert.Equal(t, []string{"manual.md"}, found)

	found = walkRelPaths(t, WalkOptions{Root: path, Extensions: []string{".pdf"}})
	assert.Empty(t, found)
}

func TestFileWalkerErrors(t *testing.T) {
	_, err := NewFileWalker(WalkOptions{Root: "/nonexistent/path"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestFingerprint(t *testing.T) {
	a := []FileInfo{{RelPath: "a.md", Hash: "1111"}, {RelPath: "b.pdf", Hash: "2222"}}
	b := []FileInfo{{RelPath: "b.pdf", Hash: "2222"}, {RelPath: "a.md", Hash: "1111"}}

	assert.Equal(t, Fingerprint(a), Fingerprint(b), "order independent")
	assert.Len(t, Fingerprint(a), 16)

	changed := []FileInfo{{RelPath: "a.md", Hash: "1112"}, {RelPath: "b.pdf", Hash: "2222"}}
	assert.NotEqual(t, Fingerprint(a), Fingerprint(changed))

	renamed := []FileInfo{{RelPath: "c.md", Hash: "1111"}, {RelPath: "b.pdf", Hash: "2222"}}
	assert.NotEqual(t, Fingerprint(a), Fingerprint(renamed))
}

func TestDefaultOptions(t *testing.T) {
	walkOpts := DefaultWalkOptions()
	assert.Equal(t, int64(50<<20), walkOpts.MaxFileSize)
	assert.Equal(t, 10000, walkOpts.MaxFileCount)
	assert.True(t, walkOpts.UseGitignore)

	chunkOpts := DefaultChunkOptions()
	assert.Equal(t, 500, chunkOpts.Size)
	assert.Equal(t, 50, chunkOpts.Overlap)
	assert.Equal(t, ModeRecursive, chunkOpts.Mode)
}
