// Package extract turns supported document formats into plain UTF-8 text.
package extract

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// ErrUnsupportedFormat is returned for files with no registered extractor.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// Format describes how one family of extensions is read.
type Format struct {
	Name string

	// Binary formats are never text-sniffed by the walker.
	Binary bool

	extract func(path string) (string, error)
}

var formats = map[string]Format{
	".pdf":      {Name: "pdf", Binary: true, extract: extractPDF},
	".docx":     {Name: "docx", Binary: true, extract: extractDOCX},
	".xlsx":     {Name: "excel", Binary: true, extract: extractExcel},
	".xlsm":     {Name: "excel", Binary: true, extract: extractExcel},
	".md":       {Name: "markdown", extract: extractMarkdown},
	".markdown": {Name: "markdown", extract: extractMarkdown},
	".csv":      {Name: "csv", extract: extractCSV},
	".txt":      {Name: "text", extract: extractText},
	".html":     {Name: "html", extract: extractHTML},
	".htm":      {Name: "html", extract: extractHTML},
}

// Lookup returns the format registered for path's extension.
func Lookup(path string) (Format, bool) {
	f, ok := formats[strings.ToLower(filepath.Ext(path))]
	return f, ok
}

// Supported reports whether path has a registered extractor.
func Supported(path string) bool {
	_, ok := Lookup(path)
	return ok
}

// Extensions returns every supported extension, sorted.
func Extensions() []string {
	exts := make([]string, 0, len(formats))
	for ext := range formats {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// BinaryExtensions returns the supported extensions whose files are not plain text.
func BinaryExtensions() []string {
	var exts []string
	for ext, f := range formats {
		if f.Binary {
			exts = append(exts, ext)
		}
	}
	sort.Strings(exts)
	return exts
}

// Extract reads the document at path and returns its trimmed text.
func Extract(path string) (string, error) {
	f, ok := Lookup(path)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}

	text, err := f.extract(path)
	if err != nil {
		return "", fmt.Errorf("failed to extract %s %s: %w", f.Name, filepath.Base(path), err)
	}

	return strings.TrimSpace(normalizeNewlines(text)), nil
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
