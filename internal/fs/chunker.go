package fs

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/nickcecere/docrag/internal/rag"
)

// DefaultSeparators is the recursive separator hierarchy, coarsest first:
// paragraphs, lines, CJK and Latin sentence enders, words, then characters.
var DefaultSeparators = []string{
	"\n\n",
	"\n",
	"。", "！", "？", "；",
	". ", "! ", "? ", "; ",
	" ",
	"",
}

// TextChunker splits text into overlapping chunks.
type TextChunker struct {
	opts ChunkOptions
}

// ParseChunkMode converts a configuration string into a ChunkMode.
func ParseChunkMode(s string) (ChunkMode, error) {
	switch ChunkMode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeFixed:
		return ModeFixed, nil
	case ModeRecursive, "":
		return ModeRecursive, nil
	default:
		return "", &rag.ConfigError{Field: "mode", Reason: fmt.Sprintf("unknown chunking mode %q", s)}
	}
}

// NewTextChunker validates opts and creates a chunker.
func NewTextChunker(opts ChunkOptions) (*TextChunker, error) {
	if opts.Size <= 0 {
		return nil, &rag.ConfigError{Field: "size", Reason: fmt.Sprintf("must be greater than 0, got %d", opts.Size)}
	}
	if opts.Overlap < 0 {
		return nil, &rag.ConfigError{Field: "overlap", Reason: fmt.Sprintf("must not be negative, got %d", opts.Overlap)}
	}
	if opts.Overlap >= opts.Size {
		return nil, &rag.ConfigError{
			Field:  "overlap",
			Reason: fmt.Sprintf("%d must be less than size %d", opts.Overlap, opts.Size),
		}
	}

	mode, err := ParseChunkMode(string(opts.Mode))
	if err != nil {
		return nil, err
	}
	opts.Mode = mode

	if len(opts.Separators) == 0 {
		opts.Separators = DefaultSeparators
	} else if opts.Separators[len(opts.Separators)-1] != "" {
		// the hard character split guarantees every piece fits
		opts.Separators = append(append([]string{}, opts.Separators...), "")
	}

	return &TextChunker{opts: opts}, nil
}

// Split is a convenience wrapper returning only the chunk texts.
func Split(text string, size, overlap int, mode ChunkMode) ([]string, error) {
	c, err := NewTextChunker(ChunkOptions{Size: size, Overlap: overlap, Mode: mode})
	if err != nil {
		return nil, err
	}

	chunks := c.Chunk(text)
	out := make([]string, len(chunks))
	for i, ch := range chunks {
		out[i] = ch.Content
	}
	return out, nil
}

// Options returns the effective chunking options.
func (c *TextChunker) Options() ChunkOptions {
	return c.opts
}

// Chunk splits content into trimmed, non-empty chunks.
func (c *TextChunker) Chunk(content string) []Chunk {
	if content == "" {
		return nil
	}

	if c.opts.Mode == ModeFixed {
		return c.chunkFixed(content)
	}
	return c.chunkRecursive(content)
}

// chunkFixed cuts windows of Size runes, stepping Size-Overlap each time.
func (c *TextChunker) chunkFixed(content string) []Chunk {
	runes := []rune(content)
	n := len(runes)
	step := c.opts.Size - c.opts.Overlap

	var chunks []Chunk
	for start := 0; start < n; start += step {
		end := min(start+c.opts.Size, n)

		if piece := strings.TrimSpace(string(runes[start:end])); piece != "" {
			chunks = append(chunks, Chunk{
				Content:    piece,
				StartChar:  start,
				EndChar:    end,
				ChunkIndex: len(chunks),
			})
		}

		if end == n {
			break
		}
	}

	return chunks
}

// span is a half-open byte range into the text being chunked.
type span struct {
	start, end int
}

// chunkRecursive splits on the separator hierarchy and merges the pieces.
func (c *TextChunker) chunkRecursive(content string) []Chunk {
	spans := c.splitRecursive(content, span{0, len(content)}, c.opts.Separators)

	var chunks []Chunk
	starts := runeCursor{text: content}
	ends := runeCursor{text: content}
	for _, sp := range spans {
		piece := strings.TrimSpace(content[sp.start:sp.end])
		if piece == "" {
			continue
		}
		chunks = append(chunks, Chunk{
			Content:    piece,
			StartChar:  starts.at(sp.start),
			EndChar:    ends.at(sp.end),
			ChunkIndex: len(chunks),
		})
	}

	return chunks
}

// splitRecursive splits sp on the first separator present in it, recursing
// with finer separators into any piece still longer than Size.
func (c *TextChunker) splitRecursive(text string, sp span, separators []string) []span {
	sep := ""
	var finer []string
	for i, s := range separators {
		if s == "" {
			break
		}
		if strings.Contains(text[sp.start:sp.end], s) {
			sep = s
			finer = separators[i+1:]
			break
		}
	}

	var out, pending []span
	for _, p := range splitKeepSeparator(text, sp, sep) {
		if c.length(text, p) <= c.opts.Size {
			pending = append(pending, p)
			continue
		}

		if len(pending) > 0 {
			out = append(out, c.merge(text, pending)...)
			pending = nil
		}
		if len(finer) == 0 {
			out = append(out, p)
		} else {
			out = append(out, c.splitRecursive(text, p, finer)...)
		}
	}

	if len(pending) > 0 {
		out = append(out, c.merge(text, pending)...)
	}
	return out
}

// merge greedily joins adjacent pieces up to Size, starting each new window
// with the trailing pieces of the previous one that fit within Overlap.
func (c *TextChunker) merge(text string, pieces []span) []span {
	var out, window []span
	total := 0

	for _, p := range pieces {
		l := c.length(text, p)

		if total+l > c.opts.Size && len(window) > 0 {
			out = append(out, span{window[0].start, window[len(window)-1].end})

			for len(window) > 0 && (total > c.opts.Overlap || total+l > c.opts.Size) {
				total -= c.length(text, window[0])
				window = window[1:]
			}
		}

		window = append(window, p)
		total += l
	}

	if len(window) > 0 {
		out = append(out, span{window[0].start, window[len(window)-1].end})
	}
	return out
}

func (c *TextChunker) length(text string, sp span) int {
	return utf8.RuneCountInString(text[sp.start:sp.end])
}

// splitKeepSeparator cuts sp after every occurrence of sep, so the pieces
// stay contiguous. An empty separator cuts between runes.
func splitKeepSeparator(text string, sp span, sep string) []span {
	var pieces []span

	if sep == "" {
		for i := sp.start; i < sp.end; {
			_, size := utf8.DecodeRuneInString(text[i:sp.end])
			pieces = append(pieces, span{i, i + size})
			i += size
		}
		return pieces
	}

	pos := sp.start
	for pos < sp.end {
		idx := strings.Index(text[pos:sp.end], sep)
		if idx < 0 {
			break
		}
		cut := pos + idx + len(sep)
		pieces = append(pieces, span{pos, cut})
		pos = cut
	}
	if pos < sp.end {
		pieces = append(pieces, span{pos, sp.end})
	}
	return pieces
}

// runeCursor converts non-decreasing byte offsets into rune offsets
// without rescanning the text from the start each time.
type runeCursor struct {
	text    string
	byteOff int
	runeOff int
}

func (r *runeCursor) at(b int) int {
	if b < r.byteOff {
		r.byteOff, r.runeOff = 0, 0
	}
	r.runeOff += utf8.RuneCountInString(r.text[r.byteOff:b])
	r.byteOff = b
	return r.runeOff
}
