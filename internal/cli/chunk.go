package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/nickcecere/docrag/internal/config"
	"github.com/nickcecere/docrag/internal/extract"
	"github.com/nickcecere/docrag/internal/fs"
	"github.com/nickcecere/docrag/internal/ui"
)

var (
	chunkMode    string
	chunkSize    int
	chunkOverlap int
	chunkJSON    bool
	chunkShow    int
)

// chunkCmd previews how a document is split
var chunkCmd = &cobra.Command{
	Use:   "chunk <file>",
	Short: "Preview how a document is split into fragments",
	Long: `Extract a document and split it with both chunking modes, or only the one
given with --mode, using the configured size and overlap.

Examples:
  # Compare fixed and recursive splitting
  docrag chunk manuals/battery.pdf

  # Try a smaller fragment size
  docrag chunk manuals/battery.pdf --size 200 --overlap 20

  # Dump recursive fragments as JSON
  docrag chunk manuals/battery.pdf --mode recursive --json`,
	Args: cobra.ExactArgs(1),
	RunE: runChunk,
}

func init() {
	chunkCmd.Flags().StringVar(&chunkMode, "mode", "", "only this mode: fixed or recursive")
	chunkCmd.Flags().IntVar(&chunkSize, "size", 0, "maximum fragment length (defaults to chunking.size)")
	chunkCmd.Flags().IntVar(&chunkOverlap, "overlap", -1, "fragment overlap (defaults to chunking.overlap)")
	chunkCmd.Flags().BoolVar(&chunkJSON, "json", false, "output fragments as JSON")
	chunkCmd.Flags().IntVarP(&chunkShow, "show", "n", 3, "fragments to preview per mode")
}

// chunkReport summarizes one chunking mode over a document.
type chunkReport struct {
	Mode          fs.ChunkMode `json:"mode"`
	Size          int          `json:"size"`
	Overlap       int          `json:"overlap"`
	Count         int          `json:"count"`
	AverageLength float64      `json:"average_length"`
	Fragments     []fs.Chunk   `json:"fragments"`
}

func runChunk(cmd *cobra.Command, args []string) error {
	path := args[0]
	cfg := config.Get()

	size := cfg.Chunking.Size
	if chunkSize > 0 {
		size = chunkSize
	}
	overlap := cfg.Chunking.Overlap
	if chunkOverlap >= 0 {
		overlap = chunkOverlap
	}

	modes := []fs.ChunkMode{fs.ModeFixed, fs.ModeRecursive}
	if chunkMode != "" {
		mode, err := fs.ParseChunkMode(chunkMode)
		if err != nil {
			return err
		}
		modes = []fs.ChunkMode{mode}
	}

	text, err := extract.Extract(path)
	if err != nil {
		return fmt.Errorf("failed to extract %s: %w", path, err)
	}

	reports := make([]chunkReport, 0, len(modes))
	for _, mode := range modes {
		report, err := chunkDocument(text, fs.ChunkOptions{
			Size:       size,
			Overlap:    overlap,
			Mode:       mode,
			Separators: cfg.Chunking.Separators,
		})
		if err != nil {
			return err
		}
		reports = append(reports, report)
	}

	out := cmd.OutOrStdout()
	if chunkJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	}

	fmt.Fprintln(out, ui.Header.Render("Chunking "+filepath.Base(path)))
	fmt.Fprintf(out, "Extracted: %d characters\n", utf8.RuneCountInString(text))
	for _, r := range reports {
		printChunkReport(out, r, chunkShow)
	}
	return nil
}

// chunkDocument splits text and summarizes the result.
func chunkDocument(text string, opts fs.ChunkOptions) (chunkReport, error) {
	chunker, err := fs.NewTextChunker(opts)
	if err != nil {
		return chunkReport{}, err
	}

	chunks := chunker.Chunk(text)
	report := chunkReport{
		Mode:      opts.Mode,
		Size:      opts.Size,
		Overlap:   opts.Overlap,
		Count:     len(chunks),
		Fragments: chunks,
	}
	if report.Fragments == nil {
		report.Fragments = []fs.Chunk{}
	}

	total := 0
	for _, ch := range chunks {
		total += utf8.RuneCountInString(ch.Content)
	}
	if len(chunks) > 0 {
		report.AverageLength = float64(total) / float64(len(chunks))
	}
	return report, nil
}

func printChunkReport(w io.Writer, r chunkReport, show int) {
	fmt.Fprintln(w, ui.SectionTitle.Render(fmt.Sprintf("%s (size %d, overlap %d)", r.Mode, r.Size, r.Overlap)))
	fmt.Fprintf(w, "  Fragments:      %d\n", r.Count)
	fmt.Fprintf(w, "  Average length: %.1f\n", r.AverageLength)

	for i, ch := range r.Fragments {
		if i >= show {
			if rest := len(r.Fragments) - show; rest > 0 {
				fmt.Fprintln(w, ui.Dim.Render(fmt.Sprintf("  ... and %d more", rest)))
			}
			break
		}
		fmt.Fprintf(w, "  %s %s\n", ui.FormatLabel(ch.ChunkIndex),
			ui.Dim.Render(fmt.Sprintf("chars %d-%d", ch.StartChar, ch.EndChar)))
		fmt.Fprintln(w, ui.Excerpt.Render(excerpt(ch.Content, 100)))
	}
}
