package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/docrag/internal/config"
	"github.com/nickcecere/docrag/internal/rag"
	"github.com/nickcecere/docrag/internal/store"
	"github.com/nickcecere/docrag/internal/ui"
)

var statusNoScan bool

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store status and whether it needs a rebuild",
	Long: `Display the persisted store: its file, fragment count, vector dimension,
embedding model, corpus fingerprint and build time. The documents are scanned
to tell whether the store is still current.

Examples:
  # Show status
  docrag status

  # Skip scanning the documents
  docrag status --no-scan`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusNoScan, "no-scan", false, "do not compare the store with the documents")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	m := store.NewManager(cfg.Store.Path(), cfg.Store.RebuildCorrupt)
	out := cmd.OutOrStdout()

	log.Debug("Showing status", "store", m.Path())

	fmt.Fprintln(out, ui.Header.Render("Store Status"))
	fmt.Fprintln(out)
	printField(out, "Path:", m.Path())

	meta, err := m.Meta()
	switch {
	case store.IsAbsent(err):
		printField(out, "Health:", ui.Warning.Render("missing (run 'docrag index')"))
		printConfigSummary(out, cfg)
		return nil
	case err != nil:
		printField(out, "Health:", ui.Error.Render("unreadable: "+err.Error()))
		printConfigSummary(out, cfg)
		return nil
	}

	printField(out, "Store:", ui.Bold.Render(meta.Name))
	printField(out, "Model:", meta.Model)
	printField(out, "Dimension:", fmt.Sprint(meta.Dimension))
	printField(out, "Fragments:", fmt.Sprint(meta.Count))
	printField(out, "Fingerprint:", meta.Fingerprint)
	printField(out, "Built:", formatTime(meta.CreatedAt))
	if meta.BuildID != "" {
		printField(out, "Build ID:", meta.BuildID)
	}
	printField(out, "Health:", storeHealth(m, cfg, meta))

	printConfigSummary(out, cfg)
	return nil
}

// storeHealth loads the store fully and, unless disabled, compares it with
// the documents and the configured embedding model.
func storeHealth(m *store.Manager, cfg *config.Config, meta *store.Meta) string {
	rebuild, err := m.NeedsRebuild()
	if err != nil {
		if errors.Is(err, rag.ErrStoreCorrupt) {
			return ui.Error.Render("corrupt (set store.rebuild_corrupt to rebuild it)")
		}
		return ui.Error.Render(err.Error())
	}
	if rebuild {
		return ui.Warning.Render("needs rebuild (empty or discarded)")
	}
	if statusNoScan {
		return ui.Success.Render("loaded")
	}

	a, err := newApp(cfg)
	if err != nil {
		log.Debug("Cannot check staleness", "error", err)
		return ui.Success.Render("loaded") + ui.Dim.Render(" (embedding provider unavailable)")
	}
	if meta.Model != a.indexer.Model() {
		return ui.Warning.Render(fmt.Sprintf("needs rebuild (model is now %s)", a.indexer.Model()))
	}

	opts, err := a.buildOptions("")
	if err != nil {
		return ui.Success.Render("loaded") + ui.Dim.Render(" (documents path not found)")
	}
	corpus, err := a.indexer.Scan(opts)
	if err != nil {
		return ui.Warning.Render("unknown: " + err.Error())
	}
	if corpus.Fingerprint != meta.Fingerprint {
		return ui.Warning.Render("needs rebuild (documents changed)")
	}
	return ui.Success.Render("up to date")
}

func printField(w io.Writer, label, value string) {
	fmt.Fprintf(w, "  %s %s\n", ui.Dim.Render(fmt.Sprintf("%-12s", label)), value)
}

func printConfigSummary(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, ui.Dim.Render("Configuration:"))
	fmt.Fprintf(w, "  Documents: %s\n", cfg.Documents.Path)
	fmt.Fprintf(w, "  Chunking:  %s, size %d, overlap %d\n", cfg.Chunking.Mode, cfg.Chunking.Size, cfg.Chunking.Overlap)
	fmt.Fprintf(w, "  Embedding: %s\n", cfg.Embeddings.Provider)
	fmt.Fprintf(w, "  Top k:     %d\n", cfg.Retrieval.TopK)
}
