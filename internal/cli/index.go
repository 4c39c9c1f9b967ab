package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/docrag/internal/config"
	"github.com/nickcecere/docrag/internal/indexer"
	"github.com/nickcecere/docrag/internal/store"
	"github.com/nickcecere/docrag/internal/ui"
)

var (
	indexForce   bool
	indexDryRun  bool
	indexStore   string
	indexMode    string
	indexSize    int
	indexOverlap int
	indexIgnore  []string
)

// indexCmd represents the index command
var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Build the document store",
	Long: `Build the document store from a directory (or the configured documents path).

This command will:
1. Discover supported documents in the directory
2. Extract their text and split it into fragments
3. Embed the fragments in batches
4. Save the store to a single SQLite file

An existing store is reused when the documents, the chunking settings and
the embedding model are unchanged.

Examples:
  # Build from the configured documents path
  docrag index

  # Build from a specific directory
  docrag index ./manuals

  # Rebuild with fixed-size fragments
  docrag index --force --mode fixed --size 400 --overlap 40

  # Preview the fragments without embedding
  docrag index --dry-run`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().BoolVarP(&indexForce, "force", "f", false, "rebuild even if the store is current")
	indexCmd.Flags().BoolVarP(&indexDryRun, "dry-run", "d", false, "preview without embedding")
	indexCmd.Flags().StringVar(&indexStore, "store", "", "store name (defaults to store.name)")
	indexCmd.Flags().StringVar(&indexMode, "mode", "", "chunking mode: fixed or recursive")
	indexCmd.Flags().IntVar(&indexSize, "size", 0, "maximum fragment length in characters")
	indexCmd.Flags().IntVar(&indexOverlap, "overlap", 0, "characters shared by adjacent fragments")
	indexCmd.Flags().StringSliceVarP(&indexIgnore, "ignore", "i", nil, "additional patterns to ignore")
}

// indexConfig applies the index flags to a copy of the loaded config.
func indexConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := *config.Get()
	if cmd.Flags().Changed("mode") {
		cfg.Chunking.Mode = strings.ToLower(indexMode)
	}
	if cmd.Flags().Changed("size") {
		cfg.Chunking.Size = indexSize
	}
	if cmd.Flags().Changed("overlap") {
		cfg.Chunking.Overlap = indexOverlap
	}
	if indexStore != "" {
		cfg.Store.Name = indexStore
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg, err := indexConfig(cmd)
	if err != nil {
		return err
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}

	path := ""
	if len(args) > 0 {
		path = args[0]
	}
	opts, err := a.buildOptions(path)
	if err != nil {
		return err
	}
	opts.Force = indexForce
	opts.IgnorePatterns = indexIgnore

	log.Debug("Starting index",
		"path", opts.Path,
		"store", a.manager.Path(),
		"force", indexForce,
		"dry-run", indexDryRun,
	)

	if indexDryRun {
		return runDryRun(a, opts)
	}

	ctx, cancel := commandContext("Interrupted, cleaning up...")
	defer cancel()

	fmt.Println(ui.Header.Render("Indexing " + opts.StoreName))
	fmt.Printf("Path:     %s\n", opts.Path)
	fmt.Printf("Model:    %s\n", a.indexer.Model())
	fmt.Printf("Chunking: %s, size %d, overlap %d\n", cfg.Chunking.Mode, cfg.Chunking.Size, cfg.Chunking.Overlap)
	fmt.Println()

	startTime := time.Now()
	lastUpdate := time.Now()

	opts.OnProgress = func(p indexer.Progress) {
		// Throttle updates to every 100ms
		if time.Since(lastUpdate) < 100*time.Millisecond {
			return
		}
		lastUpdate = time.Now()

		fmt.Printf("\r\033[K")
		read := p.ProcessedFiles + p.SkippedFiles + p.Errors
		switch {
		case read < p.TotalFiles:
			fmt.Printf("Reading: %d/%d documents | %s",
				read, p.TotalFiles, truncatePath(p.CurrentFile, 40))
		case p.TotalChunks > 0:
			pct := float64(p.ProcessedChunks) / float64(p.TotalChunks) * 100
			fmt.Printf("Embedding: %d/%d fragments (%.0f%%)", p.ProcessedChunks, p.TotalChunks, pct)
		}
	}

	res, err := a.indexer.Ensure(ctx, a.manager, opts)

	fmt.Printf("\r\033[K")

	if err != nil {
		if ctx.Err() != nil {
			fmt.Println(ui.Warning.Render("Indexing cancelled"))
			return nil
		}
		return fmt.Errorf("indexing failed: %w", err)
	}

	st := res.Store
	if !res.Rebuilt {
		fmt.Println(ui.Success.Render("Store is up to date."))
	} else {
		fmt.Println(ui.Success.Render("Indexing complete!") + " " + ui.Dim.Render("("+res.Reason+")"))
	}
	fmt.Println()
	fmt.Printf("  Documents: %d\n", len(st.Sources()))
	fmt.Printf("  Fragments: %d\n", st.Count())
	fmt.Printf("  Dimension: %d\n", st.Dimension())
	fmt.Printf("  File:      %s\n", a.manager.Path())
	if res.Rebuilt {
		p := a.indexer.Progress()
		if p.SkippedFiles > 0 || p.Errors > 0 {
			fmt.Printf("  Skipped:   %d empty, %d unreadable\n", p.SkippedFiles, p.Errors)
		}
		fmt.Printf("  Duration:  %s\n", time.Since(startTime).Round(time.Millisecond))
	}

	return nil
}

// runDryRun scans and chunks the corpus without embedding anything.
func runDryRun(a *app, opts indexer.BuildOptions) error {
	fmt.Println(ui.Header.Render("Dry Run - Preview"))
	fmt.Printf("Path: %s\n\n", opts.Path)

	corpus, err := a.indexer.Scan(opts)
	if err != nil {
		return err
	}
	plan, err := a.indexer.Plan(context.Background(), corpus, nil)
	if err != nil {
		return err
	}

	perSource := make(map[string]int)
	for _, f := range plan.Fragments {
		perSource[f.Source]++
	}

	var totalSize int64
	byExt := make(map[string]int)
	for _, f := range corpus.Files {
		totalSize += f.Size
		byExt[strings.ToLower(filepath.Ext(f.RelPath))]++
	}

	exts := make([]string, 0, len(byExt))
	for ext := range byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)

	fmt.Println("Documents by type:")
	for _, ext := range exts {
		fmt.Printf("  %-10s %d\n", ext+":", byExt[ext])
	}
	fmt.Println()
	fmt.Printf("Documents:   %d (%d with text)\n", len(corpus.Files), plan.Documents)
	fmt.Printf("Fragments:   %d\n", len(plan.Fragments))
	fmt.Printf("Total size:  %s\n", formatBytes(totalSize))
	fmt.Printf("Fingerprint: %s\n", corpus.Fingerprint)

	if len(corpus.Files) > 0 {
		fmt.Println("\nFirst 10 documents:")
		for i, f := range corpus.Files {
			if i >= 10 {
				fmt.Printf("  ... and %d more\n", len(corpus.Files)-10)
				break
			}
			fmt.Printf("  %s (%s, %d fragments)\n", f.RelPath, formatBytes(f.Size), perSource[f.RelPath])
		}
	}

	return nil
}

var removeYes bool

// removeCmd deletes the persisted store
var removeCmd = &cobra.Command{
	Use:   "remove",
	Short: "Delete the persisted store",
	Long: `Delete the persisted store file. The next query or index run rebuilds it
from the documents.`,
	Args: cobra.NoArgs,
	RunE: runRemove,
}

func init() {
	removeCmd.Flags().BoolVarP(&removeYes, "yes", "y", false, "do not ask for confirmation")
}

func runRemove(cmd *cobra.Command, args []string) error {
	path := config.Get().Store.Path()

	if _, err := os.Stat(path); err != nil {
		fmt.Printf("No store at %s\n", path)
		return nil
	}

	if !removeYes {
		fmt.Printf("Delete store %s? [y/N]: ", path)
		var confirm string
		_, _ = fmt.Scanln(&confirm)
		if strings.ToLower(confirm) != "y" {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	if err := store.Remove(path); err != nil {
		return fmt.Errorf("failed to delete store: %w", err)
	}

	fmt.Println(ui.Success.Render("Store deleted."))
	return nil
}
