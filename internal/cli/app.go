package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nickcecere/docrag/internal/config"
	"github.com/nickcecere/docrag/internal/embeddings"
	"github.com/nickcecere/docrag/internal/indexer"
	"github.com/nickcecere/docrag/internal/llm"
	"github.com/nickcecere/docrag/internal/rag"
	"github.com/nickcecere/docrag/internal/retriever"
	"github.com/nickcecere/docrag/internal/store"
	"github.com/nickcecere/docrag/internal/ui"
)

// app is the set of services a command works with, wired from one config.
type app struct {
	cfg       *config.Config
	manager   *store.Manager
	batcher   *embeddings.Batcher
	indexer   *indexer.Indexer
	retriever *retriever.Retriever
}

func newApp(cfg *config.Config) (*app, error) {
	batcher, err := embeddings.NewBatcherFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding service: %w", err)
	}

	idx, err := indexer.New(batcher, cfg)
	if err != nil {
		return nil, err
	}

	m := store.NewManager(cfg.Store.Path(), cfg.Store.RebuildCorrupt)
	return &app{
		cfg:       cfg,
		manager:   m,
		batcher:   batcher,
		indexer:   idx,
		retriever: retriever.New(m, batcher),
	}, nil
}

// qa creates the question answering service. The model is only contacted
// when a question is asked.
func (a *app) qa() (*llm.QAService, error) {
	svc, err := llm.NewService(a.cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM service: %w", err)
	}
	return llm.NewQAService(svc, a.retriever, llm.CompletionOptionsFromConfig(a.cfg)), nil
}

// buildOptions describes the corpus at path, or the configured documents
// directory when path is empty.
func (a *app) buildOptions(path string) (indexer.BuildOptions, error) {
	if path == "" {
		path = a.cfg.Documents.Path
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return indexer.BuildOptions{}, fmt.Errorf("failed to resolve path: %w", err)
	}
	if _, err := os.Stat(absPath); err != nil {
		return indexer.BuildOptions{}, fmt.Errorf("path does not exist: %s", absPath)
	}
	return indexer.BuildOptions{
		Path:      absPath,
		StoreName: a.cfg.Store.Name,
	}, nil
}

// ensure builds or loads the store before a query. A missing corpus
// directory is not an error here: queries then run against whatever store
// exists, which may be none.
func (a *app) ensure(ctx context.Context) error {
	opts, err := a.buildOptions("")
	if err != nil {
		log.Debug("Skipping store sync", "error", err)
		return nil
	}

	stop := startSpinner("Checking document store")
	res, err := a.indexer.Ensure(ctx, a.manager, opts)
	stop()
	if err != nil {
		return err
	}
	if res.Rebuilt {
		fmt.Fprintf(os.Stderr, "Built store %s (%s): %d fragments\n\n",
			res.Store.Name(), res.Reason, res.Store.Count())
	}
	return nil
}

// checkK rejects a negative --k. Zero means the configured default.
func checkK(k int) error {
	if k < 0 {
		return &rag.ConfigError{Field: "k", Reason: fmt.Sprintf("must be at least 1, got %d", k)}
	}
	return nil
}

// topK resolves a --k flag against the configured default.
func (a *app) topK(k int) int {
	if k > 0 {
		return k
	}
	return a.cfg.Retrieval.TopK
}

// commandContext returns a context cancelled on SIGINT or SIGTERM.
func commandContext(message string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case sig := <-sigCh:
			if message != "" {
				fmt.Fprintln(os.Stderr, "\n"+message)
			}
			log.Debug("Received signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// startSpinner draws an animated spinner on stderr until the returned
// function is called. Nothing is drawn when stderr is not a terminal.
func startSpinner(message string) func() {
	if !stderrIsTerminal() {
		return func() {}
	}
	stopCh := make(chan struct{})
	doneCh := make(chan struct{})
	go showSpinner(message, stopCh, doneCh)
	return func() {
		close(stopCh)
		<-doneCh
	}
}

// stderrIsTerminal reports whether progress output goes to a terminal.
func stderrIsTerminal() bool {
	fi, err := os.Stderr.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}

// showSpinner displays an animated spinner until stopCh is closed.
func showSpinner(message string, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	ticker := time.NewTicker(80 * time.Millisecond)
	defer ticker.Stop()
	defer close(doneCh)

	i := 0
	for {
		select {
		case <-stopCh:
			fmt.Fprint(os.Stderr, "\r\033[2K")
			return
		case <-ticker.C:
			fmt.Fprintf(os.Stderr, "\r%s %s", ui.Highlight.Render(frames[i]), message)
			i = (i + 1) % len(frames)
		}
	}
}

// truncatePath shortens a path for display.
func truncatePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	return "..." + path[len(path)-maxLen+3:]
}

// formatBytes formats bytes as human-readable string.
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// formatTime formats a time for display.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}

	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return "today at " + t.Local().Format("15:04")
	}
	if t.Year() == now.Year() {
		return t.Local().Format("Jan 2 at 15:04")
	}
	return t.Local().Format("Jan 2, 2006 at 15:04")
}
