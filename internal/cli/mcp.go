package cli

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/docrag/internal/config"
	"github.com/nickcecere/docrag/internal/indexer"
	"github.com/nickcecere/docrag/internal/mcp"
	"github.com/nickcecere/docrag/internal/ui"
	"github.com/nickcecere/docrag/internal/watcher"
)

var mcpNoWatch bool

// mcpCmd represents the MCP server command.
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server for AI agent integration",
	Long: `Start a Model Context Protocol (MCP) server over stdin/stdout using JSON-RPC 2.0.

Tools:
  - docrag_retrieve: Top-k fragments for a query
  - docrag_answer:   Answer a question from the documents (when an LLM is configured)
  - docrag_status:   Describe the current store
  - docrag_index:    Bring the store up to date

By default the server also watches the documents path and rebuilds the store
when documents change. Use --no-watch to disable this.`,
	Args: cobra.NoArgs,
	RunE: runMcpCmd,
}

func init() {
	mcpCmd.Flags().BoolVar(&mcpNoWatch, "no-watch", false, "disable background document watching")
}

func runMcpCmd(cmd *cobra.Command, args []string) error {
	// stdout carries the protocol
	ui.SetOutput(os.Stderr, true)

	cfg := config.Get()
	a, err := newApp(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext("")
	defer cancel()

	var opts []mcp.Option
	if qa, err := a.qa(); err != nil {
		log.Warn("Answer tool disabled", "error", err)
	} else {
		opts = append(opts, mcp.WithAnswerer(qa))
	}

	buildOpts, err := a.buildOptions("")
	if err != nil {
		log.Warn("Documents path unavailable, serving the existing store", "error", err)
	} else {
		opts = append(opts, mcp.WithIndexer(a.indexer, buildOpts))
		if !mcpNoWatch {
			go startBackgroundWatcher(ctx, a, buildOpts)
		}
	}

	server := mcp.NewServer(a.manager, a.retriever, cfg.Retrieval.TopK, opts...)
	return server.Run(ctx)
}

// startBackgroundWatcher keeps the store in line with the documents while
// the server runs.
func startBackgroundWatcher(ctx context.Context, a *app, opts indexer.BuildOptions) {
	// let the client finish initializing first
	select {
	case <-ctx.Done():
		return
	case <-time.After(2 * time.Second):
	}

	log.Info("Starting background watcher", "path", opts.Path)

	w, err := watcher.New(a.indexer, a.manager, opts,
		watcher.WithDebounceTime(time.Second),
		watcher.WithEventCallback(func(event, detail string) {
			log.Debug("Background watcher event", "event", event, "detail", detail)
		}),
	)
	if err != nil {
		log.Error("Failed to create watcher", "error", err)
		return
	}

	if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Watcher error", "error", err)
	}
}
