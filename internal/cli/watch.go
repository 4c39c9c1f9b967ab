package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/docrag/internal/config"
	"github.com/nickcecere/docrag/internal/ui"
	"github.com/nickcecere/docrag/internal/watcher"
)

var watchDebounce time.Duration

// watchCmd represents the watch command.
var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Watch the documents and rebuild the store on change",
	Long: `Watch a document directory and rebuild the store after changes.

The store is first brought up to date. After that, any added, changed or
removed document triggers a full rebuild once the directory has been quiet
for the debounce interval. The new store replaces the old one atomically.

Examples:
  # Watch the configured documents path
  docrag watch

  # Watch a specific directory
  docrag watch ./manuals --debounce 3s`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatchCmd,
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", time.Second, "quiet period before rebuilding")
}

func runWatchCmd(cmd *cobra.Command, args []string) error {
	a, err := newApp(config.Get())
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

	ctx, cancel := commandContext("Shutting down...")
	defer cancel()

	w, err := watcher.New(a.indexer, a.manager, opts,
		watcher.WithDebounceTime(watchDebounce),
		watcher.WithEventCallback(func(event, detail string) {
			switch event {
			case watcher.EventRebuilt:
				fmt.Println(ui.Success.Render("Store rebuilt") + " " + ui.Dim.Render("("+detail+")"))
			case watcher.EventFailed:
				fmt.Println(ui.Error.Render("Rebuild failed: " + detail))
			default:
				log.Debug("Watcher event", "event", event, "detail", detail)
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	fmt.Println(ui.Header.Render("Watching for Changes"))
	fmt.Printf("Directory: %s\n", w.Root())
	fmt.Printf("Store:     %s\n", a.manager.Path())
	fmt.Println("Press Ctrl+C to stop.")
	fmt.Println()

	if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
