package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nickcecere/docrag/internal/config"
	"github.com/nickcecere/docrag/internal/ui"
)

var configShowPath bool

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show configuration",
	Long: `Display current configuration settings and config file locations.

Every setting can also be set from the environment with the DOCRAG_ prefix,
for example DOCRAG_CHUNKING_SIZE=400 or DOCRAG_RETRIEVAL_TOP_K=5.

Examples:
  # Show current configuration
  docrag config

  # Show config file paths
  docrag config --path`,
	RunE: runConfig,
}

func init() {
	configCmd.Flags().BoolVar(&configShowPath, "path", false, "show config file paths")
}

func runConfig(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfg := config.Get()

	if configShowPath {
		fmt.Fprintln(out, ui.SectionTitle.Render("Configuration Paths"))
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Global config: %s\n", config.GlobalConfigPath())
		fmt.Fprintf(out, "Local config:  .docragrc.yaml (searched from cwd upward)\n")
		fmt.Fprintf(out, "Active config: %s\n", config.ConfigFilePath())
		fmt.Fprintf(out, "Store:         %s\n", cfg.Store.Path())
		return nil
	}

	fmt.Fprintln(out, ui.SectionTitle.Render("Current Configuration"))
	fmt.Fprintln(out)

	fmt.Fprintln(out, ui.Bold.Render("Embeddings:"))
	fmt.Fprintf(out, "  Provider: %s\n", cfg.Embeddings.Provider)
	fmt.Fprintf(out, "  Batch Size: %d\n", cfg.Embeddings.BatchSize)
	fmt.Fprintf(out, "  Workers: %d\n", cfg.Embeddings.Workers)
	fmt.Fprintf(out, "  Ollama URL: %s\n", cfg.Embeddings.Ollama.URL)
	fmt.Fprintf(out, "  Ollama Model: %s\n", cfg.Embeddings.Ollama.Model)
	fmt.Fprintf(out, "  OpenAI Model: %s\n", cfg.Embeddings.OpenAI.Model)
	if cfg.Embeddings.OpenAI.BaseURL != "" {
		fmt.Fprintf(out, "  OpenAI Base URL: %s\n", cfg.Embeddings.OpenAI.BaseURL)
	}
	fmt.Fprintf(out, "  OpenAI API Key: %s\n", maskKey(cfg.Embeddings.OpenAI.APIKey))
	fmt.Fprintln(out)

	fmt.Fprintln(out, ui.Bold.Render("LLM:"))
	fmt.Fprintf(out, "  Provider: %s\n", cfg.LLM.Provider)
	fmt.Fprintf(out, "  Temperature: %.2f\n", cfg.LLM.Temperature)
	fmt.Fprintf(out, "  Max Tokens: %d\n", cfg.LLM.MaxTokens)
	fmt.Fprintf(out, "  Ollama URL: %s\n", cfg.LLM.Ollama.URL)
	fmt.Fprintf(out, "  Ollama Model: %s\n", cfg.LLM.Ollama.Model)
	fmt.Fprintf(out, "  OpenAI Model: %s\n", cfg.LLM.OpenAI.Model)
	fmt.Fprintf(out, "  Anthropic Model: %s\n", cfg.LLM.Anthropic.Model)
	fmt.Fprintln(out)

	fmt.Fprintln(out, ui.Bold.Render("Chunking:"))
	fmt.Fprintf(out, "  Mode: %s\n", cfg.Chunking.Mode)
	fmt.Fprintf(out, "  Size: %d\n", cfg.Chunking.Size)
	fmt.Fprintf(out, "  Overlap: %d\n", cfg.Chunking.Overlap)
	if len(cfg.Chunking.Separators) > 0 {
		fmt.Fprintf(out, "  Separators: %q\n", cfg.Chunking.Separators)
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, ui.Bold.Render("Documents:"))
	fmt.Fprintf(out, "  Path: %s\n", cfg.Documents.Path)
	fmt.Fprintf(out, "  Max File Size: %s\n", formatBytes(int64(cfg.Documents.MaxFileSize)))
	fmt.Fprintf(out, "  Max File Count: %d\n", cfg.Documents.MaxFileCount)
	fmt.Fprintln(out)

	fmt.Fprintln(out, ui.Bold.Render("Store:"))
	fmt.Fprintf(out, "  Path: %s\n", cfg.Store.Path())
	fmt.Fprintf(out, "  Rebuild Corrupt: %t\n", cfg.Store.RebuildCorrupt)
	fmt.Fprintln(out)

	fmt.Fprintln(out, ui.Bold.Render("Retrieval:"))
	fmt.Fprintf(out, "  Top K: %d\n", cfg.Retrieval.TopK)
	fmt.Fprintln(out)

	fmt.Fprintln(out, ui.Bold.Render("Ignore Patterns:"))
	fmt.Fprintf(out, "  %d patterns configured\n", len(cfg.Ignore))

	return nil
}

// maskKey shows whether a key is set without printing it.
func maskKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}
