package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/docrag/internal/config"
	"github.com/nickcecere/docrag/internal/rag"
	"github.com/nickcecere/docrag/internal/ui"
)

var (
	askK       int
	askCompare bool
	askOutput  string
	askRaw     bool
	askNoSync  bool
)

// askCmd represents the ask command
var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question from the documents",
	Long: `Retrieve the fragments most similar to the question and let the language
model answer from them alone. When the fragments do not contain the answer,
the model says it does not know.

Examples:
  # Ask a question
  docrag ask "How long is the warranty?"

  # Use more context
  docrag ask "What voids the warranty?" --k 6

  # Compare with the model's answer without documents
  docrag ask "How long is the warranty?" --compare

  # Save the answer as markdown
  docrag ask "How long is the warranty?" -o answers/warranty.md`,
	Args: cobra.ExactArgs(1),
	RunE: runAskCmd,
}

func init() {
	addAskFlags(askCmd)
}

// addAskFlags registers the ask flags on cmd. The root command shares them.
func addAskFlags(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&askK, "k", "k", 0, "number of fragments to use (defaults to retrieval.top_k)")
	cmd.Flags().BoolVar(&askCompare, "compare", false, "also answer without documents for comparison")
	cmd.Flags().StringVarP(&askOutput, "output", "o", "", "write the answer to a markdown file")
	cmd.Flags().BoolVar(&askRaw, "raw", false, "print the answer without markdown rendering")
	cmd.Flags().BoolVar(&askNoSync, "no-sync", false, "do not build the store when it is missing or stale")
}

func runAskCmd(cmd *cobra.Command, args []string) error {
	query := args[0]
	if err := checkK(askK); err != nil {
		return err
	}

	a, err := newApp(config.Get())
	if err != nil {
		return err
	}
	qa, err := a.qa()
	if err != nil {
		return err
	}
	k := a.topK(askK)

	log.Debug("Answering", "query", query, "k", k, "model", qa.Model().ModelName())

	ctx, cancel := commandContext("Interrupted")
	defer cancel()

	if !askNoSync {
		if err := a.ensure(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}

	var direct string
	if askCompare {
		stop := startSpinner("Asking without documents")
		direct, err = qa.AnswerWithoutContext(ctx, query)
		stop()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("answer generation failed: %w", err)
		}
	}

	stop := startSpinner("Generating answer")
	contentCh, errCh, results, err := qa.AnswerStream(ctx, query, k)
	if err != nil {
		stop()
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	var contentBuilder strings.Builder
	for content := range contentCh {
		contentBuilder.WriteString(content)
	}
	stop()

	if err := <-errCh; err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("answer generation failed: %w", err)
	}
	answer := strings.TrimSpace(contentBuilder.String())

	out := cmd.OutOrStdout()
	if askCompare {
		printAnswer(out, "Without documents", direct, nil)
		fmt.Fprintln(out, ui.HorizontalRule(60))
	}
	printAnswer(out, "Answer", answer, results)

	if askOutput != "" {
		if err := writeAnswerFile(askOutput, formatAnswerMarkdown(query, answer, direct, results)); err != nil {
			return err
		}
		fmt.Fprintln(out, ui.Dim.Render("Saved to "+askOutput))
	}

	return nil
}

// printAnswer renders an answer followed by the fragments it was given.
func printAnswer(w io.Writer, title, answer string, results []rag.Result) {
	fmt.Fprintln(w, ui.Header.Render(title))
	fmt.Fprintln(w)

	rendered, err := renderMarkdown(answer)
	if err != nil || askRaw {
		fmt.Fprintln(w, answer)
	} else {
		fmt.Fprint(w, rendered)
	}

	if len(results) > 0 {
		fmt.Fprintln(w, ui.Dim.Render("Sources:"))
		for i, r := range results {
			fmt.Fprintf(w, "  %s %s %s\n",
				ui.FormatLabel(i+1),
				ui.FormatSource(r.Fragment.Source, r.Fragment.Index),
				ui.FormatSimilarity(r.Similarity),
			)
		}
	}
}

// renderMarkdown renders markdown content using glamour.
func renderMarkdown(content string) (string, error) {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return "", err
	}
	return renderer.Render(content)
}

// formatAnswerMarkdown is the saved form of an answer. direct is the
// answer given without documents, empty when not compared.
func formatAnswerMarkdown(query, answer, direct string, results []rag.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", query)
	fmt.Fprintf(&sb, "## Answer\n\n%s\n", answer)
	if direct != "" {
		fmt.Fprintf(&sb, "\n## Without documents\n\n%s\n", direct)
	}

	sb.WriteString("\n## Sources\n\n")
	if len(results) == 0 {
		sb.WriteString("None\n")
	}
	for _, r := range results {
		fmt.Fprintf(&sb, "- %s (fragment %d, score %.4f)\n", r.Fragment.Source, r.Fragment.Index, r.Similarity)
	}
	return sb.String()
}

func writeAnswerFile(path, content string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write answer: %w", err)
	}
	return nil
}
