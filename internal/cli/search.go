package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nickcecere/docrag/internal/config"
	"github.com/nickcecere/docrag/internal/rag"
	"github.com/nickcecere/docrag/internal/ui"
)

var (
	searchK       int
	searchContent bool
	searchJSON    bool
	searchNoSync  bool
)

// searchCmd represents the search command
var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Show the fragments most similar to a query",
	Long: `Retrieve the k fragments whose embeddings are most similar to the query.

Results are ranked by cosine similarity; equal scores keep ingestion order.
No language model is involved.

Examples:
  # Top fragments for a query
  docrag search "battery replacement"

  # Show fragment text
  docrag search "warranty period" -c

  # Five results as JSON
  docrag search "charging time" --k 5 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runSearchCmd,
}

func init() {
	searchCmd.Flags().IntVarP(&searchK, "k", "k", 0, "number of fragments (defaults to retrieval.top_k)")
	searchCmd.Flags().BoolVarP(&searchContent, "content", "c", false, "show fragment text")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	searchCmd.Flags().BoolVar(&searchNoSync, "no-sync", false, "do not build the store when it is missing or stale")
}

func runSearchCmd(cmd *cobra.Command, args []string) error {
	query := args[0]
	if err := checkK(searchK); err != nil {
		return err
	}

	if searchJSON {
		ui.SetQuiet()
	}

	a, err := newApp(config.Get())
	if err != nil {
		return err
	}
	k := a.topK(searchK)

	log.Debug("Starting search", "query", query, "k", k, "store", a.manager.Path())

	ctx, cancel := commandContext("Interrupted")
	defer cancel()

	if !searchNoSync {
		if err := a.ensure(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}

	results, err := a.retriever.Retrieve(ctx, query, k)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return outputJSON(cmd.OutOrStdout(), results)
	}

	if len(results) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No results found.")
		return nil
	}

	displayResults(cmd.OutOrStdout(), results, searchContent)
	return nil
}

// displayResults formats and displays retrieved fragments.
func displayResults(w io.Writer, results []rag.Result, showContent bool) {
	fmt.Fprintf(w, "Found %d fragments:\n\n", len(results))

	for i, r := range results {
		fmt.Fprintf(w, "%s %s %s\n",
			ui.FormatLabel(i+1),
			ui.FormatSource(r.Fragment.Source, r.Fragment.Index),
			ui.FormatSimilarity(r.Similarity),
		)

		if showContent {
			fmt.Fprintln(w)
			displayContentHighlighted(w, r.Fragment.Text, r.Fragment.Source)
		} else {
			fmt.Fprintln(w, ui.Excerpt.Render(excerpt(r.Fragment.Text, 100)))
		}

		fmt.Fprintln(w)
	}
}

// displayContentHighlighted displays fragment text, highlighted by the
// syntax of its source document where chroma knows it.
func displayContentHighlighted(w io.Writer, content, source string) {
	lexer := lexers.Match(source)
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := styles.Get("dracula")
	if style == nil {
		style = styles.Fallback
	}

	formatter := formatters.Get("terminal16m")
	if formatter == nil {
		formatter = formatters.Get("terminal256")
	}
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, content)
	if err != nil {
		displayPlainLines(w, content)
		return
	}

	var buf bytes.Buffer
	if err := formatter.Format(&buf, style, iterator); err != nil {
		displayPlainLines(w, content)
		return
	}

	for _, line := range strings.Split(buf.String(), "\n") {
		fmt.Fprintf(w, "    %s %s\n", ui.Dim.Render("│"), line)
	}
}

// displayPlainLines displays content without highlighting (fallback).
func displayPlainLines(w io.Writer, content string) {
	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(w, "    %s %s\n", ui.Dim.Render("│"), truncateLine(line, 100))
	}
}

// excerpt returns the start of text on one line.
func excerpt(text string, maxLen int) string {
	return truncateLine(strings.Join(strings.Fields(text), " "), maxLen)
}

// truncateLine shortens a line for display.
func truncateLine(line string, maxLen int) string {
	line = strings.ReplaceAll(line, "\t", "    ")
	runes := []rune(line)
	if len(runes) <= maxLen {
		return line
	}
	return string(runes[:maxLen-3]) + "..."
}

// searchResult is the JSON form of one retrieved fragment.
type searchResult struct {
	ID         int     `json:"id"`
	Source     string  `json:"source"`
	Index      int     `json:"index"`
	Similarity float64 `json:"similarity"`
	Text       string  `json:"text"`
}

// outputJSON writes results as a JSON array, [] when empty.
func outputJSON(w io.Writer, results []rag.Result) error {
	out := make([]searchResult, 0, len(results))
	for _, r := range results {
		out = append(out, searchResult{
			ID:         r.Fragment.ID,
			Source:     r.Fragment.Source,
			Index:      r.Fragment.Index,
			Similarity: r.Similarity,
			Text:       r.Fragment.Text,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
