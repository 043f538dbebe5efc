package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"ragqa/internal/domain"
)

var (
	queryText        string
	queryTopK        int
	queryTenant      string
	queryJSON        bool
	queryInteractive bool
	queryShowPrompt  bool
)

var (
	answerColor = color.New(color.FgGreen, color.Bold).SprintFunc()
	scoreColor  = color.New(color.FgCyan).SprintFunc()
	dimColor    = color.New(color.Faint).SprintFunc()
	warnColor   = color.New(color.FgYellow).SprintFunc()
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Answer a question from the indexed documents",
	Long: `Retrieve the closest chunks for a question and ask the language model to
answer using only those chunks.

Examples:
  ragqa query -q "Who created Python?"
  ragqa query -q "What is the leave policy?" --tenant hr --json
  ragqa query -i                     # Read questions from stdin`,
	RunE: runQuery,
}

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Show the ranked chunks for a question without generating an answer",
	Long: `Embed the question and list the nearest chunks with their squared
Euclidean distances.

Examples:
  ragqa search -q "Python" -k 10
  ragqa search -q "Python" --json`,
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(searchCmd)

	for _, c := range []*cobra.Command{queryCmd, searchCmd} {
		c.Flags().StringVarP(&queryText, "query", "q", "", "question to answer")
		c.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of candidates (default from config)")
		c.Flags().StringVarP(&queryTenant, "tenant", "t", "", "only use chunks of this tenant")
		c.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
	}
	queryCmd.Flags().BoolVarP(&queryInteractive, "interactive", "i", false, "answer questions read line by line from stdin")
	queryCmd.Flags().BoolVar(&queryShowPrompt, "show-prompt", false, "print the prompt sent to the model")
	searchCmd.MarkFlagRequired("query")
}

func openQueryApp(cmd *cobra.Command, withLLM bool) (*app, error) {
	cfg := GetConfig()
	if queryTopK > 0 {
		cfg.Retrieve.TopK = queryTopK
	}
	a, err := openApp(cmd.Context(), cfg, GetRootDir(), appOptions{withLLM: withLLM})
	if err != nil {
		return nil, err
	}
	warnStaleIndex(a, cfg)
	return a, nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	if queryText == "" && !queryInteractive {
		return fmt.Errorf("%w: --query or --interactive is required", domain.ErrInput)
	}

	a, err := openQueryApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.index.Count() == 0 {
		fmt.Fprintln(os.Stderr, warnColor("The index is empty. Run 'ragqa index' or 'ragqa ingest' first."))
	}

	if !queryInteractive {
		return answerOne(cmd, a, queryText, cmd.OutOrStdout())
	}

	scanner := bufio.NewScanner(cmd.InOrStdin())
	out := cmd.OutOrStdout()
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if question == "exit" || question == "quit" {
			return nil
		}
		if err := answerOne(cmd, a, question, out); err != nil {
			fmt.Fprintln(os.Stderr, warnColor(err.Error()))
		}
	}
}

func answerOne(cmd *cobra.Command, a *app, question string, out io.Writer) error {
	answer, err := a.retriever.QueryTenant(cmd.Context(), queryTenant, question)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if queryJSON {
		data, err := json.MarshalIndent(answer, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	if queryShowPrompt {
		rendered, err := a.retriever.RenderPrompt(answer.Context, question)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, dimColor(rendered))
		fmt.Fprintln(out)
	}

	fmt.Fprintln(out, answerColor(answer.Answer))
	if len(answer.Sources) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Sources:")
		printResults(out, sourcesAsResults(answer))
	}
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	a, err := openQueryApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.retriever.Search(cmd.Context(), queryTenant, queryText)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if queryJSON {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	if len(results) == 0 {
		fmt.Fprintln(out, "No results found.")
		return nil
	}
	fmt.Fprintf(out, "Found %d results for: %s\n\n", len(results), queryText)
	printResults(out, results)
	return nil
}

func sourcesAsResults(answer domain.Answer) []domain.SearchResult {
	results := make([]domain.SearchResult, len(answer.Sources))
	for i := range answer.Sources {
		results[i] = domain.SearchResult{Text: answer.Sources[i], Distance: answer.Scores[i]}
	}
	return results
}

func printResults(out io.Writer, results []domain.SearchResult) {
	threshold := GetConfig().Retrieve.SimilarityThreshold
	for i, r := range results {
		label := fmt.Sprintf("distance: %.4f", r.Distance)
		if r.Distance < threshold {
			label = scoreColor(label)
		} else {
			label = dimColor(label + ", above threshold")
		}
		header := fmt.Sprintf("--- [%d] (%s)", i+1, label)
		if src := r.Metadata[domain.MetaSource]; src != "" {
			header = fmt.Sprintf("--- [%d] %s (%s)", i+1, src, label)
		}
		fmt.Fprintln(out, header+" ---")

		text := r.Text
		if runes := []rune(text); len(runes) > 500 {
			text = string(runes[:500]) + "..."
		}
		fmt.Fprintln(out, text)
		fmt.Fprintln(out)
	}
}
