package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"ragqa/internal/adapter/analyzer"
)

var chunkJSON bool

var chunkCmd = &cobra.Command{
	Use:   "chunk [file]",
	Short: "Print the chunks a file would be split into",
	Long: `Clean and chunk a file (or stdin) with the configured chunk size, overlap
and separator, without embedding or storing anything.

Examples:
  ragqa chunk notes.txt
  CHUNK_SIZE=200 ragqa chunk notes.txt --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runChunk,
}

func init() {
	rootCmd.AddCommand(chunkCmd)
	chunkCmd.Flags().BoolVar(&chunkJSON, "json", false, "output as JSON")
}

func runChunk(cmd *cobra.Command, args []string) error {
	var data []byte
	var err error
	if len(args) == 0 || args[0] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	cfg := GetConfig()
	text := analyzer.NewCleaner(cleanOptions(cfg)).Clean(string(data))
	chunks := newChunker(cfg).Split(text)

	out := cmd.OutOrStdout()
	if chunkJSON {
		encoded, err := json.MarshalIndent(chunks, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(encoded))
		return nil
	}

	for i, c := range chunks {
		fmt.Fprintf(out, "--- chunk %d (%d chars) ---\n%s\n\n", i+1, utf8.RuneCountInString(c), c)
	}
	fmt.Fprintf(out, "%d chunk(s), size %d, overlap %d\n", len(chunks), cfg.Index.ChunkSize, cfg.Index.ChunkOverlap)
	return nil
}
