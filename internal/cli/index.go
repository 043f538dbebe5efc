package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"ragqa/config"
)

var (
	indexRebuild bool
	indexTenant  string
)

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Index text files for question answering",
	Long: `Chunk, embed and store every matching file under the specified directory.
With the bolt backend the index is stored in .ragqa/index.db within the
project directory.

Examples:
  ragqa index .                   # Index current directory
  ragqa index ./docs --rebuild    # Clear the index first
  ragqa index ./handbook -t hr    # Store chunks under tenant "hr"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.Flags().BoolVar(&indexRebuild, "rebuild", false, "clear the index before indexing")
	indexCmd.Flags().StringVarP(&indexTenant, "tenant", "t", "", "tenant that owns the indexed chunks")
}

func runIndex(cmd *cobra.Command, args []string) error {
	path := GetRootDir()
	if len(args) > 0 {
		var err error
		path, err = filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("path does not exist: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	cfg := GetConfig()
	ctx := cmd.Context()

	if indexRebuild && (cfg.Store.Backend == "" || cfg.Store.Backend == "bolt") {
		// Dropping the file also covers a change of embedding dimension.
		if err := os.Remove(cfg.IndexDBPath(GetRootDir())); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove index: %w", err)
		}
	}

	a, err := openApp(ctx, cfg, GetRootDir(), appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	if err := prepareBoltIndex(a, cfg); err != nil {
		return err
	}

	fmt.Printf("Scanning %s...\n", path)

	var bar *progressbar.ProgressBar
	var barMu sync.Mutex
	var startTime time.Time

	progressCallback := func(processed, total int, currentFile string) {
		barMu.Lock()
		defer barMu.Unlock()

		if bar == nil {
			startTime = time.Now()
			bar = progressbar.NewOptions(total,
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowBytes(false),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription("[cyan]Indexing[reset]"),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "[green]=[reset]",
					SaucerHead:    "[green]>[reset]",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
				progressbar.OptionOnCompletion(func() {
					fmt.Println()
				}),
			)
		}

		_ = bar.Set(processed)

		if processed > 0 {
			elapsed := time.Since(startTime)
			rate := float64(processed) / elapsed.Seconds()
			remaining := total - processed
			if rate > 0 {
				eta := time.Duration(float64(remaining)/rate) * time.Second
				bar.Describe(fmt.Sprintf("[cyan]Indexing[reset] ETA: %s", formatDuration(eta)))
			}
		}
	}

	result, err := a.ingest.IngestFiles(ctx, path, indexTenant, progressCallback)
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	if a.bolt != nil {
		if err := a.bolt.Migrate(cfg); err != nil {
			return fmt.Errorf("failed to update schema info: %w", err)
		}
	}

	fmt.Printf("\nIndexing complete:\n")
	fmt.Printf("  Files indexed:  %d\n", result.FilesIndexed)
	fmt.Printf("  Files skipped:  %d (not text)\n", result.FilesSkipped)
	fmt.Printf("  Chunks created: %d\n", result.Chunks)
	fmt.Printf("  Index entries:  %d\n", a.index.Count())

	if len(result.Errors) > 0 {
		fmt.Printf("\nWarnings:\n")
		for _, e := range result.Errors {
			fmt.Printf("  - %s\n", e)
		}
	}

	if a.bolt != nil {
		fmt.Printf("\nIndex stored at: %s\n", cfg.IndexDBPath(GetRootDir()))
	}
	return nil
}

// prepareBoltIndex stamps a fresh snapshot or clears one built with another
// chunking or embedding configuration.
func prepareBoltIndex(a *app, cfg *config.Config) error {
	if a.bolt == nil {
		return nil
	}

	migration, err := a.bolt.CheckMigration(cfg)
	if err != nil {
		return fmt.Errorf("failed to check migration: %w", err)
	}

	switch {
	case migration.NeedsRebuild:
		fmt.Printf("Index rebuild required: %s\n", migration.Reason)
		fmt.Println("Clearing existing index...")
		if err := a.bolt.Clear(); err != nil {
			return fmt.Errorf("failed to clear index: %w", err)
		}
		if a.cache != nil {
			a.cache.Invalidate()
		}
	case migration.NeedsMigration:
		GetLogger().Info("running schema migration", "reason", migration.Reason)
	}
	return a.bolt.Migrate(cfg)
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}

// warnStaleIndex tells the user when the snapshot was built with another
// chunking or embedding configuration.
func warnStaleIndex(a *app, cfg *config.Config) {
	if a.bolt == nil {
		return
	}
	stale, reason, err := a.bolt.NeedsRebuild(cfg)
	if err != nil {
		GetLogger().Warn("failed to check index schema", "error", err)
		return
	}
	if stale {
		GetLogger().Warn("index is out of date; run 'ragqa index --rebuild'", "reason", reason)
	}
}
