package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"ragqa/config"
	"ragqa/internal/adapter/analyzer"
	"ragqa/internal/adapter/cache"
	"ragqa/internal/adapter/chunker"
	"ragqa/internal/adapter/embedding"
	"ragqa/internal/adapter/fs"
	"ragqa/internal/adapter/llm"
	"ragqa/internal/adapter/memstore"
	"ragqa/internal/adapter/prompt"
	"ragqa/internal/adapter/qdrant"
	"ragqa/internal/adapter/retriever"
	"ragqa/internal/adapter/store"
	"ragqa/internal/port"
	"ragqa/internal/usecase"
)

// app holds the components a command works with.
type app struct {
	index     port.VectorIndex
	bolt      *store.BoltIndex // nil unless the bolt backend is selected
	embedder  port.Embedder
	ingest    *usecase.IngestUseCase
	retriever *usecase.Retriever
	cache     *cache.QueryCache
	closeFn   func() error
}

type appOptions struct {
	withLLM bool
}

func (a *app) Close() error {
	if a.closeFn != nil {
		return a.closeFn()
	}
	return nil
}

// openApp builds the pipeline for the project in dir from cfg.
func openApp(ctx context.Context, cfg *config.Config, dir string, opts appOptions) (*app, error) {
	log := GetLogger()

	embedder, err := newEmbedder(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	a := &app{embedder: embedder}
	if err := a.openIndex(ctx, cfg, dir, embedder.Dimension()); err != nil {
		return nil, err
	}

	var searcher port.Searcher = retriever.NewSemanticRetriever(a.index, embedder)
	if cfg.Retrieve.CacheSize > 0 {
		a.cache = cache.NewQueryCache(cfg.Retrieve.CacheSize, time.Duration(cfg.Retrieve.CacheTTLSeconds)*time.Second)
		searcher = cache.NewCachedSearcher(searcher, a.cache)
	}

	ingestOpts := []usecase.IngestOption{
		usecase.WithCleaner(analyzer.NewCleaner(cleanOptions(cfg))),
		usecase.WithWalker(fs.NewWalker(cfg.Index.Includes, cfg.Index.Excludes)),
		usecase.WithBatchSize(cfg.Embedding.BatchSize),
	}
	if a.cache != nil {
		ingestOpts = append(ingestOpts, usecase.OnIndexChange(a.cache.Invalidate))
	}
	a.ingest = usecase.NewIngestUseCase(a.index, embedder, newChunker(cfg), log, ingestOpts...)

	var gen port.LLM = llm.NewMock(cfg.Prompt.Sentinel)
	if opts.withLLM {
		gen, err = newLLM(cfg)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to create llm client: %w", err)
		}
	}

	answer, err := answerTemplate(cfg, dir)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.retriever = usecase.NewRetriever(searcher, gen, answer, usecase.RetrieverOptions{
		TopK:      cfg.Retrieve.TopK,
		Threshold: cfg.Retrieve.SimilarityThreshold,
		Marker:    cfg.Retrieve.ContextMarker,
		Sentinel:  cfg.Prompt.Sentinel,
	}, log)

	log.Debug("pipeline ready",
		"backend", cfg.Store.Backend,
		"embedder", embedder.ModelName(),
		"dimension", embedder.Dimension(),
		"entries", a.index.Count())
	return a, nil
}

func (a *app) openIndex(ctx context.Context, cfg *config.Config, dir string, dim int) error {
	switch cfg.Store.Backend {
	case "", "bolt":
		if err := config.EnsureDataDir(dir); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
		idx, err := store.OpenIndex(cfg.IndexDBPath(dir), dim)
		if err != nil {
			return fmt.Errorf("failed to open index: %w", err)
		}
		a.index, a.bolt, a.closeFn = idx, idx, idx.Close

	case "memory":
		GetLogger().Warn("memory backend keeps nothing between runs")
		a.index = memstore.NewMemoryIndex(dim)

	case "qdrant":
		q := cfg.Store.Qdrant
		idx, err := qdrant.Open(ctx, qdrant.Config{
			URL:        q.URL,
			APIKey:     os.Getenv(q.APIKeyEnv),
			Collection: q.Collection,
			Timeout:    time.Duration(q.TimeoutSecs) * time.Second,
		}, dim)
		if err != nil {
			return fmt.Errorf("failed to open qdrant collection: %w", err)
		}
		a.index = idx

	default:
		return fmt.Errorf("unsupported store backend: %s", cfg.Store.Backend)
	}
	return nil
}

func newEmbedder(cfg *config.Config) (port.Embedder, error) {
	e := cfg.Embedding
	opts := embedding.Options{
		BaseURL:   e.BaseURL,
		APIKeyEnv: e.APIKeyEnv,
		Model:     e.Model,
		Dimension: e.Dimension,
		BatchSize: e.BatchSize,
		Timeout:   time.Duration(e.TimeoutSecs) * time.Second,
	}

	switch e.Provider {
	case "openai":
		return embedding.NewOpenAIEmbedder(opts)
	case "ollama":
		return embedding.NewOllamaEmbedder(opts)
	case "mock":
		return embedding.NewMockEmbedder(e.Dimension), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", e.Provider)
	}
}

func newLLM(cfg *config.Config) (port.LLM, error) {
	l := cfg.LLM
	switch l.Provider {
	case "openai":
		system := l.SystemPrompt
		if system == "" {
			system = prompt.DefaultSystemPrompt()
		}
		return llm.NewClient(llm.Options{
			BaseURL:      l.BaseURL,
			APIKeyEnv:    l.APIKeyEnv,
			Model:        l.Model,
			MaxTokens:    l.MaxTokens,
			Temperature:  l.Temperature,
			SystemPrompt: system,
			Timeout:      time.Duration(l.TimeoutSecs) * time.Second,
		})
	case "mock":
		return llm.NewMock(cfg.Prompt.Sentinel), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", l.Provider)
	}
}

func newChunker(cfg *config.Config) *chunker.ParagraphChunker {
	return chunker.NewParagraphChunker(cfg.Index.ChunkSize, cfg.Index.ChunkOverlap, cfg.Index.Separator)
}

func cleanOptions(cfg *config.Config) analyzer.CleanOptions {
	opts := analyzer.DefaultCleanOptions()
	opts.RemoveSpecialChars = cfg.Index.RemoveSpecialChars
	opts.Separator = cfg.Index.Separator
	return opts
}

// answerTemplate returns the configured named template, or nil for the
// built-in one.
func answerTemplate(cfg *config.Config, dir string) (*prompt.Template, error) {
	if cfg.Prompt.Template == "" {
		return nil, nil
	}
	m, err := prompt.NewManager(cfg.PromptDir(dir))
	if err != nil {
		return nil, fmt.Errorf("failed to load prompt templates: %w", err)
	}
	t, ok := m.Get(cfg.Prompt.Template)
	if !ok {
		return nil, fmt.Errorf("prompt template %q not found in %s", cfg.Prompt.Template, cfg.PromptDir(dir))
	}
	return t, nil
}
