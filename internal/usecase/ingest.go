package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"ragqa/internal/adapter/analyzer"
	"ragqa/internal/adapter/fs"
	"ragqa/internal/domain"
	"ragqa/internal/port"
)

// IngestUseCase turns raw input into indexed chunks:
// clean, chunk, embed in batches, then one Add per input.
type IngestUseCase struct {
	index     port.VectorIndex
	embedder  port.Embedder
	chunker   port.Chunker
	cleaner   *analyzer.Cleaner
	walker    port.FileWalker
	batchSize int
	onChange  func()
	logger    *slog.Logger
}

// IngestOption configures an IngestUseCase.
type IngestOption func(*IngestUseCase)

// WithCleaner normalises text before chunking.
func WithCleaner(c *analyzer.Cleaner) IngestOption {
	return func(u *IngestUseCase) { u.cleaner = c }
}

// WithWalker enables IngestFiles.
func WithWalker(w port.FileWalker) IngestOption {
	return func(u *IngestUseCase) { u.walker = w }
}

// WithBatchSize caps the number of chunks per embedding call.
func WithBatchSize(n int) IngestOption {
	return func(u *IngestUseCase) {
		if n > 0 {
			u.batchSize = n
		}
	}
}

// OnIndexChange registers a hook run after every successful mutation.
func OnIndexChange(fn func()) IngestOption {
	return func(u *IngestUseCase) { u.onChange = fn }
}

func NewIngestUseCase(
	index port.VectorIndex,
	embedder port.Embedder,
	chunker port.Chunker,
	logger *slog.Logger,
	opts ...IngestOption,
) *IngestUseCase {
	u := &IngestUseCase{
		index:     index,
		embedder:  embedder,
		chunker:   chunker,
		batchSize: 100,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// IngestResult summarises an ingestion run.
type IngestResult struct {
	Documents    int
	Chunks       int
	FilesIndexed int
	FilesSkipped int
	Errors       []string
}

// Ingest resolves the input variant, then chunks, embeds and stores it.
// Rejected input is never partially stored.
func (u *IngestUseCase) Ingest(ctx context.Context, in domain.Input) (*IngestResult, error) {
	docs, err := in.Documents()
	if err != nil {
		return nil, err
	}

	if u.cleaner != nil {
		docs = u.cleaner.CleanAll(docs)
	}

	var chunks []string
	for _, doc := range docs {
		chunks = append(chunks, u.chunker.Split(doc)...)
	}

	result := &IngestResult{Documents: len(docs)}
	if len(chunks) == 0 {
		return result, nil
	}

	vectors, err := u.embed(ctx, chunks)
	if err != nil {
		return nil, err
	}

	entries := make([]domain.Entry, len(chunks))
	for i, text := range chunks {
		meta := map[string]string{domain.MetaChunk: strconv.Itoa(i)}
		if in.Source != "" {
			meta[domain.MetaSource] = in.Source
		}
		entries[i] = domain.Entry{
			Vector:   vectors[i],
			Text:     text,
			Metadata: meta,
			Tenant:   in.Tenant,
		}
	}

	if err := u.index.Add(ctx, entries); err != nil {
		return nil, fmt.Errorf("failed to add chunks: %w", err)
	}
	u.changed()

	result.Chunks = len(chunks)
	u.logger.Debug("ingested input",
		"kind", in.Kind.String(),
		"source", in.Source,
		"tenant", in.Tenant,
		"chunks", len(chunks))
	return result, nil
}

func (u *IngestUseCase) embed(ctx context.Context, chunks []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(chunks))
	for i := 0; i < len(chunks); i += u.batchSize {
		end := i + u.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		batch, err := u.embedder.Embed(ctx, chunks[i:end])
		if err != nil {
			return nil, fmt.Errorf("failed to embed chunks: %w", err)
		}
		if len(batch) != end-i {
			return nil, fmt.Errorf("%w: embedder returned %d vectors for %d chunks", domain.ErrUpstream, len(batch), end-i)
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// ProgressFunc reports file ingestion progress.
type ProgressFunc func(processed, total int, currentFile string)

// IngestFiles ingests every file the walker finds under root, one Add per
// file. A file that fails is recorded and skipped; cancellation stops the run.
func (u *IngestUseCase) IngestFiles(ctx context.Context, root, tenant string, progress ProgressFunc) (*IngestResult, error) {
	if u.walker == nil {
		return nil, fmt.Errorf("%w: no file walker configured", domain.ErrInput)
	}

	files, err := u.walker.Walk(root)
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	result := &IngestResult{}
	for i, file := range files {
		if progress != nil {
			progress(i, len(files), file.Path)
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}

		text, ok, err := fs.ReadText(file.Path)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("failed to read %s: %v", file.Path, err))
			continue
		}
		if !ok {
			result.FilesSkipped++
			u.logger.Debug("skipping non-text file", "path", file.Path)
			continue
		}

		in := domain.TextInput(text)
		in.Source = file.Path
		in.Tenant = tenant

		res, err := u.Ingest(ctx, in)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return result, err
			}
			result.Errors = append(result.Errors, fmt.Sprintf("failed to index %s: %v", file.Path, err))
			continue
		}

		result.FilesIndexed++
		result.Documents += res.Documents
		result.Chunks += res.Chunks
	}

	if progress != nil {
		progress(len(files), len(files), "")
	}

	u.logger.Info("ingested directory",
		"root", root,
		"files", result.FilesIndexed,
		"skipped", result.FilesSkipped,
		"chunks", result.Chunks,
		"errors", len(result.Errors))
	return result, nil
}

// DeleteTenant removes all entries of a tenant when the index supports it.
func (u *IngestUseCase) DeleteTenant(ctx context.Context, tenant string) (int, error) {
	deleter, ok := u.index.(port.TenantDeleter)
	if !ok {
		return 0, fmt.Errorf("%w: index does not support tenant deletion", domain.ErrInput)
	}

	n, err := deleter.DeleteTenant(ctx, tenant)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		u.changed()
	}
	u.logger.Info("deleted tenant", "tenant", tenant, "entries", n)
	return n, nil
}

func (u *IngestUseCase) changed() {
	if u.onChange != nil {
		u.onChange()
	}
}
