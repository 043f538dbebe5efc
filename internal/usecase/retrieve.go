package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"ragqa/internal/adapter/prompt"
	"ragqa/internal/domain"
	"ragqa/internal/port"
)

const (
	DefaultTopK      = 4
	DefaultThreshold = 0.7
	DefaultMarker    = "İlgili bilgi: "
	DefaultSentinel  = "Bu konuda yeterli bilgim yok"
)

// RetrieverOptions tunes a Retriever. A zero TopK or empty Sentinel falls
// back to the default; Threshold and Marker are used as given.
type RetrieverOptions struct {
	TopK      int
	Threshold float64 // keep candidates whose distance is strictly below
	Marker    string
	Sentinel  string
}

func DefaultRetrieverOptions() RetrieverOptions {
	return RetrieverOptions{
		TopK:      DefaultTopK,
		Threshold: DefaultThreshold,
		Marker:    DefaultMarker,
		Sentinel:  DefaultSentinel,
	}
}

// Retriever answers questions grounded in the indexed chunks.
type Retriever struct {
	searcher port.Searcher
	llm      port.LLM
	answer   *prompt.Template
	opts     RetrieverOptions
	logger   *slog.Logger
}

func NewRetriever(
	searcher port.Searcher,
	llm port.LLM,
	answer *prompt.Template,
	opts RetrieverOptions,
	logger *slog.Logger,
) *Retriever {
	if answer == nil {
		answer = prompt.DefaultAnswer()
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.Sentinel == "" {
		opts.Sentinel = DefaultSentinel
	}
	return &Retriever{
		searcher: searcher,
		llm:      llm,
		answer:   answer,
		opts:     opts,
		logger:   logger,
	}
}

// Query answers question against the whole index.
func (r *Retriever) Query(ctx context.Context, question string) (domain.Answer, error) {
	return r.QueryTenant(ctx, "", question)
}

// QueryTenant answers question using only the entries of tenant.
// Sources and Scores list every candidate in rank order, including those the
// threshold kept out of the context.
func (r *Retriever) QueryTenant(ctx context.Context, tenant, question string) (domain.Answer, error) {
	candidates, err := r.searcher.Search(ctx, tenant, question, r.opts.TopK)
	if err != nil {
		return domain.Answer{}, err
	}

	contextText := r.buildContext(candidates)

	userPrompt, err := r.RenderPrompt(contextText, question)
	if err != nil {
		return domain.Answer{}, err
	}

	reply, err := r.llm.Generate(ctx, userPrompt)
	if err != nil {
		if !errors.Is(err, domain.ErrUpstream) {
			err = fmt.Errorf("%w: %v", domain.ErrUpstream, err)
		}
		return domain.Answer{}, fmt.Errorf("failed to generate answer: %w", err)
	}

	answer := domain.Answer{
		Answer:  reply,
		Context: contextText,
		Sources: make([]string, len(candidates)),
		Scores:  make([]float64, len(candidates)),
	}
	for i, c := range candidates {
		answer.Sources[i] = c.Text
		answer.Scores[i] = c.Distance
	}

	r.logger.Debug("answered question",
		"tenant", tenant,
		"candidates", len(candidates),
		"context_chars", len(contextText),
		"model", r.llm.ModelName())
	return answer, nil
}

// Search returns the ranked candidates without generating an answer.
func (r *Retriever) Search(ctx context.Context, tenant, question string) ([]domain.SearchResult, error) {
	return r.searcher.Search(ctx, tenant, question, r.opts.TopK)
}

// RenderPrompt fills the answer template.
func (r *Retriever) RenderPrompt(contextText, question string) (string, error) {
	return r.answer.Render(map[string]string{
		prompt.KeyContext:  contextText,
		prompt.KeyQuestion: question,
		prompt.KeySentinel: r.opts.Sentinel,
	})
}

// buildContext joins the texts of candidates under the threshold, each with
// the marker, separated by a blank line.
func (r *Retriever) buildContext(candidates []domain.SearchResult) string {
	var parts []string
	for _, c := range candidates {
		if c.Distance < r.opts.Threshold {
			parts = append(parts, r.opts.Marker+c.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}
