package llm

import (
	"context"
	"sync"
)

// Mock returns a fixed reply and remembers every prompt it was given.
type Mock struct {
	Reply string
	Err   error

	mu      sync.Mutex
	prompts []string
}

func NewMock(reply string) *Mock {
	return &Mock{Reply: reply}
}

func (m *Mock) Generate(ctx context.Context, prompt string) (string, error) {
	return m.GenerateWithSystem(ctx, "", prompt)
}

func (m *Mock) GenerateWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	m.prompts = append(m.prompts, userPrompt)
	m.mu.Unlock()

	if m.Err != nil {
		return "", m.Err
	}
	return m.Reply, nil
}

// Prompts returns the user prompts received so far.
func (m *Mock) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

func (m *Mock) ModelName() string {
	return "mock"
}
