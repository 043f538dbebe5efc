package prompt

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed templates/*
var builtin embed.FS

// Keys filled in by the answer pipeline.
const (
	KeyContext  = "context"
	KeyQuestion = "question"
	KeySentinel = "sentinel"
)

// DefaultAnswerName is the name of the built-in answer template.
const DefaultAnswerName = "answer"

// Template is a named text/template with default variables. Values passed to
// Render override the defaults; unknown keys render as empty strings.
type Template struct {
	Name      string            `json:"name"`
	Text      string            `json:"template"`
	Variables map[string]string `json:"variables,omitempty"`

	parsed *template.Template
}

func NewTemplate(name, text string, variables map[string]string) (*Template, error) {
	t := &Template{Name: name, Text: text, Variables: variables}
	if err := t.compile(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Template) compile() error {
	parsed, err := template.New(t.Name).
		Funcs(templateFuncs()).
		Option("missingkey=zero").
		Parse(t.Text)
	if err != nil {
		return fmt.Errorf("failed to parse template %q: %w", t.Name, err)
	}
	t.parsed = parsed
	return nil
}

// Render executes the template over its variables merged with values.
func (t *Template) Render(values map[string]string) (string, error) {
	if t.parsed == nil {
		if err := t.compile(); err != nil {
			return "", err
		}
	}

	data := make(map[string]string, len(t.Variables)+len(values))
	for k, v := range t.Variables {
		data[k] = v
	}
	for k, v := range values {
		data[k] = v
	}

	var buf bytes.Buffer
	if err := t.parsed.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template %q: %w", t.Name, err)
	}
	return buf.String(), nil
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
		"trim":  strings.TrimSpace,
	}
}

// DefaultAnswer returns the built-in grounded answer template.
func DefaultAnswer() *Template {
	data, err := builtin.ReadFile("templates/answer.tmpl")
	if err != nil {
		panic(fmt.Sprintf("embedded answer template missing: %v", err))
	}
	t, err := NewTemplate(DefaultAnswerName, strings.TrimRight(string(data), "\n"), nil)
	if err != nil {
		panic(err)
	}
	return t
}

// DefaultSystemPrompt returns the built-in system instruction.
func DefaultSystemPrompt() string {
	data, err := builtin.ReadFile("templates/system.txt")
	if err != nil {
		panic(fmt.Sprintf("embedded system prompt missing: %v", err))
	}
	return strings.TrimSpace(string(data))
}
