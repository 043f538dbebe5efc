package prompt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

const templateSchema = `{
  "type": "object",
  "required": ["name", "template"],
  "properties": {
    "name": {"type": "string", "pattern": "^[A-Za-z0-9_.-]+$"},
    "template": {"type": "string", "minLength": 1},
    "variables": {
      "type": "object",
      "additionalProperties": {"type": "string"}
    }
  }
}`

var (
	schemaLoader = gojsonschema.NewStringLoader(templateSchema)
	validName    = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
)

// Manager keeps named templates backed by one JSON file each in a directory.
type Manager struct {
	dir string

	mu        sync.RWMutex
	templates map[string]*Template
}

// NewManager creates dir if needed and loads every *.json file in it.
func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create template dir: %w", err)
	}

	m := &Manager{dir: dir, templates: make(map[string]*Template)}

	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	for _, path := range paths {
		t, err := loadTemplateFile(path)
		if err != nil {
			return nil, err
		}
		m.templates[t.Name] = t
	}
	return m, nil
}

func loadTemplateFile(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := validateTemplateJSON(data); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}

	var t Template
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if err := t.compile(); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return &t, nil
}

func validateTemplateJSON(data []byte) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if result.Valid() {
		return nil
	}
	var details []string
	for _, desc := range result.Errors() {
		details = append(details, desc.String())
	}
	return fmt.Errorf("template failed validation: %s", strings.Join(details, "; "))
}

// Get returns the named template.
func (m *Manager) Get(name string) (*Template, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.templates[name]
	return t, ok
}

// Names lists the loaded templates in sorted order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.templates))
	for name := range m.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Add stores a template and writes it to <dir>/<name>.json.
func (m *Manager) Add(name, text string, variables map[string]string) (*Template, error) {
	if !validName.MatchString(name) {
		return nil, fmt.Errorf("invalid template name %q", name)
	}
	t, err := NewTemplate(name, text, variables)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(t); err != nil {
		return nil, err
	}
	if err := validateTemplateJSON(buf.Bytes()); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.WriteFile(m.path(name), buf.Bytes(), 0644); err != nil {
		return nil, fmt.Errorf("failed to write template: %w", err)
	}
	m.templates[name] = t
	return t, nil
}

// Remove deletes a template and its file. Removing an unknown name is a no-op.
func (m *Manager) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.templates[name]; !ok {
		return nil
	}
	delete(m.templates, name)

	if err := os.Remove(m.path(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove template: %w", err)
	}
	return nil
}

func (m *Manager) path(name string) string {
	return filepath.Join(m.dir, name+".json")
}
