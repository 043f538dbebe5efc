package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for ragqa.
type Config struct {
	Index     IndexConfig     `yaml:"index"`
	Retrieve  RetrieveConfig  `yaml:"retrieve"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Prompt    PromptConfig    `yaml:"prompt"`
	Store     StoreConfig     `yaml:"store"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// IndexConfig holds ingestion configuration.
type IndexConfig struct {
	Includes           []string `yaml:"includes"`
	Excludes           []string `yaml:"excludes"`
	ChunkSize          int      `yaml:"chunk_size"`
	ChunkOverlap       int      `yaml:"chunk_overlap"`
	Separator          string   `yaml:"separator"`
	RemoveSpecialChars bool     `yaml:"remove_special_chars"`
}

// RetrieveConfig holds query-time configuration.
type RetrieveConfig struct {
	TopK                int     `yaml:"top_k"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"` // keep candidates with distance strictly below
	ContextMarker       string  `yaml:"context_marker"`
	CacheSize           int     `yaml:"cache_size"` // 0 disables the query cache
	CacheTTLSeconds     int     `yaml:"cache_ttl_seconds"`
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider    string `yaml:"provider"` // "openai", "ollama", "mock"
	Model       string `yaml:"model"`
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Dimension   int    `yaml:"dimension"`
	BatchSize   int    `yaml:"batch_size"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// LLMConfig holds text generation configuration.
type LLMConfig struct {
	Provider     string  `yaml:"provider"` // "openai" (any compatible endpoint), "mock"
	Model        string  `yaml:"model"`
	BaseURL      string  `yaml:"base_url"`
	APIKeyEnv    string  `yaml:"api_key_env"`
	MaxTokens    int     `yaml:"max_tokens"`
	Temperature  float64 `yaml:"temperature"`
	SystemPrompt string  `yaml:"system_prompt"` // empty uses the built-in one
	TimeoutSecs  int     `yaml:"timeout_secs"`
}

// PromptConfig selects the answer prompt.
type PromptConfig struct {
	Dir      string `yaml:"dir"`      // directory of JSON templates
	Template string `yaml:"template"` // named template from Dir; empty uses the built-in one
	Sentinel string `yaml:"sentinel"`
}

// StoreConfig selects the vector index backend.
type StoreConfig struct {
	Backend string       `yaml:"backend"` // "bolt", "memory", "qdrant"
	Path    string       `yaml:"path"`    // bolt file, relative to the project dir
	Qdrant  QdrantConfig `yaml:"qdrant"`
}

type QdrantConfig struct {
	URL         string `yaml:"url"`
	Collection  string `yaml:"collection"`
	APIKeyEnv   string `yaml:"api_key_env"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
	File   string `yaml:"file"`   // also write records here when set
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Index: IndexConfig{
			Includes:     []string{"**/*.txt", "**/*.md"},
			Excludes:     []string{"**/.git/**", "**/node_modules/**", "**/.ragqa/**"},
			ChunkSize:    1000,
			ChunkOverlap: 200,
			Separator:    "\n",
		},
		Retrieve: RetrieveConfig{
			TopK:                4,
			SimilarityThreshold: 0.7,
			ContextMarker:       "İlgili bilgi: ",
			CacheSize:           256,
			CacheTTLSeconds:     300,
		},
		Embedding: EmbeddingConfig{
			Provider:    "openai",
			Model:       "text-embedding-3-small",
			APIKeyEnv:   "OPENAI_API_KEY",
			BatchSize:   100,
			TimeoutSecs: 30,
		},
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "meta-llama/Llama-3-8b-chat-hf",
			BaseURL:     "https://api.together.ai/v1",
			APIKeyEnv:   "TOGETHER_API_KEY",
			MaxTokens:   128,
			Temperature: 0.7,
			TimeoutSecs: 60,
		},
		Prompt: PromptConfig{
			Dir:      filepath.Join(".ragqa", "prompts"),
			Sentinel: "Bu konuda yeterli bilgim yok",
		},
		Store: StoreConfig{
			Backend: "bolt",
			Path:    filepath.Join(".ragqa", "index.db"),
			Qdrant: QdrantConfig{
				URL:         "http://localhost:6333",
				Collection:  "ragqa",
				APIKeyEnv:   "QDRANT_API_KEY",
				TimeoutSecs: 30,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file, then applies environment
// overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromDir loads .env from dir if present, then configuration from
// ragqa.yaml or .ragqa/config.yaml.
func LoadFromDir(dir string) (*Config, error) {
	if err := LoadDotEnv(dir); err != nil {
		return nil, err
	}

	path := filepath.Join(dir, "ragqa.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".ragqa", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads dir/.env into the process environment without overriding
// variables that are already set.
func LoadDotEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from environment variables.
func (c *Config) ApplyEnv() error {
	ints := []struct {
		name string
		dst  *int
	}{
		{"CHUNK_SIZE", &c.Index.ChunkSize},
		{"CHUNK_OVERLAP", &c.Index.ChunkOverlap},
		{"TOP_K_RESULTS", &c.Retrieve.TopK},
	}
	for _, e := range ints {
		v, ok := os.LookupEnv(e.name)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("env %s: %w", e.name, err)
		}
		*e.dst = n
	}

	if v, ok := os.LookupEnv("SIMILARITY_THRESHOLD"); ok && strings.TrimSpace(v) != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("env SIMILARITY_THRESHOLD: %w", err)
		}
		c.Retrieve.SimilarityThreshold = f
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("MODEL_NAME"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		c.Embedding.Model = v
	}
	return nil
}

// Validate rejects values no component can work with.
func (c *Config) Validate() error {
	if c.Index.ChunkSize <= 0 {
		return fmt.Errorf("index.chunk_size must be positive, got %d", c.Index.ChunkSize)
	}
	if c.Index.ChunkOverlap < 0 {
		return fmt.Errorf("index.chunk_overlap must not be negative, got %d", c.Index.ChunkOverlap)
	}
	if c.Retrieve.TopK <= 0 {
		return fmt.Errorf("retrieve.top_k must be positive, got %d", c.Retrieve.TopK)
	}
	if c.Embedding.Dimension < 0 {
		return fmt.Errorf("embedding.dimension must not be negative, got %d", c.Embedding.Dimension)
	}
	switch c.Store.Backend {
	case "bolt", "memory", "qdrant":
	default:
		return fmt.Errorf("store.backend %q is not one of bolt, memory, qdrant", c.Store.Backend)
	}
	return nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// IndexDBPath returns the bolt index path for a project directory.
func (c *Config) IndexDBPath(dir string) string {
	if filepath.IsAbs(c.Store.Path) {
		return c.Store.Path
	}
	return filepath.Join(dir, c.Store.Path)
}

// PromptDir returns the prompt template directory for a project directory.
func (c *Config) PromptDir(dir string) string {
	if filepath.IsAbs(c.Prompt.Dir) {
		return c.Prompt.Dir
	}
	return filepath.Join(dir, c.Prompt.Dir)
}

// EnsureDataDir ensures the .ragqa directory exists.
func EnsureDataDir(dir string) error {
	return os.MkdirAll(filepath.Join(dir, ".ragqa"), 0755)
}
