// Package config loads service configuration from defaults, an optional YAML
// file, a .env file and the environment, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kk32340/SampleMLCode/engine/chunker"
	"github.com/kk32340/SampleMLCode/engine/domain"
)

// Provider names.
const (
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
)

// Index backends.
const (
	BackendMemory = "memory"
	BackendQdrant = "qdrant"
)

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port       string `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
	// RateLimit is requests per second per client; zero disables throttling.
	RateLimit float64 `yaml:"rate_limit"`
}

// GeminiConfig configures the Gemini adapters.
type GeminiConfig struct {
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	EmbedModel string `yaml:"embed_model"`
}

// OllamaConfig configures the local Ollama adapters.
type OllamaConfig struct {
	URL        string `yaml:"url"`
	EmbedModel string `yaml:"embed_model"`
	ChatModel  string `yaml:"chat_model"`
}

// ChunkerConfig configures document splitting.
type ChunkerConfig struct {
	ChunkSize      int `yaml:"chunk_size"`
	Overlap        int `yaml:"overlap"`
	MinChunkLength int `yaml:"min_chunk_length"`
}

// RetrievalConfig configures answering.
type RetrievalConfig struct {
	TopK       int `yaml:"top_k"`
	MaxHistory int `yaml:"max_history"`
}

// IndexConfig selects the vector index backend.
type IndexConfig struct {
	Backend    string `yaml:"backend"`
	QdrantURL  string `yaml:"qdrant_url"`
	Collection string `yaml:"collection"`
}

// Config is the root configuration.
type Config struct {
	LogLevel      string          `yaml:"log_level"`
	EmbedProvider string          `yaml:"embed_provider"`
	ChatProvider  string          `yaml:"chat_provider"`
	NATSURL       string          `yaml:"nats_url"`
	Server        ServerConfig    `yaml:"server"`
	Gemini        GeminiConfig    `yaml:"gemini"`
	Ollama        OllamaConfig    `yaml:"ollama"`
	Chunker       ChunkerConfig   `yaml:"chunker"`
	Retrieval     RetrievalConfig `yaml:"retrieval"`
	Index         IndexConfig     `yaml:"index"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel:      "info",
		EmbedProvider: ProviderGemini,
		ChatProvider:  ProviderGemini,
		Server:        ServerConfig{Port: "3978", CORSOrigin: "*"},
		Gemini:        GeminiConfig{Model: "gemini-1.5-flash-latest", EmbedModel: "text-embedding-004"},
		Ollama:        OllamaConfig{URL: "http://localhost:11434", EmbedModel: "nomic-embed-text", ChatModel: "llama3"},
		Chunker:       ChunkerConfig{ChunkSize: chunker.DefaultChunkSize, Overlap: chunker.DefaultOverlap},
		Retrieval:     RetrievalConfig{TopK: 3, MaxHistory: 20},
		Index:         IndexConfig{Backend: BackendMemory, QdrantURL: "localhost:6334", Collection: "documents"},
	}
}

// Load builds the configuration. A .env file in the working directory is
// loaded first if present; path may be empty or name a missing file.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w: %v", path, domain.ErrInvalidConfiguration, err)
			}
		}
	}
	if err := applyEnv(cfg, lookup); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, domain.InvalidConfig(key, v))
				return
			}
			*dst = n
		}
	}

	str("LOG_LEVEL", &cfg.LogLevel)
	str("EMBED_PROVIDER", &cfg.EmbedProvider)
	str("CHAT_PROVIDER", &cfg.ChatProvider)
	str("NATS_URL", &cfg.NATSURL)
	str("PORT", &cfg.Server.Port)
	str("CORS_ORIGIN", &cfg.Server.CORSOrigin)
	if v, ok := lookup("RATE_LIMIT"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, domain.InvalidConfig("RATE_LIMIT", v))
		} else {
			cfg.Server.RateLimit = f
		}
	}
	str("GEMINI_API_KEY", &cfg.Gemini.APIKey)
	str("GEMINI_MODEL", &cfg.Gemini.Model)
	str("GEMINI_EMBED_MODEL", &cfg.Gemini.EmbedModel)
	str("OLLAMA_URL", &cfg.Ollama.URL)
	str("OLLAMA_EMBED_MODEL", &cfg.Ollama.EmbedModel)
	str("OLLAMA_CHAT_MODEL", &cfg.Ollama.ChatModel)
	num("CHUNK_SIZE", &cfg.Chunker.ChunkSize)
	num("CHUNK_OVERLAP", &cfg.Chunker.Overlap)
	num("MIN_CHUNK_LENGTH", &cfg.Chunker.MinChunkLength)
	num("TOP_K", &cfg.Retrieval.TopK)
	num("MAX_CONVERSATION_HISTORY", &cfg.Retrieval.MaxHistory)
	str("INDEX_BACKEND", &cfg.Index.Backend)
	str("QDRANT_URL", &cfg.Index.QdrantURL)
	str("QDRANT_COLLECTION", &cfg.Index.Collection)

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// ChunkerOptions converts the chunker section.
func (c *Config) ChunkerOptions() chunker.Options {
	return chunker.Options{
		ChunkSize:      c.Chunker.ChunkSize,
		Overlap:        c.Chunker.Overlap,
		MinChunkLength: c.Chunker.MinChunkLength,
	}
}

// Validate reports the first invalid setting as an ErrInvalidConfiguration.
func (c *Config) Validate() error {
	if err := c.ChunkerOptions().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	checks := []struct {
		ok    bool
		field string
		value any
	}{
		{c.Retrieval.TopK > 0, "top_k", c.Retrieval.TopK},
		{c.Retrieval.MaxHistory > 0, "max_history", c.Retrieval.MaxHistory},
		{c.Server.RateLimit >= 0, "rate_limit", c.Server.RateLimit},
		{c.EmbedProvider == ProviderGemini || c.EmbedProvider == ProviderOllama, "embed_provider", c.EmbedProvider},
		{c.ChatProvider == ProviderGemini || c.ChatProvider == ProviderOllama, "chat_provider", c.ChatProvider},
		{c.Index.Backend == BackendMemory || c.Index.Backend == BackendQdrant, "index.backend", c.Index.Backend},
		{c.Index.Backend != BackendQdrant || (c.Index.QdrantURL != "" && c.Index.Collection != ""), "index.qdrant_url", c.Index.QdrantURL},
		{c.Server.Port != "", "port", c.Server.Port},
	}
	for _, chk := range checks {
		if !chk.ok {
			return fmt.Errorf("config: %w", domain.InvalidConfig(chk.field, chk.value))
		}
	}
	return nil
}

// UsesGemini reports whether either adapter is Gemini, which needs an API key.
func (c *Config) UsesGemini() bool {
	return c.EmbedProvider == ProviderGemini || c.ChatProvider == ProviderGemini
}
