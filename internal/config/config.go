package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	BackendChromem  = "chromem"
	BackendPGVector = "pgvector"

	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	RAG      RAGConfig      `yaml:"rag"`
	EmbedLLM LLMConfig      `yaml:"embed_llm"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// RateLimit is requests per second on /analyze; nil disables limiting.
	RateLimit *int `yaml:"rate_limit"`
}

type RAGConfig struct {
	GuidelinesPath string `yaml:"guidelines_path"`
	ChunkSize      int    `yaml:"chunk_size"`
	ChunkOverlap   int    `yaml:"chunk_overlap"`
	TopK           int    `yaml:"top_k"`
	Backend        string `yaml:"backend"`
	IndexPath      string `yaml:"index_path"`
	Collection     string `yaml:"collection"`
	Compress       bool   `yaml:"compress"`
	SnapshotPath   string `yaml:"snapshot_path"`
	EncryptionKey  string `yaml:"encryption_key"`
}

type LLMConfig struct {
	Provider string `yaml:"provider"`
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`
	Key      string `yaml:"key"`
}

type DatabaseConfig struct {
	DSN        string `yaml:"dsn"`
	Table      string `yaml:"table"`
	Dimensions int    `yaml:"dimensions"`
	Debug      bool   `yaml:"debug"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            5000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		RAG: RAGConfig{
			GuidelinesPath: "data/health_guidelines.txt",
			ChunkSize:      500,
			ChunkOverlap:   50,
			TopK:           4,
			Backend:        BackendChromem,
			IndexPath:      "health_db",
			Collection:     "health_guidelines",
		},
		EmbedLLM: LLMConfig{
			Provider: ProviderOllama,
			BaseURL:  "http://localhost:11434",
			Model:    "all-minilm",
		},
		Database: DatabaseConfig{
			Table:      "guideline_chunks",
			Dimensions: 384,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadEnv loads .env style files into the process environment. Missing files are skipped.
func LoadEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load env file %s: %w", f, err)
		}
	}
	return nil
}

// LoadConfig reads the YAML file at path on top of Default. A missing file
// yields the defaults; ${VAR} references are expanded from the environment.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, cfg.Validate()
		}
		return nil, err
	}

	data = []byte(os.ExpandEnv(string(data)))

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	d := Default()

	if c.Server.Port == 0 {
		c.Server.Port = d.Server.Port
	}
	if c.RAG.GuidelinesPath == "" {
		c.RAG.GuidelinesPath = d.RAG.GuidelinesPath
	}
	if c.RAG.ChunkSize == 0 {
		c.RAG.ChunkSize = d.RAG.ChunkSize
	}
	if c.RAG.TopK == 0 {
		c.RAG.TopK = d.RAG.TopK
	}
	if c.RAG.Backend == "" {
		c.RAG.Backend = d.RAG.Backend
	}
	if c.RAG.IndexPath == "" {
		c.RAG.IndexPath = d.RAG.IndexPath
	}
	if c.RAG.Collection == "" {
		c.RAG.Collection = d.RAG.Collection
	}
	if c.EmbedLLM.Provider == "" {
		c.EmbedLLM.Provider = d.EmbedLLM.Provider
	}
	if c.Database.Table == "" {
		c.Database.Table = d.Database.Table
	}
	if c.Database.Dimensions == 0 {
		c.Database.Dimensions = d.Database.Dimensions
	}
}

// Validate checks values that would otherwise fail deep inside startup.
func (c *Config) Validate() error {
	if c.RAG.ChunkSize <= 0 {
		return fmt.Errorf("rag.chunk_size must be positive, got %d", c.RAG.ChunkSize)
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("rag.chunk_overlap must be in [0, %d), got %d", c.RAG.ChunkSize, c.RAG.ChunkOverlap)
	}
	if c.RAG.TopK <= 0 {
		return fmt.Errorf("rag.top_k must be positive, got %d", c.RAG.TopK)
	}
	switch c.RAG.Backend {
	case BackendChromem:
	case BackendPGVector:
		if c.Database.DSN == "" {
			return errors.New("database.dsn is required for the pgvector backend")
		}
	default:
		return fmt.Errorf("unknown rag.backend %q", c.RAG.Backend)
	}
	switch c.EmbedLLM.Provider {
	case ProviderOllama, ProviderOpenAI:
	default:
		return fmt.Errorf("unknown embed_llm.provider %q", c.EmbedLLM.Provider)
	}
	if k := len(c.RAG.EncryptionKey); k != 0 && k != 32 {
		return fmt.Errorf("rag.encryption_key must be 32 bytes, got %d", k)
	}
	if c.Server.RateLimit != nil && *c.Server.RateLimit <= 0 {
		return fmt.Errorf("server.rate_limit must be positive, got %d", *c.Server.RateLimit)
	}
	return nil
}

// Address is the listen address for the HTTP server.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}
