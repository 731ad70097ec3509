// Package config handles configuration loading and validation.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete configuration.
type Config struct {
	TextStore   TextStoreConfig   `mapstructure:"textstore" yaml:"textstore"`
	VectorStore VectorStoreConfig `mapstructure:"vectorstore" yaml:"vectorstore"`
	Embedding   EmbeddingConfig   `mapstructure:"embedding" yaml:"embedding"`
	Chunking    ChunkingConfig    `mapstructure:"chunking" yaml:"chunking"`
	Search      SearchConfig      `mapstructure:"search" yaml:"search"`
	Chat        ChatConfig        `mapstructure:"chat" yaml:"chat"`
	Sessions    SessionsConfig    `mapstructure:"sessions" yaml:"sessions"`
	Backup      BackupConfig      `mapstructure:"backup" yaml:"backup"`
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`
}

// TextStoreConfig contains relational text store configuration.
type TextStoreConfig struct {
	Provider string `mapstructure:"provider" yaml:"provider"` // sqlite
	Path     string `mapstructure:"path" yaml:"path"`         // database file path
}

// VectorStoreConfig contains vector store configuration.
type VectorStoreConfig struct {
	Provider string `mapstructure:"provider" yaml:"provider"` // sqlitevec
	Path     string `mapstructure:"path" yaml:"path"`         // database file path
	Metric   string `mapstructure:"metric" yaml:"metric"`     // l2, cosine
}

// EmbeddingConfig contains embedding provider configuration.
type EmbeddingConfig struct {
	Provider  string `mapstructure:"provider" yaml:"provider"`     // openai, ollama
	Model     string `mapstructure:"model" yaml:"model"`           // model name
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`     // API endpoint
	APIKey    string `mapstructure:"api_key" yaml:"api_key"`       // API key
	Dimension int    `mapstructure:"dimension" yaml:"dimension"`   // embedding width
	BatchSize int    `mapstructure:"batch_size" yaml:"batch_size"` // texts per request
}

// ChunkingConfig contains chunking strategy configuration.
type ChunkingConfig struct {
	ChunkSize    int `mapstructure:"chunk_size" yaml:"chunk_size"`       // characters per chunk
	ChunkOverlap int `mapstructure:"chunk_overlap" yaml:"chunk_overlap"` // overlap between chunks
	MinChunkSize int `mapstructure:"min_chunk_size" yaml:"min_chunk_size"`
}

// SearchConfig contains retrieval configuration.
type SearchConfig struct {
	TopK                int     `mapstructure:"top_k" yaml:"top_k"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold" yaml:"similarity_threshold"`
}

// ChatConfig contains chat completion configuration.
type ChatConfig struct {
	Model       string        `mapstructure:"model" yaml:"model"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// SessionsConfig contains session log configuration.
type SessionsConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// BackupConfig contains backup/restore configuration.
type BackupConfig struct {
	Dir            string `mapstructure:"dir" yaml:"dir"`
	OnShutdown     bool   `mapstructure:"on_shutdown" yaml:"on_shutdown"`
	RestoreOnStart bool   `mapstructure:"restore_on_start" yaml:"restore_on_start"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" yaml:"format"` // text, json
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		TextStore: TextStoreConfig{
			Provider: "sqlite",
			Path:     "chatrag.db",
		},
		VectorStore: VectorStoreConfig{
			Provider: "sqlitevec",
			Path:     "vectors.db",
			Metric:   "l2",
		},
		Embedding: EmbeddingConfig{
			Provider:  "openai",
			Model:     "text-embedding-ada-002",
			Dimension: 1536,
			BatchSize: 32,
		},
		Chunking: ChunkingConfig{
			ChunkSize:    500,
			ChunkOverlap: 50,
			MinChunkSize: 100,
		},
		Search: SearchConfig{
			TopK:                3,
			SimilarityThreshold: 0.0,
		},
		Chat: ChatConfig{
			Model:       "gpt-3.5-turbo",
			Temperature: 0.7,
			MaxTokens:   500,
			Timeout:     60 * time.Second,
		},
		Sessions: SessionsConfig{
			Dir: "sessions",
		},
		Backup: BackupConfig{
			Dir:            "backups",
			OnShutdown:     true,
			RestoreOnStart: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// ConfigDir returns the path to the .chatrag directory.
func ConfigDir(root string) string {
	return filepath.Join(root, ".chatrag")
}

// ConfigPath returns the path to config.yaml.
func ConfigPath(root string) string {
	return filepath.Join(ConfigDir(root), "config.yaml")
}

// Load loads configuration from file, falling back to defaults.
func Load(root string) (*Config, []string, error) {
	cfg := DefaultConfig()
	warnings := []string{}

	configPath := ConfigPath(root)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		warnings = append(warnings, "No config file found, using defaults")
		return cfg, warnings, nil
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Environment overrides for secrets; the config file should not need
	// to carry the API key.
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	// Apply defaults for missing values
	if cfg.TextStore.Provider == "" {
		cfg.TextStore.Provider = "sqlite"
	}
	if cfg.VectorStore.Provider == "" {
		cfg.VectorStore.Provider = "sqlitevec"
	}
	if cfg.VectorStore.Metric == "" {
		cfg.VectorStore.Metric = "l2"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "openai"
		warnings = append(warnings, "Using default embedding provider: openai")
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-ada-002"
	}
	if cfg.Embedding.Dimension == 0 {
		cfg.Embedding.Dimension = 1536
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 32
	}
	if cfg.Chunking.ChunkSize == 0 {
		cfg.Chunking.ChunkSize = 500
	}
	if cfg.Chunking.MinChunkSize == 0 {
		cfg.Chunking.MinChunkSize = 100
	}
	if cfg.Search.TopK == 0 {
		cfg.Search.TopK = 3
	}
	if cfg.Chat.Model == "" {
		cfg.Chat.Model = "gpt-3.5-turbo"
	}
	if cfg.Chat.Timeout == 0 {
		cfg.Chat.Timeout = 60 * time.Second
	}

	return cfg, warnings, nil
}

// Save saves configuration to file.
func Save(root string, cfg *Config) error {
	configDir := ConfigDir(root)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(ConfigPath(root))
	v.SetConfigType("yaml")

	v.Set("textstore", cfg.TextStore)
	v.Set("vectorstore", cfg.VectorStore)
	v.Set("embedding", cfg.Embedding)
	v.Set("chunking", cfg.Chunking)
	v.Set("search", cfg.Search)
	v.Set("chat", cfg.Chat)
	v.Set("sessions", cfg.Sessions)
	v.Set("backup", cfg.Backup)
	v.Set("logging", cfg.Logging)

	return v.WriteConfig()
}

// Validate validates the configuration.
func Validate(cfg *Config) []error {
	var errs []error

	validEmbeddingProviders := map[string]bool{
		"openai": true, "ollama": true,
	}
	if !validEmbeddingProviders[cfg.Embedding.Provider] {
		errs = append(errs, fmt.Errorf("invalid embedding provider: %s", cfg.Embedding.Provider))
	}

	if cfg.Embedding.Dimension <= 0 {
		errs = append(errs, fmt.Errorf("invalid embedding dimension: %d", cfg.Embedding.Dimension))
	}

	validMetrics := map[string]bool{
		"l2": true, "cosine": true,
	}
	if !validMetrics[cfg.VectorStore.Metric] {
		errs = append(errs, fmt.Errorf("invalid vector metric: %s (valid: l2, cosine)", cfg.VectorStore.Metric))
	}

	if cfg.Chunking.ChunkOverlap >= cfg.Chunking.ChunkSize {
		errs = append(errs, fmt.Errorf("chunk overlap %d must be smaller than chunk size %d",
			cfg.Chunking.ChunkOverlap, cfg.Chunking.ChunkSize))
	}

	if cfg.Search.SimilarityThreshold < 0 || cfg.Search.SimilarityThreshold > 1 {
		errs = append(errs, fmt.Errorf("similarity threshold %f out of range [0,1]", cfg.Search.SimilarityThreshold))
	}

	return errs
}

// Hash returns a hash of the configuration that affects stored vectors.
// If this changes between runs, existing embeddings no longer match the
// model that would repair them and a full re-ingest is needed.
func (c *Config) Hash() string {
	data := fmt.Sprintf("%s:%s:%d:%s",
		c.Embedding.Provider,
		c.Embedding.Model,
		c.Embedding.Dimension,
		c.VectorStore.Metric,
	)
	h := sha256.Sum256([]byte(data))
	return hex.EncodeToString(h[:])
}
