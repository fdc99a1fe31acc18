// Package config loads painscout.yaml, overlays PAINSCOUT_* environment
// variables, and validates every section before anything runs.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/painscout/painscout/internal/ai"
	"github.com/painscout/painscout/internal/clustering"
	"github.com/painscout/painscout/internal/cost"
	"github.com/painscout/painscout/internal/embedding"
	"github.com/painscout/painscout/internal/logging"
	"github.com/painscout/painscout/internal/pipeline"
	"github.com/painscout/painscout/internal/scoring"
	"github.com/painscout/painscout/internal/storage"
)

// DefaultFile is read when no --config flag is given. It is optional.
const DefaultFile = "painscout.yaml"

// Provider names
const (
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
)

// Config is the complete application configuration
type Config struct {
	Storage    storage.Config   `yaml:"storage"`
	Logging    logging.Config   `yaml:"logging"`
	AI         AIConfig         `yaml:"ai"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Clustering ClusteringConfig `yaml:"clustering"`
	Pipeline   pipeline.Config  `yaml:"pipeline"`
	Scoring    *ScoringSection  `yaml:"scoring"`
	Cost       cost.Config      `yaml:"cost"`

	// model is the validated scoring model, filled by Validate
	model scoring.Model
}

// AIConfig selects and tunes the classification model
type AIConfig struct {
	// Provider is anthropic or gemini
	// Default: anthropic
	Provider string `yaml:"provider"`

	// Model overrides the provider's default model
	Model string `yaml:"model"`

	// APIKey falls back to ANTHROPIC_API_KEY or GEMINI_API_KEY
	APIKey string `yaml:"api_key"`

	BaseURL   string        `yaml:"base_url"`
	Timeout   time.Duration `yaml:"timeout"`
	MaxTokens int           `yaml:"max_tokens"`

	Breaker ai.BreakerConfig `yaml:"breaker"`
}

// EmbeddingConfig selects the embedding provider and search parameters
type EmbeddingConfig struct {
	// Provider is openai (any OpenAI-compatible endpoint) or gemini
	// Default: openai
	Provider string `yaml:"provider"`

	Model      string `yaml:"model"`
	BaseURL    string `yaml:"base_url"`
	Dimensions int    `yaml:"dimensions"`

	// APIKey falls back to OPENAI_API_KEY or GEMINI_API_KEY
	APIKey string `yaml:"api_key"`

	// APIKeyFile is re-read every KeyTTL, for rotated short-lived tokens.
	// It takes precedence over APIKey.
	APIKeyFile string        `yaml:"api_key_file"`
	KeyTTL     time.Duration `yaml:"key_ttl"`

	embedding.Config `yaml:",inline"`
}

// ClusteringConfig holds the clustering settings that are not similarity
// thresholds. Thresholds live in the embedding section.
type ClusteringConfig struct {
	// MinGroupSize is the smallest keyword-signature group that becomes a cluster
	// Default: 3
	MinGroupSize int `yaml:"min_group_size"`
}

// Default returns the configuration used when nothing is configured
func Default() *Config {
	return &Config{
		Storage: storage.Config{},
		Logging: logging.DefaultConfig(),
		AI: AIConfig{
			Provider:  ProviderAnthropic,
			Timeout:   60 * time.Second,
			MaxTokens: 1024,
			Breaker:   ai.DefaultBreakerConfig(),
		},
		Embedding: EmbeddingConfig{
			Provider: ProviderOpenAI,
			KeyTTL:   10 * time.Minute,
			Config:   embedding.DefaultConfig(),
		},
		Clustering: ClusteringConfig{MinGroupSize: clustering.DefaultConfig().MinGroupSize},
		Pipeline:   pipeline.DefaultConfig(),
		Cost:       cost.DefaultConfig(),
	}
}

// Load reads path (or DefaultFile when path is empty), expands ${VAR}
// references, overlays the environment and validates the result. A missing
// DefaultFile is not an error; a missing explicit path is.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := cfg.decode(data); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
		// defaults only
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.resolveKeys()

	if cfg.Storage.Path == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		if cfg.Storage.Path, err = storage.DiscoverDatabase(cwd); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// decode overlays YAML onto cfg. Unknown keys are rejected so typos surface.
func (c *Config) decode(data []byte) error {
	expanded := os.ExpandEnv(string(data))
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// resolveKeys fills API keys from the provider's conventional variables
func (c *Config) resolveKeys() {
	if c.AI.APIKey == "" {
		switch c.AI.Provider {
		case ProviderAnthropic:
			c.AI.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		case ProviderGemini:
			c.AI.APIKey = os.Getenv("GEMINI_API_KEY")
		}
	}
	if c.Embedding.APIKey == "" {
		switch c.Embedding.Provider {
		case ProviderOpenAI:
			c.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
		case ProviderGemini:
			c.Embedding.APIKey = os.Getenv("GEMINI_API_KEY")
		}
	}
}

// Validate checks every section. Secrets are not required here: commands
// that never call a provider must work without them.
func (c *Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return err
	}

	switch c.AI.Provider {
	case ProviderAnthropic, ProviderGemini:
	default:
		return fmt.Errorf("ai.provider must be 'anthropic' or 'gemini' (got %q)", c.AI.Provider)
	}
	if c.AI.MaxTokens < 1 {
		return fmt.Errorf("ai.max_tokens must be positive (got %d)", c.AI.MaxTokens)
	}
	if c.AI.Timeout < 0 {
		return fmt.Errorf("ai.timeout cannot be negative (got %v)", c.AI.Timeout)
	}
	if c.AI.Breaker.Enabled {
		if c.AI.Breaker.FailureThreshold < 1 {
			return fmt.Errorf("ai.breaker.failure_threshold must be at least 1 (got %d)", c.AI.Breaker.FailureThreshold)
		}
		if c.AI.Breaker.SuccessThreshold < 1 {
			return fmt.Errorf("ai.breaker.success_threshold must be at least 1 (got %d)", c.AI.Breaker.SuccessThreshold)
		}
		if c.AI.Breaker.OpenTimeout <= 0 {
			return fmt.Errorf("ai.breaker.open_timeout must be positive (got %v)", c.AI.Breaker.OpenTimeout)
		}
	}

	switch c.Embedding.Provider {
	case ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("embedding.provider must be 'openai' or 'gemini' (got %q)", c.Embedding.Provider)
	}
	if c.Embedding.Dimensions < 0 {
		return fmt.Errorf("embedding.dimensions cannot be negative (got %d)", c.Embedding.Dimensions)
	}
	if c.Embedding.APIKeyFile != "" && c.Embedding.KeyTTL <= 0 {
		return fmt.Errorf("embedding.key_ttl must be positive when api_key_file is set (got %v)", c.Embedding.KeyTTL)
	}
	if err := c.Embedding.Config.Validate(); err != nil {
		return fmt.Errorf("embedding.%w", err)
	}

	if err := c.ClusteringSettings().Validate(); err != nil {
		return fmt.Errorf("clustering.%w", err)
	}
	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline.%w", err)
	}
	if err := c.Cost.Validate(); err != nil {
		return fmt.Errorf("cost.%w", err)
	}

	model, err := c.Scoring.Model()
	if err != nil {
		return err
	}
	c.model = model
	return nil
}

// ScoringModel returns the validated scoring model
func (c *Config) ScoringModel() scoring.Model {
	return c.model
}

// ClusteringSettings combines the embedding thresholds with the clustering section
func (c *Config) ClusteringSettings() clustering.Config {
	return clustering.Config{
		SignalThreshold:  c.Embedding.SignalThreshold,
		ClusterThreshold: c.Embedding.ClusterThreshold,
		MinGroupSize:     c.Clustering.MinGroupSize,
	}
}
