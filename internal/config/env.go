package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/painscout/painscout/internal/pipeline"
)

// EnvPrefix is prepended to every overridable variable name
const EnvPrefix = "PAINSCOUT_"

// applyEnv overlays PAINSCOUT_* variables onto c
func (c *Config) applyEnv() error {
	parseEnvString("DB_PATH", &c.Storage.Path)
	parseEnvString("LOG_LEVEL", &c.Logging.Level)
	parseEnvString("LOG_FORMAT", &c.Logging.Format)
	parseEnvString("AI_PROVIDER", &c.AI.Provider)
	parseEnvString("AI_MODEL", &c.AI.Model)
	parseEnvString("EMBEDDING_PROVIDER", &c.Embedding.Provider)
	parseEnvString("EMBEDDING_MODEL", &c.Embedding.Model)

	if err := parseEnvInt("BATCH_SIZE", &c.Pipeline.BatchSize); err != nil {
		return err
	}
	if err := parseEnvInt("MAX_BATCHES", &c.Pipeline.MaxBatches); err != nil {
		return err
	}
	if err := parseEnvDuration("CLASSIFY_DELAY", &c.Pipeline.ClassifyDelay); err != nil {
		return err
	}
	var policy string
	if parseEnvString("FAILURE_POLICY", &policy) {
		c.Pipeline.FailurePolicy = pipeline.FailurePolicy(policy)
	}
	if err := parseEnvInt("MIN_SIGNALS", &c.Pipeline.MinSignals); err != nil {
		return err
	}
	if err := parseEnvBool("SUMMARIES", &c.Pipeline.Summaries); err != nil {
		return err
	}
	if err := parseEnvBool("COST_ENABLED", &c.Cost.Enabled); err != nil {
		return err
	}
	if err := parseEnvFloat("COST_MAX_PER_RUN", &c.Cost.MaxCostPerRun); err != nil {
		return err
	}
	return nil
}

// parseEnvString sets *target when the variable is non-empty
func parseEnvString(name string, target *string) bool {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		*target = val
		return true
	}
	return false
}

func parseEnvInt(name string, target *int) error {
	val := os.Getenv(EnvPrefix + name)
	if val == "" {
		return nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
	}
	*target = n
	return nil
}

func parseEnvFloat(name string, target *float64) error {
	val := os.Getenv(EnvPrefix + name)
	if val == "" {
		return nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
	}
	*target = f
	return nil
}

func parseEnvBool(name string, target *bool) error {
	val := os.Getenv(EnvPrefix + name)
	if val == "" {
		return nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
	}
	*target = b
	return nil
}

// parseEnvDuration accepts Go durations ("750ms") or plain milliseconds
func parseEnvDuration(name string, target *time.Duration) error {
	val := os.Getenv(EnvPrefix + name)
	if val == "" {
		return nil
	}
	if d, err := time.ParseDuration(val); err == nil {
		*target = d
		return nil
	}
	ms, err := strconv.Atoi(val)
	if err != nil {
		return fmt.Errorf("invalid %s%s: expected duration or milliseconds, got %q", EnvPrefix, name, val)
	}
	*target = time.Duration(ms) * time.Millisecond
	return nil
}
