package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/painscout/painscout/internal/pipeline"
	"github.com/painscout/painscout/internal/scoring"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "painscout.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ProviderAnthropic, cfg.AI.Provider)
	assert.Equal(t, ProviderOpenAI, cfg.Embedding.Provider)
	assert.Equal(t, pipeline.DefaultConfig(), cfg.Pipeline)
	assert.Equal(t, scoring.DefaultModel(), cfg.ScoringModel())
	assert.Equal(t, filepath.Join(dir, ".painscout", "painscout.db"), cfg.Storage.Path)
}

func TestLoadExplicitPathMustExist(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "reading config file")
}

func TestLoadFileAndEnvOverlay(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TEST_ANTHROPIC_KEY", "sk-from-file")
	t.Setenv("PAINSCOUT_BATCH_SIZE", "7")
	t.Setenv("PAINSCOUT_CLASSIFY_DELAY", "750")
	t.Setenv("PAINSCOUT_FAILURE_POLICY", "retry_transient")
	t.Setenv("PAINSCOUT_COST_MAX_PER_RUN", "0.5")

	path := writeConfig(t, dir, `
storage:
  path: /tmp/scout.db
logging:
  level: debug
  format: json
ai:
  provider: anthropic
  api_key: ${TEST_ANTHROPIC_KEY}
embedding:
  provider: gemini
  signal_threshold: 0.9
  cluster_threshold: 0.8
pipeline:
  batch_size: 50
  summaries: true
clustering:
  min_group_size: 4
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/scout.db", cfg.Storage.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "sk-from-file", cfg.AI.APIKey)
	assert.Equal(t, 7, cfg.Pipeline.BatchSize, "env wins over file")
	assert.Equal(t, 750*time.Millisecond, cfg.Pipeline.ClassifyDelay)
	assert.Equal(t, pipeline.PolicyRetryTransient, cfg.Pipeline.FailurePolicy)
	assert.True(t, cfg.Pipeline.Summaries)
	assert.InDelta(t, 0.5, cfg.Cost.MaxCostPerRun, 1e-9)

	cl := cfg.ClusteringSettings()
	assert.InDelta(t, 0.9, cl.SignalThreshold, 1e-9)
	assert.InDelta(t, 0.8, cl.ClusterThreshold, 1e-9)
	assert.Equal(t, 4, cl.MinGroupSize)
	assert.Equal(t, 5, cfg.Embedding.SignalLimit, "unset search fields keep defaults")
}

func TestLoadProviderKeyFallback(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("OPENAI_API_KEY", "o-key")
	path := writeConfig(t, t.TempDir(), "ai:\n  provider: gemini\nstorage:\n  path: x.db\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "g-key", cfg.AI.APIKey)
	assert.Equal(t, "o-key", cfg.Embedding.APIKey)
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
		env  map[string]string
		want string
	}{
		{"unknown key", "pipeline:\n  batchsize: 3\n", nil, "batchsize"},
		{"bad provider", "ai:\n  provider: openai\n", nil, "ai.provider"},
		{"bad embedding provider", "embedding:\n  provider: cohere\n", nil, "embedding.provider"},
		{"batch size", "pipeline:\n  batch_size: 0\n", nil, "pipeline.batch_size"},
		{"delay too short", "pipeline:\n  classify_delay: 100ms\n", nil, "pipeline.classify_delay"},
		{"failure policy", "pipeline:\n  failure_policy: ignore\n", nil, "pipeline.failure_policy"},
		{"threshold", "embedding:\n  signal_threshold: 1.5\n", nil, "embedding.signal_threshold"},
		{"group size", "clustering:\n  min_group_size: 1\n", nil, "clustering.min_group_size"},
		{"cost", "cost:\n  alert_threshold: 2\n", nil, "cost.alert_threshold"},
		{"log level", "logging:\n  level: loud\n", nil, "logging.level"},
		{"key file ttl", "embedding:\n  api_key_file: /k\n  key_ttl: 0s\n", nil, "embedding.key_ttl"},
		{"breaker", "ai:\n  breaker:\n    enabled: true\n    failure_threshold: 0\n    success_threshold: 1\n    open_timeout: 1s\n", nil, "failure_threshold"},
		{"env int", "", map[string]string{"PAINSCOUT_MAX_BATCHES": "many"}, "PAINSCOUT_MAX_BATCHES"},
		{"env bool", "", map[string]string{"PAINSCOUT_SUMMARIES": "perhaps"}, "PAINSCOUT_SUMMARIES"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := writeConfig(t, t.TempDir(), "storage:\n  path: x.db\n"+tt.body)
			_, err := Load(path)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestScoringSection(t *testing.T) {
	full := `
scoring:
  weights: {demand: 0.3, pain: 0.3, wtp: 0.2, headroom: 0.1, timing: 0.1}
  thresholds: {build: 85, invest: 70, monitor: 50}
  penalties: {saturation: 0.5}
`
	cfg, err := Load(writeConfig(t, t.TempDir(), "storage:\n  path: x.db\n"+full))
	require.NoError(t, err)
	m := cfg.ScoringModel()
	assert.InDelta(t, 0.3, m.Weights.Demand, 1e-9)
	assert.InDelta(t, 85, m.Thresholds.Build, 1e-9)
	assert.InDelta(t, 0.5, m.Penalties.Saturation, 1e-9)

	tests := []struct {
		name string
		body string
		want string
	}{
		{
			"missing timing",
			"scoring:\n  weights: {demand: 0.3, pain: 0.3, wtp: 0.2, headroom: 0.1}\n  thresholds: {build: 85, invest: 70, monitor: 50}\n  penalties: {saturation: 0.5}\n",
			"scoring.weights.timing is required",
		},
		{
			"missing thresholds",
			"scoring:\n  weights: {demand: 0.3, pain: 0.3, wtp: 0.2, headroom: 0.1, timing: 0.1}\n",
			"scoring.thresholds is required",
		},
		{
			"inverted thresholds",
			"scoring:\n  weights: {demand: 0.3, pain: 0.3, wtp: 0.2, headroom: 0.1, timing: 0.1}\n  thresholds: {build: 60, invest: 70, monitor: 50}\n  penalties: {saturation: 0.5}\n",
			"scoring.thresholds.build",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, t.TempDir(), "storage:\n  path: x.db\n"+tt.body))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestNilScoringSectionIsDefault(t *testing.T) {
	var s *ScoringSection
	m, err := s.Model()
	require.NoError(t, err)
	assert.Equal(t, scoring.DefaultModel(), m)
}
