package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leasesum/internal/config"
	"leasesum/internal/domain"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.LLM.Primary.Provider)
	assert.Equal(t, "gpt-4o", cfg.LLM.Primary.DefaultModel)
	assert.Equal(t, 3, cfg.Pipeline.MaxAttempts)
	assert.Equal(t, 4, cfg.Pipeline.Concurrency)
	assert.Equal(t, 500*time.Millisecond, cfg.Pipeline.RetryInitialBackoff)
	assert.Equal(t, "last_writer", cfg.Pipeline.MergePolicy)
	assert.Equal(t, 100.0, cfg.Pipeline.MaxCostUSD)
	assert.Equal(t, []string{"json", "markdown", "csv", "xlsx"}, cfg.Output.Formats)
	assert.False(t, cfg.DB.Enabled)
	assert.Equal(t, "noop", cfg.Email.Provider)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LEASESUM_PIPELINE_CONCURRENCY", "8")
	t.Setenv("LEASESUM_PIPELINE_GROUP_BY", "lease_type")
	t.Setenv("LEASESUM_LLM_SECONDARY_PROVIDER", "claude")
	t.Setenv("LEASESUM_OUTPUT_FORMATS", "json, csv")
	t.Setenv("LEASESUM_EMAIL_RECIPIENTS", "a@example.com,b@example.com")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Pipeline.Concurrency)
	assert.Equal(t, "lease_type", cfg.Pipeline.GroupBy)
	assert.Equal(t, []string{"json", "csv"}, cfg.Output.Formats)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, cfg.Email.Recipients)

	providers := cfg.LLM.Providers()
	require.Len(t, providers, 2)
	assert.Equal(t, "openai", providers[0].Provider)
	assert.Equal(t, "claude", providers[1].Provider)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leasesum.yaml")
	content := `
pipeline:
  merge_policy: first_writer
  max_attempts: 2
output:
  formats: [json, xlsx]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "first_writer", cfg.Pipeline.MergePolicy)
	assert.Equal(t, 2, cfg.Pipeline.MaxAttempts)
	assert.Equal(t, []string{"json", "xlsx"}, cfg.Output.Formats)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *config.Config {
		return &config.Config{
			LLM:      config.LLMConfig{Primary: config.LLMProviderConfig{Provider: "openai"}},
			Pipeline: config.PipelineConfig{Concurrency: 1, MaxAttempts: 3, MergePolicy: "last_writer"},
			Output:   config.OutputConfig{Formats: []string{"json"}},
		}
	}

	tests := []struct {
		name   string
		mutate func(c *config.Config)
	}{
		{"no providers", func(c *config.Config) { c.LLM.Primary.Provider = "" }},
		{"zero concurrency", func(c *config.Config) { c.Pipeline.Concurrency = 0 }},
		{"zero attempts", func(c *config.Config) { c.Pipeline.MaxAttempts = 0 }},
		{"bad merge policy", func(c *config.Config) { c.Pipeline.MergePolicy = "random" }},
		{"negative cost", func(c *config.Config) { c.Pipeline.MaxCostUSD = -1 }},
		{"bad format", func(c *config.Config) { c.Output.Formats = []string{"pdf"} }},
		{"s3 without bucket", func(c *config.Config) { c.Output.UploadS3 = true }},
	}

	require.NoError(t, valid().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, domain.IsKind(err, domain.ErrConfiguration))
		})
	}
}

func TestDBConfig_DSN(t *testing.T) {
	db := config.DBConfig{User: "u", Password: "p", Host: "h", Port: 5432, Name: "n", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@h:5432/n?sslmode=disable", db.DSN())
}
