package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"leasesum/internal/domain"
)

// Config holds all application configuration.
type Config struct {
	LLM      LLMConfig
	Pipeline PipelineConfig
	Source   SourceConfig
	Output   OutputConfig
	S3       S3Config
	DB       DBConfig
	Email    EmailConfig
	Metrics  MetricsConfig
	Log      LogConfig
}

// LLMProviderConfig holds settings for a single extraction service provider.
type LLMProviderConfig struct {
	Provider          string  `mapstructure:"provider"`
	APIKey            string  `mapstructure:"api_key"`
	DefaultModel      string  `mapstructure:"default_model"`
	TimeoutSecs       int     `mapstructure:"timeout_secs"`
	RequestsPerMinute int     `mapstructure:"requests_per_minute"`
	Temperature       float64 `mapstructure:"temperature"`
}

// LLMConfig holds the ordered provider chain. Secondary and tertiary are fallbacks.
type LLMConfig struct {
	Primary   LLMProviderConfig `mapstructure:"primary"`
	Secondary LLMProviderConfig `mapstructure:"secondary"`
	Tertiary  LLMProviderConfig `mapstructure:"tertiary"`
}

// Providers returns the configured providers in fallback order.
func (l *LLMConfig) Providers() []*LLMProviderConfig {
	var out []*LLMProviderConfig
	for _, p := range []*LLMProviderConfig{&l.Primary, &l.Secondary, &l.Tertiary} {
		if p.Provider != "" {
			out = append(out, p)
		}
	}
	return out
}

// PipelineConfig holds extraction run settings.
type PipelineConfig struct {
	Concurrency         int           `mapstructure:"concurrency"`
	MaxAttempts         int           `mapstructure:"max_attempts"`
	RetryInitialBackoff time.Duration `mapstructure:"retry_initial_backoff"`
	RetryMaxBackoff     time.Duration `mapstructure:"retry_max_backoff"`
	BreakerEnabled      bool          `mapstructure:"breaker_enabled"`
	MergePolicy         string        `mapstructure:"merge_policy"`
	GroupBy             string        `mapstructure:"group_by"`
	MaxCostUSD          float64       `mapstructure:"max_cost_usd"`
}

// SourceConfig points at the lease and prompt folders.
type SourceConfig struct {
	LeaseDir  string `mapstructure:"lease_dir"`
	PromptDir string `mapstructure:"prompt_dir"`
}

// OutputConfig controls which artifacts are rendered and where they go.
type OutputConfig struct {
	Dir      string   `mapstructure:"dir"`
	Formats  []string `mapstructure:"formats"`
	UploadS3 bool     `mapstructure:"upload_s3"`
}

// S3Config holds AWS S3 settings.
type S3Config struct {
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// DBConfig holds PostgreSQL connection settings for run history.
type DBConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxOpen  int    `mapstructure:"max_open"`
	MaxIdle  int    `mapstructure:"max_idle"`
}

// DSN returns the PostgreSQL connection string.
func (d *DBConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// EmailConfig holds run notification settings.
type EmailConfig struct {
	Provider    string   `mapstructure:"provider"`
	Region      string   `mapstructure:"region"`
	FromAddress string   `mapstructure:"from_address"`
	FromName    string   `mapstructure:"from_name"`
	Recipients  []string `mapstructure:"recipients"`
}

// MetricsConfig holds the prometheus endpoint address. Empty disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if len(c.LLM.Providers()) == 0 {
		return domain.NewConfigurationError("no extraction provider configured")
	}
	if c.Pipeline.Concurrency < 1 {
		return domain.NewConfigurationError("pipeline.concurrency must be >= 1, got %d", c.Pipeline.Concurrency)
	}
	if c.Pipeline.MaxAttempts < 1 {
		return domain.NewConfigurationError("pipeline.max_attempts must be >= 1, got %d", c.Pipeline.MaxAttempts)
	}
	if _, err := domain.ParseMergePolicy(c.Pipeline.MergePolicy); err != nil {
		return err
	}
	if c.Pipeline.MaxCostUSD < 0 {
		return domain.NewConfigurationError("pipeline.max_cost_usd must not be negative")
	}
	for _, f := range c.Output.Formats {
		if !AllowedFormats[f] {
			return domain.NewConfigurationError("unknown output format %q", f)
		}
	}
	if c.Output.UploadS3 && c.S3.Bucket == "" {
		return domain.NewConfigurationError("output.upload_s3 requires s3.bucket")
	}
	return nil
}

// AllowedFormats lists the artifact renderers.
var AllowedFormats = map[string]bool{
	"json":     true,
	"markdown": true,
	"csv":      true,
	"xlsx":     true,
}

// Load reads configuration from environment variables with the LEASESUM_ prefix
// and, when configFile is non-empty, from that file.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LEASESUM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// LLM defaults
	v.SetDefault("llm.primary.provider", "openai")
	v.SetDefault("llm.primary.api_key", "")
	v.SetDefault("llm.primary.default_model", "gpt-4o")
	v.SetDefault("llm.primary.timeout_secs", 120)
	v.SetDefault("llm.primary.requests_per_minute", 0)
	v.SetDefault("llm.primary.temperature", 0.2)
	for _, tier := range []string{"secondary", "tertiary"} {
		v.SetDefault("llm."+tier+".provider", "")
		v.SetDefault("llm."+tier+".api_key", "")
		v.SetDefault("llm."+tier+".default_model", "")
		v.SetDefault("llm."+tier+".timeout_secs", 120)
		v.SetDefault("llm."+tier+".requests_per_minute", 0)
		v.SetDefault("llm."+tier+".temperature", 0.2)
	}

	// Pipeline defaults
	v.SetDefault("pipeline.concurrency", 4)
	v.SetDefault("pipeline.max_attempts", 3)
	v.SetDefault("pipeline.retry_initial_backoff", "500ms")
	v.SetDefault("pipeline.retry_max_backoff", "5s")
	v.SetDefault("pipeline.breaker_enabled", false)
	v.SetDefault("pipeline.merge_policy", string(domain.MergeLastWriter))
	v.SetDefault("pipeline.group_by", "")
	v.SetDefault("pipeline.max_cost_usd", 100.0)

	// Source / output defaults
	v.SetDefault("source.lease_dir", "data/leases")
	v.SetDefault("source.prompt_dir", "data/prompts")
	v.SetDefault("output.dir", "output")
	v.SetDefault("output.formats", "json,markdown,csv,xlsx")
	v.SetDefault("output.upload_s3", false)

	// S3 defaults
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.prefix", "leasesum")
	v.SetDefault("s3.endpoint", "")

	// DB defaults
	v.SetDefault("db.enabled", false)
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "leasesum")
	v.SetDefault("db.password", "leasesum_secret")
	v.SetDefault("db.name", "leasesum_db")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_open", 10)
	v.SetDefault("db.max_idle", 5)

	// Email defaults
	v.SetDefault("email.provider", "noop")
	v.SetDefault("email.region", "us-east-1")
	v.SetDefault("email.from_address", "noreply@leasesum.local")
	v.SetDefault("email.from_name", "Lease Summary")
	v.SetDefault("email.recipients", "")

	v.SetDefault("metrics.addr", "")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	// Bind environment variables explicitly for nested keys
	envBindings := map[string]string{
		"llm.primary.provider":            "LEASESUM_LLM_PRIMARY_PROVIDER",
		"llm.primary.api_key":             "LEASESUM_LLM_PRIMARY_API_KEY",
		"llm.primary.default_model":       "LEASESUM_LLM_PRIMARY_DEFAULT_MODEL",
		"llm.primary.timeout_secs":        "LEASESUM_LLM_PRIMARY_TIMEOUT_SECS",
		"llm.primary.requests_per_minute": "LEASESUM_LLM_PRIMARY_REQUESTS_PER_MINUTE",
		"llm.secondary.provider":          "LEASESUM_LLM_SECONDARY_PROVIDER",
		"llm.secondary.api_key":           "LEASESUM_LLM_SECONDARY_API_KEY",
		"llm.secondary.default_model":     "LEASESUM_LLM_SECONDARY_DEFAULT_MODEL",
		"llm.secondary.timeout_secs":      "LEASESUM_LLM_SECONDARY_TIMEOUT_SECS",
		"llm.tertiary.provider":           "LEASESUM_LLM_TERTIARY_PROVIDER",
		"llm.tertiary.api_key":            "LEASESUM_LLM_TERTIARY_API_KEY",
		"llm.tertiary.default_model":      "LEASESUM_LLM_TERTIARY_DEFAULT_MODEL",
		"llm.tertiary.timeout_secs":       "LEASESUM_LLM_TERTIARY_TIMEOUT_SECS",
		"pipeline.concurrency":            "LEASESUM_PIPELINE_CONCURRENCY",
		"pipeline.max_attempts":           "LEASESUM_PIPELINE_MAX_ATTEMPTS",
		"pipeline.retry_initial_backoff":  "LEASESUM_PIPELINE_RETRY_INITIAL_BACKOFF",
		"pipeline.retry_max_backoff":      "LEASESUM_PIPELINE_RETRY_MAX_BACKOFF",
		"pipeline.breaker_enabled":        "LEASESUM_PIPELINE_BREAKER_ENABLED",
		"pipeline.merge_policy":           "LEASESUM_PIPELINE_MERGE_POLICY",
		"pipeline.group_by":               "LEASESUM_PIPELINE_GROUP_BY",
		"pipeline.max_cost_usd":           "LEASESUM_PIPELINE_MAX_COST_USD",
		"source.lease_dir":                "LEASESUM_SOURCE_LEASE_DIR",
		"source.prompt_dir":               "LEASESUM_SOURCE_PROMPT_DIR",
		"output.dir":                      "LEASESUM_OUTPUT_DIR",
		"output.formats":                  "LEASESUM_OUTPUT_FORMATS",
		"output.upload_s3":                "LEASESUM_OUTPUT_UPLOAD_S3",
		"s3.region":                       "LEASESUM_S3_REGION",
		"s3.bucket":                       "LEASESUM_S3_BUCKET",
		"s3.prefix":                       "LEASESUM_S3_PREFIX",
		"s3.endpoint":                     "LEASESUM_S3_ENDPOINT",
		"s3.access_key":                   "LEASESUM_S3_ACCESS_KEY",
		"s3.secret_key":                   "LEASESUM_S3_SECRET_KEY",
		"db.enabled":                      "LEASESUM_DB_ENABLED",
		"db.host":                         "LEASESUM_DB_HOST",
		"db.port":                         "LEASESUM_DB_PORT",
		"db.user":                         "LEASESUM_DB_USER",
		"db.password":                     "LEASESUM_DB_PASSWORD",
		"db.name":                         "LEASESUM_DB_NAME",
		"db.sslmode":                      "LEASESUM_DB_SSLMODE",
		"email.provider":                  "LEASESUM_EMAIL_PROVIDER",
		"email.region":                    "LEASESUM_EMAIL_REGION",
		"email.from_address":              "LEASESUM_EMAIL_FROM_ADDRESS",
		"email.from_name":                 "LEASESUM_EMAIL_FROM_NAME",
		"email.recipients":                "LEASESUM_EMAIL_RECIPIENTS",
		"metrics.addr":                    "LEASESUM_METRICS_ADDR",
		"log.level":                       "LEASESUM_LOG_LEVEL",
		"log.format":                      "LEASESUM_LOG_FORMAT",
	}
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", configFile, err)
		}
	}

	cfg := &Config{}
	cfg.LLM = LLMConfig{
		Primary:   providerConfig(v, "llm.primary"),
		Secondary: providerConfig(v, "llm.secondary"),
		Tertiary:  providerConfig(v, "llm.tertiary"),
	}
	cfg.Pipeline = PipelineConfig{
		Concurrency:         v.GetInt("pipeline.concurrency"),
		MaxAttempts:         v.GetInt("pipeline.max_attempts"),
		RetryInitialBackoff: v.GetDuration("pipeline.retry_initial_backoff"),
		RetryMaxBackoff:     v.GetDuration("pipeline.retry_max_backoff"),
		BreakerEnabled:      v.GetBool("pipeline.breaker_enabled"),
		MergePolicy:         v.GetString("pipeline.merge_policy"),
		GroupBy:             v.GetString("pipeline.group_by"),
		MaxCostUSD:          v.GetFloat64("pipeline.max_cost_usd"),
	}
	cfg.Source = SourceConfig{
		LeaseDir:  v.GetString("source.lease_dir"),
		PromptDir: v.GetString("source.prompt_dir"),
	}
	cfg.Output = OutputConfig{
		Dir:      v.GetString("output.dir"),
		Formats:  stringList(v, "output.formats"),
		UploadS3: v.GetBool("output.upload_s3"),
	}
	cfg.S3 = S3Config{
		Region:    v.GetString("s3.region"),
		Bucket:    v.GetString("s3.bucket"),
		Prefix:    v.GetString("s3.prefix"),
		Endpoint:  v.GetString("s3.endpoint"),
		AccessKey: v.GetString("s3.access_key"),
		SecretKey: v.GetString("s3.secret_key"),
	}
	cfg.DB = DBConfig{
		Enabled:  v.GetBool("db.enabled"),
		Host:     v.GetString("db.host"),
		Port:     v.GetInt("db.port"),
		User:     v.GetString("db.user"),
		Password: v.GetString("db.password"),
		Name:     v.GetString("db.name"),
		SSLMode:  v.GetString("db.sslmode"),
		MaxOpen:  v.GetInt("db.max_open"),
		MaxIdle:  v.GetInt("db.max_idle"),
	}
	cfg.Email = EmailConfig{
		Provider:    v.GetString("email.provider"),
		Region:      v.GetString("email.region"),
		FromAddress: v.GetString("email.from_address"),
		FromName:    v.GetString("email.from_name"),
		Recipients:  stringList(v, "email.recipients"),
	}
	cfg.Metrics = MetricsConfig{Addr: v.GetString("metrics.addr")}
	cfg.Log = LogConfig{
		Level:  v.GetString("log.level"),
		Format: v.GetString("log.format"),
	}

	return cfg, nil
}

func providerConfig(v *viper.Viper, prefix string) LLMProviderConfig {
	return LLMProviderConfig{
		Provider:          v.GetString(prefix + ".provider"),
		APIKey:            v.GetString(prefix + ".api_key"),
		DefaultModel:      v.GetString(prefix + ".default_model"),
		TimeoutSecs:       v.GetInt(prefix + ".timeout_secs"),
		RequestsPerMinute: v.GetInt(prefix + ".requests_per_minute"),
		Temperature:       v.GetFloat64(prefix + ".temperature"),
	}
}

// stringList reads a key that may hold a comma-separated string (env) or a list (config file).
func stringList(v *viper.Viper, key string) []string {
	if raw, ok := v.Get(key).([]any); ok {
		out := make([]string, 0, len(raw))
		for _, item := range raw {
			if s := strings.TrimSpace(fmt.Sprint(item)); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return splitList(v.GetString(key))
}

// splitList parses a comma-separated string, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
