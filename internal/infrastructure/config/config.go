package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/erp/invoicerouter/internal/domain/invoice"
	"github.com/erp/invoicerouter/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. INVROUTE_POLICY_LOW_CONFIDENCE_THRESHOLD
const EnvPrefix = "INVROUTE"

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Log       LogConfig
	Pipeline  PipelineConfig
	Policy    PolicyConfig
	Storage   StorageConfig
	Redis     RedisConfig
	Telemetry TelemetryConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// PipelineConfig controls batch execution
type PipelineConfig struct {
	Version          string
	BatchConcurrency int
	MaxBatchSize     int
}

// PolicyConfig holds the validation thresholds. Amounts are kept as strings
// so they convert to decimals without float rounding.
type PolicyConfig struct {
	LowConfidenceThreshold  float64
	HighTotalThreshold      string
	DefaultTolerance        string
	CurrencyTolerance       map[string]string
	MissingPOBlocking       bool
	UnknownCurrencyBlocking bool
}

// StorageConfig holds the S3-compatible artifact sink settings
type StorageConfig struct {
	Enabled      bool
	Endpoint     string
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	UseSSL       bool
	UsePathStyle bool
	Prefix       string
}

// RedisConfig holds Redis connection settings for publish deduplication
type RedisConfig struct {
	Enabled        bool
	Host           string
	Port           int
	Password       string
	DB             int
	IdempotencyTTL time.Duration
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled               bool
	CollectorEndpoint     string  // e.g. "localhost:4317"
	SamplingRatio         float64 // 0.0-1.0
	ServiceName           string
	Insecure              bool // development only
	MetricsExportInterval time.Duration
	LogsEnabled           bool
}

// Load reads config.toml from the default search paths and applies
// environment overrides.
// Priority (highest to lowest):
// 1. Environment variables with INVROUTE_ prefix
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom is Load with an explicit config file. An empty path searches
// ".", "./config" and "/app" for config.toml; a missing file is not an error
// there, but a missing explicit path is.
func LoadFrom(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	tolerances, err := currencyTolerances(v.Get("policy.currency_tolerance"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Pipeline: PipelineConfig{
			Version:          v.GetString("pipeline.version"),
			BatchConcurrency: v.GetInt("pipeline.batch_concurrency"),
			MaxBatchSize:     v.GetInt("pipeline.max_batch_size"),
		},
		Policy: PolicyConfig{
			LowConfidenceThreshold:  v.GetFloat64("policy.low_confidence_threshold"),
			HighTotalThreshold:      v.GetString("policy.high_total_threshold"),
			DefaultTolerance:        v.GetString("policy.default_tolerance"),
			CurrencyTolerance:       tolerances,
			MissingPOBlocking:       v.GetBool("policy.missing_po_blocking"),
			UnknownCurrencyBlocking: v.GetBool("policy.unknown_currency_blocking"),
		},
		Storage: StorageConfig{
			Enabled:      v.GetBool("storage.enabled"),
			Endpoint:     v.GetString("storage.endpoint"),
			Region:       v.GetString("storage.region"),
			Bucket:       v.GetString("storage.bucket"),
			AccessKey:    v.GetString("storage.access_key"),
			SecretKey:    v.GetString("storage.secret_key"),
			UseSSL:       v.GetBool("storage.use_ssl"),
			UsePathStyle: v.GetBool("storage.use_path_style"),
			Prefix:       v.GetString("storage.prefix"),
		},
		Redis: RedisConfig{
			Enabled:        v.GetBool("redis.enabled"),
			Host:           v.GetString("redis.host"),
			Port:           v.GetInt("redis.port"),
			Password:       v.GetString("redis.password"),
			DB:             v.GetInt("redis.db"),
			IdempotencyTTL: v.GetDuration("redis.idempotency_ttl"),
		},
		Telemetry: TelemetryConfig{
			Enabled:               v.GetBool("telemetry.enabled"),
			CollectorEndpoint:     v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:         v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:           v.GetString("telemetry.service_name"),
			Insecure:              v.GetBool("telemetry.insecure"),
			MetricsExportInterval: v.GetDuration("telemetry.metrics_export_interval"),
			LogsEnabled:           v.GetBool("telemetry.logs_enabled"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setDefaults registers defaults whose zero value is meaningful, so they
// cannot be filled in after the struct is built.
func setDefaults(v *viper.Viper) {
	v.SetDefault("policy.low_confidence_threshold", 0.7)
	v.SetDefault("policy.high_total_threshold", "100000")
	v.SetDefault("policy.default_tolerance", "0.01")
	v.SetDefault("policy.missing_po_blocking", false)
	v.SetDefault("policy.unknown_currency_blocking", true)
	v.SetDefault("storage.use_ssl", true)
	v.SetDefault("telemetry.sampling_ratio", 1.0)
	v.SetDefault("telemetry.logs_enabled", true)
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "invoice-router"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.Pipeline.Version == "" {
		cfg.Pipeline.Version = "1.0.0"
	}
	if cfg.Pipeline.BatchConcurrency == 0 {
		cfg.Pipeline.BatchConcurrency = 8
	}
	if cfg.Pipeline.MaxBatchSize == 0 {
		cfg.Pipeline.MaxBatchSize = 500
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	if cfg.Storage.Prefix == "" {
		cfg.Storage.Prefix = "audit"
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Redis.IdempotencyTTL == 0 {
		cfg.Redis.IdempotencyTTL = 24 * time.Hour
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.MetricsExportInterval == 0 {
		cfg.Telemetry.MetricsExportInterval = 60 * time.Second
	}
}

func (c *Config) validate() error {
	if c.Pipeline.BatchConcurrency < 0 {
		return fmt.Errorf("pipeline.batch_concurrency must be positive, got %d", c.Pipeline.BatchConcurrency)
	}
	if c.Pipeline.MaxBatchSize < 0 {
		return fmt.Errorf("pipeline.max_batch_size must be positive, got %d", c.Pipeline.MaxBatchSize)
	}

	if _, err := c.Policy.ValidationPolicy(); err != nil {
		return err
	}

	if c.Storage.Enabled && c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket is required when storage is enabled")
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	if c.App.Env == "production" {
		if c.Telemetry.Enabled && c.Telemetry.Insecure {
			return fmt.Errorf("telemetry.insecure must be false in production")
		}
		if c.Storage.Enabled && !c.Storage.UseSSL {
			return fmt.Errorf("storage.use_ssl must be true in production")
		}
	}

	return nil
}

// ValidationPolicy converts the configured thresholds into the immutable
// domain policy.
func (p PolicyConfig) ValidationPolicy() (invoice.Policy, error) {
	highTotal, err := decimal.NewFromString(p.HighTotalThreshold)
	if err != nil {
		return invoice.Policy{}, fmt.Errorf("policy.high_total_threshold %q is not a number: %w", p.HighTotalThreshold, err)
	}
	defaultTol, err := decimal.NewFromString(p.DefaultTolerance)
	if err != nil {
		return invoice.Policy{}, fmt.Errorf("policy.default_tolerance %q is not a number: %w", p.DefaultTolerance, err)
	}

	tolerances := make(map[valueobject.Currency]decimal.Decimal, len(p.CurrencyTolerance))
	for code, raw := range p.CurrencyTolerance {
		tol, err := decimal.NewFromString(raw)
		if err != nil {
			return invoice.Policy{}, fmt.Errorf("policy.currency_tolerance.%s %q is not a number: %w", code, raw, err)
		}
		tolerances[valueobject.NormalizeCurrency(code)] = tol
	}

	policy := invoice.Policy{
		LowConfidenceThreshold:  p.LowConfidenceThreshold,
		HighTotalThreshold:      highTotal,
		CurrencyTolerance:       tolerances,
		DefaultTolerance:        defaultTol,
		MissingPOBlocking:       p.MissingPOBlocking,
		UnknownCurrencyBlocking: p.UnknownCurrencyBlocking,
	}
	if err := policy.Validate(); err != nil {
		return invoice.Policy{}, fmt.Errorf("invalid policy configuration: %w", err)
	}
	return policy, nil
}

// currencyTolerances accepts a TOML table or a JSON object string (from
// the environment). Viper lower-cases keys, so codes are upper-cased here.
func currencyTolerances(raw any) (map[string]string, error) {
	out := map[string]string{}
	if raw == nil {
		return out, nil
	}
	if s, ok := raw.(string); ok && strings.TrimSpace(s) == "" {
		return out, nil
	}
	m, err := cast.ToStringMapE(raw)
	if err != nil {
		return nil, fmt.Errorf("policy.currency_tolerance must be a table of currency = amount: %w", err)
	}
	for code, v := range m {
		s, err := cast.ToStringE(v)
		if err != nil {
			return nil, fmt.Errorf("policy.currency_tolerance.%s: %w", code, err)
		}
		out[strings.ToUpper(strings.TrimSpace(code))] = s
	}
	return out, nil
}
