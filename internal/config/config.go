package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	DB        DBConfig
	JWT       JWTConfig
	S3        S3Config
	Log       LogConfig
	LLM       LLMConfig
	OCR       OCRConfig
	Pipeline  PipelineConfig
	Lifecycle LifecycleConfig
	Privacy   PrivacyConfig
	CORS      CORSConfig
	Metrics   MetricsConfig
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LLMProviderConfig holds settings for a single completion provider.
type LLMProviderConfig struct {
	Provider     string `mapstructure:"provider"`
	APIKey       string `mapstructure:"api_key"`
	DefaultModel string `mapstructure:"default_model"`
	TimeoutSecs  int    `mapstructure:"timeout_secs"`
}

// LLMConfig holds completion provider settings with ordered fallback.
type LLMConfig struct {
	// Legacy flat fields
	Provider     string `mapstructure:"provider"`
	APIKey       string `mapstructure:"api_key"`
	DefaultModel string `mapstructure:"default_model"`
	TimeoutSecs  int    `mapstructure:"timeout_secs"`

	Primary   LLMProviderConfig `mapstructure:"primary"`
	Secondary LLMProviderConfig `mapstructure:"secondary"`
	Tertiary  LLMProviderConfig `mapstructure:"tertiary"`
}

// PrimaryConfig returns the primary provider config, falling back to legacy flat fields.
func (l *LLMConfig) PrimaryConfig() *LLMProviderConfig {
	if l.Primary.Provider != "" {
		return &l.Primary
	}
	return &LLMProviderConfig{
		Provider:     l.Provider,
		APIKey:       l.APIKey,
		DefaultModel: l.DefaultModel,
		TimeoutSecs:  l.TimeoutSecs,
	}
}

// SecondaryConfig returns the secondary provider config, or nil if not configured.
func (l *LLMConfig) SecondaryConfig() *LLMProviderConfig {
	if l.Secondary.Provider != "" {
		return &l.Secondary
	}
	return nil
}

// TertiaryConfig returns the tertiary provider config, or nil if not configured.
func (l *LLMConfig) TertiaryConfig() *LLMProviderConfig {
	if l.Tertiary.Provider != "" {
		return &l.Tertiary
	}
	return nil
}

// Chain returns the configured providers in fallback order.
func (l *LLMConfig) Chain() []*LLMProviderConfig {
	chain := []*LLMProviderConfig{l.PrimaryConfig()}
	if s := l.SecondaryConfig(); s != nil {
		chain = append(chain, s)
	}
	if t := l.TertiaryConfig(); t != nil {
		chain = append(chain, t)
	}
	return chain
}

// OCRConfig holds text extraction settings.
type OCRConfig struct {
	Provider string `mapstructure:"provider"`
	APIKey   string `mapstructure:"api_key"`
	Endpoint string `mapstructure:"endpoint"`
}

// PipelineConfig holds per-stage limits for the analysis pipeline.
type PipelineConfig struct {
	MaxFileSizeMB      int64         `mapstructure:"max_file_size_mb"`
	UploadTimeout      time.Duration `mapstructure:"upload_timeout"`
	ExtractionTimeout  time.Duration `mapstructure:"extraction_timeout"`
	ParseTimeout       time.Duration `mapstructure:"parse_timeout"`
	NarrativeTimeout   time.Duration `mapstructure:"narrative_timeout"`
	ParseRetries       int           `mapstructure:"parse_retries"`
	ParseBackoffBase   time.Duration `mapstructure:"parse_backoff_base"`
	DefaultListLimit   int           `mapstructure:"default_list_limit"`
	MaxExtractedTextKB int           `mapstructure:"max_extracted_text_kb"`
}

// LifecycleConfig holds retention sweeper settings.
type LifecycleConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	BatchSize     int           `mapstructure:"batch_size"`
	ClaimLease    time.Duration `mapstructure:"claim_lease"`
}

// PrivacyConfig holds settings for the de-identified pricing aggregate.
type PrivacyConfig struct {
	IntelligenceEnabled bool   `mapstructure:"intelligence_enabled"`
	HashKey             string `mapstructure:"hash_key"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Environment  string        `mapstructure:"environment"`
}

// DBConfig holds PostgreSQL connection settings.
type DBConfig struct {
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

// JWTConfig holds bearer token settings.
type JWTConfig struct {
	Secret            string        `mapstructure:"secret"`
	AccessTokenExpiry time.Duration `mapstructure:"access_expiry"`
	Issuer            string        `mapstructure:"issuer"`
}

// S3Config holds AWS S3 settings.
type S3Config struct {
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

const envPrefix = "BILLSCOPE"

// Load reads configuration from environment variables with the BILLSCOPE_ prefix.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Bind environment variables explicitly for nested keys
	for _, key := range boundKeys {
		_ = v.BindEnv(key, envName(key))
	}

	cfg := &Config{}

	// Railway/Heroku/Render set a PORT env var. Use it if BILLSCOPE_SERVER_PORT is not explicitly set.
	serverPort := v.GetString("server.port")
	if port := os.Getenv("PORT"); port != "" && os.Getenv(envName("server.port")) == "" {
		serverPort = ":" + port
	}

	cfg.Server = ServerConfig{
		Port:         serverPort,
		ReadTimeout:  v.GetDuration("server.read_timeout"),
		WriteTimeout: v.GetDuration("server.write_timeout"),
		Environment:  v.GetString("server.environment"),
	}
	cfg.DB = DBConfig{
		Host:     v.GetString("db.host"),
		Port:     v.GetInt("db.port"),
		User:     v.GetString("db.user"),
		Password: v.GetString("db.password"),
		Name:     v.GetString("db.name"),
		SSLMode:  v.GetString("db.sslmode"),
		MaxOpen:  v.GetInt("db.max_open"),
		MaxIdle:  v.GetInt("db.max_idle"),
	}
	cfg.JWT = JWTConfig{
		Secret:            v.GetString("jwt.secret"),
		AccessTokenExpiry: v.GetDuration("jwt.access_expiry"),
		Issuer:            v.GetString("jwt.issuer"),
	}
	cfg.S3 = S3Config{
		Region:    v.GetString("s3.region"),
		Bucket:    v.GetString("s3.bucket"),
		Endpoint:  v.GetString("s3.endpoint"),
		AccessKey: v.GetString("s3.access_key"),
		SecretKey: v.GetString("s3.secret_key"),
	}
	cfg.Log = LogConfig{
		Level:  v.GetString("log.level"),
		Format: v.GetString("log.format"),
	}
	cfg.CORS = CORSConfig{
		AllowedOrigins: splitList(v.GetString("cors.allowed_origins")),
	}
	cfg.Metrics = MetricsConfig{
		Enabled: v.GetBool("metrics.enabled"),
		Path:    v.GetString("metrics.path"),
	}

	cfg.LLM = LLMConfig{
		Provider:     v.GetString("llm.provider"),
		APIKey:       v.GetString("llm.api_key"),
		DefaultModel: v.GetString("llm.default_model"),
		TimeoutSecs:  v.GetInt("llm.timeout_secs"),
		Primary:      providerConfig(v, "llm.primary"),
		Secondary:    providerConfig(v, "llm.secondary"),
		Tertiary:     providerConfig(v, "llm.tertiary"),
	}
	cfg.OCR = OCRConfig{
		Provider: v.GetString("ocr.provider"),
		APIKey:   v.GetString("ocr.api_key"),
		Endpoint: v.GetString("ocr.endpoint"),
	}
	cfg.Pipeline = PipelineConfig{
		MaxFileSizeMB:      v.GetInt64("pipeline.max_file_size_mb"),
		UploadTimeout:      v.GetDuration("pipeline.upload_timeout"),
		ExtractionTimeout:  v.GetDuration("pipeline.extraction_timeout"),
		ParseTimeout:       v.GetDuration("pipeline.parse_timeout"),
		NarrativeTimeout:   v.GetDuration("pipeline.narrative_timeout"),
		ParseRetries:       v.GetInt("pipeline.parse_retries"),
		ParseBackoffBase:   v.GetDuration("pipeline.parse_backoff_base"),
		DefaultListLimit:   v.GetInt("pipeline.default_list_limit"),
		MaxExtractedTextKB: v.GetInt("pipeline.max_extracted_text_kb"),
	}
	cfg.Lifecycle = LifecycleConfig{
		Enabled:       v.GetBool("lifecycle.enabled"),
		SweepInterval: v.GetDuration("lifecycle.sweep_interval"),
		BatchSize:     v.GetInt("lifecycle.batch_size"),
		ClaimLease:    v.GetDuration("lifecycle.claim_lease"),
	}
	cfg.Privacy = PrivacyConfig{
		IntelligenceEnabled: v.GetBool("privacy.intelligence_enabled"),
		HashKey:             v.GetString("privacy.hash_key"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Pipeline.ParseRetries < 0 {
		return fmt.Errorf("config: pipeline.parse_retries must be >= 0, got %d", c.Pipeline.ParseRetries)
	}
	if c.Lifecycle.Enabled && c.Lifecycle.SweepInterval <= 0 {
		return fmt.Errorf("config: lifecycle.sweep_interval must be positive")
	}
	if c.Privacy.IntelligenceEnabled {
		if c.Privacy.HashKey == "" {
			return fmt.Errorf("config: privacy.hash_key is required when privacy.intelligence_enabled is set")
		}
		if len(c.Privacy.HashKey) > 64 {
			return fmt.Errorf("config: privacy.hash_key must be at most 64 bytes")
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "330s")
	v.SetDefault("server.environment", "development")

	// DB defaults
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "billscope")
	v.SetDefault("db.password", "billscope_secret")
	v.SetDefault("db.name", "billscope_db")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_open", 25)
	v.SetDefault("db.max_idle", 10)

	// JWT defaults
	v.SetDefault("jwt.secret", "change-me-in-production")
	v.SetDefault("jwt.access_expiry", "15m")
	v.SetDefault("jwt.issuer", "billscope")

	// S3 defaults
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.bucket", "billscope-bills")
	v.SetDefault("s3.endpoint", "")

	// Log defaults
	v.SetDefault("log.level", "debug")
	v.SetDefault("log.format", "console")

	// CORS defaults (localhost origins for development)
	v.SetDefault("cors.allowed_origins", "http://localhost:3000,http://127.0.0.1:3000")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// LLM defaults (legacy flat)
	v.SetDefault("llm.provider", "claude")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.default_model", "claude-sonnet-4-20250514")
	v.SetDefault("llm.timeout_secs", 60)
	for _, tier := range []string{"primary", "secondary", "tertiary"} {
		v.SetDefault("llm."+tier+".provider", "")
		v.SetDefault("llm."+tier+".api_key", "")
		v.SetDefault("llm."+tier+".default_model", "")
		v.SetDefault("llm."+tier+".timeout_secs", 60)
	}

	v.SetDefault("ocr.provider", "vision")
	v.SetDefault("ocr.api_key", "")
	v.SetDefault("ocr.endpoint", "")

	v.SetDefault("pipeline.max_file_size_mb", 10)
	v.SetDefault("pipeline.upload_timeout", "30s")
	v.SetDefault("pipeline.extraction_timeout", "30s")
	// Room for the first call, both retries and their backoff.
	v.SetDefault("pipeline.parse_timeout", "200s")
	v.SetDefault("pipeline.narrative_timeout", "45s")
	v.SetDefault("pipeline.parse_retries", 2)
	v.SetDefault("pipeline.parse_backoff_base", "1s")
	v.SetDefault("pipeline.default_list_limit", 20)
	v.SetDefault("pipeline.max_extracted_text_kb", 256)

	v.SetDefault("lifecycle.enabled", true)
	v.SetDefault("lifecycle.sweep_interval", "1h")
	v.SetDefault("lifecycle.batch_size", 100)
	v.SetDefault("lifecycle.claim_lease", "5m")

	v.SetDefault("privacy.intelligence_enabled", true)
	v.SetDefault("privacy.hash_key", "")
}

// boundKeys are the nested keys that AutomaticEnv cannot discover on its own.
var boundKeys = []string{
	"server.port", "server.read_timeout", "server.write_timeout", "server.environment",
	"db.host", "db.port", "db.user", "db.password", "db.name", "db.sslmode", "db.max_open", "db.max_idle",
	"jwt.secret", "jwt.access_expiry", "jwt.issuer",
	"s3.region", "s3.bucket", "s3.endpoint", "s3.access_key", "s3.secret_key",
	"log.level", "log.format",
	"cors.allowed_origins",
	"metrics.enabled", "metrics.path",
	"llm.provider", "llm.api_key", "llm.default_model", "llm.timeout_secs",
	"llm.primary.provider", "llm.primary.api_key", "llm.primary.default_model", "llm.primary.timeout_secs",
	"llm.secondary.provider", "llm.secondary.api_key", "llm.secondary.default_model", "llm.secondary.timeout_secs",
	"llm.tertiary.provider", "llm.tertiary.api_key", "llm.tertiary.default_model", "llm.tertiary.timeout_secs",
	"ocr.provider", "ocr.api_key", "ocr.endpoint",
	"pipeline.max_file_size_mb", "pipeline.upload_timeout", "pipeline.extraction_timeout", "pipeline.parse_timeout",
	"pipeline.narrative_timeout", "pipeline.parse_retries", "pipeline.parse_backoff_base", "pipeline.default_list_limit",
	"pipeline.max_extracted_text_kb",
	"lifecycle.enabled", "lifecycle.sweep_interval", "lifecycle.batch_size", "lifecycle.claim_lease",
	"privacy.intelligence_enabled", "privacy.hash_key",
}

// envName maps a dotted key to its environment variable, e.g.
// llm.primary.api_key -> BILLSCOPE_LLM_PRIMARY_API_KEY.
func envName(key string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func providerConfig(v *viper.Viper, prefix string) LLMProviderConfig {
	return LLMProviderConfig{
		Provider:     v.GetString(prefix + ".provider"),
		APIKey:       v.GetString(prefix + ".api_key"),
		DefaultModel: v.GetString(prefix + ".default_model"),
		TimeoutSecs:  v.GetInt(prefix + ".timeout_secs"),
	}
}

func splitList(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			out = append(out, o)
		}
	}
	return out
}
