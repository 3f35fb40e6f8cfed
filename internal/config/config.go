package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/edc/edc/internal/platform/store"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	StoreURL       string        `mapstructure:"STORE_URL"`
	StoreToken     string        `mapstructure:"STORE_TOKEN"`
	StoreTimeout   time.Duration `mapstructure:"STORE_TIMEOUT"`
	DBMaxConns     int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32         `mapstructure:"DB_MIN_CONNS"`
	DefaultTenant  string        `mapstructure:"DEFAULT_TENANT"`
	AuthIssuer     string        `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL    string        `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience   string        `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey string        `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	BodyLimit      string        `mapstructure:"BODY_LIMIT"`

	IntegrityCheckParents bool   `mapstructure:"INTEGRITY_CHECK_PARENTS"`
	IntegrityDeletePolicy string `mapstructure:"INTEGRITY_DELETE_POLICY"`

	SessionIdleTimeout time.Duration `mapstructure:"SESSION_IDLE_TIMEOUT"`

	ExportDriver      string `mapstructure:"EXPORT_DRIVER"`
	ExportDir         string `mapstructure:"EXPORT_DIR"`
	ExportS3Bucket    string `mapstructure:"EXPORT_S3_BUCKET"`
	ExportS3Region    string `mapstructure:"EXPORT_S3_REGION"`
	ExportS3Endpoint  string `mapstructure:"EXPORT_S3_ENDPOINT"`
	ExportS3PathStyle bool   `mapstructure:"EXPORT_S3_PATH_STYLE"`
}

var keys = []string{
	"PORT", "ENV", "STORE_URL", "STORE_TOKEN", "STORE_TIMEOUT",
	"DB_MAX_CONNS", "DB_MIN_CONNS", "DEFAULT_TENANT",
	"AUTH_ISSUER", "AUTH_JWKS_URL", "AUTH_AUDIENCE", "AUTH_SIGNING_KEY",
	"CORS_ORIGINS", "REQUEST_TIMEOUT", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "BODY_LIMIT",
	"INTEGRITY_CHECK_PARENTS", "INTEGRITY_DELETE_POLICY",
	"SESSION_IDLE_TIMEOUT",
	"EXPORT_DRIVER", "EXPORT_DIR", "EXPORT_S3_BUCKET", "EXPORT_S3_REGION",
	"EXPORT_S3_ENDPOINT", "EXPORT_S3_PATH_STYLE",
}

// Load reads configuration from the environment and an optional .env file.
// A missing STORE_URL is fatal and wraps store.ErrConfigurationMissing.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("STORE_TIMEOUT", "15s")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("DEFAULT_TENANT", "default")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("INTEGRITY_CHECK_PARENTS", true)
	v.SetDefault("INTEGRITY_DELETE_POLICY", "allow")
	v.SetDefault("SESSION_IDLE_TIMEOUT", "30m")
	v.SetDefault("EXPORT_DRIVER", "memory")
	v.SetDefault("EXPORT_DIR", "./exports")

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// .env is optional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	if cfg.CORSOrigins == nil {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.StoreURL == "" {
		return nil, fmt.Errorf("STORE_URL is required: %w", store.ErrConfigurationMissing)
	}

	if cfg.IsDev() {
		log.Warn().Msg("running in DEVELOPMENT mode: unauthenticated requests get admin access; set ENV=production for real deployments")
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// StoreScheme returns the backend selector of STORE_URL.
func (c *Config) StoreScheme() string {
	u, err := url.Parse(c.StoreURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Scheme)
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	switch c.StoreScheme() {
	case "memory", "postgres", "postgresql", "sqlite", "http", "https":
	default:
		return fmt.Errorf("STORE_URL scheme %q is not supported (memory, postgres, sqlite, http, https)", c.StoreScheme())
	}

	switch c.IntegrityDeletePolicy {
	case "allow", "restrict", "cascade":
	default:
		return fmt.Errorf("INTEGRITY_DELETE_POLICY must be allow, restrict or cascade, got %q", c.IntegrityDeletePolicy)
	}

	switch c.ExportDriver {
	case "memory", "fs":
	case "s3":
		if c.ExportS3Bucket == "" {
			return fmt.Errorf("EXPORT_S3_BUCKET is required when EXPORT_DRIVER is s3")
		}
	default:
		return fmt.Errorf("EXPORT_DRIVER must be memory, fs or s3, got %q", c.ExportDriver)
	}

	if !c.IsDev() && c.AuthIssuer == "" && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_ISSUER or AUTH_SIGNING_KEY must be set outside development (ENV=%q)", c.Env)
	}
	if c.StoreTimeout < 0 || c.RequestTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	return nil
}
