package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Bundle  BundleConfig  `mapstructure:"bundle"`
	Storage StorageConfig `mapstructure:"storage"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Tracing TracingConfig `mapstructure:"tracing"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Debug   bool          `mapstructure:"debug"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	BodyLimit    int           `mapstructure:"body_limit"`

	// RemoteAdmin exposes the cache administration endpoints beyond localhost.
	RemoteAdmin    bool `mapstructure:"remote_admin"`
	AdminRateLimit int  `mapstructure:"admin_rate_limit"`
}

// BundleConfig controls how bundles are built, named and served.
type BundleConfig struct {
	// AppPath is the virtual application root that "~/" expands to.
	AppPath         string `mapstructure:"app_path"`
	SourceBucket    string `mapstructure:"source_bucket"`
	OutputBucket    string `mapstructure:"output_bucket"`
	ScriptRoute     string `mapstructure:"script_route"`
	StyleRoute      string `mapstructure:"style_route"`
	HashAlgorithm   string `mapstructure:"hash_algorithm"`
	ScriptTransform string `mapstructure:"script_transform"`
	StyleTransform  string `mapstructure:"style_transform"`
	DebugParam      string `mapstructure:"debug_param"`
	Manifest        string `mapstructure:"manifest"`
	Gzip            bool   `mapstructure:"gzip"`
}

// StorageConfig contains durable storage settings
type StorageConfig struct {
	Provider    string `mapstructure:"provider"` // local or s3
	LocalPath   string `mapstructure:"local_path"`
	S3Endpoint  string `mapstructure:"s3_endpoint"`
	S3AccessKey string `mapstructure:"s3_access_key"`
	S3SecretKey string `mapstructure:"s3_secret_key"`
	S3Region    string `mapstructure:"s3_region"`
}

// CacheConfig selects the content cache backend.
type CacheConfig struct {
	Backend       string `mapstructure:"backend"` // local, redis or postgres
	RedisURL      string `mapstructure:"redis_url"`
	DatabaseURL   string `mapstructure:"database_url"`
	KeyPrefix     string `mapstructure:"key_prefix"`
	SweepSchedule string `mapstructure:"sweep_schedule"`
}

// TracingConfig contains OpenTelemetry tracing settings
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load loads configuration from .env files, a config file and
// ASSETBUNDLE_* environment variables. An empty configFile searches for
// assetbundle.yaml in ".", "./config" and "/etc/assetbundle"; otherwise
// exactly that file is read and must exist.
func Load(configFile string) (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := loadEnvFile(); err != nil {
		log.Debug().Err(err).Msg("No .env file loaded")
	}

	if configFile != "" {
		// SetConfigName clears an explicit file, so only one of the two is set
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("assetbundle")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("/etc/assetbundle")
	}

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvPrefix("ASSETBUNDLE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.Info().Msg("No config file found, using environment variables and defaults")
	} else {
		log.Info().Str("file", viper.ConfigFileUsed()).Msg("Config file loaded")
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func loadEnvFile() error {
	locations := []string{
		".env",
		".env.local",
		"../.env", // For when running from subdirectories
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			if err := godotenv.Load(location); err != nil {
				return fmt.Errorf("error loading .env file from %s: %w", location, err)
			}
			log.Info().Str("file", location).Msg(".env file loaded")
			return nil
		}
	}

	return fmt.Errorf("no .env file found")
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("server.read_timeout", "15s")
	viper.SetDefault("server.write_timeout", "15s")
	viper.SetDefault("server.idle_timeout", "60s")
	viper.SetDefault("server.body_limit", 4*1024*1024)
	viper.SetDefault("server.remote_admin", false)
	viper.SetDefault("server.admin_rate_limit", 5)

	// Bundle defaults
	viper.SetDefault("bundle.app_path", "")
	viper.SetDefault("bundle.source_bucket", "public")
	viper.SetDefault("bundle.output_bucket", "public")
	viper.SetDefault("bundle.script_route", "/bundle/script/")
	viper.SetDefault("bundle.style_route", "/bundle/style/")
	viper.SetDefault("bundle.hash_algorithm", "md5")
	viper.SetDefault("bundle.script_transform", "esbuild")
	viper.SetDefault("bundle.style_transform", "esbuild")
	viper.SetDefault("bundle.debug_param", "debugMode")
	viper.SetDefault("bundle.manifest", "bundles.yaml")
	viper.SetDefault("bundle.gzip", false)

	// Storage defaults
	viper.SetDefault("storage.provider", "local")
	viper.SetDefault("storage.local_path", "./storage")
	viper.SetDefault("storage.s3_region", "us-east-1")

	// Cache defaults
	viper.SetDefault("cache.backend", "local")
	viper.SetDefault("cache.key_prefix", "assetbundle")
	viper.SetDefault("cache.sweep_schedule", "@every 1m")

	// Tracing defaults
	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.endpoint", "localhost:4317")
	viper.SetDefault("tracing.service_name", "assetbundle")
	viper.SetDefault("tracing.environment", "development")
	viper.SetDefault("tracing.sample_rate", 1.0)
	viper.SetDefault("tracing.insecure", true)

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")

	viper.SetDefault("debug", false)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server configuration error: %w", err)
	}

	if err := c.Bundle.Validate(); err != nil {
		return fmt.Errorf("bundle configuration error: %w", err)
	}

	if c.Storage.Provider != "local" && c.Storage.Provider != "s3" {
		return fmt.Errorf("storage provider must be 'local' or 's3'")
	}

	if c.Storage.Provider == "s3" {
		if c.Storage.S3AccessKey == "" || c.Storage.S3SecretKey == "" {
			return fmt.Errorf("S3 configuration is incomplete")
		}
	}

	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache configuration error: %w", err)
	}

	if c.Tracing.Enabled && (c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1) {
		return fmt.Errorf("tracing sample_rate must be between 0 and 1")
	}

	return nil
}

// Validate validates server configuration
func (sc *ServerConfig) Validate() error {
	if sc.Address == "" {
		return fmt.Errorf("server address cannot be empty")
	}
	if sc.ReadTimeout <= 0 {
		return fmt.Errorf("read_timeout must be positive, got: %v", sc.ReadTimeout)
	}
	if sc.WriteTimeout <= 0 {
		return fmt.Errorf("write_timeout must be positive, got: %v", sc.WriteTimeout)
	}
	if sc.IdleTimeout <= 0 {
		return fmt.Errorf("idle_timeout must be positive, got: %v", sc.IdleTimeout)
	}
	if sc.BodyLimit <= 0 {
		return fmt.Errorf("body_limit must be positive, got: %d", sc.BodyLimit)
	}
	return nil
}

// Validate validates bundle configuration
func (bc *BundleConfig) Validate() error {
	for name, route := range map[string]string{"script_route": bc.ScriptRoute, "style_route": bc.StyleRoute} {
		if !strings.HasPrefix(route, "/") || !strings.HasSuffix(route, "/") {
			return fmt.Errorf("%s must start and end with '/', got: %q", name, route)
		}
	}
	if bc.ScriptRoute == bc.StyleRoute {
		return fmt.Errorf("script_route and style_route must differ")
	}
	if bc.SourceBucket == "" || bc.OutputBucket == "" {
		return fmt.Errorf("source_bucket and output_bucket are required")
	}
	switch strings.ToLower(bc.HashAlgorithm) {
	case "md5", "sha256", "blake3":
	default:
		return fmt.Errorf("hash_algorithm must be one of md5, sha256, blake3, got: %q", bc.HashAlgorithm)
	}
	if bc.DebugParam == "" {
		return fmt.Errorf("debug_param cannot be empty")
	}
	return nil
}

// Validate validates cache configuration
func (cc *CacheConfig) Validate() error {
	switch cc.Backend {
	case "local", "":
	case "redis":
		if cc.RedisURL == "" {
			return fmt.Errorf("redis_url is required for the redis backend")
		}
	case "postgres":
		if cc.DatabaseURL == "" {
			return fmt.Errorf("database_url is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown cache backend %q (use local, redis or postgres)", cc.Backend)
	}
	return nil
}
