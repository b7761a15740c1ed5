package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/easycrawl/catalog-service/internal/database"
)

// EnvPrefix prefixes every environment override, e.g. CATALOG_SERVICE_MATCHING_BATCH_SIZE
const EnvPrefix = "CATALOG_SERVICE"

// Config holds the application configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Registry    RegistryConfig    `mapstructure:"registry"`
	Matching    MatchingConfig    `mapstructure:"matching"`
	Consistency ConsistencyConfig `mapstructure:"consistency"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	Host         string        `mapstructure:"host"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	APIKey       string        `mapstructure:"api_key"` // shared secret of /internal callers
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"` // apply the schema on server start
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Format  string `mapstructure:"format"` // json or console
	NoColor bool   `mapstructure:"no_color"`
}

// RegistryConfig holds the registry cache configuration
type RegistryConfig struct {
	RefreshInterval     time.Duration `mapstructure:"refresh_interval"`
	RedisAddr           string        `mapstructure:"redis_addr"` // empty disables cross-process invalidation
	RedisChannel        string        `mapstructure:"redis_channel"`
	MinBrandOccurrences int           `mapstructure:"min_brand_occurrences"`
}

// MatchingConfig holds the matching engine configuration
type MatchingConfig struct {
	MatchThreshold float64 `mapstructure:"match_threshold"`
	BatchSize      int     `mapstructure:"batch_size"`
	Workers        int     `mapstructure:"workers"`
	Timezone       string  `mapstructure:"timezone"` // day boundary of price history
}

// ConsistencyConfig holds the consistency engine configuration
type ConsistencyConfig struct {
	BatchSize          int     `mapstructure:"batch_size"`
	MergeThreshold     float64 `mapstructure:"merge_threshold"`
	DuplicateThreshold float64 `mapstructure:"duplicate_threshold"`
	SmartphoneCategory string  `mapstructure:"smartphone_category"`
	PagesPerSecond     float64 `mapstructure:"pages_per_second"` // 0 = unthrottled
}

// RateLimitConfig paces the HTTP job triggers per job type
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
	Environment string `mapstructure:"environment"`
}

var globalConfig *Config

// Load loads the configuration from file, .env, and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	if err := loadEnvFile(); err != nil {
		// .env is optional
		log.Debug().Err(err).Msg(".env file not loaded")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvVars(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	globalConfig = &cfg
	return &cfg, nil
}

// Validate rejects values the engines cannot work with
func (c *Config) Validate() error {
	for name, th := range map[string]float64{
		"matching.match_threshold":        c.Matching.MatchThreshold,
		"consistency.merge_threshold":     c.Consistency.MergeThreshold,
		"consistency.duplicate_threshold": c.Consistency.DuplicateThreshold,
	} {
		if th <= 0 || th > 1 {
			return fmt.Errorf("%s must be in (0, 1], got %v", name, th)
		}
	}
	if c.Matching.BatchSize <= 0 || c.Consistency.BatchSize <= 0 {
		return fmt.Errorf("batch sizes must be positive")
	}
	if c.Matching.Workers <= 0 {
		return fmt.Errorf("matching.workers must be positive, got %d", c.Matching.Workers)
	}
	if c.Consistency.PagesPerSecond < 0 {
		return fmt.Errorf("consistency.pages_per_second must not be negative")
	}
	if _, err := c.Matching.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the price history timezone, UTC when unset
func (m MatchingConfig) Location() (*time.Location, error) {
	if m.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(m.Timezone)
	if err != nil {
		return nil, fmt.Errorf("matching.timezone: %w", err)
	}
	return loc, nil
}

// NewLogger builds the root logger. JSON goes to w as is; console output is
// made human readable.
func (l LoggingConfig) NewLogger(w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(l.Level))
	if err != nil || l.Level == "" {
		level = zerolog.InfoLevel
	}
	if l.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, NoColor: l.NoColor, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Str("service", "catalog-service").Logger()
}

// loadEnvFile loads the first .env file found
func loadEnvFile() error {
	for _, path := range []string{".", "./config"} {
		envFile := fmt.Sprintf("%s/.env", path)
		if _, err := os.Stat(envFile); err == nil {
			return loadDotEnvFile(envFile)
		}
	}
	return fmt.Errorf("no .env file found")
}

// loadDotEnvFile sets KEY=VALUE lines of filename as environment variables
// unless they are already set
func loadDotEnvFile(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(strings.TrimPrefix(parts[0], "export "))
		value := strings.Trim(strings.TrimSpace(parts[1]), "\"'")
		if _, exists := os.LookupEnv(key); !exists {
			os.Setenv(key, value)
		}
	}
	return scanner.Err()
}

// bindEnvVars binds the conventional unprefixed variables
func bindEnvVars(v *viper.Viper) {
	v.BindEnv("database.url", EnvPrefix+"_DATABASE_URL", "DATABASE_URL")
	v.BindEnv("server.port", EnvPrefix+"_SERVER_PORT", "PORT")
	v.BindEnv("server.host", EnvPrefix+"_SERVER_HOST", "HOST")
	v.BindEnv("server.api_key", EnvPrefix+"_SERVER_API_KEY", "INTERNAL_API_KEY")
	v.BindEnv("logging.level", EnvPrefix+"_LOGGING_LEVEL", "LOG_LEVEL")
	v.BindEnv("registry.redis_addr", EnvPrefix+"_REGISTRY_REDIS_ADDR", "REDIS_ADDR")
	v.BindEnv("telemetry.endpoint", EnvPrefix+"_TELEMETRY_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Minute)
	v.SetDefault("server.api_key", "")

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 2)
	v.SetDefault("database.max_conn_lifetime", 1*time.Hour)
	v.SetDefault("database.max_conn_idle_time", 30*time.Minute)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.no_color", false)

	v.SetDefault("registry.refresh_interval", 1*time.Hour)
	v.SetDefault("registry.redis_addr", "")
	v.SetDefault("registry.redis_channel", "catalog:registry")
	v.SetDefault("registry.min_brand_occurrences", 3)

	v.SetDefault("matching.match_threshold", 0.7)
	v.SetDefault("matching.batch_size", 100)
	v.SetDefault("matching.workers", 1)
	v.SetDefault("matching.timezone", "")

	v.SetDefault("consistency.batch_size", 100)
	v.SetDefault("consistency.merge_threshold", 0.8)
	v.SetDefault("consistency.duplicate_threshold", 0.85)
	v.SetDefault("consistency.smartphone_category", "smartphones")
	v.SetDefault("consistency.pages_per_second", 0)

	v.SetDefault("rate_limit.requests_per_second", 1)
	v.SetDefault("rate_limit.burst", 3)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.service_name", "catalog-service")
	v.SetDefault("telemetry.environment", "")
}

// PoolConfig maps the database section onto the pool settings
func (d DatabaseConfig) PoolConfig() database.PoolConfig {
	return database.PoolConfig{
		URL:             d.URL,
		MaxConns:        d.MaxConnections,
		MinConns:        d.MinConnections,
		MaxConnLifetime: d.MaxConnLifetime,
		MaxConnIdleTime: d.MaxConnIdleTime,
	}
}

// Get returns the configuration loaded last
func Get() *Config {
	return globalConfig
}
