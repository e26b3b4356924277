// Package config loads application configuration from file and environment
// and installs the global logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Redis   RedisConfig   `yaml:"redis" mapstructure:"redis"`
	Cache   CacheConfig   `yaml:"cache" mapstructure:"cache"`
	Quota   QuotaConfig   `yaml:"quota" mapstructure:"quota"`
	Sources SourcesConfig `yaml:"sources" mapstructure:"sources"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// RedisConfig configures the shared Redis connection. An empty URL falls the
// cache and quota back to their in-memory implementations.
type RedisConfig struct {
	URL string `yaml:"url" mapstructure:"url"`
}

// CacheConfig holds the aggregate-record cache TTLs in seconds.
type CacheConfig struct {
	TTLSeconds         int `yaml:"ttl_seconds" mapstructure:"ttl_seconds"`
	NotFoundTTLSeconds int `yaml:"not_found_ttl_seconds" mapstructure:"not_found_ttl_seconds"`
}

// QuotaConfig holds plan limits.
type QuotaConfig struct {
	FreeTierMonthlyLimit int64 `yaml:"free_tier_monthly_limit" mapstructure:"free_tier_monthly_limit"`
	PublicDailyLimit     int64 `yaml:"public_daily_limit" mapstructure:"public_daily_limit"`
}

// SourcesConfig holds upstream endpoints, overridable for testing against
// local fixtures.
type SourcesConfig struct {
	ProPublicaBaseURL string `yaml:"propublica_base_url" mapstructure:"propublica_base_url"`
	IRSBulkBaseURL    string `yaml:"irs_bulk_base_url" mapstructure:"irs_bulk_base_url"`
	UserAgent         string `yaml:"user_agent" mapstructure:"user_agent"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("NPVERIFY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "nonprofit-verify.db")
	v.SetDefault("redis.url", "")
	v.SetDefault("cache.ttl_seconds", 7*24*3600)
	v.SetDefault("cache.not_found_ttl_seconds", 24*3600)
	v.SetDefault("quota.free_tier_monthly_limit", 100)
	v.SetDefault("quota.public_daily_limit", 20)
	v.SetDefault("sources.propublica_base_url", "https://projects.propublica.org/nonprofits/api/v2")
	v.SetDefault("sources.irs_bulk_base_url", "https://apps.irs.gov/pub/epostcard/990/xml")
	v.SetDefault("sources.user_agent", "nonprofit-verify/1.0 (nonprofit verification service)")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)
	return nil
}
