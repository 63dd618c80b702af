package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Catalog CatalogConfig `yaml:"catalog" mapstructure:"catalog"`
	Index   IndexConfig   `yaml:"index" mapstructure:"index"`
	Query   QueryConfig   `yaml:"query" mapstructure:"query"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the index database.
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// CatalogConfig locates the dataset manifest.
type CatalogConfig struct {
	Manifest string `yaml:"manifest" mapstructure:"manifest"`
}

// IndexConfig configures reindexing behavior.
type IndexConfig struct {
	RetryAttempts  int `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	RetryBackoffMS int `yaml:"retry_backoff_ms" mapstructure:"retry_backoff_ms"`
	Concurrency    int `yaml:"concurrency" mapstructure:"concurrency"`
}

// QueryConfig configures group queries.
type QueryConfig struct {
	PageSize     int `yaml:"page_size" mapstructure:"page_size"`
	CacheTTLSecs int `yaml:"cache_ttl_secs" mapstructure:"cache_ttl_secs"`
}

// CacheTTL returns the configured memoization lifetime.
func (q QueryConfig) CacheTTL() time.Duration {
	return time.Duration(q.CacheTTLSecs) * time.Second
}

// ServerConfig configures the HTTP server.
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
	v.SetEnvPrefix("RELATIONS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.path", "relations.db")
	v.SetDefault("catalog.manifest", "datasets.yaml")
	v.SetDefault("index.retry_attempts", 3)
	v.SetDefault("index.retry_backoff_ms", 250)
	v.SetDefault("index.concurrency", 4)
	v.SetDefault("query.page_size", 10)
	v.SetDefault("query.cache_ttl_secs", 30)
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
