// Package config loads poimap configuration from config.yaml and POIMAP_*
// environment variables, and owns global logger setup.
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
	Nominatim NominatimConfig `yaml:"nominatim" mapstructure:"nominatim"`
	Overpass  OverpassConfig  `yaml:"overpass" mapstructure:"overpass"`
	Taginfo   TaginfoConfig   `yaml:"taginfo" mapstructure:"taginfo"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Render    RenderConfig    `yaml:"render" mapstructure:"render"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// NominatimConfig configures the region resolver.
type NominatimConfig struct {
	Endpoint  string  `yaml:"endpoint" mapstructure:"endpoint"`
	UserAgent string  `yaml:"user_agent" mapstructure:"user_agent"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	Policy    string  `yaml:"policy" mapstructure:"policy"` // "first" or "strict"
}

// OverpassConfig configures the feature-query executor.
type OverpassConfig struct {
	Endpoint    string  `yaml:"endpoint" mapstructure:"endpoint"`
	UserAgent   string  `yaml:"user_agent" mapstructure:"user_agent"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// TaginfoConfig configures the tag-vocabulary lookup.
type TaginfoConfig struct {
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
	// Validate gates filter-key validation against the vocabulary.
	Validate bool `yaml:"validate" mapstructure:"validate"`
	// SnapshotKeys is how many top keys a live vocabulary snapshot pulls;
	// 0 uses the built-in static table instead of the network.
	SnapshotKeys int `yaml:"snapshot_keys" mapstructure:"snapshot_keys"`
}

// CacheConfig configures the place-resolution cache.
type CacheConfig struct {
	Path       string `yaml:"path" mapstructure:"path"`
	TTLHours   int    `yaml:"ttl_hours" mapstructure:"ttl_hours"`
	MemEntries int    `yaml:"mem_entries" mapstructure:"mem_entries"`
}

// RenderConfig configures basemap fetching and overlay drawing.
type RenderConfig struct {
	TileURL      string `yaml:"tile_url" mapstructure:"tile_url"`
	TileFormat   string `yaml:"tile_format" mapstructure:"tile_format"`
	UserAgent    string `yaml:"user_agent" mapstructure:"user_agent"`
	Width        int    `yaml:"width" mapstructure:"width"`
	MaxTiles     int    `yaml:"max_tiles" mapstructure:"max_tiles"`
	Concurrency  int    `yaml:"concurrency" mapstructure:"concurrency"`
	CacheEntries int    `yaml:"cache_entries" mapstructure:"cache_entries"`
	CacheTTLMins int    `yaml:"cache_ttl_mins" mapstructure:"cache_ttl_mins"`
}

// RetryConfig configures backoff for transient remote failures.
type RetryConfig struct {
	MaxAttempts    int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoff string  `yaml:"initial_backoff" mapstructure:"initial_backoff"`
	JitterFraction float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures the global logger.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // "json" or "console"
}

// Load reads config.yaml from the working directory, layered under POIMAP_*
// environment variables and defaults.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("POIMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("nominatim.endpoint", "https://nominatim.openstreetmap.org")
	v.SetDefault("nominatim.user_agent", "poimap/1.0")
	v.SetDefault("nominatim.rate_limit", 1.0)
	v.SetDefault("nominatim.policy", "first")
	v.SetDefault("overpass.endpoint", "https://overpass-api.de/api/interpreter")
	v.SetDefault("overpass.user_agent", "poimap/1.0")
	v.SetDefault("overpass.rate_limit", 1.0)
	v.SetDefault("overpass.timeout_secs", 25)
	v.SetDefault("taginfo.endpoint", "https://taginfo.openstreetmap.org")
	v.SetDefault("taginfo.validate", true)
	v.SetDefault("taginfo.snapshot_keys", 0)
	v.SetDefault("cache.path", "poimap-cache.db")
	v.SetDefault("cache.ttl_hours", 24*30)
	v.SetDefault("cache.mem_entries", 256)
	v.SetDefault("render.tile_url", "https://tile.openstreetmap.org")
	v.SetDefault("render.tile_format", "png")
	v.SetDefault("render.user_agent", "poimap/1.0")
	v.SetDefault("render.width", 1024)
	v.SetDefault("render.max_tiles", 64)
	v.SetDefault("render.concurrency", 4)
	v.SetDefault("render.cache_entries", 512)
	v.SetDefault("render.cache_ttl_mins", 60)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff", "1s")
	v.SetDefault("retry.jitter_fraction", 0.25)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	// A missing config file is fine; defaults and env cover everything.
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
