// Package config loads the service configuration from .env, an optional YAML file and the
// environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// KnownProviders lists the weather sources that can appear in source.providers.
var KnownProviders = []string{"openmeteo", "weatherapi", "openweather"}

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Source   SourceConfig   `mapstructure:"source"`
	Store    StoreConfig    `mapstructure:"store"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Geocoder GeocoderConfig `mapstructure:"geocoder"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"port" validate:"required"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" validate:"gt=0"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

// SyncConfig controls the per-location sync jobs.
type SyncConfig struct {
	// Interval is how often each location is refreshed.
	Interval          time.Duration `mapstructure:"interval" validate:"gt=0"`
	CycleTimeout      time.Duration `mapstructure:"cycle_timeout" validate:"gt=0"`
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval" validate:"gt=0"`
}

type SourceConfig struct {
	Providers         []string      `mapstructure:"providers" validate:"min=1,dive,oneof=openmeteo weatherapi openweather"`
	HTTPTimeout       time.Duration `mapstructure:"http_timeout" validate:"gt=0"`
	MaxRetries        int           `mapstructure:"max_retries" validate:"gte=0"`
	OpenWeatherAPIKey string        `mapstructure:"openweather_api_key"`
	WeatherAPIKey     string        `mapstructure:"weatherapi_api_key"`
	// Timezone decides where "today" starts and ends.
	Timezone string `mapstructure:"timezone" validate:"required"`
}

// Location returns the time zone named by Timezone.
func (c SourceConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid source.timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// StoreConfig selects the record store. An empty DSN keeps everything in memory.
type StoreConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns" validate:"gte=0"`
}

// RedisConfig enables the source cache when Addr is set.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db" validate:"gte=0"`
	TTL      time.Duration `mapstructure:"ttl" validate:"gt=0"`
}

type GeocoderConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// Load reads configuration with sensible defaults. A .env file is loaded first when present
// and CONFIG_FILE may point to a YAML file.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return LoadFile(os.Getenv("CONFIG_FILE"))
}

// LoadFile builds a Config from path (skipped when empty) and the environment.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Source.Providers = normalizeList(cfg.Source.Providers)
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.Source.Location(); err != nil {
		return err
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("sync.interval", "15m")
	v.SetDefault("sync.cycle_timeout", "30s")
	v.SetDefault("sync.reconcile_interval", "5m")
	v.SetDefault("source.providers", KnownProviders)
	v.SetDefault("source.http_timeout", "10s")
	v.SetDefault("source.max_retries", 2)
	v.SetDefault("source.openweather_api_key", "")
	v.SetDefault("source.weatherapi_api_key", "")
	v.SetDefault("source.timezone", "UTC")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.max_conns", 0)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", "5m")
	v.SetDefault("geocoder.api_key", "")
}

// bindLegacyEnv keeps the variable names of earlier deployments working.
func bindLegacyEnv(v *viper.Viper) error {
	legacy := map[string][]string{
		"server.port":                {"SERVER_PORT", "PORT"},
		"sync.interval":              {"SYNC_INTERVAL", "FETCH_INTERVAL"},
		"source.openweather_api_key": {"SOURCE_OPENWEATHER_API_KEY", "OPENWEATHER_API_KEY"},
		"source.weatherapi_api_key":  {"SOURCE_WEATHERAPI_API_KEY", "WEATHERAPI_API_KEY"},
		"geocoder.api_key":           {"GEOCODER_API_KEY", "GOOGLE_API_KEY"},
	}
	for key, envs := range legacy {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

func normalizeList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
