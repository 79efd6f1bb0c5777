package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"metalsync/internal/store"
)

type Server struct {
	Port           string        `mapstructure:"port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type GoldAPI struct {
	APIKey               string        `mapstructure:"api_key"`
	BaseURL              string        `mapstructure:"base_url"`
	Currency             string        `mapstructure:"currency"`
	UseMock              bool          `mapstructure:"use_mock"`
	MaxRequestsPerMinute int           `mapstructure:"max_requests_per_minute"`
	Burst                int           `mapstructure:"burst"`
	SimulatedLatency     time.Duration `mapstructure:"simulated_latency"`
}

type Sync struct {
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
	RefreshLimit  int           `mapstructure:"refresh_limit"`
	RefreshWindow time.Duration `mapstructure:"refresh_window"`
	CacheKey      string        `mapstructure:"cache_key"`
	QuotaKey      string        `mapstructure:"quota_key"`
}

type Redis struct {
	Addr     string `mapstructure:"addr"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type Storage struct {
	Driver     string `mapstructure:"driver"`
	SQLitePath string `mapstructure:"sqlite_path"`
	Redis      Redis  `mapstructure:"redis"`
}

type Config struct {
	LogLevel  string  `mapstructure:"log_level"`
	LogFormat string  `mapstructure:"log_format"`
	Server    Server  `mapstructure:"server"`
	GoldAPI   GoldAPI `mapstructure:"goldapi"`
	Sync      Sync    `mapstructure:"sync"`
	Storage   Storage `mapstructure:"storage"`
}

func Default() Config {
	return Config{
		LogLevel:  "info",
		LogFormat: "text",
		Server:    Server{Port: "8080", RequestTimeout: 30 * time.Second},
		GoldAPI: GoldAPI{
			BaseURL:              "https://www.goldapi.io/api",
			Currency:             "USD",
			MaxRequestsPerMinute: 60,
			Burst:                4,
			SimulatedLatency:     time.Second,
		},
		Sync: Sync{
			CacheTTL:      24 * time.Hour,
			RefreshLimit:  2,
			RefreshWindow: 24 * time.Hour,
			CacheKey:      "metals_cache_v1",
			QuotaKey:      "metals_refresh_quota_v1",
		},
		Storage: Storage{
			Driver:     store.DriverSQLite,
			SQLitePath: "data/metalsync.db",
			Redis:      Redis{Addr: "127.0.0.1:6379"},
		},
	}
}

// Load reads the config file at path, or config.json in the working
// directory when path is empty and the file exists. A missing file yields
// defaults. Every key can be overridden from the environment with dots
// replaced by underscores (GOLDAPI_API_KEY); PORT and LOG_LEVEL are also
// honoured.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("server.port", "SERVER_PORT", "PORT")
	_ = v.BindEnv("log_level", "LOG_LEVEL")

	if path == "" {
		if _, err := os.Stat("config.json"); err == nil {
			path = "config.json"
		}
	}
	if path != "" {
		if _, err := os.Stat(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Default(), fmt.Errorf("read config: %w", err)
		} else if err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return Default(), fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Default(), fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate rejects values the sync core cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Sync.CacheTTL <= 0 {
		errs = append(errs, errors.New("sync.cache_ttl must be positive"))
	}
	if c.Sync.RefreshWindow <= 0 {
		errs = append(errs, errors.New("sync.refresh_window must be positive"))
	}
	if c.Sync.RefreshLimit < 0 {
		errs = append(errs, errors.New("sync.refresh_limit must not be negative"))
	}
	if c.GoldAPI.MaxRequestsPerMinute < 0 {
		errs = append(errs, errors.New("goldapi.max_requests_per_minute must not be negative"))
	}
	switch c.Storage.Driver {
	case store.DriverMemory, store.DriverRedis:
	case store.DriverSQLite, "":
		if c.Storage.SQLitePath == "" {
			errs = append(errs, errors.New("storage.sqlite_path is required for the sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q: %w", c.Storage.Driver, store.ErrUnknownDriver))
	}
	return errors.Join(errs...)
}

// UseSimulator reports whether quotes come from the offline simulator.
func (c Config) UseSimulator() bool {
	return c.GoldAPI.UseMock || c.GoldAPI.APIKey == ""
}

// StoreOptions maps the storage section onto store.Open options.
func (c Config) StoreOptions() store.Options {
	return store.Options{
		Driver:     c.Storage.Driver,
		SQLitePath: c.Storage.SQLitePath,
		Redis: store.RedisOptions{
			Addr:     c.Storage.Redis.Addr,
			Username: c.Storage.Redis.Username,
			Password: c.Storage.Redis.Password,
			DB:       c.Storage.Redis.DB,
		},
	}
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.request_timeout", d.Server.RequestTimeout)
	v.SetDefault("goldapi.api_key", d.GoldAPI.APIKey)
	v.SetDefault("goldapi.base_url", d.GoldAPI.BaseURL)
	v.SetDefault("goldapi.currency", d.GoldAPI.Currency)
	v.SetDefault("goldapi.use_mock", d.GoldAPI.UseMock)
	v.SetDefault("goldapi.max_requests_per_minute", d.GoldAPI.MaxRequestsPerMinute)
	v.SetDefault("goldapi.burst", d.GoldAPI.Burst)
	v.SetDefault("goldapi.simulated_latency", d.GoldAPI.SimulatedLatency)
	v.SetDefault("sync.cache_ttl", d.Sync.CacheTTL)
	v.SetDefault("sync.refresh_limit", d.Sync.RefreshLimit)
	v.SetDefault("sync.refresh_window", d.Sync.RefreshWindow)
	v.SetDefault("sync.cache_key", d.Sync.CacheKey)
	v.SetDefault("sync.quota_key", d.Sync.QuotaKey)
	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)
	v.SetDefault("storage.redis.addr", d.Storage.Redis.Addr)
	v.SetDefault("storage.redis.username", d.Storage.Redis.Username)
	v.SetDefault("storage.redis.password", d.Storage.Redis.Password)
	v.SetDefault("storage.redis.db", d.Storage.Redis.DB)
}
