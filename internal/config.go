package internal

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

type NovaTileConfig struct {
	AppName string `mapstructure:"app_name"`

	Storage struct {
		Workdir           string `mapstructure:"workdir"`
		PageCacheCapacity int    `mapstructure:"page_cache_capacity"`
	} `mapstructure:"storage"`

	Query struct {
		MaxZeroProgressRounds int `mapstructure:"max_zero_progress_rounds"`
		AsyncWorkers          int `mapstructure:"async_workers"`
		ChunkBytes            int `mapstructure:"chunk_bytes"`
	} `mapstructure:"query"`

	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
}

func DefaultConfig() *NovaTileConfig {
	var cfg NovaTileConfig
	cfg.AppName = "novatile"
	cfg.Storage.Workdir = "./data"
	cfg.Storage.PageCacheCapacity = 128
	cfg.Query.MaxZeroProgressRounds = 10
	cfg.Query.AsyncWorkers = 8
	cfg.Query.ChunkBytes = 1 << 20
	cfg.Log.Level = "info"
	return &cfg
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("app_name", d.AppName)
	v.SetDefault("storage.workdir", d.Storage.Workdir)
	v.SetDefault("storage.page_cache_capacity", d.Storage.PageCacheCapacity)
	v.SetDefault("query.max_zero_progress_rounds", d.Query.MaxZeroProgressRounds)
	v.SetDefault("query.async_workers", d.Query.AsyncWorkers)
	v.SetDefault("query.chunk_bytes", d.Query.ChunkBytes)
	v.SetDefault("log.level", d.Log.Level)
}

// LoadConfig reads the YAML file at path over the defaults. An empty path
// uses defaults only. NOVATILE_* environment variables override both, e.g.
// NOVATILE_STORAGE_WORKDIR.
func LoadConfig(path string) (*NovaTileConfig, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("novatile")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg NovaTileConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Query.MaxZeroProgressRounds <= 0 {
		return nil, fmt.Errorf("config: query.max_zero_progress_rounds must be positive, got %d", cfg.Query.MaxZeroProgressRounds)
	}
	if cfg.Query.ChunkBytes <= 0 {
		return nil, fmt.Errorf("config: query.chunk_bytes must be positive, got %d", cfg.Query.ChunkBytes)
	}
	if _, err := cfg.SlogLevel(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SlogLevel maps log.level to a slog level.
func (c *NovaTileConfig) SlogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("config: log.level: %w", err)
	}
	return l, nil
}
