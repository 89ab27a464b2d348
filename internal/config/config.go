// File: internal/config/config.go
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type ProviderConfig struct {
	AIMLKey     string        `yaml:"aiml_key"`
	AIMLBaseURL string        `yaml:"aiml_base_url"`
	GeminiKey   string        `yaml:"gemini_key"`
	PollEvery   time.Duration `yaml:"poll_every"` // video task poll interval
	Workers     int           `yaml:"workers"`    // generation processor workers
	QueueSize   int           `yaml:"queue_size"` // pending submissions buffer
}

type TelegramConfig struct {
	Token    string  `yaml:"token"`
	Enabled  bool    `yaml:"enabled"`
	AdminIDs []int64 `yaml:"admin_ids"`
}

// LimitsConfig carries the admission knobs. Defaults follow the product
// contract: 5 in-flight generations and 10 starts per rolling minute per user.
type LimitsConfig struct {
	MaxActive            int           `yaml:"max_active"`
	RatePerMinute        int           `yaml:"rate_per_minute"`
	GenerationTimeout    time.Duration `yaml:"generation_timeout"`
	IdempotencyRetention time.Duration `yaml:"idempotency_retention"`
	SweepEvery           time.Duration `yaml:"sweep_every"`
}

type SecurityConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	AdminKey  string        `yaml:"admin_key"` // shared secret for admin login; empty disables it
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Provider ProviderConfig `yaml:"provider"`
	Telegram TelegramConfig `yaml:"telegram"`
	Limits   LimitsConfig   `yaml:"limits"`
	Security SecurityConfig `yaml:"security"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig() (*Config, error) {
	var configPath string = ""
	var dev bool
	flag.StringVar(&configPath, "config", "config.yaml", "path to config yaml")
	flag.BoolVar(&dev, "dev", false, "development mode")
	flag.Parse()

	b, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&cfg)

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Telegram.Enabled && cfg.Telegram.Token == "" {
		return nil, errors.New("telegram.token is required when telegram.enabled")
	}
	if cfg.Security.JWTSecret == "" {
		return nil, errors.New("security.jwt_secret is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout <= 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout <= 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Server.RequestTimeout <= 0 {
		cfg.Server.RequestTimeout = 30 * time.Second
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Redis.TTL <= 0 {
		cfg.Redis.TTL = time.Hour
	}
	if cfg.Provider.AIMLBaseURL == "" {
		cfg.Provider.AIMLBaseURL = "https://api.aimlapi.com/v1"
	}
	if cfg.Provider.PollEvery <= 0 {
		cfg.Provider.PollEvery = 5 * time.Second
	}
	if cfg.Provider.Workers <= 0 {
		cfg.Provider.Workers = 8
	}
	if cfg.Provider.QueueSize <= 0 {
		cfg.Provider.QueueSize = 64
	}
	if cfg.Limits.MaxActive <= 0 {
		cfg.Limits.MaxActive = 5
	}
	if cfg.Limits.RatePerMinute <= 0 {
		cfg.Limits.RatePerMinute = 10
	}
	if cfg.Limits.GenerationTimeout <= 0 {
		cfg.Limits.GenerationTimeout = 10 * time.Minute
	}
	if cfg.Limits.IdempotencyRetention <= 0 {
		cfg.Limits.IdempotencyRetention = 24 * time.Hour
	}
	if cfg.Limits.SweepEvery <= 0 {
		cfg.Limits.SweepEvery = time.Minute
	}
	if cfg.Security.TokenTTL <= 0 {
		cfg.Security.TokenTTL = 12 * time.Hour
	}
}
