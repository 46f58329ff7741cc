// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	JWTSecret    string        `yaml:"jwt_secret"`    // empty disables auth (dev only)
	DashboardKey string        `yaml:"dashboard_key"` // exchanged for a session token
	SessionTTL   time.Duration `yaml:"session_ttl"`
}

type RedisConfig struct {
	URL             string `yaml:"url"` // empty disables the redis rate limiter
	Password        string `yaml:"password"`
	DB              int    `yaml:"db"`
	SubmitPerMinute int    `yaml:"submit_per_minute"`
}

type GenerationConfig struct {
	Provider string `yaml:"provider"` // openai | gemini | http | noop

	OpenAIKey   string `yaml:"openai_key"`
	OpenAIModel string `yaml:"openai_model"`

	GeminiKey   string `yaml:"gemini_key"`
	GeminiURL   string `yaml:"gemini_url"`
	GeminiModel string `yaml:"gemini_model"`

	BackendURL     string        `yaml:"backend_url"` // self-hosted generation service
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type SchedulerConfig struct {
	MaxConcurrentJobs int `yaml:"max_concurrent_jobs"`
}

type Config struct {
	Log        LogConfig        `yaml:"log"`
	Server     ServerConfig     `yaml:"server"`
	Redis      RedisConfig      `yaml:"redis"`
	Generation GenerationConfig `yaml:"generation"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`

	Runtime RuntimeConfig `yaml:"-"`
}

func Load(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.SessionTTL <= 0 {
		c.Server.SessionTTL = 30 * time.Minute
	}
	if c.Redis.SubmitPerMinute <= 0 {
		c.Redis.SubmitPerMinute = 60
	}
	if c.Generation.Provider == "" {
		c.Generation.Provider = "noop"
	}
	if c.Generation.OpenAIModel == "" {
		c.Generation.OpenAIModel = "gpt-image-1"
	}
	if c.Generation.GeminiModel == "" {
		c.Generation.GeminiModel = "gemini-2.5-flash-image"
	}
	if c.Generation.RequestTimeout <= 0 {
		c.Generation.RequestTimeout = 60 * time.Second
	}
	if c.Scheduler.MaxConcurrentJobs <= 0 {
		c.Scheduler.MaxConcurrentJobs = 3
	}
}

// validate performs minimal validation; the adapters themselves reject
// missing credentials at construction time too.
func (c *Config) validate() error {
	switch c.Generation.Provider {
	case "openai":
		if c.Generation.OpenAIKey == "" {
			return errors.New("generation.openai_key is required for provider 'openai'")
		}
	case "gemini":
		if c.Generation.GeminiKey == "" {
			return errors.New("generation.gemini_key is required for provider 'gemini'")
		}
	case "http":
		if c.Generation.BackendURL == "" {
			return errors.New("generation.backend_url is required for provider 'http'")
		}
	case "noop":
	default:
		return fmt.Errorf("unknown generation.provider %q", c.Generation.Provider)
	}
	return nil
}
