package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
	BackendHTTP   = "http"
)

type Config struct {
	AppEnv string `env:"APP_ENV" default:"development"`
	Port   string `env:"PORT" default:"8080"`

	RemoteBackend     string `env:"REMOTE_BACKEND" default:"redis"`
	RemoteEndpoint    string `env:"REMOTE_ENDPOINT"`
	RemoteCredentials string `env:"REMOTE_CREDENTIALS"`

	IncludeSecondary bool   `env:"INCLUDE_SECONDARY" default:"false"`
	StateFile        string `env:"STATE_FILE" default:"redflag-state.json"`
	SelfID           string `env:"SELF_ID"`

	ActuatorBackend string  `env:"ACTUATOR_BACKEND" default:"http"`
	ActuatorURL     string  `env:"ACTUATOR_URL" default:"http://127.0.0.1:6463"`
	EffectRate      float64 `env:"EFFECT_RATE" default:"20"`
	EffectBurst     int     `env:"EFFECT_BURST" default:"5"`

	HealInterval time.Duration `env:"HEAL_INTERVAL" default:"30s"` // 0 disables

	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	switch cfg.RemoteBackend {
	case BackendRedis:
		if cfg.RemoteEndpoint == "" {
			return errors.New("REMOTE_ENDPOINT is required")
		}
		u, err := url.Parse(cfg.RemoteEndpoint)
		if err != nil || (u.Scheme != "redis" && u.Scheme != "rediss") {
			return fmt.Errorf("REMOTE_ENDPOINT must be a redis:// or rediss:// URL, got %q", cfg.RemoteEndpoint)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("REMOTE_BACKEND must be %q or %q, got %q", BackendRedis, BackendMemory, cfg.RemoteBackend)
	}

	switch cfg.ActuatorBackend {
	case BackendHTTP:
		u, err := url.Parse(cfg.ActuatorURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("ACTUATOR_URL must be an absolute URL, got %q", cfg.ActuatorURL)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("ACTUATOR_BACKEND must be %q or %q, got %q", BackendHTTP, BackendMemory, cfg.ActuatorBackend)
	}

	if cfg.StateFile == "" {
		return errors.New("STATE_FILE is required")
	}
	if cfg.EffectRate < 0 {
		return errors.New("EFFECT_RATE must not be negative")
	}
	if cfg.EffectBurst < 1 {
		return errors.New("EFFECT_BURST must be at least 1")
	}
	if cfg.HealInterval < 0 {
		return errors.New("HEAL_INTERVAL must not be negative")
	}

	return nil
}
