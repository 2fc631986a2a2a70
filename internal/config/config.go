// Package config loads the bot configuration from YAML with ${ENV}
// placeholder expansion.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		Debug    bool   `yaml:"debug"`
	} `yaml:"telegram"`

	API struct {
		BaseURL           string  `yaml:"base_url"`
		AuthToken         string  `yaml:"auth_token"`
		CacheTTLSeconds   int     `yaml:"cache_ttl_seconds"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
	} `yaml:"api"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Booking struct {
		RentalSlug            string `yaml:"rental_slug"`
		Currency              string `yaml:"currency"`
		SessionTimeoutMinutes int    `yaml:"session_timeout_minutes"`
	} `yaml:"booking"`

	Payment struct {
		PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
		MaxPollAttempts     int    `yaml:"max_poll_attempts"`
		AccountRef          string `yaml:"account_ref"`
	} `yaml:"payment"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Booking.Currency == "" {
		cfg.Booking.Currency = "KES"
	}

	return &cfg, nil
}

func (c *Config) PollInterval() time.Duration {
	if c.Payment.PollIntervalSeconds <= 0 {
		return 4 * time.Second
	}
	return time.Duration(c.Payment.PollIntervalSeconds) * time.Second
}

func (c *Config) MaxPollAttempts() int {
	if c.Payment.MaxPollAttempts <= 0 {
		return 30
	}
	return c.Payment.MaxPollAttempts
}

func (c *Config) SessionTimeout() time.Duration {
	if c.Booking.SessionTimeoutMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.Booking.SessionTimeoutMinutes) * time.Minute
}
