// Package config provides hierarchical configuration loading for sustainabot.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all runtime configuration for the sustainabot service.
type Config struct {
	Server   Server   `yaml:"server"`
	Bot      Bot      `yaml:"bot"`
	Analysis Analysis `yaml:"analysis"`
	GitHub   GitHub   `yaml:"github"`
	GitLab   GitLab   `yaml:"gitlab"`
	Logging  Logging  `yaml:"logging"`
	Breaker  Breaker  `yaml:"breaker"`
	Runtime  Runtime  `yaml:"runtime"`
}

// Server holds HTTP server configuration.
type Server struct {
	Port string `yaml:"port"`
}

// Bot holds bot behaviour configuration. Mode is one of "advisor",
// "consultant" or "regulator" and controls how reports are rendered.
type Bot struct {
	Mode string `yaml:"mode"`
}

// Analysis holds Analysis Service configuration.
type Analysis struct {
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
}

// GitHub holds GitHub webhook and App credentials. An empty WebhookSecret
// disables signature verification (local development only). AppID and
// PrivateKeyPath are required for posting comments and check runs as a
// GitHub App.
type GitHub struct {
	WebhookSecret  string `yaml:"webhook_secret"`
	AppID          string `yaml:"app_id"`
	PrivateKeyPath string `yaml:"private_key_path"`
	APIBaseURL     string `yaml:"api_base_url"`
}

// GitLab holds GitLab webhook and API credentials. GitLab webhooks carry a
// static shared secret rather than an HMAC signature.
type GitLab struct {
	WebhookSecret string `yaml:"webhook_secret"`
	APIToken      string `yaml:"api_token"`
	APIBaseURL    string `yaml:"api_base_url"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
}

// Breaker holds circuit breaker configuration for outbound calls.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Runtime holds event-loop configuration: how often the housekeeping tick
// fires and how long finished pending-analysis entries are retained.
type Runtime struct {
	TickInterval time.Duration `yaml:"tick_interval"`
	Retention    time.Duration `yaml:"retention"`
}

// Defaults returns a Config with sensible default values for local development.
func Defaults() Config {
	return Config{
		Server: Server{
			Port: "3000",
		},
		Bot: Bot{
			Mode: "advisor",
		},
		Analysis: Analysis{
			Endpoint: "http://localhost:8080/analyze",
			Timeout:  30 * time.Second,
		},
		GitHub: GitHub{
			APIBaseURL: "https://api.github.com",
		},
		GitLab: GitLab{
			APIBaseURL: "https://gitlab.com/api/v4",
		},
		Logging: Logging{
			Level:   "info",
			Service: "sustainabot",
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
		Runtime: Runtime{
			TickInterval: time.Minute,
			Retention:    time.Hour,
		},
	}
}
