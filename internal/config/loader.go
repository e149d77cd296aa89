package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "sustainabot.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "PORT")
	setString(&cfg.Bot.Mode, "BOT_MODE")
	setString(&cfg.Analysis.Endpoint, "ANALYSIS_ENDPOINT")
	setDuration(&cfg.Analysis.Timeout, "ANALYSIS_TIMEOUT")
	setString(&cfg.GitHub.WebhookSecret, "GITHUB_WEBHOOK_SECRET")
	setString(&cfg.GitHub.AppID, "GITHUB_APP_ID")
	setString(&cfg.GitHub.PrivateKeyPath, "GITHUB_PRIVATE_KEY_PATH")
	setString(&cfg.GitHub.APIBaseURL, "GITHUB_API_BASE_URL")
	setString(&cfg.GitLab.WebhookSecret, "GITLAB_WEBHOOK_SECRET")
	setString(&cfg.GitLab.APIToken, "GITLAB_API_TOKEN")
	setString(&cfg.GitLab.APIBaseURL, "GITLAB_API_BASE_URL")
	setString(&cfg.Logging.Level, "SUSTAINABOT_LOG_LEVEL")
	setString(&cfg.Logging.Service, "SUSTAINABOT_LOG_SERVICE")
	setInt(&cfg.Breaker.MaxFailures, "SUSTAINABOT_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "SUSTAINABOT_BREAKER_TIMEOUT")
	setDuration(&cfg.Runtime.TickInterval, "SUSTAINABOT_TICK_INTERVAL")
	setDuration(&cfg.Runtime.Retention, "SUSTAINABOT_RETENTION")
}

// validate rejects configurations that cannot produce a working service.
func validate(cfg *Config) error {
	switch cfg.Bot.Mode {
	case "advisor", "consultant", "regulator":
	default:
		return fmt.Errorf("invalid bot mode %q: expected advisor, consultant or regulator", cfg.Bot.Mode)
	}

	if cfg.Server.Port == "" {
		return errors.New("server port must not be empty")
	}
	if cfg.Analysis.Endpoint == "" {
		return errors.New("analysis endpoint must not be empty")
	}
	if cfg.Runtime.TickInterval <= 0 {
		return errors.New("tick interval must be positive")
	}
	if cfg.Runtime.Retention <= 0 {
		return errors.New("retention must be positive")
	}

	// An App ID without a key (or the reverse) is always a deployment mistake.
	if (cfg.GitHub.AppID == "") != (cfg.GitHub.PrivateKeyPath == "") {
		return errors.New("github app_id and private_key_path must be set together")
	}

	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
