package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Config is the root configuration for AutoSocioly.
type Config struct {
	General  GeneralConfig  `json:"general"`
	GetLate  GetLateConfig  `json:"getlate"`
	Drafting DraftingConfig `json:"drafting"`
	Exposure ExposureConfig `json:"exposure"`
	Server   ServerConfig   `json:"server"`
	Notify   NotifyConfig   `json:"notify"`
	Metrics  MetricsConfig  `json:"metrics"`
}

type GeneralConfig struct {
	LogLevel     string `json:"logLevel"`
	DefaultTone  string `json:"defaultTone"`
	HashtagCount int    `json:"hashtagCount"`
}

// GetLateConfig configures the remote posting API client.
type GetLateConfig struct {
	APIKey         string `json:"apiKey"`
	BaseURL        string `json:"baseUrl"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
	MaxRetries     int    `json:"maxRetries"`
	// PostTimeoutSeconds bounds one whole confirm dispatch batch, which
	// may span several per-call timeouts plus retry backoff.
	PostTimeoutSeconds int `json:"postTimeoutSeconds"`
	// SimulateUnsupported turns a method-unsupported response into a
	// synthesized success so adapters keep working against an API whose
	// posting endpoint is not yet enabled. Dev/test convenience only.
	SimulateUnsupported bool `json:"simulateUnsupported"`
}

// DraftingConfig configures the generative content provider.
type DraftingConfig struct {
	APIKey         string `json:"apiKey"`
	APIBase        string `json:"apiBase"`
	Model          string `json:"model"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
	ImageDir       string `json:"imageDir"`
}

// ExposureConfig configures the media exposure bridge.
type ExposureConfig struct {
	TunnelAPIURL string `json:"tunnelApiUrl"` // local tunnel agent inspection API
	StaticDir    string `json:"staticDir"`    // fallback copy target, served under /static/uploads
	PublicBase   string `json:"publicBase"`   // base URL for local fallback links
}

type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// NotifyConfig configures the optional Telegram operator notifier.
type NotifyConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
	ChatID  string `json:"chatId"`
}

type MetricsConfig struct {
	Enabled  bool   `json:"enabled"`
	Endpoint string `json:"endpoint"`
}

// DefaultConfigDir returns the default config directory (~/.autosocioly).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".autosocioly"
	}
	return filepath.Join(home, ".autosocioly")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads, env-expands, and validates a config file. Missing keys
// keep their defaults.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.Drafting.ImageDir = ExpandPath(cfg.Drafting.ImageDir)
	cfg.Exposure.StaticDir = ExpandPath(cfg.Exposure.StaticDir)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		name := groups[1]
		def := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			def = groups[2]
		}
		val, exists := os.LookupEnv(name)
		if !exists || val == "" {
			if hasDefault {
				return def
			}
			return match
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has workable values.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	if cfg.General.HashtagCount < 1 || cfg.General.HashtagCount > 30 {
		errs = append(errs, "general.hashtagCount must be between 1 and 30")
	}

	if cfg.GetLate.BaseURL == "" {
		errs = append(errs, "getlate.baseUrl is required")
	}
	if cfg.GetLate.TimeoutSeconds < 1 {
		errs = append(errs, "getlate.timeoutSeconds must be >= 1")
	}
	if cfg.GetLate.MaxRetries < 0 || cfg.GetLate.MaxRetries > 10 {
		errs = append(errs, "getlate.maxRetries must be between 0 and 10")
	}
	if cfg.GetLate.PostTimeoutSeconds < 1 {
		errs = append(errs, "getlate.postTimeoutSeconds must be >= 1")
	}

	if cfg.Drafting.TimeoutSeconds < 1 {
		errs = append(errs, "drafting.timeoutSeconds must be >= 1")
	}

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 0 and 65535")
	}

	if cfg.Notify.Enabled && cfg.Notify.Token == "" {
		errs = append(errs, "notify.token is required when notify.enabled is true")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
