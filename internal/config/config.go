package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for omnitool.
type Config struct {
	General GeneralConfig `json:"general" yaml:"general" toml:"general"`
	Chain   ChainConfig   `json:"chain" yaml:"chain" toml:"chain"`
	Suggest SuggestConfig `json:"suggest" yaml:"suggest" toml:"suggest"`
	History HistoryConfig `json:"history" yaml:"history" toml:"history"`
	Catalog CatalogConfig `json:"catalog" yaml:"catalog" toml:"catalog"`
}

type GeneralConfig struct {
	LogLevel string `json:"logLevel" yaml:"logLevel" toml:"logLevel"`
	LogFile  string `json:"logFile,omitempty" yaml:"logFile,omitempty" toml:"logFile,omitempty"` // optional log file path
}

type ChainConfig struct {
	DebounceMs         int `json:"debounceMs" yaml:"debounceMs" toml:"debounceMs"`
	StepTimeoutSeconds int `json:"stepTimeoutSeconds" yaml:"stepTimeoutSeconds" toml:"stepTimeoutSeconds"` // 0 = no limit
}

// Debounce returns the re-run quiescence window.
func (c ChainConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// StepTimeout returns the per-step executor deadline, zero for none.
func (c ChainConfig) StepTimeout() time.Duration {
	return time.Duration(c.StepTimeoutSeconds) * time.Second
}

type SuggestConfig struct {
	Enabled        bool    `json:"enabled" yaml:"enabled" toml:"enabled"`
	Source         string  `json:"source" yaml:"source" toml:"source"` // "clipboard" | "none"
	PollIntervalMs int     `json:"pollIntervalMs" yaml:"pollIntervalMs" toml:"pollIntervalMs"`
	MinConfidence  float64 `json:"minConfidence" yaml:"minConfidence" toml:"minConfidence"`
}

func (c SuggestConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

type HistoryConfig struct {
	Enabled       bool   `json:"enabled" yaml:"enabled" toml:"enabled"`
	DBPath        string `json:"dbPath" yaml:"dbPath" toml:"dbPath"`
	RetentionDays int    `json:"retentionDays" yaml:"retentionDays" toml:"retentionDays"`
}

// CatalogConfig points at an optional YAML catalog that replaces the embedded one.
type CatalogConfig struct {
	Path string `json:"path,omitempty" yaml:"path,omitempty" toml:"path,omitempty"`
}

// DefaultConfigDir returns the default config directory (~/.omnitool).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".omnitool"
	}
	return filepath.Join(home, ".omnitool")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Format is a config file encoding, chosen by file extension.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatOf maps a path's extension to a Format. Unknown extensions are JSON.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".toml":
		return FormatTOML
	default:
		return FormatJSON
	}
}

// Load reads a config file, layering it over Defaults. A .env file in the
// same directory is loaded into the environment first (existing variables
// win), then ${VAR} references in the file are expanded.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	envFile := filepath.Join(filepath.Dir(path), ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("cannot load %s: %w", envFile, err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := decode(FormatOf(path), data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.History.DBPath = ExpandPath(cfg.History.DBPath)
	cfg.Catalog.Path = ExpandPath(cfg.Catalog.Path)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads path if it exists and returns Defaults otherwise.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(ExpandPath(path)); os.IsNotExist(err) {
		cfg := Defaults()
		cfg.History.DBPath = ExpandPath(cfg.History.DBPath)
		return cfg, nil
	}
	return Load(path)
}

func decode(format Format, data []byte, cfg *Config) error {
	switch format {
	case FormatYAML:
		return yaml.Unmarshal(data, cfg)
	case FormatTOML:
		return toml.Unmarshal(data, cfg)
	default:
		return json.Unmarshal(data, cfg)
	}
}

func encode(format Format, cfg *Config) ([]byte, error) {
	switch format {
	case FormatYAML:
		return yaml.Marshal(cfg)
	case FormatTOML:
		return toml.Marshal(cfg)
	default:
		return json.MarshalIndent(cfg, "", "  ")
	}
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

// Save writes cfg to path in the format implied by its extension.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := encode(FormatOf(path), cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch strings.ToLower(cfg.General.LogLevel) {
	case "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	if cfg.Chain.DebounceMs < 1 || cfg.Chain.DebounceMs > 10000 {
		errs = append(errs, "chain.debounceMs must be between 1 and 10000")
	}
	if cfg.Chain.StepTimeoutSeconds < 0 {
		errs = append(errs, "chain.stepTimeoutSeconds must be >= 0")
	}

	switch cfg.Suggest.Source {
	case "clipboard", "none":
		// valid
	default:
		errs = append(errs, "suggest.source must be one of: clipboard, none")
	}
	if cfg.Suggest.PollIntervalMs < 100 {
		errs = append(errs, "suggest.pollIntervalMs must be >= 100")
	}
	if cfg.Suggest.MinConfidence < 0 || cfg.Suggest.MinConfidence > 1 {
		errs = append(errs, "suggest.minConfidence must be between 0 and 1")
	}

	if cfg.History.Enabled && cfg.History.DBPath == "" {
		errs = append(errs, "history.dbPath is required when history is enabled")
	}
	if cfg.History.RetentionDays < 1 {
		errs = append(errs, "history.retentionDays must be >= 1")
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
