package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"
)

const (
	maxConfigFileBytes int64 = 1 << 20 // 1MB

	// EnvConfigPath overrides DefaultPath.
	EnvConfigPath = "HOTKEYD_CONFIG"

	appDirName = "hotkeyd"
)

// Binding actions.
const (
	ActionNotify  = "notify"
	ActionCommand = "command"
	ActionOCR     = "ocr"
)

// Config is the on-disk daemon configuration.
type Config struct {
	// Backend selects the hotkey backend: auto, win32, carbon, x11 or none.
	Backend  string          `yaml:"backend" json:"backend"`
	Bindings []BindingConfig `yaml:"bindings" json:"bindings"`
	Log      LogConfig       `yaml:"log" json:"log"`
	Stream   StreamConfig    `yaml:"stream" json:"stream"`
	Journal  JournalConfig   `yaml:"journal" json:"journal"`
	OCR      OCRConfig       `yaml:"ocr" json:"ocr"`
	Control  ControlConfig   `yaml:"control" json:"control"`
	// Watch reloads bindings when the file changes.
	Watch bool `yaml:"watch" json:"watch"`
}

// BindingConfig is one hotkey binding.
type BindingConfig struct {
	ID     int    `yaml:"id" json:"id"`
	Name   string `yaml:"name,omitempty" json:"name,omitempty"`
	Combo  string `yaml:"combo" json:"combo"`
	Action string `yaml:"action" json:"action"`
	// Command is the argv run for action=command.
	Command []string `yaml:"command,omitempty" json:"command,omitempty"`
	// Image is the file recognized for action=ocr.
	Image string `yaml:"image,omitempty" json:"image,omitempty"`
}

// Label returns Name, or "binding-<id>" when unnamed.
func (b BindingConfig) Label() string {
	if name := strings.TrimSpace(b.Name); name != "" {
		return name
	}
	return fmt.Sprintf("binding-%d", b.ID)
}

// Equal reports whether two bindings would produce the same registration
// and action.
func (b BindingConfig) Equal(other BindingConfig) bool {
	return b.ID == other.ID &&
		b.Name == other.Name &&
		b.Combo == other.Combo &&
		b.Action == other.Action &&
		b.Image == other.Image &&
		slices.Equal(b.Command, other.Command)
}

type LogConfig struct {
	Level      string `yaml:"level" json:"level"`
	File       string `yaml:"file" json:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" json:"max_age_days"`
	Compress   bool   `yaml:"compress" json:"compress"`
	ToStderr   bool   `yaml:"to_stderr" json:"to_stderr"`
}

type StreamConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
}

type JournalConfig struct {
	Enabled   bool          `yaml:"enabled" json:"enabled"`
	Path      string        `yaml:"path" json:"path"`
	Retention time.Duration `yaml:"retention" json:"retention"`
}

type OCRConfig struct {
	Languages []string      `yaml:"languages" json:"languages"`
	CacheTTL  time.Duration `yaml:"cache_ttl" json:"cache_ttl"`
}

type ControlConfig struct {
	// Name overrides the pipe/socket name. Empty derives it from the user.
	Name string `yaml:"name" json:"name"`
}

// DefaultConfig returns the configuration written on first start.
func DefaultConfig() Config {
	return Config{
		Backend: "auto",
		Bindings: []BindingConfig{
			{ID: 1, Name: "hello", Combo: "Ctrl+Alt+Shift+F12", Action: ActionNotify},
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
			Compress:   true,
		},
		Stream: StreamConfig{
			Enabled: true,
			Addr:    "127.0.0.1:0",
		},
		Journal: JournalConfig{
			Enabled:   true,
			Retention: 30 * 24 * time.Hour,
		},
		OCR: OCRConfig{
			Languages: []string{"chi_sim", "eng"},
			CacheTTL:  5 * time.Minute,
		},
		Watch: true,
	}
}

// userConfigDirFn is a test seam for DefaultPath.
var userConfigDirFn = os.UserConfigDir

// DefaultPath returns $HOTKEYD_CONFIG, or config.yaml under the per-user
// config directory. It falls back to the temp dir when neither resolves.
func DefaultPath() string {
	if override := strings.TrimSpace(os.Getenv(EnvConfigPath)); override != "" {
		return override
	}
	base, err := userConfigDirFn()
	if err != nil || strings.TrimSpace(base) == "" {
		slog.Warn("[WARN-CONFIG] using temp dir as config path fallback", "error", err)
		base = os.TempDir()
	}
	return filepath.Join(base, appDirName, "config.yaml")
}

// Load reads the config at path. A missing or empty file yields defaults.
// Missing fields are defaulted and the result is validated.
func Load(path string) (Config, error) {
	cfg, _, err := load(path)
	return cfg, err
}

// load is Load that also returns the bytes it parsed, nil for a missing file.
func load(path string) (Config, []byte, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultConfig(), nil, errors.New("config path required")
	}
	raw, err := readLimitedFile(path, maxConfigFileBytes)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultConfig(), nil, nil
		}
		return DefaultConfig(), nil, err
	}
	cfg, err := Parse(raw)
	return cfg, raw, err
}

// Parse decodes and validates raw YAML.
func Parse(raw []byte) (Config, error) {
	cfg := DefaultConfig()
	if len(strings.TrimSpace(string(raw))) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// EnsureFile writes the default config if path does not exist and returns
// the loaded config with the exact bytes it came from. The bytes are the
// baseline for Watch; they are returned even when parsing fails.
func EnsureFile(path string) (Config, []byte, error) {
	cfg, raw, err := load(path)
	if err != nil {
		return cfg, raw, err
	}
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		written, err := save(path, cfg)
		if err != nil {
			return cfg, nil, err
		}
		slog.Info("[DEBUG-CONFIG] default config written", "path", path)
		return cfg, written, nil
	}
	return cfg, raw, nil
}

// Save validates cfg and writes it atomically.
func Save(path string, cfg Config) error {
	_, err := save(path, cfg)
	return err
}

func save(path string, cfg Config) ([]byte, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, errors.New("config path required")
	}
	applyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("save config: %w", err)
	}

	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("save config: marshal: %w", err)
	}
	if err := atomicWrite(trimmed, raw); err != nil {
		return nil, err
	}
	slog.Debug("[DEBUG-CONFIG] config saved", "path", trimmed)
	return raw, nil
}

// ResolvePaths fills empty log and journal paths with files next to the
// config file.
func (c *Config) ResolvePaths(configPath string) {
	dir := filepath.Dir(configPath)
	if strings.TrimSpace(c.Log.File) == "" {
		c.Log.File = filepath.Join(dir, "hotkeyd.log")
	}
	if strings.TrimSpace(c.Journal.Path) == "" {
		c.Journal.Path = filepath.Join(dir, "journal.db")
	}
}

// Clone returns a deep copy of src.
func Clone(src Config) Config {
	dst := src
	dst.Bindings = make([]BindingConfig, len(src.Bindings))
	for i, b := range src.Bindings {
		b.Command = slices.Clone(b.Command)
		dst.Bindings[i] = b
	}
	dst.OCR.Languages = slices.Clone(src.OCR.Languages)
	return dst
}

// applyDefaults fills zero values that have a non-zero default.
// MUTATES: cfg is directly modified.
func applyDefaults(cfg *Config) {
	defaults := DefaultConfig()
	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	if cfg.Backend == "" {
		cfg.Backend = defaults.Backend
	}
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaults.Log.Level
	}
	if cfg.Log.MaxSizeMB <= 0 {
		cfg.Log.MaxSizeMB = defaults.Log.MaxSizeMB
	}
	if cfg.Log.MaxBackups < 0 {
		cfg.Log.MaxBackups = 0
	}
	if cfg.Log.MaxAgeDays < 0 {
		cfg.Log.MaxAgeDays = 0
	}
	if strings.TrimSpace(cfg.Stream.Addr) == "" {
		cfg.Stream.Addr = defaults.Stream.Addr
	}
	if cfg.Journal.Retention < 0 {
		cfg.Journal.Retention = 0
	}
	if len(cfg.OCR.Languages) == 0 {
		cfg.OCR.Languages = defaults.OCR.Languages
	}
	if cfg.OCR.CacheTTL < 0 {
		cfg.OCR.CacheTTL = 0
	}
	for i := range cfg.Bindings {
		b := &cfg.Bindings[i]
		b.Action = strings.ToLower(strings.TrimSpace(b.Action))
		if b.Action == "" {
			b.Action = ActionNotify
		}
		b.Combo = strings.TrimSpace(b.Combo)
	}
}
