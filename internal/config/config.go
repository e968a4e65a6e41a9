// Package config loads broker settings from a YAML file with environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variable names recognized by the broker.
const (
	EnvConfigPath       = "PAYBROKER_CONFIG"
	EnvDatabaseURL      = "DATABASE_URL"
	EnvAPIKey           = "API_KEY"
	EnvAdminKey         = "ADMIN_KEY"
	EnvPublicBaseURL    = "PUBLIC_BASE_URL"
	EnvDefaultStoreCode = "DEFAULT_STORE_CODE"
	EnvDefaultAmount    = "DEFAULT_AMOUNT"
	EnvDefaultCurrency  = "DEFAULT_CURRENCY"
	EnvTerminalPrefix   = "TERMINAL_PREFIX"
	EnvTerminalPad      = "TERMINAL_PAD"
	EnvListenAddr       = "LISTEN_ADDR"
	EnvSessionSecret    = "SESSION_SECRET"
	EnvAdminSessionTTL  = "ADMIN_SESSION_TTL"
	EnvLogLevel         = "LOG_LEVEL"
	EnvLogFile          = "LOG_FILE"
	EnvGinMode          = "GIN_MODE"
)

// Defaults for optional settings.
const (
	DefaultStoreCode       = "STORE01"
	DefaultCurrency        = "USD"
	DefaultTerminalPad     = 4
	DefaultListenAddr      = ":8080"
	DefaultAdminSessionTTL = 12 * time.Hour
	DefaultLogLevel        = "info"
)

// ErrMissingRequired is wrapped by Validate for every absent required setting.
var ErrMissingRequired = errors.New("missing required setting")

// Config holds the broker runtime configuration.
type Config struct {
	DatabaseURL   string `yaml:"database_url"`
	APIKey        string `yaml:"api_key"`
	AdminKey      string `yaml:"admin_key"`
	PublicBaseURL string `yaml:"public_base_url"`

	DefaultStoreCode string `yaml:"default_store_code"`
	DefaultAmount    int64  `yaml:"default_amount"`
	DefaultCurrency  string `yaml:"default_currency"`
	TerminalPrefix   string `yaml:"terminal_prefix"`
	TerminalPad      int    `yaml:"terminal_pad"`

	ListenAddr      string        `yaml:"listen_addr"`
	SessionSecret   string        `yaml:"session_secret"`
	AdminSessionTTL time.Duration `yaml:"admin_session_ttl"`
	GinMode         string        `yaml:"gin_mode"`

	Log LogConfig `yaml:"log"`
}

// LogConfig controls log level and optional rotated file output.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Defaults returns a Config populated with every optional default.
func Defaults() Config {
	return Config{
		DefaultStoreCode: DefaultStoreCode,
		DefaultCurrency:  DefaultCurrency,
		TerminalPad:      DefaultTerminalPad,
		ListenAddr:       DefaultListenAddr,
		AdminSessionTTL:  DefaultAdminSessionTTL,
		Log: LogConfig{
			Level:      DefaultLogLevel,
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 14,
		},
	}
}

// ResolveConfigPath returns the explicit path or the PAYBROKER_CONFIG fallback.
func ResolveConfigPath(path string) string {
	if trimmed := strings.TrimSpace(path); trimmed != "" {
		return trimmed
	}
	return strings.TrimSpace(os.Getenv(EnvConfigPath))
}

// Load reads the optional YAML file at path, overlays environment variables and validates the result.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path = strings.TrimSpace(path); path != "" {
		if errFile := loadFile(path, &cfg); errFile != nil {
			return Config{}, errFile
		}
	}
	applyEnv(&cfg, os.LookupEnv)
	cfg.normalize()
	if errValidate := cfg.Validate(); errValidate != nil {
		return Config{}, errValidate
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, errRead := os.ReadFile(path)
	if errRead != nil {
		return fmt.Errorf("config: read %s: %w", path, errRead)
	}
	if errUnmarshal := yaml.Unmarshal(data, cfg); errUnmarshal != nil {
		return fmt.Errorf("config: parse %s: %w", path, errUnmarshal)
	}
	return nil
}

// applyEnv overlays environment values; lookup is injectable for tests.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str(EnvDatabaseURL, &cfg.DatabaseURL)
	str(EnvAPIKey, &cfg.APIKey)
	str(EnvAdminKey, &cfg.AdminKey)
	str(EnvPublicBaseURL, &cfg.PublicBaseURL)
	str(EnvDefaultStoreCode, &cfg.DefaultStoreCode)
	str(EnvDefaultCurrency, &cfg.DefaultCurrency)
	str(EnvListenAddr, &cfg.ListenAddr)
	str(EnvSessionSecret, &cfg.SessionSecret)
	str(EnvLogLevel, &cfg.Log.Level)
	str(EnvLogFile, &cfg.Log.File)
	str(EnvGinMode, &cfg.GinMode)

	// The prefix may legitimately be set to empty.
	if v, ok := lookup(EnvTerminalPrefix); ok {
		cfg.TerminalPrefix = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvDefaultAmount); ok {
		cfg.DefaultAmount = parseAmount(v)
	}
	if v, ok := lookup(EnvTerminalPad); ok {
		n, errAtoi := strconv.Atoi(strings.TrimSpace(v))
		if errAtoi != nil {
			n = 0
		}
		cfg.TerminalPad = n
	}
	if v, ok := lookup(EnvAdminSessionTTL); ok {
		if d, errParse := time.ParseDuration(strings.TrimSpace(v)); errParse == nil {
			cfg.AdminSessionTTL = d
		}
	}
}

// parseAmount mirrors integer parsing of a leading numeric prefix; garbage yields 0.
func parseAmount(raw string) int64 {
	raw = strings.TrimSpace(raw)
	end := 0
	for end < len(raw) {
		ch := raw[end]
		if (ch >= '0' && ch <= '9') || (end == 0 && (ch == '-' || ch == '+')) {
			end++
			continue
		}
		break
	}
	n, errParse := strconv.ParseInt(raw[:end], 10, 64)
	if errParse != nil {
		return 0
	}
	return n
}

func (c *Config) normalize() {
	c.PublicBaseURL = strings.TrimRight(strings.TrimSpace(c.PublicBaseURL), "/")
	c.DefaultStoreCode = strings.ToUpper(strings.TrimSpace(c.DefaultStoreCode))
	if c.DefaultStoreCode == "" {
		c.DefaultStoreCode = DefaultStoreCode
	}
	c.DefaultCurrency = strings.TrimSpace(c.DefaultCurrency)
	if c.DefaultCurrency == "" {
		c.DefaultCurrency = DefaultCurrency
	}
	if c.TerminalPad < 1 {
		c.TerminalPad = DefaultTerminalPad
	}
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.AdminSessionTTL <= 0 {
		c.AdminSessionTTL = DefaultAdminSessionTTL
	}
	if strings.TrimSpace(c.Log.Level) == "" {
		c.Log.Level = DefaultLogLevel
	}
}

// Validate fails fast on absent required settings.
func (c Config) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{EnvDatabaseURL, c.DatabaseURL},
		{EnvAPIKey, c.APIKey},
		{EnvAdminKey, c.AdminKey},
		{EnvPublicBaseURL, c.PublicBaseURL},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("config: %w: %s", ErrMissingRequired, r.name)
		}
	}
	return nil
}

// CheckoutURL returns the public checkout page for a terminal.
func (c Config) CheckoutURL(terminalID string) string {
	return c.PublicBaseURL + "/p/" + terminalID
}
