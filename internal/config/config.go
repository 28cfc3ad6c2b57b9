// Package config handles environment variable parsing and validation.
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

// AuthMode represents the SSH authentication mode.
type AuthMode string

const (
	AuthModeAllowlist AuthMode = "allowlist"
	AuthModePublic    AuthMode = "public"
)

// Config holds all application configuration.
type Config struct {
	// SSH server settings
	SSHAddr        string   `yaml:"ssh_addr"`
	SSHHostKeyPath string   `yaml:"ssh_hostkey_path"`
	SSHAuthMode    AuthMode `yaml:"ssh_auth_mode"`
	AllowlistPath  string   `yaml:"ssh_allowlist_path"`

	// Storefront settings
	ShopBaseURL      string            `yaml:"shop_base_url"`
	CartTimeout      time.Duration     `yaml:"cart_timeout"`
	CurrencyFallback string            `yaml:"currency_fallback"`
	Collection       string            `yaml:"collection"`
	UpsellLimit      int               `yaml:"upsell_limit"`
	NoteDebounce     time.Duration     `yaml:"note_debounce"`
	MoneyTemplates   map[string]string `yaml:"money_templates"`

	// Cache settings
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	LogFile   string `yaml:"log_file"`

	// Mock platform
	MockAddr    string        `yaml:"mockshop_addr"`
	MockLatency time.Duration `yaml:"mockshop_latency"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		SSHAddr:          ":23234",
		SSHHostKeyPath:   "./.ssh_host_ed25519_key",
		SSHAuthMode:      AuthModeAllowlist,
		AllowlistPath:    "./allowlist_authorized_keys",
		ShopBaseURL:      "http://127.0.0.1:18080",
		CartTimeout:      10 * time.Second,
		CurrencyFallback: "USD",
		Collection:       "all",
		UpsellLimit:      3,
		NoteDebounce:     350 * time.Millisecond,
		CacheTTL:         60 * time.Second,
		LogLevel:         "info",
		LogFormat:        "text",
		MockAddr:         ":18080",
	}
}

// Load reads configuration from the optional CONFIG_PATH file and then from
// environment variables. Environment values win over the file.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() error {
	c.SSHAddr = getEnv("SSH_ADDR", c.SSHAddr)
	c.SSHHostKeyPath = getEnv("SSH_HOSTKEY_PATH", c.SSHHostKeyPath)
	c.SSHAuthMode = AuthMode(getEnv("SSH_AUTH_MODE", string(c.SSHAuthMode)))
	c.AllowlistPath = getEnv("SSH_ALLOWLIST_PATH", c.AllowlistPath)
	c.ShopBaseURL = getEnv("SHOP_BASE_URL", c.ShopBaseURL)
	c.CurrencyFallback = strings.ToUpper(getEnv("SHOP_CURRENCY_FALLBACK", c.CurrencyFallback))
	c.Collection = getEnv("SHOP_COLLECTION", c.Collection)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
	c.LogFile = getEnv("LOG_FILE", c.LogFile)
	c.MockAddr = getEnv("MOCKSHOP_ADDR", c.MockAddr)

	var err error
	if c.CartTimeout, err = getDuration("CART_TIMEOUT_SECONDS", time.Second, c.CartTimeout); err != nil {
		return err
	}
	if c.CacheTTL, err = getDuration("CACHE_TTL_SECONDS", time.Second, c.CacheTTL); err != nil {
		return err
	}
	if c.NoteDebounce, err = getDuration("NOTE_DEBOUNCE_MS", time.Millisecond, c.NoteDebounce); err != nil {
		return err
	}
	if c.MockLatency, err = getDuration("MOCKSHOP_LATENCY_MS", time.Millisecond, c.MockLatency); err != nil {
		return err
	}
	if c.UpsellLimit, err = getInt("UPSELL_LIMIT", c.UpsellLimit); err != nil {
		return err
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.SSHAuthMode != AuthModeAllowlist && c.SSHAuthMode != AuthModePublic {
		return errors.New("SSH_AUTH_MODE must be 'allowlist' or 'public'")
	}
	if c.ShopBaseURL == "" {
		return errors.New("SHOP_BASE_URL must not be empty")
	}
	if c.CartTimeout <= 0 {
		return errors.New("CART_TIMEOUT_SECONDS must be positive")
	}
	if c.CacheTTL < 0 {
		return errors.New("CACHE_TTL_SECONDS must not be negative")
	}
	if c.NoteDebounce < 0 {
		return errors.New("NOTE_DEBOUNCE_MS must not be negative")
	}
	if c.MockLatency < 0 {
		return errors.New("MOCKSHOP_LATENCY_MS must not be negative")
	}
	if c.UpsellLimit < 0 {
		return errors.New("UPSELL_LIMIT must not be negative")
	}
	if len(c.CurrencyFallback) != 3 {
		return fmt.Errorf("SHOP_CURRENCY_FALLBACK must be a 3-letter currency code, got %q", c.CurrencyFallback)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return errors.New("LOG_FORMAT must be 'text' or 'json'")
	}
	return nil
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer", key)
	}
	return n, nil
}

func getDuration(key string, unit, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer", key)
	}
	return time.Duration(n) * unit, nil
}
