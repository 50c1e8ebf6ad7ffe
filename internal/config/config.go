// File: internal/config/config.go
package config

import (
	"fmt"
	"path/filepath"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Browser  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	Checkout CheckoutConfig `mapstructure:"checkout" yaml:"checkout"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`
	Debug    DebugConfig    `mapstructure:"debug" yaml:"debug"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig holds settings for the Chrome instances driven over CDP.
type BrowserConfig struct {
	Headless  bool     `mapstructure:"headless" yaml:"headless"`
	ExecPath  string   `mapstructure:"exec_path" yaml:"exec_path"`
	UserAgent string   `mapstructure:"user_agent" yaml:"user_agent"`
	Args      []string `mapstructure:"args" yaml:"args"`
}

// CheckoutConfig centralizes the retry and timeout policy consumed by every
// step handler. Keeping it in one place prevents the per-step drift the
// original automation suffered from.
type CheckoutConfig struct {
	// PhoneNumber, when set, is filled on the login page without asking the
	// caller for it. When empty it becomes part of the first input request.
	PhoneNumber string `mapstructure:"phone_number" yaml:"phone_number"`

	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	StepTimeout       time.Duration `mapstructure:"step_timeout" yaml:"step_timeout"`
	StepAttempts      int           `mapstructure:"step_attempts" yaml:"step_attempts"`

	// Page classification: each window is one bounded polling pass over the
	// detector table; ClassifyAttempts windows may elapse before the process
	// fails with a classification timeout.
	ClassifyWindow   time.Duration `mapstructure:"classify_window" yaml:"classify_window"`
	ClassifyInterval time.Duration `mapstructure:"classify_interval" yaml:"classify_interval"`
	ClassifyAttempts int           `mapstructure:"classify_attempts" yaml:"classify_attempts"`

	// Login OTP verification.
	OTPAttempts int           `mapstructure:"otp_attempts" yaml:"otp_attempts"`
	OTPWindow   time.Duration `mapstructure:"otp_window" yaml:"otp_window"`

	// The bank 3DS page can be very slow to render.
	BankOTPWait time.Duration `mapstructure:"bank_otp_wait" yaml:"bank_otp_wait"`

	// Retention is how long a terminal process stays queryable before the
	// reaper drops it from the registry.
	Retention time.Duration `mapstructure:"retention" yaml:"retention"`
}

// StoreConfig selects and configures the session store backend.
type StoreConfig struct {
	// Backend is "file" or "postgres".
	Backend     string `mapstructure:"backend" yaml:"backend"`
	DataDir     string `mapstructure:"data_dir" yaml:"data_dir"`
	PostgresURL string `mapstructure:"postgres_url" yaml:"-"`
}

// DebugConfig configures the screenshot sink.
type DebugConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Dir     string `mapstructure:"dir" yaml:"dir"`
}

// SessionsDir returns the directory the file session store writes to.
func (s StoreConfig) SessionsDir() string {
	return filepath.Join(s.DataDir, "sessions")
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	dataDir := ".checkout-cli"
	if home, err := homedir.Dir(); err == nil {
		dataDir = filepath.Join(home, ".checkout-cli")
	}

	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "checkout-cli")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	// Checkout flows trip bot detection less often with a visible window,
	// so headless is opt-in rather than the usual default.
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.user_agent", "")

	// -- Checkout policy --
	v.SetDefault("checkout.navigation_timeout", "45s")
	v.SetDefault("checkout.step_timeout", "30s")
	v.SetDefault("checkout.step_attempts", 2)
	v.SetDefault("checkout.classify_window", "15s")
	v.SetDefault("checkout.classify_interval", "1s")
	v.SetDefault("checkout.classify_attempts", 3)
	v.SetDefault("checkout.otp_attempts", 3)
	v.SetDefault("checkout.otp_window", "20s")
	v.SetDefault("checkout.bank_otp_wait", "45s")
	v.SetDefault("checkout.retention", "30m")

	// -- Store --
	v.SetDefault("store.backend", "file")
	v.SetDefault("store.data_dir", dataDir)

	// -- Debug sink --
	v.SetDefault("debug.enabled", true)
	v.SetDefault("debug.dir", filepath.Join(dataDir, "debug"))
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data.
	v.BindEnv("store.postgres_url", "CHECKOUT_STORE_POSTGRES_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "file":
		if c.Store.DataDir == "" {
			return fmt.Errorf("store.data_dir is required for the file backend")
		}
	case "postgres":
		if c.Store.PostgresURL == "" {
			return fmt.Errorf("store.postgres_url is required for the postgres backend (set CHECKOUT_STORE_POSTGRES_URL)")
		}
	default:
		return fmt.Errorf("store.backend must be %q or %q, got %q", "file", "postgres", c.Store.Backend)
	}

	if c.Checkout.StepAttempts <= 0 {
		return fmt.Errorf("checkout.step_attempts must be a positive integer")
	}
	if c.Checkout.OTPAttempts <= 0 {
		return fmt.Errorf("checkout.otp_attempts must be a positive integer")
	}
	if c.Checkout.ClassifyAttempts <= 0 {
		return fmt.Errorf("checkout.classify_attempts must be a positive integer")
	}
	if c.Checkout.ClassifyInterval <= 0 || c.Checkout.ClassifyWindow <= 0 {
		return fmt.Errorf("checkout.classify_interval and checkout.classify_window must be positive durations")
	}
	if c.Checkout.ClassifyInterval > c.Checkout.ClassifyWindow {
		return fmt.Errorf("checkout.classify_interval must not exceed checkout.classify_window")
	}
	if c.Checkout.StepTimeout <= 0 || c.Checkout.NavigationTimeout <= 0 {
		return fmt.Errorf("checkout timeouts must be positive durations")
	}
	return nil
}
