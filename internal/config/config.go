// internal/config/config.go
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// LoggerConfig controls the zap logger and its file sink.
type LoggerConfig struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"`
	ServiceName string `mapstructure:"service_name"`
	AddSource   bool   `mapstructure:"add_source"`

	// File sink, rotated by lumberjack. Empty disables it.
	LogFile    string `mapstructure:"log_file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// ServerConfig points at the code-delivery / credential-store server.
type ServerConfig struct {
	// BaseURL includes any path prefix the deployment mounts the API under.
	BaseURL string `mapstructure:"base_url" validate:"required,url"`
	APIKey  string `mapstructure:"api_key"`
}

// ControlConfig configures the inbound operator surface.
type ControlConfig struct {
	Addr   string `mapstructure:"addr" validate:"required"`
	APIKey string `mapstructure:"api_key"`
}

// BrowserConfig configures the driven browser.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless"`
	UserDataDir       string        `mapstructure:"user_data_dir"`
	ExecPath          string        `mapstructure:"exec_path"`
	IgnoreTLSErrors   bool          `mapstructure:"ignore_tls_errors"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" validate:"gt=0"`
}

// AutomationConfig tunes the flow's timing. Zero values fall back to the
// per-component defaults.
type AutomationConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	SettleDelay  time.Duration `mapstructure:"settle_delay"`
	RecheckDelay time.Duration `mapstructure:"recheck_delay"`
	LocateWait   time.Duration `mapstructure:"locate_wait"`
	LocateStep   time.Duration `mapstructure:"locate_step"`
}

// Config is the whole application configuration.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger"`
	Server     ServerConfig     `mapstructure:"server"`
	Control    ControlConfig    `mapstructure:"control"`
	Browser    BrowserConfig    `mapstructure:"browser"`
	Automation AutomationConfig `mapstructure:"automation"`

	// DataDir holds the session store. Defaults under the home directory.
	DataDir string `mapstructure:"data_dir" validate:"required"`
}

// SessionDir is where the session store lives.
func (c *Config) SessionDir() string {
	return filepath.Join(c.DataDir, "session")
}

// SetDefaults registers every default with viper. Call before ReadInConfig
// so a partial config file inherits the rest.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "sellerflow")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)

	v.SetDefault("server.base_url", "http://127.0.0.1:8080/api")

	v.SetDefault("control.addr", "127.0.0.1:8090")

	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.navigation_timeout", 90*time.Second)

	v.SetDefault("data_dir", defaultDataDir())
}

// Load unmarshals and validates the configuration out of viper, resolving
// any ~ in path settings.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	dir, err := homedir.Expand(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("expanding data_dir: %w", err)
	}
	cfg.DataDir = dir

	if cfg.Control.APIKey == "" {
		cfg.Control.APIKey = cfg.Server.APIKey
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the structural constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func defaultDataDir() string {
	dir, err := homedir.Expand("~/.sellerflow")
	if err != nil {
		return ".sellerflow"
	}
	return dir
}
