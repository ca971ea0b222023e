package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for DoseWise
type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Storage   StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Reminders RemindersConfig `mapstructure:"reminders" yaml:"reminders"`
	Scan      ScanConfig      `mapstructure:"scan" yaml:"scan"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Address      string `mapstructure:"address" yaml:"address"`
	Port         int    `mapstructure:"port" yaml:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout" yaml:"write_timeout"`
}

// StorageConfig holds database settings
type StorageConfig struct {
	DataDir    string `mapstructure:"data_dir" yaml:"data_dir"`
	BadgerPath string `mapstructure:"badger_path" yaml:"badger_path"`
	SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
}

// RemindersConfig holds reminder scheduling settings
type RemindersConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// SupplyCheckTime is the HH:MM time of day at which recurring refill
	// supply checks fire.
	SupplyCheckTime string `mapstructure:"supply_check_time" yaml:"supply_check_time"`
}

// ScanConfig holds AI image-recognition settings
type ScanConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	APIKey  string `mapstructure:"api_key" yaml:"api_key"`
	Timeout int    `mapstructure:"timeout" yaml:"timeout"`
	// RPM caps outbound recognition calls per minute.
	RPM int `mapstructure:"rpm" yaml:"rpm"`
}

// Load loads configuration from file, env, and defaults
func Load(configPath, dataDir string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if dataDir == "" {
		dataDir = getDefaultDataDir()
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	v.Set("storage.data_dir", dataDir)
	v.SetDefault("storage.badger_path", filepath.Join(dataDir, "badger"))
	v.SetDefault("storage.sqlite_path", filepath.Join(dataDir, "dosewise.db"))

	if configPath == "" {
		configPath = filepath.Join(dataDir, "dosewise.yaml")
	}

	firstRun := false
	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else {
		firstRun = true
	}

	// Environment variables (DOSEWISE_SERVER_PORT, DOSEWISE_SCAN_API_KEY, etc.)
	v.SetEnvPrefix("DOSEWISE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if firstRun {
		if err := cfg.WriteDefault(configPath); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

// Validate checks the loaded configuration for obvious mistakes.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Reminders.SupplyCheckTime != "" {
		var h, m int
		if _, err := fmt.Sscanf(c.Reminders.SupplyCheckTime, "%d:%d", &h, &m); err != nil {
			return fmt.Errorf("invalid supply_check_time %q", c.Reminders.SupplyCheckTime)
		}
		if h < 0 || h > 23 || m < 0 || m > 59 {
			return fmt.Errorf("invalid supply_check_time %q", c.Reminders.SupplyCheckTime)
		}
	}
	return nil
}

// WriteDefault writes the current configuration as YAML, used on first run.
func (c *Config) WriteDefault(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "127.0.0.1")
	v.SetDefault("server.port", 8190)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)

	v.SetDefault("reminders.enabled", true)
	v.SetDefault("reminders.supply_check_time", "09:00")

	v.SetDefault("scan.enabled", false)
	v.SetDefault("scan.base_url", "")
	v.SetDefault("scan.timeout", 30)
	v.SetDefault("scan.rpm", 10)
}

func getDefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".dosewise"
	}
	return filepath.Join(home, ".dosewise")
}
