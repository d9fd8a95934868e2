package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Model ModelConfig `mapstructure:"model" yaml:"model"`
	Log   LogConfig   `mapstructure:"log" yaml:"log"`
	Store StoreConfig `mapstructure:"store" yaml:"store"`
	Net   NetConfig   `mapstructure:"net" yaml:"net"`

	Port string `mapstructure:"port" yaml:"port"`
}

type ModelConfig struct {
	// URL is the remote location of the model artifact.
	URL string `mapstructure:"url" yaml:"url"`

	// Path is the final artifact location. Its existence is the source of
	// truth for readiness.
	Path string `mapstructure:"path" yaml:"path"`

	// TempDir holds the in-progress .part file. Must be on the same mount as
	// Path for the finalize rename to stay atomic; a copy fallback covers
	// cross-device setups.
	TempDir string `mapstructure:"temp_dir" yaml:"temp_dir"`

	// ProgressInterval is the minimum time between state publications.
	ProgressInterval time.Duration `mapstructure:"progress_interval" yaml:"progress_interval"`
}

type NetConfig struct {
	// ProbeAddr is dialed to decide reachability, host:port.
	ProbeAddr     string        `mapstructure:"probe_addr" yaml:"probe_addr"`
	ProbeInterval time.Duration `mapstructure:"probe_interval" yaml:"probe_interval"`
	ProbeTimeout  time.Duration `mapstructure:"probe_timeout" yaml:"probe_timeout"`
}

type LogConfig struct {
	Path          string `mapstructure:"path" yaml:"path"`
	Level         string `mapstructure:"level" yaml:"level"`
	IncludeStdout bool   `mapstructure:"include_stdout" yaml:"include_stdout"`
}

type StoreConfig struct {
	SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
}

func Load(path string) (*Config, error) {

	if path == "" {
		path = "config.yaml"
	}

	// Fall back to the container mount point when the default name is missing
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if path == "config.yaml" {
			if _, errEx := os.Stat("/config/config.yaml"); errEx == nil {
				path = "/config/config.yaml"
			}
		} else {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
	}

	v := viper.New()

	// Set Defaults
	v.SetDefault("port", "8090")
	v.SetDefault("model.url", "https://huggingface.co/allenai/OLMoE-1B-7B-0924-Instruct-GGUF/resolve/main/olmoe-1b-7b-0924-instruct-q4_k_m.gguf")
	v.SetDefault("model.path", defaultModelPath())
	// temp_dir is derived from model.path in validate() unless set explicitly
	v.SetDefault("model.progress_interval", 500*time.Millisecond)
	v.SetDefault("net.probe_addr", "huggingface.co:443")
	v.SetDefault("net.probe_interval", 3*time.Second)
	v.SetDefault("net.probe_timeout", 2*time.Second)
	v.SetDefault("log.path", "modeld.log")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.include_stdout", true)
	v.SetDefault("store.sqlite_path", filepath.Join(filepath.Dir(defaultModelPath()), "modeld.db"))

	// A missing config file is fine: everything has a default
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	// Support Environment Variables
	v.SetEnvPrefix("MODELD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaultModelPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".olmoe", "models", "olmoe-1b-7b-0924-instruct-q4_k_m.gguf")
}

func (c *Config) validate() error {
	if c.Model.URL == "" {
		return fmt.Errorf("model.url is required")
	}

	if c.Model.Path == "" {
		return fmt.Errorf("model.path is required")
	}

	if c.Model.TempDir == "" {
		c.Model.TempDir = filepath.Dir(c.Model.Path)
	}

	if c.Model.ProgressInterval <= 0 {
		c.Model.ProgressInterval = 500 * time.Millisecond
	}

	if c.Net.ProbeInterval <= 0 {
		c.Net.ProbeInterval = 3 * time.Second
	}

	if c.Net.ProbeTimeout <= 0 {
		c.Net.ProbeTimeout = 2 * time.Second
	}

	return nil
}
