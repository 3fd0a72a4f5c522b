// Package config loads the hub's TOML configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/AstroAir/mcp-hub-next/internal/lifecycle"
	"github.com/AstroAir/mcp-hub-next/internal/logger"
)

// FileConfig represents the top-level TOML structure.
type FileConfig struct {
	DataDir    string          `toml:"data_dir" mapstructure:"data_dir"`
	Listen     string          `toml:"listen" mapstructure:"listen"`
	HistoryDSN string          `toml:"history_dsn" mapstructure:"history_dsn"`
	Log        *LogConfig      `toml:"log" mapstructure:"log"`
	Registry   *RegistryConfig `toml:"registry" mapstructure:"registry"`
	Install    *InstallConfig  `toml:"install" mapstructure:"install"`
	Servers    []ServerConfig  `toml:"servers" mapstructure:"servers"`
}

type LogConfig struct {
	Level      string `toml:"level" mapstructure:"level"`
	Color      bool   `toml:"color" mapstructure:"color"`
	Dir        string `toml:"dir" mapstructure:"dir"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

type RegistryConfig struct {
	NpmBin      string        `toml:"npm_bin" mapstructure:"npm_bin"`
	GhBin       string        `toml:"gh_bin" mapstructure:"gh_bin"`
	ToolTimeout time.Duration `toml:"tool_timeout" mapstructure:"tool_timeout"`
}

type InstallConfig struct {
	NpmBin string `toml:"npm_bin" mapstructure:"npm_bin"`
	GitBin string `toml:"git_bin" mapstructure:"git_bin"`
}

// ServerConfig declares a server the hub knows at startup. Autostart
// servers are spawned when the daemon comes up.
type ServerConfig struct {
	ID        string            `toml:"id" mapstructure:"id"`
	Command   string            `toml:"command" mapstructure:"command"`
	Args      []string          `toml:"args" mapstructure:"args"`
	Env       map[string]string `toml:"env" mapstructure:"env"`
	Cwd       string            `toml:"cwd" mapstructure:"cwd"`
	Autostart bool              `toml:"autostart" mapstructure:"autostart"`
}

// Load parses the TOML file at path and applies defaults.
func Load(path string) (*FileConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, err
	}
	if err := fc.applyDefaults(); err != nil {
		return nil, err
	}
	for i, s := range fc.Servers {
		if s.ID == "" {
			return nil, fmt.Errorf("servers[%d]: missing id", i)
		}
		if s.Command == "" {
			return nil, fmt.Errorf("server %q: missing command", s.ID)
		}
	}
	return &fc, nil
}

// Default returns a configuration with defaults only, used when no file is
// given.
func Default() (*FileConfig, error) {
	fc := &FileConfig{}
	if err := fc.applyDefaults(); err != nil {
		return nil, err
	}
	return fc, nil
}

func (fc *FileConfig) applyDefaults() error {
	if fc.DataDir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return fmt.Errorf("resolve data dir: %w", err)
		}
		fc.DataDir = filepath.Join(base, "mcp-hub")
	}
	if fc.Listen == "" {
		fc.Listen = "127.0.0.1:8390"
	}
	if fc.Log == nil {
		fc.Log = &LogConfig{}
	}
	if fc.Log.Level == "" {
		fc.Log.Level = "info"
	}
	if fc.Log.Dir == "" {
		fc.Log.Dir = filepath.Join(fc.DataDir, "logs")
	}
	if fc.Registry == nil {
		fc.Registry = &RegistryConfig{}
	}
	if fc.Install == nil {
		fc.Install = &InstallConfig{}
	}
	return nil
}

// Capture converts the log section into the per-server capture settings.
func (fc *FileConfig) Capture() logger.CaptureConfig {
	return logger.CaptureConfig{
		Dir:        fc.Log.Dir,
		MaxSizeMB:  fc.Log.MaxSizeMB,
		MaxBackups: fc.Log.MaxBackups,
		MaxAgeDays: fc.Log.MaxAgeDays,
		Compress:   fc.Log.Compress,
	}
}

// Lifecycle converts a declared server into a supervisor config.
func (sc ServerConfig) Lifecycle() lifecycle.Config {
	return lifecycle.Config{
		Command: sc.Command,
		Args:    sc.Args,
		Env:     sc.Env,
		Cwd:     sc.Cwd,
	}
}
