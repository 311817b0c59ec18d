package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Platform identifiers.
const (
	platformLinux  = "linux"
	platformDarwin = "darwin"
)

// Application directory name used across all platforms.
const appName = "anycloud"

// Config file name.
const configFileName = "config.toml"

// Environment variable names for overrides.
const (
	EnvConfig  = "ANYCLOUD_CONFIG"
	EnvDataDir = "ANYCLOUD_DATA_DIR"
)

// DefaultConfigDir returns the platform-specific directory for config files.
// On Linux, respects XDG_CONFIG_HOME (defaults to ~/.config/anycloud).
// On macOS, uses ~/Library/Application Support/anycloud per Apple guidelines.
// Other platforms fall back to ~/.config/anycloud.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, appName)
		}

		return filepath.Join(home, ".config", appName)
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".config", appName)
	}
}

// DefaultConfigPath returns the config file path, honoring ANYCLOUD_CONFIG.
func DefaultConfigPath() string {
	if override := os.Getenv(EnvConfig); override != "" {
		return override
	}

	return filepath.Join(DefaultConfigDir(), configFileName)
}

// DefaultDataDir returns the platform-specific directory for application
// data (the account database), honoring ANYCLOUD_DATA_DIR.
// On Linux, respects XDG_DATA_HOME (defaults to ~/.local/share/anycloud).
// On macOS, config and data share one directory per platform convention.
func DefaultDataDir() string {
	if override := os.Getenv(EnvDataDir); override != "" {
		return override
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, appName)
		}

		return filepath.Join(home, ".local", "share", appName)
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".local", "share", appName)
	}
}

// ResolveDataDir resolves the effective data directory: config file value first,
// then environment, then the platform default.
func (c *Config) ResolveDataDir() string {
	if c.DataDir != "" {
		return c.DataDir
	}

	return DefaultDataDir()
}
