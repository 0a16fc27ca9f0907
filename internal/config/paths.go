package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// ConfigDirectory returns the directory holding sfs configuration and logs.
//
// Location: ~/.sfs on every platform. SFS_HOME overrides it.
func ConfigDirectory() (string, error) {
	if dir := os.Getenv("SFS_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".sfs"), nil
}

// DefaultConfigPath returns the default path for the config file.
func DefaultConfigPath() (string, error) {
	dir, err := ConfigDirectory()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// EnsureConfigDirectory creates the config directory if it doesn't exist.
// Uses 0700 permissions since the config may hold tokens.
func EnsureConfigDirectory() (string, error) {
	dir, err := ConfigDirectory()
	if err != nil {
		return "", err
	}
	return dir, os.MkdirAll(dir, 0700)
}

// WriteFile writes values (dotted keys, e.g. "proxy.mode") to a TOML file
// at path with 0600 permissions, replacing any existing file.
func WriteFile(path string, values map[string]any) error {
	v := viper.New()
	v.SetConfigType("toml")
	for k, val := range values {
		v.Set(k, val)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return os.Chmod(path, 0600)
}
