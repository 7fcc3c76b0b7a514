// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Phobos Auth Contributors

// Package xdg provides XDG Base Directory paths for authd.
package xdg

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const appName = "authd"

// ConfigFileName is the default configuration file inside ConfigDir.
const ConfigFileName = "config.yaml"

// SeedFileName is the default seed file inside DataDir.
const SeedFileName = "accounts.yaml"

// baseDir returns $env, or $HOME joined with fallback.
func baseDir(env string, fallback ...string) (string, error) {
	if base := os.Getenv(env); base != "" {
		return filepath.Join(base, appName), nil
	}
	home := os.Getenv("HOME")
	if home == "" {
		return "", oops.Code("XDG_NO_HOME").With("env", env).Errorf("neither %s nor HOME is set", env)
	}
	return filepath.Join(append(append([]string{home}, fallback...), appName)...), nil
}

// ConfigDir returns the XDG config directory for authd.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() (string, error) {
	return baseDir("XDG_CONFIG_HOME", ".config")
}

// DataDir returns the XDG data directory for authd.
// Checks XDG_DATA_HOME first, falls back to ~/.local/share.
func DataDir() (string, error) {
	return baseDir("XDG_DATA_HOME", ".local", "share")
}

// ConfigFile returns the default config file path.
func ConfigFile() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFileName), nil
}

// SeedFile returns the default seed file path.
func SeedFile() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, SeedFileName), nil
}

// EnsureDir creates a directory and all parent directories if they don't exist.
// Directories are created with 0700 permissions.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return oops.Code("XDG_MKDIR_FAILED").With("path", path).Wrap(err)
	}
	return nil
}
