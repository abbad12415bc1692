// ABOUTME: XDG-based data and config directory resolution for the watchtower CLI.
// ABOUTME: Checks XDG_DATA_HOME / XDG_CONFIG_HOME, falls back to ~/.local/share/watchtower and ~/.config/watchtower.
package main

import (
	"fmt"
	"os"
	"path/filepath"
)

// defaultDataDir returns the default data directory for watchtower state,
// such as the recordings catalog. It checks XDG_DATA_HOME first, then falls
// back to ~/.local/share/watchtower.
func defaultDataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "watchtower"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}

	return filepath.Join(home, ".local", "share", "watchtower"), nil
}

// defaultConfigDir returns the default config directory for watchtower
// configuration. It checks XDG_CONFIG_HOME first, then falls back to
// ~/.config/watchtower.
func defaultConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "watchtower"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}

	return filepath.Join(home, ".config", "watchtower"), nil
}
