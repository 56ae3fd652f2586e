// Package paths resolves the on-disk locations used by the stract CLI.
package paths

import (
	"os"
	"path/filepath"
)

const (
	// HomeEnvVar overrides the stract home directory.
	HomeEnvVar = "STRACT_HOME"
	// DefaultHome is the directory name under the user's home directory.
	DefaultHome = ".stract"

	configFileName = "config.toml"
	cacheFileName  = "cache.db"
)

// GetStractHome returns the stract home directory.
// STRACT_HOME wins; otherwise ~/.stract.
func GetStractHome() (string, error) {
	if home := os.Getenv(HomeEnvVar); home != "" {
		return home, nil
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(userHome, DefaultHome), nil
}

// EnsureStractHome creates the home directory if needed and returns it.
func EnsureStractHome() (string, error) {
	home, err := GetStractHome()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(home, 0o755); err != nil {
		return "", err
	}
	return home, nil
}

// GetConfigPath returns the default config file path.
func GetConfigPath() (string, error) {
	home, err := GetStractHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configFileName), nil
}

// GetCachePath returns the default response cache database path.
func GetCachePath() (string, error) {
	home, err := GetStractHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, cacheFileName), nil
}
