package util

import (
	"os"
	"path/filepath"
)

// GetDataDir returns the data directory path
func GetDataDir() string {
	if envDir := os.Getenv("GATTLINK_DIR"); envDir != "" {
		return envDir
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "gattlink")
	}
	return filepath.Join(home, ".gattlink")
}

// GetConfigPath returns the default config file location
func GetConfigPath() string {
	return filepath.Join(GetDataDir(), "config.yaml")
}

// GetTraceDir returns the directory trace dumps are written to, creating it
// if needed
func GetTraceDir() (string, error) {
	dir := filepath.Join(GetDataDir(), "traces")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}
