package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment overrides applied after the config file.
const (
	EnvAPIURL    = "VOICETASK_API_URL"
	EnvTestMode  = "VOICETASK_TEST_MODE"
	EnvTokenFile = "VOICETASK_TOKEN_FILE"
)

// loadDotEnv exports variables from a .env next to the config file. Variables
// already set in the process win.
func loadDotEnv(configPath string) (string, error) {
	path := filepath.Join(filepath.Dir(configPath), ".env")
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return "", fmt.Errorf("load %s: %w", path, err)
	}
	return path, nil
}

func applyEnvironment(cfg *Config, lookup func(string) (string, bool)) error {
	if value, ok := lookup(EnvAPIURL); ok && strings.TrimSpace(value) != "" {
		cfg.API.BaseURL = strings.TrimSpace(value)
	}
	if value, ok := lookup(EnvTestMode); ok && strings.TrimSpace(value) != "" {
		enabled, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("%s must be a boolean: %w", EnvTestMode, err)
		}
		cfg.API.TestMode = enabled
	}
	if value, ok := lookup(EnvTokenFile); ok && strings.TrimSpace(value) != "" {
		cfg.Auth.TokenFile = strings.TrimSpace(value)
	}
	return nil
}
