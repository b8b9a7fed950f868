package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

const defaultEnvironmentName = "local"

// ResolvedEnvironment represents a fully-resolved environment with a
// concrete connection string.
type ResolvedEnvironment struct {
	Name        string
	DatabaseURL string
	FromConfig  bool
	FromDotenv  bool
}

// ResolveEnvironment resolves a named environment into a concrete connection
// string. Resolution order: initplane.toml [environments.<name>], then a
// .env.<name> dotenv file next to the config (or in the working directory),
// then the DATABASE_URL environment variable.
func ResolveEnvironment(config *Config, name string) (*ResolvedEnvironment, error) {
	envName := strings.TrimSpace(name)
	if envName == "" {
		if config != nil && config.DefaultEnvironment != "" {
			envName = config.DefaultEnvironment
		} else {
			envName = defaultEnvironmentName
		}
	}

	resolved := &ResolvedEnvironment{Name: envName}

	if config != nil && config.Environments != nil {
		if envConfig, ok := config.Environments[envName]; ok {
			resolved.DatabaseURL = envConfig.DatabaseURL
			resolved.FromConfig = resolved.DatabaseURL != ""
		}
	}

	if resolved.DatabaseURL == "" {
		dotenvPath := findDotenv(config, envName)
		if dotenvPath != "" {
			values, err := godotenv.Read(dotenvPath)
			if err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", dotenvPath, err)
			}
			if url, ok := values["DATABASE_URL"]; ok && url != "" {
				resolved.DatabaseURL = url
				resolved.FromDotenv = true
			}
		}
	}

	if resolved.DatabaseURL == "" {
		if url := os.Getenv("DATABASE_URL"); url != "" {
			resolved.DatabaseURL = url
		}
	}

	return resolved, nil
}

// findDotenv locates .env.<name> next to the config file first, then in the
// working directory.
func findDotenv(config *Config, envName string) string {
	fileName := ".env." + envName

	if config != nil && config.ConfigFilePath != "" {
		candidate := filepath.Join(filepath.Dir(config.ConfigFilePath), fileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	if _, err := os.Stat(fileName); err == nil {
		return fileName
	}

	return ""
}
