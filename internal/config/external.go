package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables that override file settings.
const (
	EnvStorageDir  = "WRTOOLS_STORAGE_DIR"
	EnvRegistryURL = "WRTOOLS_REGISTRY_URL"
	EnvCLIPath     = "WRTOOLS_CLI_PATH"
	EnvGitHubToken = "GITHUB_TOKEN"
)

var lookupEnv = os.LookupEnv

// LoadDotEnv loads variables from the given .env files into the process
// environment without overriding variables that are already set. Missing
// files are skipped. With no arguments ".env" in the working directory is
// tried.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var present []string
	for _, f := range files {
		if info, err := os.Stat(f); err == nil && !info.IsDir() {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil
	}
	if err := godotenv.Load(present...); err != nil {
		return fmt.Errorf("load env files: %w", err)
	}
	return nil
}

// ApplyEnv overlays environment overrides onto c. Blank values are ignored.
func (c *Config) ApplyEnv() {
	if v, ok := envValue(EnvStorageDir); ok {
		c.StorageDir = v
	}
	if v, ok := envValue(EnvRegistryURL); ok {
		c.Registry.APIURL = v
	}
	if v, ok := envValue(EnvCLIPath); ok {
		c.CLIPath = v
	}
	if v, ok := envValue(EnvGitHubToken); ok {
		c.Registry.Token = v
	}
}

func envValue(key string) (string, bool) {
	v, ok := lookupEnv(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// Resolve loads path, then any .env file, then environment overrides, and
// validates the result.
func Resolve(path string, envFiles ...string) (Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return Config{}, err
	}
	if err := LoadDotEnv(envFiles...); err != nil {
		return Config{}, err
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
