package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultRegistryURL = "https://api.github.com"
	DefaultUserAgent   = "wrtools/1.0"
	DefaultCacheTTL    = 5 * time.Minute
	DefaultHTTPTimeout = 10 * time.Minute

	defaultSoftLimit       = "1Gi"
	defaultCleanupInterval = "30m"
)

// Config captures user settings for component management.
type Config struct {
	// StorageDir overrides the per-user data directory.
	StorageDir string `yaml:"storage_dir,omitempty"`
	// CLIPath points at a self-built CLI used instead of the managed one.
	CLIPath    string           `yaml:"cli_path,omitempty"`
	Registry   RegistryConfig   `yaml:"registry"`
	HTTP       HTTPConfig       `yaml:"http"`
	CMake      CMakeConfig      `yaml:"cmake"`
	BuildCache BuildCacheConfig `yaml:"build_cache"`
}

// RegistryConfig describes the release registry.
type RegistryConfig struct {
	APIURL   string        `yaml:"api_url"`
	Token    string        `yaml:"token,omitempty"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// HTTPConfig tunes archive downloads.
type HTTPConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
}

// CMakeConfig controls CMake Tools kit synchronization.
type CMakeConfig struct {
	KitsFile string `yaml:"kits_file,omitempty"`
	Disabled bool   `yaml:"disabled,omitempty"`
}

// BuildCacheConfig feeds the generated compilation cache config.
type BuildCacheConfig struct {
	SoftLimit       string `yaml:"soft_limit"`
	CleanupInterval string `yaml:"cleanup_interval"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Registry: RegistryConfig{
			APIURL:   DefaultRegistryURL,
			CacheTTL: DefaultCacheTTL,
		},
		HTTP: HTTPConfig{
			Timeout:   DefaultHTTPTimeout,
			UserAgent: DefaultUserAgent,
		},
		BuildCache: BuildCacheConfig{
			SoftLimit:       defaultSoftLimit,
			CleanupInterval: defaultCleanupInterval,
		},
	}
}

// DefaultPath returns the per-user config file location.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("detect config dir: %w", err)
	}
	return filepath.Join(dir, "wrtools", "config.yaml"), nil
}

// Load reads the YAML configuration from disk if it exists, otherwise returns
// the default configuration.
func Load(path string) (Config, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := Default()
			cfg.ApplyDefaults()
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyDefaults ensures nested fields fall back to sensible defaults when the
// YAML omits or blanks them.
func (c *Config) ApplyDefaults() {
	defaults := Default()

	if c.Registry.APIURL == "" {
		c.Registry.APIURL = defaults.Registry.APIURL
	}
	if c.HTTP.UserAgent == "" {
		c.HTTP.UserAgent = defaults.HTTP.UserAgent
	}
	if c.HTTP.Timeout == 0 {
		c.HTTP.Timeout = defaults.HTTP.Timeout
	}
	if c.BuildCache.SoftLimit == "" {
		c.BuildCache.SoftLimit = defaults.BuildCache.SoftLimit
	}
	if c.BuildCache.CleanupInterval == "" {
		c.BuildCache.CleanupInterval = defaults.BuildCache.CleanupInterval
	}
}

// Marshal returns the YAML encoding of the configuration.
func (c Config) Marshal() ([]byte, error) {
	buf, err := yaml.Marshal(&c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return buf, nil
}

// Save writes the configuration to path, creating parent directories.
func (c Config) Save(path string) error {
	buf, err := c.Marshal()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
