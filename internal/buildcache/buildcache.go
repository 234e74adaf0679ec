// Package buildcache manages the compilation cache shared by Webrogue builds:
// the cache directory, the cache configuration file handed to the runtime,
// and per-domain build directories.
package buildcache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"wrtools/internal/components"
	"wrtools/internal/paths"
)

const (
	DefaultSoftLimit       = "1Gi"
	DefaultCleanupInterval = "30m"
)

// Settings tunes the generated cache configuration.
type Settings struct {
	SoftLimit       string
	CleanupInterval string
}

// Logger is the minimal logging surface used by the cache.
type Logger interface {
	Printf(format string, v ...any)
}

type noopLogger struct{}

func (noopLogger) Printf(string, ...any) {}

// Cache owns the compilation cache under a storage root.
type Cache struct {
	paths    paths.StoragePaths
	settings Settings
	logger   Logger
}

// New returns a Cache rooted at p. Empty settings fall back to defaults.
func New(p paths.StoragePaths, settings Settings, logger Logger) *Cache {
	if strings.TrimSpace(settings.SoftLimit) == "" {
		settings.SoftLimit = DefaultSoftLimit
	}
	if strings.TrimSpace(settings.CleanupInterval) == "" {
		settings.CleanupInterval = DefaultCleanupInterval
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Cache{paths: p, settings: settings, logger: logger}
}

// Dir returns the compilation cache directory.
func (c *Cache) Dir() string {
	return c.paths.CompilationCache
}

// Clean empties the compilation cache, leaving an empty directory behind.
func (c *Cache) Clean() error {
	if err := os.RemoveAll(c.paths.CompilationCache); err != nil {
		return fmt.Errorf("clean compilation cache: %w", err)
	}
	if err := os.MkdirAll(c.paths.CompilationCache, 0o755); err != nil {
		return fmt.Errorf("create compilation cache: %w", err)
	}
	c.logger.Printf("cleaned compilation cache %s", c.paths.CompilationCache)
	return nil
}

// ComponentChanged drops cached artifacts built by a previous toolchain.
func (c *Cache) ComponentChanged(_ context.Context, id components.ID) error {
	c.logger.Printf("component %s changed, invalidating build cache", id)
	return c.Clean()
}

type cacheFile struct {
	Cache cacheSection `toml:"cache"`
}

type cacheSection struct {
	Enabled         bool   `toml:"enabled"`
	Directory       string `toml:"directory"`
	CleanupInterval string `toml:"cleanup-interval"`
	SoftLimit       string `toml:"files-total-size-soft-limit"`
}

// Config writes the cache configuration file if its content changed and
// returns its path.
func (c *Cache) Config() (string, error) {
	if err := os.MkdirAll(c.paths.CompilationCache, 0o755); err != nil {
		return "", fmt.Errorf("create compilation cache: %w", err)
	}

	data, err := toml.Marshal(cacheFile{Cache: cacheSection{
		Enabled:         true,
		Directory:       c.paths.CompilationCache,
		CleanupInterval: c.settings.CleanupInterval,
		SoftLimit:       c.settings.SoftLimit,
	}})
	if err != nil {
		return "", fmt.Errorf("encode cache config: %w", err)
	}

	path := c.paths.CacheConfigFile
	existing, err := os.ReadFile(path)
	if err == nil && bytes.Equal(existing, data) {
		return path, nil
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		c.logger.Printf("read cache config %s: %v", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create cache config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write cache config: %w", err)
	}
	return path, nil
}

// BuildDir creates and returns the build directory for domain.
func (c *Cache) BuildDir(domain string) (string, error) {
	domain = strings.TrimSpace(domain)
	if domain == "" || domain == "." || domain == ".." || strings.ContainsAny(domain, `/\`) {
		return "", fmt.Errorf("invalid build domain %q", domain)
	}
	dir := filepath.Join(c.paths.BuildDir, domain)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create build dir: %w", err)
	}
	return dir, nil
}
