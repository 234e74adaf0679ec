package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
)

// ValidationResult captures a single validation finding.
type ValidationResult struct {
	Level   string `json:"level"` // "error" or "warning"
	Message string `json:"message"`
}

// Findings runs every validation and returns structured results.
func (c Config) Findings() []ValidationResult {
	var results []ValidationResult
	results = append(results, c.validateRegistry()...)
	results = append(results, c.validateDurations()...)
	results = append(results, c.validateCLIPath()...)
	return results
}

// Validate returns an error joining every error-level finding.
func (c Config) Validate() error {
	var errs []error
	for _, r := range c.Findings() {
		if r.Level == "error" {
			errs = append(errs, errors.New(r.Message))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("invalid config: %w", errors.Join(errs...))
}

func (c Config) validateRegistry() []ValidationResult {
	raw := strings.TrimSpace(c.Registry.APIURL)
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return []ValidationResult{{
			Level:   "error",
			Message: fmt.Sprintf("registry.api_url %q must be an http(s) URL", raw),
		}}
	}
	return nil
}

func (c Config) validateDurations() []ValidationResult {
	var results []ValidationResult
	if c.Registry.CacheTTL < 0 {
		results = append(results, ValidationResult{
			Level:   "error",
			Message: fmt.Sprintf("registry.cache_ttl must not be negative (got %s)", c.Registry.CacheTTL),
		})
	}
	if c.HTTP.Timeout < 0 {
		results = append(results, ValidationResult{
			Level:   "error",
			Message: fmt.Sprintf("http.timeout must not be negative (got %s)", c.HTTP.Timeout),
		})
	}
	return results
}

func (c Config) validateCLIPath() []ValidationResult {
	path := strings.TrimSpace(c.CLIPath)
	if path == "" {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return []ValidationResult{{
			Level:   "warning",
			Message: fmt.Sprintf("cli_path %q not found", path),
		}}
	}
	if info.IsDir() {
		return []ValidationResult{{
			Level:   "error",
			Message: fmt.Sprintf("cli_path %q is a directory", path),
		}}
	}
	return nil
}
