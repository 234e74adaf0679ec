package installer

import (
	"fmt"
	"os"
	"path/filepath"
)

// VersionStore persists the version token of the installed build of each
// component as a plain-text marker file.
type VersionStore struct{}

// Read returns the stored token. Any read failure, including a missing file,
// reports no token.
func (VersionStore) Read(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	return string(data), true
}

// Write replaces the marker atomically so readers never see a partial token.
func (VersionStore) Write(path, token string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("prepare marker directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp marker: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.WriteString(token); err != nil {
		tmp.Close()
		return fmt.Errorf("write marker temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close marker temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace marker: %w", err)
	}
	return nil
}

// Remove deletes the marker. A missing marker is not an error.
func (VersionStore) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
