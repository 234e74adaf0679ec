package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// StoragePaths captures canonical locations under the persistent storage
// root that holds downloaded components and their side data.
type StoragePaths struct {
	Root             string
	ComponentsDir    string
	LogsDir          string
	CompilationCache string
	CacheConfigFile  string
	BuildDir         string
}

// Resolve determines the storage root from an explicit override, falling back
// to the per-user default location when the override is empty.
func Resolve(override string) (StoragePaths, error) {
	var (
		root string
		err  error
	)
	if override != "" {
		root, err = filepath.Abs(override)
		if err != nil {
			return StoragePaths{}, fmt.Errorf("resolve storage dir: %w", err)
		}
	} else {
		root, err = DefaultRoot()
		if err != nil {
			return StoragePaths{}, err
		}
	}
	return New(root), nil
}

// New derives the storage layout from root.
func New(root string) StoragePaths {
	return StoragePaths{
		Root:             root,
		ComponentsDir:    filepath.Join(root, "components"),
		LogsDir:          filepath.Join(root, "logs"),
		CompilationCache: filepath.Join(root, "compilation_cache"),
		CacheConfigFile:  filepath.Join(root, "cache.toml"),
		BuildDir:         filepath.Join(root, "build"),
	}
}

// DefaultRoot returns the per-user data directory for wrtools.
func DefaultRoot() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("detect user home: %w", err)
	}

	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Webrogue"), nil
	case "windows":
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			return filepath.Join(localAppData, "Webrogue"), nil
		}
		return filepath.Join(home, "AppData", "Local", "Webrogue"), nil
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, "webrogue"), nil
		}
		return filepath.Join(home, ".local", "share", "webrogue"), nil
	}
}

// EnsureRoot makes sure the storage root and components directory exist.
func (p StoragePaths) EnsureRoot() error {
	for _, dir := range []string{p.Root, p.ComponentsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// FileExists reports whether a path exists and is a regular file.
func FileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// DirExists reports whether a path exists and is a directory.
func DirExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}
