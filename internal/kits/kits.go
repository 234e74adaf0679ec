// Package kits keeps the CMake Tools kits file in step with the installed
// Webrogue SDK.
package kits

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"wrtools/internal/components"
	"wrtools/internal/paths"
)

const (
	// KitName is the kit entry owned by wrtools.
	KitName       = "Webrogue WASIp1-threads"
	kitsFileName  = "cmake-tools-kits.json"
	cmakeToolsDir = "CMakeTools"
)

// Kit is the subset of a CMake Tools kit entry wrtools cares about.
type Kit struct {
	Name          string `json:"name"`
	ToolchainFile string `json:"toolchainFile,omitempty"`
}

// Detector reports installed components.
type Detector interface {
	Detect(id components.ID) (components.Handle, error)
}

// Logger is the minimal logging surface used by the syncer.
type Logger interface {
	Printf(format string, v ...any)
}

type noopLogger struct{}

func (noopLogger) Printf(string, ...any) {}

var (
	userHomeDir = os.UserHomeDir
	getenv      = os.Getenv
	hostOS      = runtime.GOOS
)

// PathCache memoizes the discovered kits file location. The cached value is
// dropped once its directory no longer exists.
type PathCache struct {
	mu   sync.Mutex
	path string
}

// Get returns the cached path, calling discover when nothing valid is cached.
func (c *PathCache) Get(discover func() (string, bool)) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.path != "" {
		if dirExists(filepath.Dir(c.path)) {
			return c.path, true
		}
		c.path = ""
	}
	path, ok := discover()
	if ok {
		c.path = path
	}
	return path, ok
}

// Reset forgets the cached path.
func (c *PathCache) Reset() {
	c.mu.Lock()
	c.path = ""
	c.mu.Unlock()
}

// Result describes one sync.
type Result struct {
	Path    string `json:"path,omitempty"`
	Changed bool   `json:"changed"`
	Skipped string `json:"skipped,omitempty"`
}

// Syncer writes the Webrogue kit into the CMake Tools kits file.
type Syncer struct {
	detector Detector
	override string
	cache    *PathCache
	logger   Logger
}

// Options configures a Syncer.
type Options struct {
	// KitsFile overrides discovery of the kits file.
	KitsFile string
	Cache    *PathCache
	Logger   Logger
}

// NewSyncer returns a Syncer that reads SDK state from detector.
func NewSyncer(detector Detector, opts Options) *Syncer {
	s := &Syncer{
		detector: detector,
		override: strings.TrimSpace(opts.KitsFile),
		cache:    opts.Cache,
		logger:   opts.Logger,
	}
	if s.cache == nil {
		s.cache = &PathCache{}
	}
	if s.logger == nil {
		s.logger = noopLogger{}
	}
	return s
}

// ComponentChanged implements installer.Notifier.
func (s *Syncer) ComponentChanged(ctx context.Context, id components.ID) error {
	if id != components.SDK {
		return nil
	}
	_, err := s.Sync(ctx)
	return err
}

// Sync ensures the kits file lists the Webrogue kit for the installed SDK.
// It does nothing when the SDK is not installed or no CMake Tools data
// directory can be found.
func (s *Syncer) Sync(_ context.Context) (Result, error) {
	h, err := s.detector.Detect(components.SDK)
	if err != nil {
		if errors.Is(err, components.ErrUnsupportedPlatform) {
			return Result{Skipped: "sdk unsupported on this platform"}, nil
		}
		return Result{}, err
	}
	sdk, ok := h.(components.SDKHandle)
	if !ok {
		return Result{Skipped: "sdk not installed"}, nil
	}

	path, ok := s.kitsPath()
	if !ok {
		return Result{Skipped: "cmake tools data directory not found"}, nil
	}

	changed, err := syncFile(path, Kit{Name: KitName, ToolchainFile: sdk.P1ToolchainFile})
	if err != nil {
		return Result{Path: path}, err
	}
	if changed {
		s.logger.Printf("kits: updated %s", path)
	}
	return Result{Path: path, Changed: changed}, nil
}

func (s *Syncer) kitsPath() (string, bool) {
	if s.override != "" {
		return s.override, true
	}
	return s.cache.Get(discoverKitsFile)
}

// discoverKitsFile looks for an existing CMake Tools data directory.
func discoverKitsFile() (string, bool) {
	for _, dir := range candidateDirs() {
		if dirExists(dir) {
			return filepath.Join(dir, kitsFileName), true
		}
	}
	return "", false
}

func dirExists(dir string) bool {
	ok, _ := paths.DirExists(dir)
	return ok
}

func candidateDirs() []string {
	home, _ := userHomeDir()
	var dirs []string
	switch hostOS {
	case "windows":
		if local := getenv("LOCALAPPDATA"); local != "" {
			dirs = append(dirs, filepath.Join(local, cmakeToolsDir))
		}
		if home != "" {
			dirs = append(dirs, filepath.Join(home, "AppData", "Local", cmakeToolsDir))
		}
	case "darwin":
		if home != "" {
			dirs = append(dirs, filepath.Join(home, "Library", "Application Support", cmakeToolsDir))
		}
	default:
		if xdg := getenv("XDG_DATA_HOME"); xdg != "" {
			dirs = append(dirs, filepath.Join(xdg, cmakeToolsDir))
		}
		if home != "" {
			dirs = append(dirs, filepath.Join(home, ".local", "share", cmakeToolsDir))
		}
	}
	return dirs
}

// syncFile rewrites path so that it contains want exactly once. Entries where
// only one of name and toolchain file matches want are removed. Other entries
// are preserved as-is. The file is only written when something changed.
func syncFile(path string, want Kit) (bool, error) {
	entries, dirty := readKits(path)

	kept := entries[:0]
	present := false
	for _, raw := range entries {
		var kit Kit
		if err := json.Unmarshal(raw, &kit); err != nil {
			kept = append(kept, raw)
			continue
		}
		nameMatches := kit.Name == want.Name
		toolchainMatches := kit.ToolchainFile == want.ToolchainFile
		if nameMatches != toolchainMatches {
			dirty = true
			continue
		}
		if nameMatches && toolchainMatches {
			present = true
		}
		kept = append(kept, raw)
	}
	if !present {
		raw, err := json.Marshal(want)
		if err != nil {
			return false, fmt.Errorf("encode kit: %w", err)
		}
		kept = append(kept, raw)
		dirty = true
	}
	if !dirty {
		return false, nil
	}

	if kept == nil {
		kept = []json.RawMessage{}
	}
	data, err := json.MarshalIndent(kept, "", "  ")
	if err != nil {
		return false, fmt.Errorf("encode kits: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("create kits dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return false, fmt.Errorf("write kits file: %w", err)
	}
	return true, nil
}

// readKits returns the raw kit entries of path. A missing or malformed file
// yields no entries and reports the file as needing a rewrite.
func readKits(path string) ([]json.RawMessage, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, true
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, true
	}
	return entries, false
}
