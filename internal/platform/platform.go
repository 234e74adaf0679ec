package platform

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v4/host"
)

// Host identifies the operating system and CPU architecture that component
// archives are selected for. Values use Go's GOOS/GOARCH vocabulary.
type Host struct {
	OS   string `json:"os"`
	Arch string `json:"arch"`
}

// Current returns the host the binary is running on.
func Current() Host {
	return Host{OS: runtime.GOOS, Arch: normalizeArch(runtime.GOARCH)}
}

func (h Host) String() string {
	return h.OS + "/" + h.Arch
}

// IsWindows reports whether the host uses Windows conventions (.exe binaries,
// zip archives).
func (h Host) IsWindows() bool {
	return h.OS == "windows"
}

// Executable appends the platform executable suffix to name.
func (h Host) Executable(name string) string {
	if h.IsWindows() {
		return name + ".exe"
	}
	return name
}

// Info is the extended host description shown by diagnostics.
type Info struct {
	Host
	Platform   string `json:"platform,omitempty"`
	Family     string `json:"family,omitempty"`
	Version    string `json:"version,omitempty"`
	KernelArch string `json:"kernel_arch,omitempty"`
}

// Detector resolves host information.
type Detector interface {
	Detect(ctx context.Context) (*Info, error)
}

// SystemDetector queries the running system through gopsutil.
type SystemDetector struct{}

// NewDetector returns a detector for the running system.
func NewDetector() Detector {
	return SystemDetector{}
}

// Detect fills OS and architecture from the runtime and adds distribution
// details when gopsutil can provide them. Lookup failures other than context
// cancellation leave the optional fields empty.
func (SystemDetector) Detect(ctx context.Context) (*Info, error) {
	info := &Info{Host: Current()}

	platform, family, version, err := host.PlatformInformationWithContext(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("platform detection cancelled: %w", ctx.Err())
		}
		return info, nil
	}
	info.Platform = strings.ToLower(strings.TrimSpace(platform))
	info.Family = strings.ToLower(strings.TrimSpace(family))
	info.Version = strings.TrimSpace(version)

	if arch, err := host.KernelArch(); err == nil {
		info.KernelArch = strings.TrimSpace(arch)
	}
	return info, nil
}

// StaticDetector returns a fixed Info. Useful in tests.
type StaticDetector struct {
	Info Info
	Err  error
}

// Detect implements Detector.
func (d StaticDetector) Detect(context.Context) (*Info, error) {
	if d.Err != nil {
		return nil, d.Err
	}
	info := d.Info
	return &info, nil
}

func normalizeArch(arch string) string {
	switch strings.ToLower(arch) {
	case "x86_64", "x64", "amd64":
		return "amd64"
	case "aarch64", "arm64":
		return "arm64"
	default:
		return arch
	}
}

// Parse reads an "os/arch" pair such as "linux/amd64". Architecture aliases
// like x86_64 and aarch64 are accepted.
func Parse(value string) (Host, error) {
	osName, arch, ok := strings.Cut(strings.TrimSpace(value), "/")
	if !ok || osName == "" || arch == "" {
		return Host{}, fmt.Errorf("invalid platform %q: expected os/arch", value)
	}
	osName = strings.ToLower(osName)
	switch osName {
	case "macos", "osx":
		osName = "darwin"
	case "win32", "win":
		osName = "windows"
	}
	return Host{OS: osName, Arch: normalizeArch(arch)}, nil
}
