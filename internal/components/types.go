package components

import (
	"errors"
	"fmt"

	"wrtools/internal/platform"
)

// ErrUnsupportedPlatform is returned when a component has no archive for the
// host platform/architecture pair.
var ErrUnsupportedPlatform = errors.New("unsupported platform")

// UnsupportedPlatformError carries the component and host that failed to
// resolve. It matches ErrUnsupportedPlatform under errors.Is.
type UnsupportedPlatformError struct {
	Component ID
	Host      platform.Host
}

func (e *UnsupportedPlatformError) Error() string {
	return fmt.Sprintf("%s: %s for %s", e.Component, ErrUnsupportedPlatform, e.Host)
}

func (e *UnsupportedPlatformError) Is(target error) bool {
	return target == ErrUnsupportedPlatform
}

// Handle describes a component that passed detection.
type Handle interface {
	Component() ID
	// Dir is the component install directory.
	Dir() string
	// Path is the file callers usually want: the executable for binaries,
	// the toolchain file for the SDK.
	Path() string
	isHandle()
}

// CLIHandle locates the Webrogue CLI binary.
type CLIHandle struct {
	Root string `json:"dir"`
	Bin  string `json:"bin"`
}

func (CLIHandle) Component() ID { return CLI }
func (h CLIHandle) Dir() string { return h.Root }
func (h CLIHandle) Path() string { return h.Bin }
func (CLIHandle) isHandle() {}

// SDKHandle locates the SDK and its WASIp1-threads CMake toolchain file.
type SDKHandle struct {
	Root            string `json:"dir"`
	P1ToolchainFile string `json:"p1_toolchain_file"`
}

func (SDKHandle) Component() ID { return SDK }
func (h SDKHandle) Dir() string { return h.Root }
func (h SDKHandle) Path() string { return h.P1ToolchainFile }
func (SDKHandle) isHandle() {}

// DAPHandle locates the fallback lldb-dap executable.
type DAPHandle struct {
	Root string `json:"dir"`
	Bin  string `json:"bin"`
}

func (DAPHandle) Component() ID { return LLDBDAP }
func (h DAPHandle) Dir() string { return h.Root }
func (h DAPHandle) Path() string { return h.Bin }
func (DAPHandle) isHandle() {}
