package components

import (
	"fmt"
	"path/filepath"
	"strings"

	"wrtools/internal/paths"
	"wrtools/internal/platform"
)

// ID names a managed component.
type ID string

const (
	CLI     ID = "cli"
	SDK     ID = "sdk"
	LLDBDAP ID = "lldb-dap"
)

var (
	linuxAMD64   = platform.Host{OS: "linux", Arch: "amd64"}
	windowsAMD64 = platform.Host{OS: "windows", Arch: "amd64"}
	darwinAMD64  = platform.Host{OS: "darwin", Arch: "amd64"}
	darwinARM64  = platform.Host{OS: "darwin", Arch: "arm64"}
)

// order fixes the iteration order used by All and by update-all.
var order = []ID{CLI, SDK, LLDBDAP}

var definitions = map[ID]Descriptor{
	CLI: {
		ID:          CLI,
		Name:        "Webrogue CLI utility",
		Repo:        "webrogue-runtime/webrogue",
		VersionFile: "webrogue_cli_version",
		dirNames: map[platform.Host]string{
			linuxAMD64:   "webrogue-cli-linux-x86_64",
			windowsAMD64: "webrogue-cli-windows-x86_64",
			darwinAMD64:  "webrogue-cli-macos-x86_64",
			darwinARM64:  "webrogue-cli-macos-arm64",
		},
		detect: detectCLI,
	},
	SDK: {
		ID:          SDK,
		Name:        "Webrogue SDK",
		Repo:        "webrogue-runtime/webrogue-sdk",
		VersionFile: "webrogue_sdk_version",
		dirNames: map[platform.Host]string{
			linuxAMD64:   "webrogue-sdk-x86_64-linux",
			windowsAMD64: "webrogue-sdk-x86_64-windows",
			darwinAMD64:  "webrogue-sdk-x86_64-macos",
			darwinARM64:  "webrogue-sdk-arm64-macos",
		},
		detect: detectSDK,
	},
	LLDBDAP: {
		ID:          LLDBDAP,
		Name:        "Fallback LLDB-DAP executable",
		Repo:        "webrogue-runtime/lldb-dap-builder",
		VersionFile: "lldb_dap_version",
		dirNames: map[platform.Host]string{
			linuxAMD64:   "lldb-dap-linux-x86_64",
			windowsAMD64: "lldb-dap-windows-x86_64",
			darwinAMD64:  "lldb-dap-macos-x86_64",
			darwinARM64:  "lldb-dap-macos-arm64",
		},
		detect: detectDAP,
	},
}

// Descriptor is the static description of a downloadable component.
type Descriptor struct {
	ID          ID
	Name        string
	Repo        string
	VersionFile string

	dirNames map[platform.Host]string
	detect   func(dir string, host platform.Host) (Handle, bool)
}

// ReleasesURL returns the latest-release endpoint under the given API base,
// e.g. https://api.github.com/repos/webrogue-runtime/webrogue/releases/latest.
func (d Descriptor) ReleasesURL(apiBase string) string {
	return strings.TrimRight(apiBase, "/") + "/repos/" + d.Repo + "/releases/latest"
}

// DirName returns the archive base name for host. It doubles as the install
// directory name.
func (d Descriptor) DirName(host platform.Host) (string, error) {
	name, ok := d.dirNames[host]
	if !ok {
		return "", &UnsupportedPlatformError{Component: d.ID, Host: host}
	}
	return name, nil
}

// Supports reports whether an archive exists for host.
func (d Descriptor) Supports(host platform.Host) bool {
	_, ok := d.dirNames[host]
	return ok
}

// Detect inspects dir and returns a handle when the component's key files are
// present. Any stat failure counts as not installed.
func (d Descriptor) Detect(dir string, host platform.Host) (Handle, bool) {
	if d.detect == nil {
		return nil, false
	}
	return d.detect(dir, host)
}

// All returns every known descriptor in a stable order.
func All() []Descriptor {
	out := make([]Descriptor, 0, len(order))
	for _, id := range order {
		out = append(out, definitions[id])
	}
	return out
}

// KnownIDs returns the identifiers of every known component.
func KnownIDs() []ID {
	return append([]ID(nil), order...)
}

// Lookup returns the descriptor for id.
func Lookup(id ID) (Descriptor, bool) {
	d, ok := definitions[id]
	return d, ok
}

// ParseID resolves user input to a component id. A few aliases are accepted.
func ParseID(value string) (ID, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "cli", "webrogue", "webrogue-cli":
		return CLI, nil
	case "sdk", "webrogue-sdk":
		return SDK, nil
	case "lldb-dap", "lldb_dap", "dap":
		return LLDBDAP, nil
	}
	return "", fmt.Errorf("unknown component: %s", value)
}

func detectCLI(dir string, host platform.Host) (Handle, bool) {
	exe := host.Executable("webrogue")
	for _, candidate := range []string{
		filepath.Join(dir, "bin", exe),
		filepath.Join(dir, exe),
	} {
		if ok, _ := paths.FileExists(candidate); ok {
			return CLIHandle{Root: dir, Bin: candidate}, true
		}
	}
	return nil, false
}

func detectSDK(dir string, _ platform.Host) (Handle, bool) {
	toolchain := filepath.Join(dir, "share", "cmake", "wasi-sdk-p1-pthread.cmake")
	if ok, _ := paths.FileExists(toolchain); !ok {
		return nil, false
	}
	return SDKHandle{Root: dir, P1ToolchainFile: toolchain}, true
}

func detectDAP(dir string, host platform.Host) (Handle, bool) {
	bin := filepath.Join(dir, "bin", host.Executable("lldb-dap"))
	if ok, _ := paths.FileExists(bin); !ok {
		return nil, false
	}
	return DAPHandle{Root: dir, Bin: bin}, true
}
