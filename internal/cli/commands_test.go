package cli

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"wrtools/internal/config"
	"wrtools/internal/installer"
	"wrtools/internal/platform"
)

func TestCacheCommands(t *testing.T) {
	env := newTestEnv(t)

	stdout, _, err := env.run(t, "", "cache", "config")
	if err != nil {
		t.Fatalf("cache config: %v", err)
	}
	cfgFile := strings.TrimSpace(stdout)
	if cfgFile != filepath.Join(env.storage, "cache.toml") {
		t.Fatalf("config path = %q", cfgFile)
	}
	data, err := os.ReadFile(cfgFile)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "[cache]") {
		t.Errorf("cache config = %s", data)
	}

	stdout, _, err = env.run(t, "", "cache", "build-dir", "com.example.game")
	if err != nil {
		t.Fatalf("build-dir: %v", err)
	}
	buildDir := strings.TrimSpace(stdout)
	if info, err := os.Stat(buildDir); err != nil || !info.IsDir() {
		t.Fatalf("build dir %q not created: %v", buildDir, err)
	}
	if _, _, err := env.run(t, "", "cache", "build-dir", "../escape"); err == nil {
		t.Fatal("expected invalid domain error")
	}

	stale := filepath.Join(env.storage, "compilation_cache", "obj.o")
	if err := os.WriteFile(stale, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := env.run(t, "", "cache", "clean"); err != nil {
		t.Fatalf("clean: %v", err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatal("cache entry survived clean")
	}
}

func TestKitsSyncCommand(t *testing.T) {
	env := newTestEnv(t)

	stdout, _, err := env.run(t, "", "kits", "sync")
	if err != nil {
		t.Fatalf("kits sync: %v", err)
	}
	if !strings.Contains(stdout, "Skipped: sdk not installed") {
		t.Fatalf("output = %q", stdout)
	}

	env.registry.publishLinuxComponents(t)
	if _, _, err := env.run(t, "", "components", "install", "sdk", "--json"); err != nil {
		t.Fatal(err)
	}
	stdout, _, err = env.run(t, "", "kits", "sync")
	if err != nil {
		t.Fatalf("kits sync: %v", err)
	}
	if !strings.Contains(stdout, "Up to date: "+env.kitsFile) {
		t.Fatalf("output = %q", stdout)
	}
}

func TestKitsDisabled(t *testing.T) {
	env := newTestEnv(t)
	content, err := os.ReadFile(env.config)
	if err != nil {
		t.Fatal(err)
	}
	disabled := strings.Replace(string(content), "cmake:\n", "cmake:\n  disabled: true\n", 1)
	if err := os.WriteFile(env.config, []byte(disabled), 0o644); err != nil {
		t.Fatal(err)
	}
	env.registry.publishLinuxComponents(t)

	if _, _, err := env.run(t, "", "components", "install", "sdk", "--json"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(env.kitsFile); !os.IsNotExist(err) {
		t.Fatal("kits file written although cmake integration is disabled")
	}
}

func TestDoctorJSON(t *testing.T) {
	env := newTestEnv(t)
	original := hostDetector
	hostDetector = func() platform.Detector {
		return platform.StaticDetector{Info: platform.Info{Host: platform.Host{OS: "linux", Arch: "amd64"}, Platform: "ubuntu", Version: "24.04"}}
	}
	t.Cleanup(func() { hostDetector = original })

	stdout, _, err := env.run(t, "", "doctor", "--json")
	if err != nil {
		t.Fatalf("doctor: %v", err)
	}
	var checks []healthCheck
	if err := json.Unmarshal([]byte(stdout), &checks); err != nil {
		t.Fatalf("decode: %v\n%s", err, stdout)
	}
	byName := map[string]healthCheck{}
	for _, c := range checks {
		byName[c.Name] = c
	}
	if c := byName["Platform"]; c.Status != "ok" || !strings.Contains(c.Summary, "ubuntu 24.04") {
		t.Errorf("platform = %+v", c)
	}
	if c := byName["Storage"]; c.Status != "ok" || c.Summary != env.storage {
		t.Errorf("storage = %+v", c)
	}
	if c := byName["cli"]; c.Status != "warning" || c.Summary != "not installed" {
		t.Errorf("cli = %+v", c)
	}
	if c := byName["Kits"]; c.Status != "warning" {
		t.Errorf("kits = %+v", c)
	}
}

func TestDoctorPlain(t *testing.T) {
	env := newTestEnv(t)
	original := hostDetector
	hostDetector = func() platform.Detector {
		return platform.StaticDetector{Err: errors.New("no host info")}
	}
	t.Cleanup(func() { hostDetector = original })

	stdout, _, err := env.run(t, "", "doctor")
	if err != nil {
		t.Fatalf("doctor: %v", err)
	}
	for _, want := range []string{"WRTOOLS HEALTH:", "Platform:", "linux/amd64", "Storage:"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("doctor output missing %q:\n%s", want, stdout)
		}
	}
}

func TestCheckPlatform(t *testing.T) {
	supported := checkPlatform(platform.Host{OS: "darwin", Arch: "arm64"}, &platform.Info{Platform: "darwin", Version: "14.5", KernelArch: "arm64"}, nil)
	if supported.Status != "ok" || supported.Summary != "darwin/arm64 (darwin 14.5, kernel arm64)" {
		t.Errorf("supported = %+v", supported)
	}
	unsupported := checkPlatform(platform.Host{OS: "freebsd", Arch: "amd64"}, nil, errors.New("x"))
	if unsupported.Status != "error" || !strings.Contains(unsupported.Summary, "no components available") {
		t.Errorf("unsupported = %+v", unsupported)
	}
}

func TestCheckComponent(t *testing.T) {
	tests := []struct {
		name   string
		status installer.Status
		want   healthCheck
	}{
		{"error", installer.Status{Component: "sdk", Error: "boom"}, healthCheck{Name: "sdk", Status: "error", Summary: "boom"}},
		{"unsupported", installer.Status{Component: "sdk"}, healthCheck{Name: "sdk", Status: "warning", Summary: "not available for this platform"}},
		{"missing", installer.Status{Component: "cli", Supported: true}, healthCheck{Name: "cli", Status: "warning", Summary: "not installed"}},
		{"installed", installer.Status{Component: "cli", Supported: true, Installed: true, Path: "/x/webrogue", Token: "T1"}, healthCheck{Name: "cli", Status: "ok", Summary: "/x/webrogue (T1)"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := checkComponent(tt.status); got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestCheckKits(t *testing.T) {
	if got := checkKits("", "", errors.New("denied")); got.Status != "error" || got.Summary != "denied" {
		t.Errorf("error case = %+v", got)
	}
	if got := checkKits("", "sdk not installed", nil); got.Status != "warning" {
		t.Errorf("skipped case = %+v", got)
	}
	if got := checkKits("/k.json", "", nil); got.Status != "ok" || got.Summary != "/k.json" {
		t.Errorf("ok case = %+v", got)
	}
}

func TestCheckConfig(t *testing.T) {
	cfg := config.Default()
	if got := checkConfig("/etc/wrtools.yaml", cfg); got.Status != "ok" || got.Summary != "/etc/wrtools.yaml" {
		t.Errorf("default config = %+v", got)
	}
	cfg.Registry.APIURL = "::not a url"
	if got := checkConfig("p", cfg); got.Status != "error" {
		t.Errorf("bad url = %+v", got)
	}
}

func TestConfigShowMasksToken(t *testing.T) {
	env := newTestEnv(t)
	t.Setenv("GITHUB_TOKEN", "ghp_secret")

	stdout, _, err := env.run(t, "", "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(stdout, "ghp_secret") || !strings.Contains(stdout, "********") {
		t.Fatalf("token not masked:\n%s", stdout)
	}
	if !strings.Contains(stdout, env.registry.server.URL) {
		t.Errorf("api url missing:\n%s", stdout)
	}
}

func TestConfigPath(t *testing.T) {
	env := newTestEnv(t)
	stdout, _, err := env.run(t, "", "config", "path")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(stdout) != env.config {
		t.Fatalf("path = %q", stdout)
	}
}

func TestEnsureConfigFileExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := ensureConfigFileExists(path); err != nil {
		t.Fatal(err)
	}
	if _, err := config.Load(path); err != nil {
		t.Fatalf("created config does not load: %v", err)
	}

	custom := []byte("cli_path: /opt/webrogue\n")
	if err := os.WriteFile(path, custom, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := ensureConfigFileExists(path); err != nil {
		t.Fatal(err)
	}
	got, _ := os.ReadFile(path)
	if string(got) != string(custom) {
		t.Fatal("existing config was overwritten")
	}
}

func TestSplitEditorCommand(t *testing.T) {
	tests := map[string][]string{
		"":          nil,
		"  ":        nil,
		"vi":        {"vi"},
		"code -w":   {"code", "-w"},
		" nano  -l": {"nano", "-l"},
	}
	for in, want := range tests {
		if got := splitEditorCommand(in); !reflect.DeepEqual(got, want) {
			t.Errorf("splitEditorCommand(%q) = %v, want %v", in, got, want)
		}
	}
}
