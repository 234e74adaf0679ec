package cli

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// testRegistry serves a latest release per repository and its asset bytes.
type testRegistry struct {
	server *httptest.Server
	mu     sync.Mutex
	assets map[string][]byte
	token  string
}

func newTestRegistry(t *testing.T) *testRegistry {
	t.Helper()
	r := &testRegistry{assets: map[string][]byte{}, token: "2024-06-01T00:00:00Z"}
	r.server = httptest.NewServer(http.HandlerFunc(r.serve))
	t.Cleanup(r.server.Close)
	return r
}

func (r *testRegistry) publish(name string, data []byte) {
	r.mu.Lock()
	r.assets[name] = data
	r.mu.Unlock()
}

func (r *testRegistry) serve(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case strings.HasSuffix(req.URL.Path, "/releases/latest"):
		type asset struct {
			Name      string `json:"name"`
			Size      int    `json:"size"`
			URL       string `json:"browser_download_url"`
			UpdatedAt string `json:"updated_at"`
		}
		var assets []asset
		for name, data := range r.assets {
			assets = append(assets, asset{Name: name, Size: len(data), URL: r.server.URL + "/download/" + name, UpdatedAt: r.token})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"tag_name": "nightly", "assets": assets})
	case strings.HasPrefix(req.URL.Path, "/download/"):
		data, ok := r.assets[strings.TrimPrefix(req.URL.Path, "/download/")]
		if !ok {
			http.NotFound(w, req)
			return
		}
		_, _ = w.Write(data)
	default:
		http.NotFound(w, req)
	}
}

func tarGz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, body := range files {
		if err := tw.WriteHeader(&tar.Header{Name: name, Mode: 0o755, Size: int64(len(body)), Typeflag: tar.TypeReg}); err != nil {
			t.Fatal(err)
		}
		if _, err := io.WriteString(tw, body); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// publishLinuxComponents publishes CLI and SDK archives for linux/amd64.
func (r *testRegistry) publishLinuxComponents(t *testing.T) {
	r.publish("webrogue-cli-linux-x86_64.tar.gz", tarGz(t, map[string]string{
		"webrogue-cli-linux-x86_64/bin/webrogue": "#!/bin/sh\n",
	}))
	r.publish("webrogue-sdk-x86_64-linux.tar.gz", tarGz(t, map[string]string{
		"webrogue-sdk-x86_64-linux/share/cmake/wasi-sdk-p1-pthread.cmake": "set(WASI 1)\n",
	}))
}

type testEnv struct {
	storage  string
	config   string
	kitsFile string
	registry *testRegistry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	for _, key := range []string{"WRTOOLS_STORAGE_DIR", "WRTOOLS_REGISTRY_URL", "WRTOOLS_CLI_PATH", "GITHUB_TOKEN"} {
		t.Setenv(key, "")
	}
	dir := t.TempDir()
	env := &testEnv{
		storage:  filepath.Join(dir, "storage"),
		config:   filepath.Join(dir, "config.yaml"),
		kitsFile: filepath.Join(dir, "CMakeTools", "cmake-tools-kits.json"),
		registry: newTestRegistry(t),
	}
	env.writeConfig(t, "")
	return env
}

func (e *testEnv) writeConfig(t *testing.T, extra string) {
	t.Helper()
	content := fmt.Sprintf("registry:\n  api_url: %s\ncmake:\n  kits_file: %s\n%s", e.registry.server.URL, e.kitsFile, extra)
	if err := os.WriteFile(e.config, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// run executes the root command with isolated config, storage and platform.
func (e *testEnv) run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetIn(strings.NewReader(stdin))
	base := []string{"--config", e.config, "--storage", e.storage, "--platform", "linux/amd64"}
	cmd.SetArgs(append(append([]string{}, args...), base...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}
