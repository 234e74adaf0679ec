package installer

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"wrtools/internal/components"
	"wrtools/internal/platform"
)

var (
	testLinux   = platform.Host{OS: "linux", Arch: "amd64"}
	testWindows = platform.Host{OS: "windows", Arch: "amd64"}
)

// fakeRegistry serves a GitHub-style latest release for every repository and
// the matching asset downloads.
type fakeRegistry struct {
	t      *testing.T
	server *httptest.Server

	mu            sync.Mutex
	assets        map[string][]byte
	tokens        map[string]string
	releaseStatus int
	assetStatus   int
	releaseHits   int
	assetHits     int
	lastHeaders   http.Header
}

func newFakeRegistry(t *testing.T) *fakeRegistry {
	t.Helper()
	r := &fakeRegistry{
		t:      t,
		assets: map[string][]byte{},
		tokens: map[string]string{},
	}
	r.server = httptest.NewServer(http.HandlerFunc(r.serve))
	t.Cleanup(r.server.Close)
	return r
}

func (r *fakeRegistry) publish(name string, archive []byte, token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assets[name] = archive
	r.tokens[name] = token
}

func (r *fakeRegistry) setReleaseStatus(code int) {
	r.mu.Lock()
	r.releaseStatus = code
	r.mu.Unlock()
}

func (r *fakeRegistry) setAssetStatus(code int) {
	r.mu.Lock()
	r.assetStatus = code
	r.mu.Unlock()
}

func (r *fakeRegistry) hits() (release, asset int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.releaseHits, r.assetHits
}

func (r *fakeRegistry) serve(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case strings.HasPrefix(req.URL.Path, "/repos/") && strings.HasSuffix(req.URL.Path, "/releases/latest"):
		r.releaseHits++
		r.lastHeaders = req.Header.Clone()
		if r.releaseStatus != 0 {
			w.WriteHeader(r.releaseStatus)
			return
		}
		names := make([]string, 0, len(r.assets))
		for name := range r.assets {
			names = append(names, name)
		}
		sort.Strings(names)
		var assets []githubReleaseAsset
		for _, name := range names {
			assets = append(assets, githubReleaseAsset{
				Name:               name,
				Size:               int64(len(r.assets[name])),
				BrowserDownloadURL: r.server.URL + "/download/" + name,
				UpdatedAt:          r.tokens[name],
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(githubRelease{
			TagName:   "v0.1.0",
			CreatedAt: "2024-01-01T00:00:00Z",
			Assets:    assets,
		})
	case strings.HasPrefix(req.URL.Path, "/download/"):
		r.assetHits++
		if r.assetStatus != 0 {
			w.WriteHeader(r.assetStatus)
			return
		}
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

func (r *fakeRegistry) client() *ReleaseClient {
	return NewReleaseClient(ReleaseClientOptions{APIBase: r.server.URL})
}

type tarEntry struct {
	Name     string
	Body     string
	Linkname string
	Dir      bool
	Hardlink bool
}

func buildTarGz(t *testing.T, entries []tarEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.Name, Mode: 0o755}
		switch {
		case e.Dir:
			hdr.Typeflag = tar.TypeDir
		case e.Hardlink:
			hdr.Typeflag = tar.TypeLink
			hdr.Linkname = e.Linkname
		case e.Linkname != "":
			hdr.Typeflag = tar.TypeSymlink
			hdr.Linkname = e.Linkname
		default:
			hdr.Typeflag = tar.TypeReg
			hdr.Size = int64(len(e.Body))
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("tar header: %v", err)
		}
		if hdr.Typeflag == tar.TypeReg {
			if _, err := tw.Write([]byte(e.Body)); err != nil {
				t.Fatalf("tar body: %v", err)
			}
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

func buildZip(t *testing.T, entries []tarEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		name := e.Name
		if e.Dir && !strings.HasSuffix(name, "/") {
			name += "/"
		}
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create: %v", err)
		}
		if !e.Dir {
			if _, err := w.Write([]byte(e.Body)); err != nil {
				t.Fatalf("zip write: %v", err)
			}
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// cliArchive builds a CLI archive for host with the given binary contents.
func cliArchive(t *testing.T, host platform.Host, body string) (string, []byte) {
	t.Helper()
	d, _ := components.Lookup(components.CLI)
	name, err := d.DirName(host)
	if err != nil {
		t.Fatal(err)
	}
	entries := []tarEntry{
		{Name: name, Dir: true},
		{Name: name + "/bin", Dir: true},
		{Name: name + "/bin/" + host.Executable("webrogue"), Body: body},
		{Name: name + "/share/README", Body: "readme"},
	}
	if host.IsWindows() {
		return name + ".zip", buildZip(t, entries)
	}
	return name + ".tar.gz", buildTarGz(t, entries)
}

type recordingReporter struct {
	mu      sync.Mutex
	updates []Update
}

func (r *recordingReporter) Report(u Update) {
	r.mu.Lock()
	r.updates = append(r.updates, u)
	r.mu.Unlock()
}

func (r *recordingReporter) total() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum float64
	for _, u := range r.updates {
		sum += u.Increment
	}
	return sum
}

func (r *recordingReporter) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, u := range r.updates {
		out = append(out, u.Message)
	}
	return out
}

type countingNotifier struct {
	mu    sync.Mutex
	calls []components.ID
}

func (n *countingNotifier) ComponentChanged(_ context.Context, id components.ID) error {
	n.mu.Lock()
	n.calls = append(n.calls, id)
	n.mu.Unlock()
	return nil
}

func (n *countingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

func newTestInstaller(t *testing.T, reg *fakeRegistry, host platform.Host, notifiers ...Notifier) (*Installer, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "components")
	inst, err := New(Config{
		ComponentsDir: dir,
		Host:          host,
		Releases:      reg.client(),
		Notifiers:     notifiers,
		Metrics:       NewMetrics(WithRegistry(prometheus.NewRegistry())),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return inst, dir
}
