package installer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// DefaultUserAgent identifies wrtools to the release registry and asset hosts.
const DefaultUserAgent = "wrtools/1.0"

// Fetcher streams release assets to disk.
type Fetcher struct {
	// HTTPClient defaults to a client without a timeout; cancel through ctx.
	HTTPClient *http.Client
	UserAgent  string
}

// progressWriter reports the cumulative byte count after each write.
type progressWriter struct {
	received int64
	onChunk  func(received int64)
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.received += int64(len(p))
	if w.onChunk != nil {
		w.onChunk(w.received)
	}
	return len(p), nil
}

// PartialSuffix marks an archive that is still being downloaded.
const PartialSuffix = ".part"

// Fetch downloads url into dest and returns the number of bytes written.
// The body is streamed into dest+PartialSuffix and renamed over dest only
// once complete, so a failed download never clobbers an existing dest.
// onChunk receives the cumulative byte count.
func (f Fetcher) Fetch(ctx context.Context, url, dest string, onChunk func(received int64)) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, fmt.Errorf("%w: prepare download destination: %w", ErrDownloadFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: create request: %w", ErrDownloadFailed, err)
	}
	ua := f.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	req.Header.Set("User-Agent", ua)

	client := f.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: download %s: %w", ErrDownloadFailed, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, &StatusError{URL: url, StatusCode: resp.StatusCode, Status: resp.Status, sentinel: ErrDownloadFailed}
	}

	partial := dest + PartialSuffix
	out, err := os.OpenFile(partial, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("%w: create %s: %w", ErrDownloadFailed, partial, err)
	}

	counter := &progressWriter{onChunk: onChunk}
	n, err := io.Copy(io.MultiWriter(out, counter), resp.Body)
	if err != nil {
		out.Close()
		_ = os.Remove(partial)
		return n, fmt.Errorf("%w: write %s: %w", ErrDownloadFailed, partial, err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(partial)
		return n, fmt.Errorf("%w: close %s: %w", ErrDownloadFailed, partial, err)
	}
	if err := os.Rename(partial, dest); err != nil {
		_ = os.Remove(partial)
		return n, fmt.Errorf("%w: move %s into place: %w", ErrDownloadFailed, dest, err)
	}
	return n, nil
}
