package installer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"wrtools/internal/components"
)

const (
	// DefaultAPIBase is the GitHub REST API root.
	DefaultAPIBase = "https://api.github.com"

	githubAPIVersion = "2022-11-28"
	releaseCacheSize = 32
	maxReleaseBody   = 8 << 20

	// defaultLookupTimeout bounds a shared release query when the HTTP
	// client has no timeout of its own.
	defaultLookupTimeout = 30 * time.Second
)

// Release is the asset selected from a component's latest release.
type Release struct {
	Component components.ID `json:"component"`
	Tag       string        `json:"tag,omitempty"`
	AssetName string        `json:"asset"`
	URL       string        `json:"url"`
	Size      int64         `json:"size"`
	// Token identifies the asset build. Two tokens are only ever compared
	// for equality.
	Token string `json:"token"`
}

type githubReleaseAsset struct {
	Name               string `json:"name"`
	Size               int64  `json:"size"`
	BrowserDownloadURL string `json:"browser_download_url"`
	UpdatedAt          string `json:"updated_at"`
}

type githubRelease struct {
	TagName   string               `json:"tag_name"`
	CreatedAt string               `json:"created_at"`
	Assets    []githubReleaseAsset `json:"assets"`
}

// ReleaseClientOptions configures a ReleaseClient.
type ReleaseClientOptions struct {
	// APIBase defaults to DefaultAPIBase.
	APIBase string
	// Token is sent as a bearer token when set.
	Token     string
	UserAgent string
	// CacheTTL enables the in-memory release cache used by non-fresh
	// lookups. Zero disables it.
	CacheTTL   time.Duration
	HTTPClient *http.Client
}

// ReleaseClient queries the release registry for component archives.
type ReleaseClient struct {
	apiBase    string
	token      string
	userAgent  string
	httpClient *http.Client
	cache      *expirable.LRU[string, githubRelease]
	group      singleflight.Group
}

// NewReleaseClient constructs a client from opts.
func NewReleaseClient(opts ReleaseClientOptions) *ReleaseClient {
	c := &ReleaseClient{
		apiBase:    strings.TrimSpace(opts.APIBase),
		token:      strings.TrimSpace(opts.Token),
		userAgent:  opts.UserAgent,
		httpClient: opts.HTTPClient,
	}
	if c.apiBase == "" {
		c.apiBase = DefaultAPIBase
	}
	if c.userAgent == "" {
		c.userAgent = DefaultUserAgent
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.CacheTTL > 0 {
		c.cache = expirable.NewLRU[string, githubRelease](releaseCacheSize, nil, opts.CacheTTL)
	}
	return c
}

// Latest returns the asset named assetName from d's latest release. When
// fresh is false a cached response younger than the cache TTL may be used.
// Concurrent lookups of the same endpoint share one request.
func (c *ReleaseClient) Latest(ctx context.Context, d components.Descriptor, assetName string, fresh bool) (Release, error) {
	endpoint := d.ReleasesURL(c.apiBase)

	var (
		release githubRelease
		hit     bool
	)
	if !fresh && c.cache != nil {
		release, hit = c.cache.Get(endpoint)
	}
	if !hit {
		// The shared request must outlive any single caller; each caller
		// still stops waiting when its own ctx ends.
		ch := c.group.DoChan(endpoint, func() (any, error) {
			fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.lookupTimeout())
			defer cancel()
			return c.fetchRelease(fetchCtx, endpoint)
		})
		var res singleflight.Result
		select {
		case <-ctx.Done():
			return Release{}, fmt.Errorf("%w: %w", ErrRegistryUnreachable, ctx.Err())
		case res = <-ch:
		}
		if res.Err != nil {
			return Release{}, res.Err
		}
		release = res.Val.(githubRelease)
		if c.cache != nil {
			c.cache.Add(endpoint, release)
		}
	}

	for _, asset := range release.Assets {
		if asset.Name != assetName {
			continue
		}
		token := asset.UpdatedAt
		if token == "" {
			token = release.CreatedAt
		}
		return Release{
			Component: d.ID,
			Tag:       release.TagName,
			AssetName: asset.Name,
			URL:       asset.BrowserDownloadURL,
			Size:      asset.Size,
			Token:     token,
		}, nil
	}
	return Release{}, fmt.Errorf("%w: %s has no %s in %s", ErrNoMatchingAsset, d.Repo, assetName, nonEmpty(release.TagName, "latest release"))
}

func (c *ReleaseClient) lookupTimeout() time.Duration {
	if c.httpClient.Timeout > 0 {
		return c.httpClient.Timeout
	}
	return defaultLookupTimeout
}

// Forget drops any cached response for d.
func (c *ReleaseClient) Forget(d components.Descriptor) {
	if c.cache != nil {
		c.cache.Remove(d.ReleasesURL(c.apiBase))
	}
}

func (c *ReleaseClient) fetchRelease(ctx context.Context, endpoint string) (githubRelease, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return githubRelease{}, fmt.Errorf("%w: create request: %w", ErrRegistryUnreachable, err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", githubAPIVersion)
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return githubRelease{}, fmt.Errorf("%w: %w", ErrRegistryUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return githubRelease{}, &StatusError{
			URL:        endpoint,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			sentinel:   ErrRegistryUnreachable,
		}
	}

	var release githubRelease
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxReleaseBody)).Decode(&release); err != nil {
		return githubRelease{}, fmt.Errorf("%w: decode release: %w", ErrRegistryUnreachable, err)
	}
	return release, nil
}

func nonEmpty(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
