package update

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"vidgrab/internal/debug"
	appErrors "vidgrab/internal/errors"
	"vidgrab/internal/platform"
)

// Default configuration values.
const (
	DefaultAPIURL   = "https://api.github.com/repos/yt-dlp/yt-dlp/releases/latest"
	DefaultCacheTTL = time.Hour
	UserAgent       = "vidgrab-updater"

	// signatureMarker identifies detached signature assets.
	signatureMarker = ".sig"
)

var log = debug.For("release")

// ReleaseAsset represents a downloadable file attached to a release.
type ReleaseAsset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
	Size               int64  `json:"size"`
}

// ReleaseInfo contains information about a GitHub release.
type ReleaseInfo struct {
	TagName     string         `json:"tag_name"`
	Name        string         `json:"name"`
	Body        string         `json:"body"`
	HTMLURL     string         `json:"html_url"`
	PublishedAt time.Time      `json:"published_at"`
	Assets      []ReleaseAsset `json:"assets"`
}

// Version returns the tag with any leading 'v' removed.
func (r ReleaseInfo) Version() string {
	return strings.TrimPrefix(strings.TrimSpace(r.TagName), "v")
}

// UpdateInfo contains the result of comparing an installed tool against the feed.
type UpdateInfo struct {
	CurrentVersion  string
	LatestVersion   string
	UpdateAvailable bool
	ReleaseURL      string
	ReleaseNotes    string
	PublishedAt     time.Time
	CheckedAt       time.Time
}

// cachedVersion is replaced wholesale, never mutated.
type cachedVersion struct {
	version  string
	cachedAt time.Time
}

// Checker queries the release feed and caches the latest version.
//
// The cache is last-write-wins: two callers that find it cold or expired
// may both fetch, and whichever stores last is kept. No lock is held across
// the HTTP call.
type Checker struct {
	apiURL     string
	httpClient *http.Client
	ttl        time.Duration
	now        func() time.Time
	target     platform.Target
	cache      atomic.Pointer[cachedVersion]
}

// CheckerOption configures a Checker.
type CheckerOption func(*Checker)

// WithHTTPClient sets a custom HTTP client for the checker.
func WithHTTPClient(client *http.Client) CheckerOption {
	return func(c *Checker) {
		c.httpClient = client
	}
}

// WithAPIURL points the checker at a different "latest release" endpoint.
func WithAPIURL(url string) CheckerOption {
	return func(c *Checker) {
		if url != "" {
			c.apiURL = url
		}
	}
}

// WithCacheTTL sets how long a fetched version stays fresh.
func WithCacheTTL(ttl time.Duration) CheckerOption {
	return func(c *Checker) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) CheckerOption {
	return func(c *Checker) {
		c.now = now
	}
}

// WithTarget sets the platform used for asset fallback matching.
func WithTarget(t platform.Target) CheckerOption {
	return func(c *Checker) {
		c.target = t
	}
}

// NewChecker creates a release checker. Remote calls carry no timeout of
// their own; callers bound them through the context.
func NewChecker(opts ...CheckerOption) *Checker {
	c := &Checker{
		apiURL:     DefaultAPIURL,
		httpClient: &http.Client{},
		ttl:        DefaultCacheTTL,
		now:        time.Now,
	}
	if t, err := platform.Current(); err == nil {
		c.target = t
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LatestVersion returns the cached latest version while it is fresh,
// otherwise fetches it.
func (c *Checker) LatestVersion(ctx context.Context) (string, error) {
	if cached := c.cache.Load(); cached != nil && c.now().Sub(cached.cachedAt) < c.ttl {
		return cached.version, nil
	}
	release, err := c.FetchLatestRelease(ctx)
	if err != nil {
		return "", err
	}
	return release.Version(), nil
}

// FetchLatestRelease always queries the feed and refreshes the cache.
func (c *Checker) FetchLatestRelease(ctx context.Context) (*ReleaseInfo, error) {
	release, err := c.fetchLatestRelease(ctx)
	if err != nil {
		return nil, err
	}
	c.cache.Store(&cachedVersion{version: release.Version(), cachedAt: c.now()})
	log.Logf("latest release %s (%d assets)", release.Version(), len(release.Assets))
	return release, nil
}

// ResolveAssetURL returns the download URL of the asset matching desired.
func (c *Checker) ResolveAssetURL(ctx context.Context, desired string) (string, error) {
	release, err := c.FetchLatestRelease(ctx)
	if err != nil {
		return "", err
	}
	return MatchAsset(release.Assets, desired, c.target)
}

// CheckUpdate compares current against the feed's latest release.
func (c *Checker) CheckUpdate(ctx context.Context, current string) (*UpdateInfo, error) {
	release, err := c.FetchLatestRelease(ctx)
	if err != nil {
		return nil, err
	}
	fresh, err := Compare(current, release.Version())
	if err != nil {
		return nil, err
	}
	return &UpdateInfo{
		CurrentVersion:  strings.TrimSpace(current),
		LatestVersion:   release.Version(),
		UpdateAvailable: !fresh,
		ReleaseURL:      release.HTMLURL,
		ReleaseNotes:    release.Body,
		PublishedAt:     release.PublishedAt,
		CheckedAt:       c.now(),
	}, nil
}

func (c *Checker) fetchLatestRelease(ctx context.Context) (*ReleaseInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL, nil)
	if err != nil {
		return nil, appErrors.New(appErrors.CodeNetwork, "create release request", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, appErrors.New(appErrors.CodeNetwork, fmt.Sprintf("fetch latest release: %v", err), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusForbidden {
		return nil, appErrors.New(appErrors.CodeNetwork, "fetch latest release: rate limited by GitHub API", nil)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, appErrors.New(appErrors.CodeNetwork,
			fmt.Sprintf("fetch latest release: status %d", resp.StatusCode), nil)
	}

	var release ReleaseInfo
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, appErrors.New(appErrors.CodeParseFailed, fmt.Sprintf("decode release info: %v", err), err)
	}
	if release.Version() == "" {
		return nil, appErrors.New(appErrors.CodeParseFailed, "decode release info: missing tag_name", nil)
	}
	return &release, nil
}

// MatchAsset picks an asset for desired in three tiers; the first tier
// that matches wins:
//  1. exact name
//  2. name contains desired and is not a signature
//  3. name contains the tool name and one of the target's tokens, is not
//     a signature or archive, and carries .exe only on Windows
func MatchAsset(assets []ReleaseAsset, desired string, target platform.Target) (string, error) {
	asset, err := findAsset(assets, desired, target)
	if err != nil {
		return "", err
	}
	return asset.BrowserDownloadURL, nil
}

func findAsset(assets []ReleaseAsset, desired string, target platform.Target) (ReleaseAsset, error) {
	for _, a := range assets {
		if a.Name == desired {
			return a, nil
		}
	}

	for _, a := range assets {
		if strings.Contains(a.Name, desired) && !strings.Contains(a.Name, signatureMarker) {
			return a, nil
		}
	}

	for _, a := range assets {
		if !strings.Contains(a.Name, platform.ToolName) ||
			strings.Contains(a.Name, signatureMarker) ||
			strings.HasSuffix(a.Name, ".tar.gz") ||
			strings.HasSuffix(a.Name, ".zip") {
			continue
		}
		lower := strings.ToLower(a.Name)
		matched := false
		for _, token := range target.Tokens {
			if strings.Contains(lower, token) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		if strings.HasSuffix(a.Name, ".exe") == target.WantsExe {
			return a, nil
		}
	}

	return ReleaseAsset{}, appErrors.New(appErrors.CodeAssetNotFound,
		fmt.Sprintf("no suitable %s binary found for platform: %s", platform.ToolName, desired), nil)
}
