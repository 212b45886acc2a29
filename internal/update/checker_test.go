package update

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	appErrors "vidgrab/internal/errors"
	"vidgrab/internal/platform"
)

func releaseServer(t *testing.T, release ReleaseInfo, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		if got := r.Header.Get("User-Agent"); got != UserAgent {
			t.Errorf("User-Agent = %q, want %q", got, UserAgent)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(release)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestNewChecker(t *testing.T) {
	c := NewChecker()
	if c.apiURL != DefaultAPIURL {
		t.Errorf("apiURL = %q, want %q", c.apiURL, DefaultAPIURL)
	}
	if c.ttl != time.Hour {
		t.Errorf("ttl = %v, want 1h", c.ttl)
	}
	if c.httpClient == nil {
		t.Error("httpClient should not be nil")
	}
	if c.httpClient.Timeout != 0 {
		t.Errorf("remote calls should not carry a client timeout, got %v", c.httpClient.Timeout)
	}
}

func TestNewCheckerWithOptions(t *testing.T) {
	customClient := &http.Client{}
	c := NewChecker(WithHTTPClient(customClient), WithAPIURL("http://feed"), WithCacheTTL(time.Minute))

	if c.httpClient != customClient {
		t.Error("custom HTTP client not applied")
	}
	if c.apiURL != "http://feed" {
		t.Errorf("apiURL = %q", c.apiURL)
	}
	if c.ttl != time.Minute {
		t.Errorf("ttl = %v", c.ttl)
	}
}

func TestLatestVersionStripsPrefixAndCaches(t *testing.T) {
	var hits atomic.Int32
	server := releaseServer(t, ReleaseInfo{TagName: "v2024.03.10"}, &hits)

	now := time.Date(2024, 3, 11, 12, 0, 0, 0, time.UTC)
	c := NewChecker(WithAPIURL(server.URL), WithClock(func() time.Time { return now }))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		got, err := c.LatestVersion(ctx)
		if err != nil {
			t.Fatalf("LatestVersion() error: %v", err)
		}
		if got != "2024.03.10" {
			t.Fatalf("LatestVersion() = %q, want 2024.03.10", got)
		}
	}
	if hits.Load() != 1 {
		t.Fatalf("expected one fetch within TTL, got %d", hits.Load())
	}

	now = now.Add(59 * time.Minute)
	if _, err := c.LatestVersion(ctx); err != nil {
		t.Fatalf("LatestVersion() error: %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected cache hit before expiry, got %d fetches", hits.Load())
	}

	now = now.Add(time.Minute)
	if _, err := c.LatestVersion(ctx); err != nil {
		t.Fatalf("LatestVersion() error: %v", err)
	}
	if hits.Load() != 2 {
		t.Fatalf("expected refetch at TTL, got %d fetches", hits.Load())
	}
}

func TestLatestVersionConcurrentColdCache(t *testing.T) {
	var hits atomic.Int32
	server := releaseServer(t, ReleaseInfo{TagName: "2024.03.10"}, &hits)
	c := NewChecker(WithAPIURL(server.URL))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := c.LatestVersion(context.Background())
			if err != nil || got != "2024.03.10" {
				t.Errorf("LatestVersion() = %q, %v", got, err)
			}
		}()
	}
	wg.Wait()

	// Redundant fetches are tolerated; at least one must happen.
	if hits.Load() < 1 || hits.Load() > 8 {
		t.Fatalf("unexpected fetch count %d", hits.Load())
	}
	if cached := c.cache.Load(); cached == nil || cached.version != "2024.03.10" {
		t.Fatalf("cache not populated: %+v", cached)
	}
}

func TestLatestVersionMalformedJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"tag_name": `))
	}))
	defer server.Close()

	c := NewChecker(WithAPIURL(server.URL))
	_, err := c.LatestVersion(context.Background())
	if !appErrors.IsCode(err, appErrors.CodeParseFailed) {
		t.Fatalf("expected parse_failed, got %v", err)
	}
	if c.cache.Load() != nil {
		t.Fatal("failed fetch must not populate the cache")
	}
}

func TestLatestVersionMissingTag(t *testing.T) {
	server := releaseServer(t, ReleaseInfo{Name: "untagged"}, nil)
	c := NewChecker(WithAPIURL(server.URL))
	_, err := c.LatestVersion(context.Background())
	if !appErrors.IsCode(err, appErrors.CodeParseFailed) {
		t.Fatalf("expected parse_failed, got %v", err)
	}
}

func TestLatestVersionHTTPErrors(t *testing.T) {
	for _, status := range []int{http.StatusForbidden, http.StatusInternalServerError, http.StatusNotFound} {
		status := status
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		c := NewChecker(WithAPIURL(server.URL))
		_, err := c.LatestVersion(context.Background())
		server.Close()
		if !appErrors.IsCode(err, appErrors.CodeNetwork) {
			t.Errorf("status %d: expected network error, got %v", status, err)
		}
	}
}

func TestLatestVersionUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	c := NewChecker(WithAPIURL(url))
	_, err := c.LatestVersion(context.Background())
	if !appErrors.IsCode(err, appErrors.CodeNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
}

func TestDefaultEndpointPath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/yt-dlp/yt-dlp/releases/latest" {
			t.Errorf("unexpected path: %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(ReleaseInfo{TagName: "2024.03.10"})
	}))
	defer server.Close()

	c := NewChecker(WithHTTPClient(&http.Client{
		Transport: &rewriteTransport{
			base:      http.DefaultTransport,
			targetURL: server.URL,
		},
	}))
	if _, err := c.LatestVersion(context.Background()); err != nil {
		t.Fatalf("LatestVersion() error: %v", err)
	}
}

func TestCheckUpdate(t *testing.T) {
	published := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	server := releaseServer(t, ReleaseInfo{
		TagName:     "2024.03.10",
		Body:        "Release notes",
		HTMLURL:     "https://github.com/yt-dlp/yt-dlp/releases/tag/2024.03.10",
		PublishedAt: published,
	}, nil)
	c := NewChecker(WithAPIURL(server.URL))

	tests := []struct {
		current string
		want    bool
	}{
		{"2023.12.30", true},
		{"2024.03.10", false},
		{"nightly@2024.03.10.010203", false},
		{"2024.04.01", false},
	}
	for _, tt := range tests {
		info, err := c.CheckUpdate(context.Background(), tt.current)
		if err != nil {
			t.Fatalf("CheckUpdate(%q) error: %v", tt.current, err)
		}
		if info.UpdateAvailable != tt.want {
			t.Errorf("CheckUpdate(%q).UpdateAvailable = %v, want %v", tt.current, info.UpdateAvailable, tt.want)
		}
		if info.LatestVersion != "2024.03.10" || info.ReleaseNotes != "Release notes" || !info.PublishedAt.Equal(published) {
			t.Errorf("unexpected info: %+v", info)
		}
	}

	if _, err := c.CheckUpdate(context.Background(), "garbage"); !appErrors.IsCode(err, appErrors.CodeInvalidVersion) {
		t.Fatalf("expected invalid_version for bad current version, got %v", err)
	}
}

func TestMatchAsset(t *testing.T) {
	linux, _ := platform.Lookup("linux", "amd64")
	linuxArm, _ := platform.Lookup("linux", "arm64")
	windows, _ := platform.Lookup("windows", "amd64")
	mac, _ := platform.Lookup("darwin", "arm64")

	tests := []struct {
		name    string
		assets  []string
		desired string
		target  platform.Target
		want    string
		wantErr bool
	}{
		{
			name:    "exact match wins",
			assets:  []string{"yt-dlp_linux.zip", "yt-dlp_linux"},
			desired: "yt-dlp_linux",
			target:  linux,
			want:    "yt-dlp_linux",
		},
		{
			name:    "substring skips signature",
			assets:  []string{"tool-windows.exe.sig", "tool-windows.exe.old"},
			desired: "tool-windows.exe",
			target:  windows,
			want:    "tool-windows.exe.old",
		},
		{
			name:    "exact beats signature listed first",
			assets:  []string{"tool-windows.exe.sig", "tool-windows.exe"},
			desired: "tool-windows.exe",
			target:  windows,
			want:    "tool-windows.exe",
		},
		{
			name:    "substring is case sensitive",
			assets:  []string{"YT-DLP_MACOS", "yt-dlp_macos_legacy"},
			desired: "yt-dlp_macos",
			target:  mac,
			want:    "yt-dlp_macos_legacy",
		},
		{
			name:    "platform tokens fallback",
			assets:  []string{"SHA2-256SUMS", "yt-dlp_linux_aarch64.tar.gz", "yt-dlp_Linux_AArch64"},
			desired: "yt-dlp_linux_arm64",
			target:  linuxArm,
			want:    "yt-dlp_Linux_AArch64",
		},
		{
			name:    "fallback rejects exe off windows",
			assets:  []string{"yt-dlp_linux_x86.exe"},
			desired: "yt-dlp_linux_musl",
			target:  linux,
			wantErr: true,
		},
		{
			name:    "fallback requires exe on windows",
			assets:  []string{"yt-dlp.exe.zip", "yt-dlp.exe_legacy"},
			desired: "yt-dlp_win.exe",
			target:  windows,
			wantErr: true,
		},
		{
			name:    "windows fallback accepts exe",
			assets:  []string{"yt-dlp.exe.zip", "yt-dlp.exe_legacy", "yt-dlp.exe"},
			desired: "yt-dlp_win.exe",
			target:  windows,
			want:    "yt-dlp.exe",
		},
		{
			name:    "nothing matches",
			assets:  []string{"yt-dlp.tar.gz", "SHA2-512SUMS"},
			desired: "yt-dlp_macos",
			target:  mac,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assets := make([]ReleaseAsset, 0, len(tt.assets))
			for _, name := range tt.assets {
				assets = append(assets, ReleaseAsset{Name: name, BrowserDownloadURL: "https://dl/" + name})
			}
			got, err := MatchAsset(assets, tt.desired, tt.target)
			if tt.wantErr {
				if !appErrors.IsCode(err, appErrors.CodeAssetNotFound) {
					t.Fatalf("expected asset_not_found, got %q, %v", got, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("MatchAsset error: %v", err)
			}
			if got != "https://dl/"+tt.want {
				t.Fatalf("MatchAsset = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveAssetURL(t *testing.T) {
	linux, _ := platform.Lookup("linux", "amd64")
	server := releaseServer(t, ReleaseInfo{
		TagName: "2024.03.10",
		Assets: []ReleaseAsset{
			{Name: "yt-dlp_linux.sig", BrowserDownloadURL: "https://dl/sig"},
			{Name: "yt-dlp_linux", BrowserDownloadURL: "https://dl/bin"},
		},
	}, nil)
	c := NewChecker(WithAPIURL(server.URL), WithTarget(linux))

	got, err := c.ResolveAssetURL(context.Background(), linux.BinaryName)
	if err != nil {
		t.Fatalf("ResolveAssetURL error: %v", err)
	}
	if got != "https://dl/bin" {
		t.Fatalf("ResolveAssetURL = %q", got)
	}
}

// rewriteTransport rewrites request URLs for testing.
type rewriteTransport struct {
	base      http.RoundTripper
	targetURL string
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = "http"
	req.URL.Host = t.targetURL[7:] // strip "http://"
	return t.base.RoundTrip(req)
}
