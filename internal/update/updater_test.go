package update

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	appErrors "vidgrab/internal/errors"
	"vidgrab/internal/platform"
)

type feed struct {
	tag      string
	assets   []string
	payload  []byte
	checksum string // empty omits the manifest
}

func newFeedServer(t *testing.T, f feed) *httptest.Server {
	t.Helper()
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/latest":
			release := ReleaseInfo{TagName: f.tag}
			for _, name := range f.assets {
				release.Assets = append(release.Assets, ReleaseAsset{Name: name, BrowserDownloadURL: server.URL + "/dl/" + name})
			}
			if f.checksum != "" {
				release.Assets = append(release.Assets, ReleaseAsset{Name: ChecksumAssetName, BrowserDownloadURL: server.URL + "/sums"})
			}
			_ = json.NewEncoder(w).Encode(release)
		case r.URL.Path == "/sums":
			_, _ = w.Write([]byte(f.checksum))
		case strings.HasPrefix(r.URL.Path, "/dl/"):
			if r.Header.Get("User-Agent") != UserAgent {
				t.Errorf("download missing user agent")
			}
			_, _ = w.Write(f.payload)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func linuxTarget(t *testing.T) platform.Target {
	t.Helper()
	target, err := platform.Lookup("linux", "amd64")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	return target
}

func sha(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func TestInstallWritesBinary(t *testing.T) {
	payload := []byte("#!/bin/sh\necho 2024.03.10\n")
	server := newFeedServer(t, feed{
		tag:      "2024.03.10",
		assets:   []string{"yt-dlp_linux.sig", "yt-dlp_linux", "yt-dlp_linux.zip"},
		payload:  payload,
		checksum: sha(payload) + "  yt-dlp_linux\n" + sha([]byte("other")) + "  yt-dlp_macos\n",
	})

	target := linuxTarget(t)
	checker := NewChecker(WithAPIURL(server.URL+"/latest"), WithTarget(target))
	dir := filepath.Join(t.TempDir(), "resources")
	inst := NewInstaller(checker, WithBundleDir(dir))

	version, err := inst.Install(context.Background())
	if err != nil {
		t.Fatalf("Install() error: %v", err)
	}
	if version != "2024.03.10" {
		t.Fatalf("Install() = %q, want 2024.03.10", version)
	}

	dest := filepath.Join(dir, "yt-dlp_linux")
	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read installed binary: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("installed payload mismatch: %q", got)
	}
	if runtime.GOOS != "windows" {
		info, err := os.Stat(dest)
		if err != nil {
			t.Fatalf("stat: %v", err)
		}
		if info.Mode().Perm() != 0o755 {
			t.Fatalf("mode = %v, want 0755", info.Mode().Perm())
		}
	}
}

func TestInstallOverwritesExisting(t *testing.T) {
	payload := []byte("new")
	server := newFeedServer(t, feed{tag: "v2024.04.01", assets: []string{"yt-dlp_linux"}, payload: payload})

	dir := t.TempDir()
	dest := filepath.Join(dir, "yt-dlp_linux")
	if err := os.WriteFile(dest, []byte("old binary contents"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	checker := NewChecker(WithAPIURL(server.URL+"/latest"), WithTarget(linuxTarget(t)))
	version, err := NewInstaller(checker, WithBundleDir(dir)).Install(context.Background())
	if err != nil {
		t.Fatalf("Install() error: %v", err)
	}
	if version != "2024.04.01" {
		t.Fatalf("version = %q", version)
	}
	got, _ := os.ReadFile(dest)
	if string(got) != "new" {
		t.Fatalf("binary not replaced: %q", got)
	}
}

func TestInstallChecksumMismatch(t *testing.T) {
	server := newFeedServer(t, feed{
		tag:      "2024.03.10",
		assets:   []string{"yt-dlp_linux"},
		payload:  []byte("tampered"),
		checksum: sha([]byte("original")) + "  yt-dlp_linux\n",
	})
	dir := t.TempDir()
	checker := NewChecker(WithAPIURL(server.URL+"/latest"), WithTarget(linuxTarget(t)))

	_, err := NewInstaller(checker, WithBundleDir(dir)).Install(context.Background())
	if !appErrors.IsCode(err, appErrors.CodeInstallFailed) {
		t.Fatalf("expected install_failed, got %v", err)
	}
	if !strings.Contains(err.Error(), "verify checksum") {
		t.Fatalf("expected stage in message, got %q", err.Error())
	}
	if _, statErr := os.Stat(filepath.Join(dir, "yt-dlp_linux")); !os.IsNotExist(statErr) {
		t.Fatalf("binary must not be written after a failed verification")
	}

	// Disabling verification installs anyway.
	if _, err := NewInstaller(checker, WithBundleDir(dir), WithChecksumVerification(false)).Install(context.Background()); err != nil {
		t.Fatalf("Install() without verification: %v", err)
	}
}

func TestInstallAssetNotFound(t *testing.T) {
	server := newFeedServer(t, feed{tag: "2024.03.10", assets: []string{"yt-dlp_macos", "yt-dlp.tar.gz"}})
	checker := NewChecker(WithAPIURL(server.URL+"/latest"), WithTarget(linuxTarget(t)))

	_, err := NewInstaller(checker, WithBundleDir(t.TempDir())).Install(context.Background())
	if !appErrors.IsCode(err, appErrors.CodeAssetNotFound) {
		t.Fatalf("expected asset_not_found, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "resolve asset:") {
		t.Fatalf("expected stage prefix, got %q", err.Error())
	}
}

func TestInstallDownloadFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/latest" {
			_ = json.NewEncoder(w).Encode(ReleaseInfo{
				TagName: "2024.03.10",
				Assets:  []ReleaseAsset{{Name: "yt-dlp_linux", BrowserDownloadURL: "http://" + r.Host + "/missing"}},
			})
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	checker := NewChecker(WithAPIURL(server.URL+"/latest"), WithTarget(linuxTarget(t)))
	_, err := NewInstaller(checker, WithBundleDir(t.TempDir())).Install(context.Background())
	if !appErrors.IsCode(err, appErrors.CodeNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "download:") {
		t.Fatalf("expected stage prefix, got %q", err.Error())
	}
}

func TestInstallBundleDirIsFile(t *testing.T) {
	server := newFeedServer(t, feed{tag: "2024.03.10", assets: []string{"yt-dlp_linux"}, payload: []byte("x")})
	file := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	checker := NewChecker(WithAPIURL(server.URL+"/latest"), WithTarget(linuxTarget(t)))

	_, err := NewInstaller(checker, WithBundleDir(file)).Install(context.Background())
	if !appErrors.IsCode(err, appErrors.CodeInstallFailed) {
		t.Fatalf("expected install_failed, got %v", err)
	}
}

func TestVerifyChecksum(t *testing.T) {
	content := []byte("test content")
	expected := sha(content)

	if err := VerifyChecksum(content, expected); err != nil {
		t.Errorf("VerifyChecksum() with correct checksum: %v", err)
	}
	if err := VerifyChecksum(content, strings.ToUpper(expected)); err != nil {
		t.Errorf("VerifyChecksum() should ignore hex case: %v", err)
	}
	if err := VerifyChecksum(content, "wrong"); err == nil {
		t.Error("VerifyChecksum() should fail with wrong checksum")
	}
}

func TestParseChecksumFile(t *testing.T) {
	input := `# yt-dlp release
abc123  yt-dlp
def456 *yt-dlp.exe
0011ff  ./dist/yt-dlp_linux

malformed-line
`
	sums, err := ParseChecksumFile(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseChecksumFile() error: %v", err)
	}
	want := map[string]string{
		"yt-dlp":       "abc123",
		"yt-dlp.exe":   "def456",
		"yt-dlp_linux": "0011ff",
	}
	if len(sums) != len(want) {
		t.Fatalf("got %d entries, want %d: %v", len(sums), len(want), sums)
	}
	for name, hash := range want {
		if sums[name] != hash {
			t.Errorf("sums[%q] = %q, want %q", name, sums[name], hash)
		}
	}
}
