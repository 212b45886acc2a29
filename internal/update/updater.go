package update

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	appErrors "vidgrab/internal/errors"
	"vidgrab/internal/platform"
)

// ChecksumAssetName is the SHA-256 manifest yt-dlp publishes with each release.
const ChecksumAssetName = "SHA2-256SUMS"

// Installer downloads the platform asset and writes it over the bundled copy.
//
// The write is not atomic: a crash mid-write leaves a truncated binary that
// the next install overwrites.
type Installer struct {
	checker        *Checker
	httpClient     *http.Client
	target         platform.Target
	bundleDir      func() (string, error)
	verifyChecksum bool
}

// InstallerOption configures an Installer.
type InstallerOption func(*Installer)

// WithInstallerHTTPClient sets the client used for the binary download.
func WithInstallerHTTPClient(client *http.Client) InstallerOption {
	return func(i *Installer) {
		i.httpClient = client
	}
}

// WithInstallTarget overrides the platform whose binary is installed.
func WithInstallTarget(t platform.Target) InstallerOption {
	return func(i *Installer) {
		i.target = t
	}
}

// WithBundleDir installs into dir instead of the discovered resource directory.
func WithBundleDir(dir string) InstallerOption {
	return func(i *Installer) {
		if dir != "" {
			i.bundleDir = func() (string, error) { return dir, nil }
		}
	}
}

// WithChecksumVerification toggles SHA2-256SUMS verification.
func WithChecksumVerification(enabled bool) InstallerOption {
	return func(i *Installer) {
		i.verifyChecksum = enabled
	}
}

// NewInstaller creates an installer backed by checker.
func NewInstaller(checker *Checker, opts ...InstallerOption) *Installer {
	i := &Installer{
		checker:        checker,
		httpClient:     &http.Client{},
		target:         checker.target,
		bundleDir:      func() (string, error) { return platform.BundleDir(platform.DefaultResourceDirs()) },
		verifyChecksum: true,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Install replaces the bundled binary with the latest release and returns
// the installed version.
func (i *Installer) Install(ctx context.Context) (string, error) {
	assetName := i.target.BinaryName
	if assetName == "" {
		return "", appErrors.New(appErrors.CodeInstallFailed, "resolve asset: unsupported platform", nil)
	}

	release, err := i.checker.FetchLatestRelease(ctx)
	if err != nil {
		return "", stageError("resolve asset", err)
	}
	asset, err := findAsset(release.Assets, assetName, i.target)
	if err != nil {
		return "", stageError("resolve asset", err)
	}
	log.Logf("installing %s from %s", asset.Name, asset.BrowserDownloadURL)

	data, err := i.download(ctx, asset.BrowserDownloadURL)
	if err != nil {
		return "", stageError("download", err)
	}

	if i.verifyChecksum {
		if err := i.verify(ctx, release.Assets, asset.Name, data); err != nil {
			return "", stageError("verify checksum", err)
		}
	}

	dir, err := i.bundleDir()
	if err != nil {
		return "", stageError("locate bundle directory", err)
	}
	//nolint:gosec // G301: bundled binaries must stay readable by the user
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", stageError("create bundle directory", err)
	}

	dest := filepath.Join(dir, i.target.BinaryName)
	//nolint:gosec // G306: the binary must be executable
	if err := os.WriteFile(dest, data, 0o755); err != nil {
		return "", stageError("write binary", err)
	}
	if runtime.GOOS != "windows" {
		//nolint:gosec // G302: the binary must be executable
		if err := os.Chmod(dest, 0o755); err != nil {
			return "", stageError("set permissions", err)
		}
	}
	log.Logf("wrote %d bytes to %s", len(data), dest)

	version, err := i.checker.LatestVersion(ctx)
	if err != nil {
		return "", stageError("query version", err)
	}
	return version, nil
}

// stageError keeps the code of structured errors and labels everything
// else install_failed. The message always names the stage.
func stageError(stage string, err error) error {
	code := appErrors.CodeOf(err)
	if code == appErrors.CodeUnknown {
		code = appErrors.CodeInstallFailed
	}
	return appErrors.New(code, fmt.Sprintf("%s: %v", stage, err), err)
}

func (i *Installer) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/octet-stream")
	req.Header.Set("User-Agent", UserAgent)

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return nil, appErrors.New(appErrors.CodeNetwork, err.Error(), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, appErrors.New(appErrors.CodeNetwork, fmt.Sprintf("status %d", resp.StatusCode), nil)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, appErrors.New(appErrors.CodeNetwork, fmt.Sprintf("read body: %v", err), err)
	}
	return data, nil
}

// verify checks data against the release checksum manifest. Releases
// without a manifest, or whose manifest omits the asset, pass.
func (i *Installer) verify(ctx context.Context, assets []ReleaseAsset, name string, data []byte) error {
	var manifestURL string
	for _, a := range assets {
		if a.Name == ChecksumAssetName {
			manifestURL = a.BrowserDownloadURL
			break
		}
	}
	if manifestURL == "" {
		log.Logf("no %s in release, skipping verification", ChecksumAssetName)
		return nil
	}
	manifest, err := i.download(ctx, manifestURL)
	if err != nil {
		return err
	}
	sums, err := ParseChecksumFile(bytes.NewReader(manifest))
	if err != nil {
		return err
	}
	expected, ok := sums[name]
	if !ok {
		log.Logf("%s has no entry for %s", ChecksumAssetName, name)
		return nil
	}
	return VerifyChecksum(data, expected)
}

// VerifyChecksum compares the SHA-256 of data with an expected hex digest.
func VerifyChecksum(data []byte, expected string) error {
	sum := sha256.Sum256(data)
	actual := hex.EncodeToString(sum[:])
	if !strings.EqualFold(actual, strings.TrimSpace(expected)) {
		return appErrors.New(appErrors.CodeInstallFailed,
			fmt.Sprintf("checksum mismatch: expected %s, got %s", expected, actual), nil)
	}
	return nil
}

// ParseChecksumFile parses "hash  filename" lines into a filename to hash map.
// Binary-mode markers ("*name") and directory prefixes are dropped.
func ParseChecksumFile(r io.Reader) (map[string]string, error) {
	checksums := make(map[string]string)
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		hash := fields[0]
		filename := filepath.Base(strings.TrimPrefix(fields[1], "*"))
		if hash != "" && filename != "" {
			checksums[filename] = hash
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read checksums: %w", err)
	}
	return checksums, nil
}
