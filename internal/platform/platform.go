// Package platform maps the running OS and architecture to the yt-dlp
// binary naming convention and the directories a bundled copy may live in.
package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// ToolName is the base name of the supervised executable.
const ToolName = "yt-dlp"

// Target describes one supported platform.
type Target struct {
	OS   string
	Arch string
	// BinaryName is both the bundled file name and the upstream asset name.
	BinaryName string
	// Tokens are lower-case fragments an asset name must contain at least
	// one of when no exact or substring match exists.
	Tokens []string
	// WantsExe reports whether release assets must carry a .exe suffix.
	WantsExe bool
}

// SystemName is the executable name looked up on PATH.
func (t Target) SystemName() string {
	if t.WantsExe {
		return ToolName + ".exe"
	}
	return ToolName
}

func (t Target) String() string {
	return t.OS + "/" + t.Arch
}

var targets = []Target{
	{OS: "windows", Arch: "*", BinaryName: "yt-dlp.exe", Tokens: []string{"yt-dlp.exe"}, WantsExe: true},
	{OS: "darwin", Arch: "*", BinaryName: "yt-dlp_macos", Tokens: []string{"macos"}},
	{OS: "linux", Arch: "arm64", BinaryName: "yt-dlp_linux_arm64", Tokens: []string{"linux", "arm64", "aarch64"}},
	{OS: "linux", Arch: "*", BinaryName: "yt-dlp_linux", Tokens: []string{"linux"}},
}

// Lookup returns the target for goos/goarch. Rows are matched in order so
// specific architectures win over the wildcard row for the same OS.
func Lookup(goos, goarch string) (Target, error) {
	for _, t := range targets {
		if t.OS != goos {
			continue
		}
		if t.Arch == "*" || t.Arch == goarch {
			out := t
			out.Arch = goarch
			return out, nil
		}
	}
	return Target{}, fmt.Errorf("unsupported platform %s/%s", goos, goarch)
}

// Current returns the target for the running process.
func Current() (Target, error) {
	return Lookup(runtime.GOOS, runtime.GOARCH)
}

// devResourceDir is the repository-relative fallback used when running from a checkout.
const devResourceDir = "resources"

// ResourceDirs lists candidate bundle directories for an executable at
// exePath, in priority order. On macOS app bundles the Contents/Resources
// layout comes first.
func ResourceDirs(goos, exePath string) []string {
	exeDir := filepath.Dir(exePath)
	dirs := []string{
		filepath.Join(exeDir, "resources"),
		filepath.Join(exeDir, "..", "resources"),
		filepath.Join(exeDir, "..", "..", "resources"),
		devResourceDir,
	}
	if goos == "darwin" {
		bundle := []string{filepath.Join(exeDir, "..", "Resources", "resources")}
		if strings.Contains(filepath.ToSlash(exeDir), "Contents/MacOS") {
			bundle = append(bundle, filepath.Join(exeDir, "..", "..", "Resources", "resources"))
		}
		dirs = append(bundle, dirs...)
	}
	return dirs
}

// DefaultResourceDirs returns ResourceDirs for the running executable.
func DefaultResourceDirs() []string {
	exe, err := os.Executable()
	if err != nil {
		return []string{devResourceDir}
	}
	return ResourceDirs(runtime.GOOS, exe)
}

// BundleDir returns the first existing directory among dirs. When none
// exists the last candidate is created and returned.
func BundleDir(dirs []string) (string, error) {
	if len(dirs) == 0 {
		return "", fmt.Errorf("no resource directories configured")
	}
	for _, dir := range dirs {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir, nil
		}
	}
	fallback := dirs[len(dirs)-1]
	//nolint:gosec // G301: bundled binaries must stay readable by the user
	if err := os.MkdirAll(fallback, 0o755); err != nil {
		return "", fmt.Errorf("create resource directory: %w", err)
	}
	return fallback, nil
}

// FindBundled returns the first existing regular file named t.BinaryName in dirs.
func FindBundled(t Target, dirs []string) (string, bool) {
	for _, dir := range dirs {
		candidate := filepath.Join(dir, t.BinaryName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
	}
	return "", false
}
