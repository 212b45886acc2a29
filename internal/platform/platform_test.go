package platform

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		goos, goarch string
		wantBinary   string
		wantSystem   string
		wantTokens   []string
		wantExe      bool
	}{
		{"windows", "amd64", "yt-dlp.exe", "yt-dlp.exe", []string{"yt-dlp.exe"}, true},
		{"darwin", "arm64", "yt-dlp_macos", "yt-dlp", []string{"macos"}, false},
		{"darwin", "amd64", "yt-dlp_macos", "yt-dlp", []string{"macos"}, false},
		{"linux", "amd64", "yt-dlp_linux", "yt-dlp", []string{"linux"}, false},
		{"linux", "arm64", "yt-dlp_linux_arm64", "yt-dlp", []string{"linux", "arm64", "aarch64"}, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.goos+"/"+tt.goarch, func(t *testing.T) {
			got, err := Lookup(tt.goos, tt.goarch)
			if err != nil {
				t.Fatalf("Lookup: %v", err)
			}
			if got.BinaryName != tt.wantBinary {
				t.Fatalf("BinaryName = %q, want %q", got.BinaryName, tt.wantBinary)
			}
			if got.SystemName() != tt.wantSystem {
				t.Fatalf("SystemName = %q, want %q", got.SystemName(), tt.wantSystem)
			}
			if !reflect.DeepEqual(got.Tokens, tt.wantTokens) {
				t.Fatalf("Tokens = %v, want %v", got.Tokens, tt.wantTokens)
			}
			if got.WantsExe != tt.wantExe {
				t.Fatalf("WantsExe = %v, want %v", got.WantsExe, tt.wantExe)
			}
			if got.Arch != tt.goarch {
				t.Fatalf("Arch = %q, want %q", got.Arch, tt.goarch)
			}
		})
	}
}

func TestLookupUnsupported(t *testing.T) {
	if _, err := Lookup("plan9", "386"); err == nil {
		t.Fatalf("expected error for unsupported platform")
	}
}

func TestResourceDirsOrder(t *testing.T) {
	exe := filepath.Join("/opt", "vidgrab", "bin", "vidgrab")
	got := ResourceDirs("linux", exe)
	want := []string{
		filepath.Join("/opt", "vidgrab", "bin", "resources"),
		filepath.Join("/opt", "vidgrab", "resources"),
		filepath.Join("/opt", "resources"),
		"resources",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ResourceDirs = %v, want %v", got, want)
	}
}

func TestResourceDirsMacBundleFirst(t *testing.T) {
	exe := "/Applications/Vidgrab.app/Contents/MacOS/vidgrab"
	got := ResourceDirs("darwin", exe)
	if len(got) != 6 {
		t.Fatalf("expected 6 candidates, got %v", got)
	}
	if want := filepath.Join("/Applications/Vidgrab.app/Contents", "Resources", "resources"); got[0] != want {
		t.Fatalf("first candidate = %q, want %q", got[0], want)
	}
	if got[len(got)-1] != "resources" {
		t.Fatalf("dev fallback should stay last, got %q", got[len(got)-1])
	}
}

func TestFindBundled(t *testing.T) {
	target, err := Lookup("linux", "amd64")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	empty := t.TempDir()
	full := t.TempDir()
	bin := filepath.Join(full, target.BinaryName)
	if err := os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, ok := FindBundled(target, []string{empty, full})
	if !ok || got != bin {
		t.Fatalf("FindBundled = %q, %v; want %q, true", got, ok, bin)
	}
	if _, ok := FindBundled(target, []string{empty}); ok {
		t.Fatalf("expected no match in empty dir")
	}
}

func TestBundleDirCreatesFallback(t *testing.T) {
	tmp := t.TempDir()
	existing := filepath.Join(tmp, "present")
	if err := os.Mkdir(existing, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	got, err := BundleDir([]string{filepath.Join(tmp, "missing"), existing})
	if err != nil || got != existing {
		t.Fatalf("BundleDir = %q, %v; want %q", got, err, existing)
	}

	fallback := filepath.Join(tmp, "dev", "resources")
	got, err = BundleDir([]string{filepath.Join(tmp, "nope"), fallback})
	if err != nil {
		t.Fatalf("BundleDir fallback: %v", err)
	}
	if got != fallback {
		t.Fatalf("BundleDir = %q, want %q", got, fallback)
	}
	if info, err := os.Stat(fallback); err != nil || !info.IsDir() {
		t.Fatalf("fallback not created: %v", err)
	}
}
