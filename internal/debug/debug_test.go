package debug

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitDisabledIsNoop(t *testing.T) {
	resetForTest()
	t.Cleanup(resetForTest)

	if err := Init(false, ""); err != nil {
		t.Fatalf("Init(false) failed: %v", err)
	}
	if Enabled() {
		t.Fatal("Enabled() should be false")
	}
	For("resolver").Logf("ignored %d", 1)
	Logf("ignored")
}

func TestInitWritesToExplicitPath(t *testing.T) {
	resetForTest()
	t.Cleanup(func() {
		Close()
		resetForTest()
	})

	logPath := filepath.Join(t.TempDir(), "nested", LogFileName)
	if err := Init(true, logPath); err != nil {
		t.Fatalf("Init(true) failed: %v", err)
	}
	For("supervisor").Logf("spawned pid=%d", 42)

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	text := string(content)
	if !strings.Contains(text, "debug log started") {
		t.Errorf("missing startup banner: %q", text)
	}
	if !strings.Contains(text, "[supervisor] spawned pid=42") {
		t.Errorf("missing component line: %q", text)
	}
}

func TestInitTruncatesDefaultLog(t *testing.T) {
	resetForTest()
	tmpDir := t.TempDir()
	origGetLogPath := getLogPath
	getLogPath = func() (string, error) {
		return filepath.Join(tmpDir, LogDirName, LogFileName), nil
	}
	t.Cleanup(func() {
		getLogPath = origGetLogPath
		Close()
		resetForTest()
	})

	logPath := filepath.Join(tmpDir, LogDirName, LogFileName)
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(logPath, []byte("stale line\n"), 0600); err != nil {
		t.Fatalf("seed log: %v", err)
	}

	if err := Init(true, ""); err != nil {
		t.Fatalf("Init(true) failed: %v", err)
	}
	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if strings.Contains(string(content), "stale line") {
		t.Error("expected log to be truncated")
	}
}

func TestInitWriterTagsComponent(t *testing.T) {
	resetForTest()
	t.Cleanup(resetForTest)

	var buf bytes.Buffer
	InitWriter(&buf)
	For("update").Logf("cache hit %s", "2024.01.01")
	Logf("plain")

	out := buf.String()
	if !strings.Contains(out, "[update] cache hit 2024.01.01") {
		t.Errorf("unexpected output %q", out)
	}
	if !strings.Contains(out, "plain") {
		t.Errorf("expected untagged line, got %q", out)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	resetForTest()
	t.Cleanup(resetForTest)
	if err := Init(true, filepath.Join(t.TempDir(), LogFileName)); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	Close()
	Close()
}

func TestGetLogPathSuffix(t *testing.T) {
	path, err := GetLogPath()
	if err != nil {
		t.Fatalf("GetLogPath() failed: %v", err)
	}
	if !strings.HasSuffix(path, filepath.Join(LogDirName, LogFileName)) {
		t.Errorf("GetLogPath() = %q", path)
	}
}

func resetForTest() {
	mu.Lock()
	defer mu.Unlock()
	closeLocked()
	enabled = false
	logger = nil
}
