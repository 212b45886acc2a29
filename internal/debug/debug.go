// Package debug provides the opt-in debug log for vidgrab.
//
// Logging is off unless Init(true, ...) runs at startup. When enabled, lines
// go to ~/.vidgrab/debug.log (or the path handed to Init), truncated on each
// launch. Components log through a Logger obtained from For so every line
// carries the component name.
package debug

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	// LogFileName is the name of the debug log file.
	LogFileName = "debug.log"
	// LogDirName is the directory under the user's home holding the log file.
	LogDirName = ".vidgrab"
)

var (
	mu      sync.RWMutex
	enabled bool
	logger  *log.Logger
	logFile *os.File

	// getLogPath is a function variable to allow overriding in tests.
	getLogPath = defaultGetLogPath
)

// Init configures the debug log. A non-empty path overrides the default
// location. When enable is false every Logger becomes a no-op.
func Init(enable bool, path string) error {
	mu.Lock()
	defer mu.Unlock()

	closeLocked()
	enabled = enable
	if !enable {
		logger = log.New(io.Discard, "", 0)
		return nil
	}

	logPath := strings.TrimSpace(path)
	if logPath == "" {
		p, err := getLogPath()
		if err != nil {
			return fmt.Errorf("determine log path: %w", err)
		}
		logPath = p
	}

	//nolint:gosec // G301: user state directory uses standard permissions
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	//nolint:gosec // G304: log path comes from the user's home or config
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	logFile = f
	logger = log.New(f, "", log.Ldate|log.Ltime|log.Lmicroseconds)
	logger.Printf("=== vidgrab debug log started at %s ===", time.Now().Format(time.RFC3339))
	return nil
}

// InitWriter enables logging into w. Used by tests and by callers that
// already own an output sink.
func InitWriter(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	closeLocked()
	enabled = w != nil
	if w == nil {
		w = io.Discard
	}
	logger = log.New(w, "", 0)
}

// Close closes the debug log file if open. Safe to call repeatedly.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	closeLocked()
}

func closeLocked() {
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}

// Enabled returns whether debug logging is currently enabled.
func Enabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled
}

// Logger writes lines tagged with a component name.
type Logger struct {
	component string
}

// For returns a Logger for the named component.
func For(component string) Logger {
	return Logger{component: component}
}

// Logf writes a formatted message if debug logging is enabled.
func (l Logger) Logf(format string, v ...any) {
	mu.RLock()
	defer mu.RUnlock()
	if !enabled || logger == nil {
		return
	}
	if l.component == "" {
		logger.Printf(format, v...)
		return
	}
	logger.Printf("[%s] "+format, append([]any{l.component}, v...)...)
}

// Logf writes an untagged formatted message.
func Logf(format string, v ...any) {
	Logger{}.Logf(format, v...)
}

func defaultGetLogPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determine user home: %w", err)
	}
	return filepath.Join(home, LogDirName, LogFileName), nil
}

// GetLogPath returns the default debug log location.
func GetLogPath() (string, error) {
	return getLogPath()
}
