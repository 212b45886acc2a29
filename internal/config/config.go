package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

const (
	KeyDownloadDir     = "download.dir"
	KeyDownloadQuality = "download.quality"

	KeyToolBundleDir          = "tool.bundle-dir"
	KeyToolSkipFreshnessCheck = "tool.skip-freshness-check"
	KeyToolProbeTimeout       = "tool.probe-timeout"
	KeyReleaseAPIURL          = "release.api-url"
	KeyReleaseCacheTTL        = "release.cache-ttl"
	KeyHistoryEnabled         = "history.enabled"
	KeyHistoryPath            = "history.path"
	KeyOutputPlain            = "output.plain"
	KeyDebug                  = "debug"
)

const (
	// DefaultReleaseAPIURL is the upstream "latest release" endpoint of yt-dlp.
	DefaultReleaseAPIURL = "https://api.github.com/repos/yt-dlp/yt-dlp/releases/latest"
	// DefaultProbeTimeout bounds the system binary version probe.
	DefaultProbeTimeout = 5 * time.Second
	// DefaultCacheTTL is how long the latest release version stays fresh.
	DefaultCacheTTL = time.Hour
	// DefaultQuality is the format preset used when none is given.
	DefaultQuality = "best"

	dirName      = ".vidgrab"
	fileName     = "config.yaml"
	envPrefix    = "VG"
	historyDB    = "history.db"
	downloadsDir = "Downloads"
)

// ErrInvalidDownloadDir is returned when a download location is not an existing directory.
var ErrInvalidDownloadDir = errors.New("download location must be an existing directory")

type initSettings struct {
	workingDir        string
	projectConfigPath string
	userConfigPath    string
}

// Option configures Initialize behaviour. Useful for tests to override paths.
type Option func(*initSettings)

// WithWorkingDir overrides the directory used for project config discovery.
func WithWorkingDir(dir string) Option {
	return func(cfg *initSettings) {
		cfg.workingDir = dir
	}
}

// WithProjectConfig explicitly sets the project config path instead of discovery.
func WithProjectConfig(path string) Option {
	return func(cfg *initSettings) {
		cfg.projectConfigPath = path
	}
}

// WithUserConfig overrides the default user config path.
func WithUserConfig(path string) Option {
	return func(cfg *initSettings) {
		cfg.userConfigPath = path
	}
}

var (
	configOnce sync.Once
	configMu   sync.RWMutex
	configInst *viper.Viper
	resolved   initSettings
	initErr    error
)

// Initialize loads configuration using the precedence:
// defaults < user config < project config < environment variables < overrides.
func Initialize(opts ...Option) error {
	configOnce.Do(func() {
		settings := initSettings{}
		for _, opt := range opts {
			opt(&settings)
		}
		initErr = configure(&settings)
	})
	return initErr
}

// ApplyOverrides injects values typically coming from CLI flags.
func ApplyOverrides(overrides map[string]any) error {
	if len(overrides) == 0 {
		return nil
	}
	if err := Initialize(); err != nil {
		return err
	}
	configMu.Lock()
	defer configMu.Unlock()
	if configInst == nil {
		return fmt.Errorf("configuration not initialized")
	}
	for k, v := range overrides {
		configInst.Set(k, v)
	}
	return nil
}

// GetString fetches a string configuration value, initializing on demand.
func GetString(key string) string {
	v, err := getViper()
	if err != nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool fetches a bool configuration value, initializing on demand.
func GetBool(key string) bool {
	v, err := getViper()
	if err != nil {
		return false
	}
	return v.GetBool(key)
}

// GetDuration fetches a duration configuration value, initializing on demand.
func GetDuration(key string) time.Duration {
	v, err := getViper()
	if err != nil {
		return 0
	}
	return v.GetDuration(key)
}

// ProbeTimeout returns the configured version probe bound, falling back to
// the default for non-positive values.
func ProbeTimeout() time.Duration {
	if d := GetDuration(KeyToolProbeTimeout); d > 0 {
		return d
	}
	return DefaultProbeTimeout
}

// CacheTTL returns the configured release cache lifetime.
func CacheTTL() time.Duration {
	if d := GetDuration(KeyReleaseCacheTTL); d > 0 {
		return d
	}
	return DefaultCacheTTL
}

// HistoryPath returns the SQLite history file, defaulting under ~/.vidgrab.
func HistoryPath() (string, error) {
	if p := strings.TrimSpace(GetString(KeyHistoryPath)); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determine user home: %w", err)
	}
	return filepath.Join(home, dirName, historyDB), nil
}

// DownloadDir returns the configured download directory when it exists,
// otherwise the user's Downloads directory.
func DownloadDir() (string, error) {
	if dir := strings.TrimSpace(GetString(KeyDownloadDir)); dir != "" {
		if isDir(dir) {
			return dir, nil
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determine Downloads directory: %w", err)
	}
	return filepath.Join(home, downloadsDir), nil
}

// SaveDownloadDir validates dir and persists it to the writable config file.
// If a project config exists it is updated, otherwise the user config is.
func SaveDownloadDir(dir string) error {
	dir = strings.TrimSpace(dir)
	if !isDir(dir) {
		return fmt.Errorf("%w: %s", ErrInvalidDownloadDir, dir)
	}
	targetPath, err := findWritableConfigPath()
	if err != nil {
		return fmt.Errorf("find config path: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(targetPath)
	_ = v.ReadInConfig() // a missing file just starts empty
	v.Set(KeyDownloadDir, dir)

	//nolint:gosec // G301: user config directory needs standard permissions
	if err := os.MkdirAll(filepath.Dir(targetPath), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := v.WriteConfigAs(targetPath); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return Set(KeyDownloadDir, dir)
}

// Set updates a configuration key at runtime, initializing on demand.
func Set(key string, value any) error {
	if err := Initialize(); err != nil {
		return err
	}
	configMu.Lock()
	defer configMu.Unlock()
	if configInst == nil {
		return fmt.Errorf("configuration not initialized")
	}
	configInst.Set(key, value)
	return nil
}

func configure(settings *initSettings) error {
	workingDir := strings.TrimSpace(settings.workingDir)
	if workingDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("determine working directory: %w", err)
		}
		workingDir = wd
	}

	userConfigPath := strings.TrimSpace(settings.userConfigPath)
	if userConfigPath == "" {
		path, err := defaultUserConfigPath()
		if err != nil {
			return err
		}
		userConfigPath = path
	}

	projectConfigPath := strings.TrimSpace(settings.projectConfigPath)
	if projectConfigPath == "" {
		path, err := findProjectConfig(workingDir)
		if err != nil {
			return err
		}
		projectConfigPath = path
	}

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := mergeConfigFile(v, userConfigPath); err != nil {
		return fmt.Errorf("load user config: %w", err)
	}
	if err := mergeConfigFile(v, projectConfigPath); err != nil {
		return fmt.Errorf("load project config: %w", err)
	}

	configMu.Lock()
	defer configMu.Unlock()
	configInst = v
	resolved = initSettings{
		workingDir:        workingDir,
		projectConfigPath: projectConfigPath,
		userConfigPath:    userConfigPath,
	}
	return nil
}

func mergeConfigFile(v *viper.Viper, path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config path %s is a directory", path)
	}
	//nolint:gosec // G304: config loader intentionally reads user and project config files
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := v.MergeConfig(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determine user home: %w", err)
	}
	return filepath.Join(home, dirName, fileName), nil
}

func findProjectConfig(startDir string) (string, error) {
	if strings.TrimSpace(startDir) == "" {
		return "", nil
	}
	dir := startDir
	for {
		candidate := filepath.Join(dir, dirName, fileName)
		info, err := os.Stat(candidate)
		if err == nil {
			if info.IsDir() {
				return "", fmt.Errorf("config path %s is a directory", candidate)
			}
			return candidate, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("stat %s: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyDownloadDir, "")
	v.SetDefault(KeyDownloadQuality, DefaultQuality)
	v.SetDefault(KeyToolBundleDir, "")
	v.SetDefault(KeyToolSkipFreshnessCheck, false)
	v.SetDefault(KeyToolProbeTimeout, DefaultProbeTimeout)
	v.SetDefault(KeyReleaseAPIURL, DefaultReleaseAPIURL)
	v.SetDefault(KeyReleaseCacheTTL, DefaultCacheTTL)
	v.SetDefault(KeyHistoryEnabled, true)
	v.SetDefault(KeyHistoryPath, "")
	v.SetDefault(KeyOutputPlain, false)
	v.SetDefault(KeyDebug, false)
}

func getViper() (*viper.Viper, error) {
	if err := Initialize(); err != nil {
		return nil, err
	}
	configMu.RLock()
	defer configMu.RUnlock()
	if configInst == nil {
		return nil, fmt.Errorf("configuration not initialized")
	}
	return configInst, nil
}

// findWritableConfigPath returns the project config if one was discovered,
// otherwise the user config.
func findWritableConfigPath() (string, error) {
	if err := Initialize(); err != nil {
		return "", err
	}
	configMu.RLock()
	defer configMu.RUnlock()
	if resolved.projectConfigPath != "" {
		if _, err := os.Stat(resolved.projectConfigPath); err == nil {
			return resolved.projectConfigPath, nil
		}
	}
	if resolved.userConfigPath != "" {
		return resolved.userConfigPath, nil
	}
	return defaultUserConfigPath()
}

func isDir(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// reset clears package state for tests.
func reset() {
	configMu.Lock()
	defer configMu.Unlock()
	configInst = nil
	initErr = nil
	resolved = initSettings{}
	configOnce = sync.Once{}
}

// ResetForTesting clears package state for tests in other packages.
// Returns a cleanup function that should be deferred.
func ResetForTesting(t interface{ TempDir() string }) func() {
	reset()
	tmp := t.TempDir()
	_ = Initialize(WithWorkingDir(tmp), WithUserConfig(filepath.Join(tmp, fileName)))
	return reset
}
