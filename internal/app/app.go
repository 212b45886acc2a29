// Package app is the command surface shared by every front end: it wires the
// release oracle, resolver, supervisor, installer, media probes, history and
// configuration together.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"vidgrab/internal/config"
	"vidgrab/internal/debug"
	appErrors "vidgrab/internal/errors"
	"vidgrab/internal/history"
	"vidgrab/internal/media"
	"vidgrab/internal/platform"
	"vidgrab/internal/resolver"
	"vidgrab/internal/supervisor"
	"vidgrab/internal/update"
)

var log = debug.For("app")

// BinaryResolver yields the yt-dlp executable to run.
type BinaryResolver interface {
	Resolve(ctx context.Context) (*resolver.Binary, error)
}

// UpdateChecker compares a version against the release feed.
type UpdateChecker interface {
	CheckUpdate(ctx context.Context, current string) (*update.UpdateInfo, error)
}

// ToolInstaller replaces the bundled binary.
type ToolInstaller interface {
	Install(ctx context.Context) (string, error)
}

// Options wire an App. Unset fields disable the operations that need them,
// except Runner, DownloadDir and SaveDownloadDir which default to production
// implementations.
type Options struct {
	Resolver     BinaryResolver
	Checker      UpdateChecker
	Installer    ToolInstaller
	Supervisor   *supervisor.Supervisor
	Runner       resolver.CommandRunner
	History      *history.Store
	ProbeTimeout time.Duration
	Quality      string

	DownloadDir     func() (string, error)
	SaveDownloadDir func(string) error
}

// App exposes download, cancel, probe, tool and settings operations.
type App struct {
	opts Options
}

// New creates an App from explicit dependencies.
func New(opts Options) *App {
	if opts.Runner == nil {
		opts.Runner = resolver.ExecRunner{}
	}
	if opts.Supervisor == nil {
		opts.Supervisor = supervisor.New()
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = resolver.DefaultProbeTimeout
	}
	if strings.TrimSpace(opts.Quality) == "" {
		opts.Quality = config.DefaultQuality
	}
	if opts.DownloadDir == nil {
		opts.DownloadDir = config.DownloadDir
	}
	if opts.SaveDownloadDir == nil {
		opts.SaveDownloadDir = config.SaveDownloadDir
	}
	return &App{opts: opts}
}

// FromConfig builds an App from the loaded configuration. The caller must
// Close it to release the history database.
func FromConfig(ctx context.Context) (*App, error) {
	target, err := platform.Current()
	if err != nil {
		return nil, appErrors.New(appErrors.CodeConfigurationError, err.Error(), err)
	}

	checker := update.NewChecker(
		update.WithAPIURL(config.GetString(config.KeyReleaseAPIURL)),
		update.WithCacheTTL(config.CacheTTL()),
		update.WithTarget(target),
	)

	dirs := platform.DefaultResourceDirs()
	bundleDir := strings.TrimSpace(config.GetString(config.KeyToolBundleDir))
	if bundleDir != "" {
		dirs = append([]string{bundleDir}, dirs...)
	}

	res := resolver.New(resolver.Options{
		Target:             target,
		Versions:           checker,
		ResourceDirs:       dirs,
		ProbeTimeout:       config.ProbeTimeout(),
		SkipFreshnessCheck: config.GetBool(config.KeyToolSkipFreshnessCheck),
	})

	installer := update.NewInstaller(checker,
		update.WithInstallTarget(target),
		update.WithBundleDir(bundleDir),
	)

	var store *history.Store
	if config.GetBool(config.KeyHistoryEnabled) {
		path, err := config.HistoryPath()
		if err != nil {
			return nil, appErrors.New(appErrors.CodeConfigurationError, err.Error(), err)
		}
		store, err = history.Open(ctx, path)
		if err != nil {
			return nil, err
		}
	}

	return New(Options{
		Resolver:     res,
		Checker:      checker,
		Installer:    installer,
		History:      store,
		ProbeTimeout: config.ProbeTimeout(),
		Quality:      config.GetString(config.KeyDownloadQuality),
	}), nil
}

// Close releases the history database, if any.
func (a *App) Close() error {
	if a.opts.History == nil {
		return nil
	}
	return a.opts.History.Close()
}

// ToolVersion is the version and origin of the resolved binary.
type ToolVersion struct {
	Version string
	Source  string
	Path    string
}

// ToolVersion resolves the binary and reports its version.
func (a *App) ToolVersion(ctx context.Context) (ToolVersion, error) {
	bin, err := a.resolve(ctx)
	if err != nil {
		return ToolVersion{}, err
	}
	version := bin.Version
	if version == "" {
		version, err = resolver.ProbeVersion(ctx, a.opts.Runner, bin.Path, a.opts.ProbeTimeout)
		if err != nil {
			return ToolVersion{}, err
		}
	}
	return ToolVersion{Version: version, Source: bin.Origin.String(), Path: bin.Path}, nil
}

// CheckUpdate compares the resolved binary against the latest release.
func (a *App) CheckUpdate(ctx context.Context) (*update.UpdateInfo, error) {
	if a.opts.Checker == nil {
		return nil, appErrors.New(appErrors.CodeConfigurationError, "release checker not configured", nil)
	}
	tv, err := a.ToolVersion(ctx)
	if err != nil {
		return nil, err
	}
	return a.opts.Checker.CheckUpdate(ctx, tv.Version)
}

// UpdateTool installs the latest release over the bundled copy and returns
// its version. The resolver keeps its earlier answer until the next run.
func (a *App) UpdateTool(ctx context.Context) (string, error) {
	if a.opts.Installer == nil {
		return "", appErrors.New(appErrors.CodeConfigurationError, "installer not configured", nil)
	}
	return a.opts.Installer.Install(ctx)
}

// DownloadRequest describes a download to start.
type DownloadRequest struct {
	URL     string
	Quality string
	// DestDir overrides the configured download directory.
	DestDir string
	// AllowAnyURL skips the YouTube URL check.
	AllowAnyURL bool
}

// Download is a running session plus its history record.
type Download struct {
	*supervisor.Session
	Binary *resolver.Binary

	recorded chan struct{}
	result   supervisor.Result
	recErr   error
}

// Wait blocks until the session ends and its outcome has been recorded.
// The events channel must still be drained by the caller.
func (d *Download) Wait() supervisor.Result {
	<-d.recorded
	return d.result
}

// HistoryErr reports a failure to record the outcome. Valid after Wait.
func (d *Download) HistoryErr() error {
	<-d.recorded
	return d.recErr
}

// StartDownload validates the request, resolves the binary and starts a
// session. Only one session may run at a time.
func (a *App) StartDownload(ctx context.Context, req DownloadRequest) (*Download, error) {
	url := strings.TrimSpace(req.URL)
	if !req.AllowAnyURL {
		if err := media.ValidateURL(url); err != nil {
			return nil, err
		}
	} else if url == "" {
		return nil, appErrors.New(appErrors.CodeInvalidURL, "URL is required", nil)
	}

	dest := strings.TrimSpace(req.DestDir)
	if dest == "" {
		var err error
		if dest, err = a.opts.DownloadDir(); err != nil {
			return nil, appErrors.New(appErrors.CodeConfigurationError, err.Error(), err)
		}
	}
	quality := strings.TrimSpace(req.Quality)
	if quality == "" {
		quality = a.opts.Quality
	}

	bin, err := a.resolve(ctx)
	if err != nil {
		return nil, err
	}

	sess, err := a.opts.Supervisor.Start(ctx, bin.Path, supervisor.Request{URL: url, Quality: quality, DestDir: dest})
	if err != nil {
		return nil, err
	}
	log.Logf("session %s started for %s", sess.ID(), url)

	d := &Download{Session: sess, Binary: bin, recorded: make(chan struct{})}
	if a.opts.History != nil {
		// Recorded before the goroutine starts so Finish always has a row.
		d.recErr = a.opts.History.Begin(ctx, history.Entry{
			ID:           sess.ID().String(),
			URL:          url,
			Quality:      quality,
			DestDir:      dest,
			BinaryPath:   bin.Path,
			BinaryOrigin: bin.Origin.String(),
		})
	}
	go a.record(d)
	return d, nil
}

func (a *App) record(d *Download) {
	defer close(d.recorded)
	d.result = d.Session.Wait()
	if a.opts.History == nil || d.recErr != nil {
		return
	}
	message := supervisor.CompletionLine
	if d.result.Err != nil {
		message = d.result.Err.Error()
	}
	// The session context may already be cancelled; the record must still land.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	d.recErr = a.opts.History.Finish(ctx, d.ID().String(), history.StatusFor(d.result.Err), d.result.ExitCode, message)
	if d.recErr != nil {
		log.Logf("record session %s: %v", d.ID(), d.recErr)
	}
}

// Cancel requests cancellation of a session. Unknown or finished sessions
// are ignored and report false.
func (a *App) Cancel(id uuid.UUID) bool {
	return a.opts.Supervisor.Cancel(id)
}

// CancelActive cancels whichever session is running.
func (a *App) CancelActive() bool {
	sess, ok := a.opts.Supervisor.Active()
	if !ok {
		return false
	}
	return sess.Cancel()
}

// Info returns metadata for a YouTube URL.
func (a *App) Info(ctx context.Context, url string) (*media.Info, error) {
	client, err := a.mediaClient(ctx, url)
	if err != nil {
		return nil, err
	}
	return client.Info(ctx, strings.TrimSpace(url))
}

// Formats lists the downloadable MP4 formats of a YouTube URL.
func (a *App) Formats(ctx context.Context, url string) ([]media.Format, error) {
	client, err := a.mediaClient(ctx, url)
	if err != nil {
		return nil, err
	}
	return client.Formats(ctx, strings.TrimSpace(url))
}

func (a *App) mediaClient(ctx context.Context, url string) (*media.Client, error) {
	if err := media.ValidateURL(strings.TrimSpace(url)); err != nil {
		return nil, err
	}
	bin, err := a.resolve(ctx)
	if err != nil {
		return nil, err
	}
	return media.NewClient(bin.Path, a.opts.Runner), nil
}

// DownloadDir returns the directory downloads are written to.
func (a *App) DownloadDir() (string, error) {
	dir, err := a.opts.DownloadDir()
	if err != nil {
		return "", appErrors.New(appErrors.CodeConfigurationError, err.Error(), err)
	}
	return dir, nil
}

// SetDownloadDir persists a new download directory. It must exist.
func (a *App) SetDownloadDir(dir string) error {
	if err := a.opts.SaveDownloadDir(dir); err != nil {
		if errors.Is(err, config.ErrInvalidDownloadDir) {
			return appErrors.New(appErrors.CodeConfigurationError, fmt.Sprintf("invalid directory: %s", dir), err)
		}
		return appErrors.New(appErrors.CodeConfigurationError, fmt.Sprintf("save download directory: %v", err), err)
	}
	return nil
}

// History lists recent downloads, newest first. It is empty when history
// is disabled.
func (a *App) History(ctx context.Context, limit int) ([]history.Entry, error) {
	if a.opts.History == nil {
		return nil, nil
	}
	return a.opts.History.Recent(ctx, limit)
}

// HistoryEnabled reports whether sessions are being recorded.
func (a *App) HistoryEnabled() bool {
	return a.opts.History != nil
}

func (a *App) resolve(ctx context.Context) (*resolver.Binary, error) {
	if a.opts.Resolver == nil {
		return nil, appErrors.New(appErrors.CodeConfigurationError, "resolver not configured", nil)
	}
	return a.opts.Resolver.Resolve(ctx)
}
