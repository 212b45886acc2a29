// Package resolver decides which yt-dlp executable to run: a system copy
// that is at least as new as the latest upstream release, or the copy
// bundled next to the application.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"vidgrab/internal/debug"
	appErrors "vidgrab/internal/errors"
	"vidgrab/internal/platform"
	"vidgrab/internal/update"
)

// DefaultProbeTimeout bounds the system copy's --version call.
const DefaultProbeTimeout = 5 * time.Second

var log = debug.For("resolver")

// Origin records where a resolved binary came from.
type Origin int

const (
	// System is a copy found on PATH.
	System Origin = iota
	// Bundled is a copy shipped in a resource directory.
	Bundled
)

func (o Origin) String() string {
	switch o {
	case System:
		return "system"
	case Bundled:
		return "bundled"
	default:
		return "unknown"
	}
}

// Binary is the resolved executable. It is shared by every caller and must
// not be modified.
type Binary struct {
	Path   string
	Origin Origin
	// Version is the probed version of a system copy; empty for bundled copies.
	Version string
}

// CommandRunner executes external commands, allowing tests to inject stubs.
type CommandRunner interface {
	Run(ctx context.Context, bin string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec and returns their stdout.
type ExecRunner struct{}

// Run implements CommandRunner.
func (ExecRunner) Run(ctx context.Context, bin string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.WaitDelay = time.Second
	return cmd.Output()
}

// LookPathFunc resolves a binary reference to an executable path.
type LookPathFunc func(bin string) (string, error)

// VersionSource reports the latest upstream version.
type VersionSource interface {
	LatestVersion(ctx context.Context) (string, error)
}

// Options configure discovery.
type Options struct {
	Target       platform.Target
	LookPath     LookPathFunc
	Runner       CommandRunner
	Versions     VersionSource
	ResourceDirs []string
	ProbeTimeout time.Duration
	// SkipFreshnessCheck accepts any responsive system copy without
	// consulting the release feed.
	SkipFreshnessCheck bool
}

// Resolver memoizes a single discovery for its lifetime.
type Resolver struct {
	opts Options

	once   sync.Once
	binary *Binary
	err    error
}

// New creates a Resolver, filling unset options with production defaults.
func New(opts Options) *Resolver {
	if opts.LookPath == nil {
		opts.LookPath = exec.LookPath
	}
	if opts.Runner == nil {
		opts.Runner = ExecRunner{}
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = DefaultProbeTimeout
	}
	if opts.ResourceDirs == nil {
		opts.ResourceDirs = platform.DefaultResourceDirs()
	}
	return &Resolver{opts: opts}
}

// Resolve runs discovery once; concurrent first callers wait for it and
// every caller receives the same *Binary or the same error. The first
// caller's context governs the discovery.
func (r *Resolver) Resolve(ctx context.Context) (*Binary, error) {
	r.once.Do(func() {
		r.binary, r.err = r.discover(ctx)
		if r.err != nil {
			log.Logf("discovery failed: %v", r.err)
			return
		}
		log.Logf("using %s copy at %s", r.binary.Origin, r.binary.Path)
	})
	return r.binary, r.err
}

func (r *Resolver) discover(ctx context.Context) (*Binary, error) {
	if bin, ok := r.freshSystemCopy(ctx); ok {
		return bin, nil
	}
	if path, ok := platform.FindBundled(r.opts.Target, r.opts.ResourceDirs); ok {
		return &Binary{Path: path, Origin: Bundled}, nil
	}
	return nil, appErrors.New(appErrors.CodeNotFound, fmt.Sprintf(
		"%s not found: install it on PATH or run 'vidgrab tool update' to download %s",
		platform.ToolName, r.opts.Target.BinaryName), nil)
}

// freshSystemCopy returns the PATH copy when it answers within the probe
// bound and is current-or-newer than the latest release.
func (r *Resolver) freshSystemCopy(ctx context.Context) (*Binary, bool) {
	name := r.opts.Target.SystemName()
	path, err := r.opts.LookPath(name)
	if err != nil {
		log.Logf("%s not on PATH: %v", name, err)
		return nil, false
	}

	installed, err := ProbeVersion(ctx, r.opts.Runner, path, r.opts.ProbeTimeout)
	if err != nil {
		log.Logf("system copy %s unusable: %v", path, err)
		return nil, false
	}

	if r.opts.SkipFreshnessCheck || r.opts.Versions == nil {
		return &Binary{Path: path, Origin: System, Version: installed}, true
	}

	latest, err := r.opts.Versions.LatestVersion(ctx)
	if err != nil {
		log.Logf("latest version unavailable, not trusting system copy: %v", err)
		return nil, false
	}
	fresh, err := update.Compare(installed, latest)
	if err != nil {
		log.Logf("compare %q with %q: %v", installed, latest, err)
		return nil, false
	}
	if !fresh {
		log.Logf("system copy %s is older than %s", installed, latest)
		return nil, false
	}
	return &Binary{Path: path, Origin: System, Version: installed}, true
}

// ProbeVersion runs "<path> --version" bounded by timeout and returns the
// first line of output. Exceeding the bound yields a timeout error.
func ProbeVersion(ctx context.Context, runner CommandRunner, path string, timeout time.Duration) (string, error) {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := runner.Run(probeCtx, path, "--version")
	if err != nil {
		if errors.Is(probeCtx.Err(), context.DeadlineExceeded) {
			return "", appErrors.New(appErrors.CodeTimeout,
				fmt.Sprintf("%s --version did not answer within %s", path, timeout), err)
		}
		return "", fmt.Errorf("run %s --version: %w", path, err)
	}

	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	version := strings.TrimSpace(line)
	if version == "" {
		return "", appErrors.New(appErrors.CodeInvalidVersion,
			fmt.Sprintf("%s --version printed nothing", path), nil)
	}
	return version, nil
}
