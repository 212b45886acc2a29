package main

import (
	"context"
	"io"
	"os"

	"github.com/atotto/clipboard"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"vidgrab/internal/app"
	"vidgrab/internal/config"
	"vidgrab/internal/debug"
)

// env carries the collaborators commands depend on, so tests can swap them.
type env struct {
	stdout io.Writer
	stderr io.Writer
	stdin  io.Reader

	newApp func(ctx context.Context) (*app.App, error)
	// interactive reports whether the progress view can take over the terminal.
	interactive func() bool
	copyText    func(string) error
	newReporter func(w io.Writer) statusReporter
}

func defaultEnv() *env {
	return &env{
		stdout:      os.Stdout,
		stderr:      os.Stderr,
		stdin:       os.Stdin,
		newApp:      app.FromConfig,
		interactive: stdoutIsTerminal,
		copyText:    clipboard.WriteAll,
		newReporter: func(w io.Writer) statusReporter {
			if !stdoutIsTerminal() {
				return noopReporter{}
			}
			return newStatusSpinner(w, defaultSpinnerDelay)
		},
	}
}

func stdoutIsTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func newRootCommand(e *env) *cobra.Command {
	var debugFlag bool
	root := &cobra.Command{
		Use:   "vidgrab",
		Short: "vidgrab downloads videos with a managed yt-dlp",
		Long: `vidgrab downloads videos with yt-dlp. It finds a current yt-dlp on your PATH
or falls back to a bundled copy it can keep up to date, and shows live progress.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := applyFlagOverrides(cmd, map[string]string{"debug": config.KeyDebug}); err != nil {
				return err
			}
			if !config.GetBool(config.KeyDebug) {
				return nil
			}
			return debug.Init(true, "")
		},
	}
	root.SetOut(e.stdout)
	root.SetErr(e.stderr)
	root.SetIn(e.stdin)
	root.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Write a debug log to ~/.vidgrab/debug.log")

	root.AddCommand(
		newDownloadCommand(e),
		newInfoCommand(e),
		newFormatsCommand(e),
		newToolCommand(e),
		newConfigCommand(e),
		newHistoryCommand(e),
		newVersionCommand(e),
	)
	return root
}

// applyFlagOverrides layers explicitly set flags over the loaded
// configuration. flagKeys maps flag names to config keys.
func applyFlagOverrides(cmd *cobra.Command, flagKeys map[string]string) error {
	overrides := make(map[string]any)
	for name, key := range flagKeys {
		f := cmd.Flags().Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		overrides[key] = f.Value.String()
	}
	return config.ApplyOverrides(overrides)
}

// withApp builds the App for one command and closes it afterwards.
func (e *env) withApp(ctx context.Context, fn func(*app.App) error) error {
	a, err := e.newApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()
	return fn(a)
}

func newVersionCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the version of vidgrab",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			printVersion(e.stdout)
		},
	}
}
