package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"
	"github.com/spf13/cobra"

	"vidgrab/internal/app"
	"vidgrab/internal/config"
	"vidgrab/internal/supervisor"
)

type downloadFlags struct {
	quality  string
	output   string
	plain    bool
	copyPath bool
	anyURL   bool
}

func newDownloadCommand(e *env) *cobra.Command {
	var flags downloadFlags
	cmd := &cobra.Command{
		Use:   "download URL",
		Short: "Download a video",
		Long: `Download a video with yt-dlp. Quality is "best", "worst" or a format id
from "vidgrab formats". Press q or Ctrl+C to cancel.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := applyFlagOverrides(cmd, map[string]string{
				"plain":   config.KeyOutputPlain,
				"quality": config.KeyDownloadQuality,
			})
			if err != nil {
				return err
			}
			flags.plain = config.GetBool(config.KeyOutputPlain)
			flags.quality = config.GetString(config.KeyDownloadQuality)
			return runDownload(cmd.Context(), e, args[0], flags)
		},
	}
	cmd.Flags().StringVarP(&flags.quality, "quality", "q", "", "Quality: best, worst or a format id (default from config)")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "Directory to save into (default: configured download directory)")
	cmd.Flags().BoolVar(&flags.plain, "plain", false, "Print tool output line by line instead of the progress view")
	cmd.Flags().BoolVar(&flags.copyPath, "copy-path", false, "Copy the download directory to the clipboard when done")
	cmd.Flags().BoolVar(&flags.anyURL, "any-url", false, "Allow URLs that are not YouTube links")
	return cmd
}

func runDownload(ctx context.Context, e *env, url string, flags downloadFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	interactive := !flags.plain && e.interactive()
	if !interactive {
		// Plain mode cancels on SIGINT through the context.
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(ctx, os.Interrupt)
		defer stop()
	}

	return e.withApp(ctx, func(a *app.App) error {
		reporter := e.newReporter(e.stderr)
		reporter.Stage(stageResolving, "")
		d, err := a.StartDownload(ctx, app.DownloadRequest{
			URL:         url,
			Quality:     flags.quality,
			DestDir:     flags.output,
			AllowAnyURL: flags.anyURL,
		})
		reporter.Stop()
		if err != nil {
			return err
		}

		dest := d.Request().DestDir
		if interactive {
			err = runDownloadView(e, d, url, dest)
		} else {
			streamPlain(e.stdout, d.Events())
		}
		res := d.Wait()
		if err != nil {
			return err
		}
		if herr := d.HistoryErr(); herr != nil {
			_, _ = fmt.Fprintf(e.stderr, "%s could not record download history: %v\n", warnStyle.Render("Warning:"), herr)
		}
		if res.Err != nil {
			return res.Err
		}

		elapsed := res.FinishedAt.Sub(res.StartedAt).Round(time.Second)
		_, _ = fmt.Fprintf(e.stdout, "%s saved to %s in %s (%s yt-dlp)\n",
			successStyle.Render("Done:"), dest, formatDuration(elapsed), d.Binary.Origin)
		if flags.copyPath {
			if err := e.copyText(dest); err != nil {
				_, _ = fmt.Fprintf(e.stderr, "%s could not copy path: %v\n", warnStyle.Render("Warning:"), err)
			} else {
				_, _ = fmt.Fprintln(e.stdout, labelStyle.Render("Copied download directory to clipboard."))
			}
		}
		return nil
	})
}

// streamPlain prints every event until the session closes its stream.
func streamPlain(w io.Writer, events <-chan supervisor.Event) {
	for ev := range events {
		switch ev.Kind {
		case supervisor.EventProgress:
			_, _ = fmt.Fprintf(w, "progress %5.1f%%\n", ev.Percent)
		case supervisor.EventOutput:
			line := strings.TrimRight(ansi.Strip(ev.Line), " ")
			if ev.Stream == supervisor.Stderr {
				_, _ = fmt.Fprintf(w, "! %s\n", line)
				continue
			}
			_, _ = fmt.Fprintln(w, line)
		}
	}
}

func runDownloadView(e *env, d *app.Download, url, dest string) error {
	model := newDownloadModel(d.Events(), d.Cancel, url, dest)
	prog := tea.NewProgram(model,
		tea.WithInput(e.stdin),
		tea.WithOutput(e.stdout),
	)
	if _, err := prog.Run(); err != nil {
		// The view is gone; still drain so the session can finish.
		d.Cancel()
		for range d.Events() {
		}
		return fmt.Errorf("run progress view: %w", err)
	}
	return nil
}
