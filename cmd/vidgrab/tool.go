package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/reflow/wordwrap"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"vidgrab/internal/app"
	"vidgrab/internal/update"
)

const notesWidth = 80

func newToolCommand(e *env) *cobra.Command {
	tool := &cobra.Command{
		Use:   "tool",
		Short: "Inspect and update the yt-dlp binary",
	}
	tool.AddCommand(
		&cobra.Command{
			Use:   "version",
			Short: "Show the yt-dlp version in use and where it came from",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return e.withApp(cmd.Context(), func(a *app.App) error {
					r := e.newReporter(e.stderr)
					r.Stage(stageResolving, "")
					tv, err := a.ToolVersion(cmd.Context())
					r.Stop()
					if err != nil {
						return err
					}
					_, _ = fmt.Fprintln(e.stdout, field("yt-dlp", tv.Version))
					_, _ = fmt.Fprintln(e.stdout, field("source", tv.Source))
					_, _ = fmt.Fprintln(e.stdout, field("path", tv.Path))
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "check",
			Short: "Check whether a newer yt-dlp release is available",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return e.withApp(cmd.Context(), func(a *app.App) error {
					r := e.newReporter(e.stderr)
					r.Stage(stageCheckingRelease, "")
					info, err := a.CheckUpdate(cmd.Context())
					r.Stop()
					if err != nil {
						return err
					}
					printUpdateInfo(e.stdout, info, notesRenderer(e.interactive()))
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "update",
			Short: "Download the latest yt-dlp release into the resources directory",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return e.withApp(cmd.Context(), func(a *app.App) error {
					r := e.newReporter(e.stderr)
					r.Stage(stageInstalling, "")
					version, err := a.UpdateTool(cmd.Context())
					r.Stop()
					if err != nil {
						return err
					}
					_, _ = fmt.Fprintf(e.stdout, "%s yt-dlp %s installed\n", successStyle.Render("Updated:"), version)
					return nil
				})
			},
		},
	)
	return tool
}

func printUpdateInfo(w io.Writer, info *update.UpdateInfo, render func(string) string) {
	_, _ = fmt.Fprintln(w, field("current", info.CurrentVersion))
	_, _ = fmt.Fprintln(w, field("latest", info.LatestVersion))
	if !info.PublishedAt.IsZero() {
		_, _ = fmt.Fprintln(w, field("published", info.PublishedAt.Format("2006-01-02")))
	}
	if !info.UpdateAvailable {
		_, _ = fmt.Fprintln(w, successStyle.Render("yt-dlp is up to date."))
		return
	}
	_, _ = fmt.Fprintln(w, warnStyle.Render("An update is available. Run 'vidgrab tool update' to install it."))
	if info.ReleaseURL != "" {
		_, _ = fmt.Fprintln(w, field("release", info.ReleaseURL))
	}
	if notes := strings.TrimSpace(info.ReleaseNotes); notes != "" {
		_, _ = fmt.Fprintln(w)
		_, _ = fmt.Fprintln(w, render(notes))
	}
}

// notesRenderer renders release notes markdown with glamour on a terminal,
// picking the style from the terminal background, and word-wraps otherwise.
func notesRenderer(terminal bool) func(string) string {
	fallback := func(input string) string {
		return wordwrap.String(input, notesWidth)
	}
	if !terminal {
		return fallback
	}
	style := "light"
	if termenv.HasDarkBackground() {
		style = "dark"
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(notesWidth),
	)
	if err != nil {
		return fallback
	}
	return func(input string) string {
		out, err := renderer.Render(input)
		if err != nil {
			return fallback(input)
		}
		return strings.TrimSpace(out)
	}
}
