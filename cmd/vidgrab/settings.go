package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"vidgrab/internal/app"
	"vidgrab/internal/history"
)

func newConfigCommand(e *env) *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Show or change settings",
	}
	cfg.AddCommand(
		&cobra.Command{
			Use:   "get-dir",
			Short: "Print the download directory",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return e.withApp(cmd.Context(), func(a *app.App) error {
					dir, err := a.DownloadDir()
					if err != nil {
						return err
					}
					_, _ = fmt.Fprintln(e.stdout, dir)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "set-dir PATH",
			Short: "Set the download directory (must already exist)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return e.withApp(cmd.Context(), func(a *app.App) error {
					if err := a.SetDownloadDir(args[0]); err != nil {
						return err
					}
					_, _ = fmt.Fprintf(e.stdout, "%s downloads will be saved to %s\n", successStyle.Render("Saved:"), args[0])
					return nil
				})
			},
		},
	)
	return cfg
}

func newHistoryCommand(e *env) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent downloads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withApp(cmd.Context(), func(a *app.App) error {
				if !a.HistoryEnabled() {
					_, _ = fmt.Fprintln(e.stdout, labelStyle.Render("Download history is disabled (history.enabled: false)."))
					return nil
				}
				entries, err := a.History(cmd.Context(), limit)
				if err != nil {
					return err
				}
				printHistory(e.stdout, entries)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of entries to show")
	return cmd
}

func printHistory(w io.Writer, entries []history.Entry) {
	if len(entries) == 0 {
		_, _ = fmt.Fprintln(w, labelStyle.Render("No downloads recorded yet."))
		return
	}
	for _, entry := range entries {
		when := entry.StartedAt.Local().Format("2006-01-02 15:04")
		line := fmt.Sprintf("%s %s %s", labelStyle.Render(when), statusBadge(entry.Status), valueStyle.Render(entry.URL))
		if !entry.FinishedAt.IsZero() {
			line += " " + labelStyle.Render("("+formatDuration(entry.FinishedAt.Sub(entry.StartedAt).Round(time.Second))+")")
		}
		_, _ = fmt.Fprintln(w, line)
		if entry.Status == history.StatusFailed && entry.Message != "" {
			_, _ = fmt.Fprintln(w, "    "+errorStyle.Render(entry.Message))
		}
	}
}

func statusBadge(s history.Status) string {
	label := fmt.Sprintf("%-9s", s)
	switch s {
	case history.StatusSucceeded:
		return successStyle.Render(label)
	case history.StatusFailed:
		return errorStyle.Render(label)
	case history.StatusCancelled:
		return warnStyle.Render(label)
	default:
		return accentStyle.Render(label)
	}
}
