package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"vidgrab/internal/app"
	"vidgrab/internal/media"
)

func newInfoCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "info URL",
		Short: "Show a video's title, uploader, duration and views",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withApp(cmd.Context(), func(a *app.App) error {
				r := e.newReporter(e.stderr)
				r.Stage(stageProbing, "")
				info, err := a.Info(cmd.Context(), args[0])
				r.Stop()
				if err != nil {
					return err
				}
				printInfo(e.stdout, info)
				return nil
			})
		},
	}
}

func newFormatsCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "formats URL",
		Short: "List the MP4 formats available for a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withApp(cmd.Context(), func(a *app.App) error {
				r := e.newReporter(e.stderr)
				r.Stage(stageProbing, "")
				formats, err := a.Formats(cmd.Context(), args[0])
				r.Stop()
				if err != nil {
					return err
				}
				printFormats(e.stdout, formats)
				return nil
			})
		},
	}
}

func printInfo(w io.Writer, info *media.Info) {
	_, _ = fmt.Fprintln(w, titleStyle.Render(info.Title))
	if info.Uploader != "" {
		_, _ = fmt.Fprintln(w, field("uploader", info.Uploader))
	}
	if info.Duration != nil {
		_, _ = fmt.Fprintln(w, field("duration", formatClock(time.Duration(*info.Duration)*time.Second)))
	}
	if info.ViewCount != nil {
		_, _ = fmt.Fprintln(w, field("views", groupDigits(*info.ViewCount)))
	}
}

func printFormats(w io.Writer, formats []media.Format) {
	if len(formats) == 0 {
		_, _ = fmt.Fprintln(w, labelStyle.Render("No MP4 video formats available."))
		return
	}
	for _, f := range formats {
		_, _ = fmt.Fprintf(w, "%s %s %s\n",
			accentStyle.Width(8).Render(f.ID),
			valueStyle.Width(28).Render(f.QualityLabel),
			labelStyle.Render(formatBytes(f.Filesize)))
	}
	_, _ = fmt.Fprintln(w, labelStyle.Render("Use an id with: vidgrab download -q <id> URL"))
}

// formatClock renders a media duration as H:MM:SS or M:SS.
func formatClock(d time.Duration) string {
	total := int(d.Seconds())
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func groupDigits(n int64) string {
	raw := strconv.FormatInt(n, 10)
	sign := ""
	if n < 0 {
		sign, raw = "-", raw[1:]
	}
	var out []byte
	for i := range raw {
		if i > 0 && (len(raw)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, raw[i])
	}
	return sign + string(out)
}
