package main

import (
	"fmt"
	"io"
	"strings"

	appErrors "vidgrab/internal/errors"
	"vidgrab/internal/platform"
)

const ytdlpRepoURL = "https://github.com/yt-dlp/yt-dlp"

// exitCancelled matches the shell convention for an interrupted command.
const exitCancelled = 130

// reportError prints a user-facing explanation of err and returns the
// process exit code.
func reportError(w io.Writer, err error) int {
	if err == nil {
		return 0
	}
	switch appErrors.CodeOf(err) {
	case appErrors.CodeNotFound:
		_, _ = fmt.Fprint(w, formatToolNotFoundMessage(bundledName()))
	case appErrors.CodeNetwork, appErrors.CodeTimeout:
		_, _ = fmt.Fprint(w, formatNetworkMessage(err))
	case appErrors.CodeCancelled:
		_, _ = fmt.Fprintln(w, warnStyle.Render("Download cancelled."))
		return exitCancelled
	case appErrors.CodeBusy:
		_, _ = fmt.Fprintln(w, "Error: a download is already in progress")
	default:
		_, _ = fmt.Fprintf(w, "Error: %s\n", errorText(err))
	}
	return 1
}

func bundledName() string {
	t, err := platform.Current()
	if err != nil {
		return platform.ToolName
	}
	return t.BinaryName
}

func formatToolNotFoundMessage(bin string) string {
	if strings.TrimSpace(bin) == "" {
		bin = platform.ToolName
	}
	return fmt.Sprintf(`Error: yt-dlp is required but not found

vidgrab runs yt-dlp to fetch media. It looks for a current copy on your
PATH first, then for %[2]s in its resources directory.

Install yt-dlp:
  See download and installation instructions at:
  %[1]s

Or let vidgrab fetch the latest release for you:
  vidgrab tool update

`, ytdlpRepoURL, bin)
}

func formatNetworkMessage(err error) string {
	return fmt.Sprintf(`Error: could not reach the yt-dlp release feed

Details: %s

Troubleshooting:
  - Check your network connection
  - GitHub may be rate limiting requests; try again later
  - Set release.api-url (or VG_RELEASE_API_URL) to use a mirror

`, errorText(err))
}

func errorText(err error) string {
	if err == nil {
		return "unknown error"
	}
	text := strings.TrimSpace(err.Error())
	if text == "" {
		return "unknown error"
	}
	return text
}
