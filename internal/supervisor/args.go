package supervisor

import (
	"path/filepath"
	"strings"
)

// Named quality presets.
const (
	QualityBest  = "best"
	QualityWorst = "worst"
)

// The presets only select MP4 streams so yt-dlp can merge them without
// re-encoding.
const (
	bestSelector  = "bestvideo[ext=mp4][vcodec^=avc1]+bestaudio[ext=mp4][acodec^=mp4a]/bestvideo[ext=mp4]+bestaudio[ext=mp4]/best[ext=mp4]"
	worstSelector = "worstvideo[ext=mp4][vcodec^=avc1]+worstaudio[ext=mp4][acodec^=mp4a]/worstvideo[ext=mp4]+worstaudio[ext=mp4]/worst[ext=mp4]"

	outputTemplate = "%(title)s.%(ext)s"
)

// Request describes one download.
type Request struct {
	URL string
	// Quality is "best", "worst", or a yt-dlp format id. Empty means best.
	Quality string
	DestDir string
}

// FormatSelector maps a quality preset or format id to a -f expression.
func FormatSelector(quality string) string {
	switch q := strings.TrimSpace(quality); q {
	case "", QualityBest:
		return bestSelector
	case QualityWorst:
		return worstSelector
	default:
		return q + "+bestaudio[ext=mp4]/best[ext=mp4]"
	}
}

// BuildArgs returns the yt-dlp argument list for req. The URL is always last.
func BuildArgs(req Request) []string {
	return []string{
		"--output", filepath.Join(req.DestDir, outputTemplate),
		"--newline",
		"--progress",
		"--no-warnings",
		"--merge-output-format", "mp4",
		"-f", FormatSelector(req.Quality),
		req.URL,
	}
}
