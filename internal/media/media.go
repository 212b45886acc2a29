// Package media queries yt-dlp for video metadata and the MP4 formats
// offered for a URL.
package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"sort"
	"strconv"
	"strings"

	appErrors "vidgrab/internal/errors"
	"vidgrab/internal/resolver"
)

var youtubePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^https?://(www\.)?(youtube\.com|youtu\.be)/.+`),
	regexp.MustCompile(`^https?://m\.youtube\.com/.+`),
	regexp.MustCompile(`^https?://youtube\.com/shorts/.+`),
	regexp.MustCompile(`^https?://(www\.)?youtube\.com/watch\?v=[\w-]+`),
	regexp.MustCompile(`^https?://youtu\.be/[\w-]+`),
	regexp.MustCompile(`^https?://(www\.)?youtube\.com/embed/[\w-]+`),
	regexp.MustCompile(`^https?://(www\.)?youtube\.com/v/[\w-]+`),
}

// IsYouTubeURL reports whether raw looks like a YouTube video URL.
func IsYouTubeURL(raw string) bool {
	url := strings.TrimSpace(raw)
	if url == "" {
		return false
	}
	for _, p := range youtubePatterns {
		if p.MatchString(url) {
			return true
		}
	}
	return false
}

// ValidateURL returns an invalid_url error unless raw is a YouTube URL.
func ValidateURL(raw string) error {
	if IsYouTubeURL(raw) {
		return nil
	}
	return appErrors.New(appErrors.CodeInvalidURL,
		fmt.Sprintf("%q is not a YouTube video URL", strings.TrimSpace(raw)), nil)
}

// Info is the metadata shown before downloading.
type Info struct {
	Title     string `json:"title"`
	Duration  *int64 `json:"duration,omitempty"`
	Uploader  string `json:"uploader,omitempty"`
	ViewCount *int64 `json:"view_count,omitempty"`
}

// Format is one selectable video format.
type Format struct {
	ID           string
	Resolution   string
	Ext          string
	Filesize     int64
	QualityLabel string
	width        int
}

// Client runs metadata queries against a yt-dlp binary.
type Client struct {
	bin    string
	runner resolver.CommandRunner
}

// NewClient creates a client for bin. A nil runner uses os/exec.
func NewClient(bin string, runner resolver.CommandRunner) *Client {
	if runner == nil {
		runner = resolver.ExecRunner{}
	}
	return &Client{bin: bin, runner: runner}
}

// Info fetches title, duration, uploader and view count without downloading.
func (c *Client) Info(ctx context.Context, url string) (*Info, error) {
	out, err := c.run(ctx, "--dump-json", "--no-download", "--no-warnings", url)
	if err != nil {
		return nil, err
	}
	var raw struct {
		Title     string   `json:"title"`
		Duration  *float64 `json:"duration"`
		Uploader  *string  `json:"uploader"`
		ViewCount *int64   `json:"view_count"`
	}
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, appErrors.New(appErrors.CodeParseFailed, fmt.Sprintf("parse yt-dlp output: %v", err), err)
	}
	info := &Info{Title: raw.Title, ViewCount: raw.ViewCount}
	if info.Title == "" {
		info.Title = "Unknown Title"
	}
	if raw.Uploader != nil {
		info.Uploader = *raw.Uploader
	}
	if raw.Duration != nil && *raw.Duration >= 0 {
		d := int64(*raw.Duration)
		info.Duration = &d
	}
	return info, nil
}

type rawFormat struct {
	FormatID       string   `json:"format_id"`
	Ext            string   `json:"ext"`
	VCodec         string   `json:"vcodec"`
	Resolution     string   `json:"resolution"`
	Width          int      `json:"width"`
	Height         int      `json:"height"`
	Filesize       *int64   `json:"filesize"`
	FilesizeApprox *int64   `json:"filesize_approx"`
	FPS            *float64 `json:"fps"`
}

// Formats lists MP4 video formats, one per resolution (the largest file
// wins), widest first.
func (c *Client) Formats(ctx context.Context, url string) ([]Format, error) {
	out, err := c.run(ctx, "-J", "--no-warnings", url)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Formats []rawFormat `json:"formats"`
	}
	if err := json.Unmarshal(out, &doc); err != nil {
		return nil, appErrors.New(appErrors.CodeParseFailed, fmt.Sprintf("parse yt-dlp output: %v", err), err)
	}
	return selectFormats(doc.Formats), nil
}

func selectFormats(raw []rawFormat) []Format {
	byRes := make(map[string]Format)
	var order []string
	for _, rf := range raw {
		if rf.VCodec == "none" || rf.Ext != "mp4" {
			continue
		}
		f := toFormat(rf)
		existing, seen := byRes[f.Resolution]
		if !seen {
			order = append(order, f.Resolution)
			byRes[f.Resolution] = f
			continue
		}
		if f.Filesize > existing.Filesize {
			byRes[f.Resolution] = f
		}
	}

	formats := make([]Format, 0, len(order))
	for _, res := range order {
		formats = append(formats, byRes[res])
	}
	sort.SliceStable(formats, func(i, j int) bool {
		return formats[i].width > formats[j].width
	})
	return formats
}

func toFormat(rf rawFormat) Format {
	id := rf.FormatID
	if id == "" {
		id = "unknown"
	}
	resolution := rf.Resolution
	if resolution == "" {
		if rf.Width > 0 && rf.Height > 0 {
			resolution = fmt.Sprintf("%dx%d", rf.Width, rf.Height)
		} else {
			resolution = "unknown"
		}
	}
	var size int64
	switch {
	case rf.Filesize != nil:
		size = *rf.Filesize
	case rf.FilesizeApprox != nil:
		size = *rf.FilesizeApprox
	}

	ext := strings.ToUpper(rf.Ext)
	label := fmt.Sprintf("Format %s (%s)", id, ext)
	if resolution != "unknown" {
		label = fmt.Sprintf("%s (%s)", resolution, ext)
		if rf.FPS != nil {
			label += fmt.Sprintf(" @ %dfps", int(*rf.FPS))
		}
	}

	width, _ := strconv.Atoi(strings.SplitN(resolution, "x", 2)[0])
	return Format{ID: id, Resolution: resolution, Ext: rf.Ext, Filesize: size, QualityLabel: label, width: width}
}

func (c *Client) run(ctx context.Context, args ...string) ([]byte, error) {
	out, err := c.runner.Run(ctx, c.bin, args...)
	if err == nil {
		return out, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		msg := strings.TrimSpace(string(exitErr.Stderr))
		if msg == "" {
			msg = exitErr.Error()
		}
		return nil, appErrors.New(appErrors.CodeDownloadFailed, "yt-dlp error: "+msg, err)
	}
	return nil, appErrors.New(appErrors.CodeSpawnFailed, fmt.Sprintf("run %s: %v", c.bin, err), err)
}
