package update

import (
	"fmt"
	"strconv"
	"strings"

	appErrors "vidgrab/internal/errors"
)

// NightlyPrefix marks a nightly build identifier.
const NightlyPrefix = "nightly@"

// Version is a parsed yt-dlp version identifier.
type Version struct {
	Year    uint64
	Month   uint64
	Day     uint64
	Time    uint64 // only meaningful for nightly builds
	Nightly bool
	Raw     string
}

// ParseVersion parses "Y.M.D" or "nightly@Y.M.D[.HHMMSS]". A leading 'v' is
// tolerated. Year, month and day are required; a malformed component is an
// error rather than a zero.
func ParseVersion(s string) (Version, error) {
	raw := strings.TrimSpace(s)
	body := raw
	v := Version{Raw: raw}
	if rest, ok := strings.CutPrefix(body, NightlyPrefix); ok {
		v.Nightly = true
		body = rest
	}
	body = strings.TrimPrefix(body, "v")

	parts := strings.Split(body, ".")
	if len(parts) < 3 {
		return Version{}, invalidVersion(raw, "expected year.month.day")
	}

	fields := []*uint64{&v.Year, &v.Month, &v.Day}
	names := []string{"year", "month", "day"}
	for i, dst := range fields {
		n, err := strconv.ParseUint(parts[i], 10, 64)
		if err != nil {
			return Version{}, invalidVersion(raw, names[i]+" is not a number")
		}
		*dst = n
	}

	// Stable releases occasionally carry a build suffix ("2024.03.10.1");
	// only nightlies order on the fourth component.
	if v.Nightly && len(parts) > 3 {
		n, err := strconv.ParseUint(parts[3], 10, 64)
		if err != nil {
			return Version{}, invalidVersion(raw, "time is not a number")
		}
		v.Time = n
	}
	return v, nil
}

func invalidVersion(raw, reason string) error {
	return appErrors.New(appErrors.CodeInvalidVersion,
		fmt.Sprintf("invalid version %q: %s", raw, reason), nil)
}

func (v Version) String() string {
	return v.Raw
}

// AtLeast reports whether v is current-or-newer than other.
// Dates decide first. On the same date a nightly beats a stable release,
// two nightlies compare by time, and two stable releases are equal.
func (v Version) AtLeast(other Version) bool {
	if v.Year != other.Year {
		return v.Year > other.Year
	}
	if v.Month != other.Month {
		return v.Month > other.Month
	}
	if v.Day != other.Day {
		return v.Day > other.Day
	}
	switch {
	case v.Nightly && other.Nightly:
		return v.Time >= other.Time
	case v.Nightly != other.Nightly:
		return v.Nightly
	default:
		return true
	}
}

// Compare reports whether a is current-or-newer than b.
func Compare(a, b string) (bool, error) {
	va, err := ParseVersion(a)
	if err != nil {
		return false, err
	}
	vb, err := ParseVersion(b)
	if err != nil {
		return false, err
	}
	return va.AtLeast(vb), nil
}
