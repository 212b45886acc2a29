package supervisor

import (
	"regexp"
	"strconv"

	"github.com/charmbracelet/x/ansi"
)

var progressPattern = regexp.MustCompile(`\[download\]\s+(\d+(?:\.\d+)?)%`)

// ParseProgress extracts the percentage from a "[download]  NN.N%" line.
// Terminal escape sequences are ignored and the value is clamped to [0, 100].
func ParseProgress(line string) (float64, bool) {
	m := progressPattern.FindStringSubmatch(ansi.Strip(line))
	if m == nil {
		return 0, false
	}
	pct, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return min(max(pct, 0), 100), true
}

// watermark admits only values strictly above the last admitted one.
// Not safe for concurrent use; the drain loop owns it.
type watermark struct {
	last float64
}

func newWatermark() *watermark {
	return &watermark{last: -1}
}

func (w *watermark) admit(pct float64) bool {
	if pct <= w.last {
		return false
	}
	w.last = pct
	return true
}

func (w *watermark) complete() bool {
	return w.last >= 100
}
