package supervisor

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"syscall"

	appErrors "vidgrab/internal/errors"
)

// maxTransientRetries bounds consecutive retries of EINTR/EAGAIN reads on
// one stream. The counter resets after every successful read.
const maxTransientRetries = 3

// Stream identifies which child output a line came from.
type Stream int

const (
	Stdout Stream = iota
	Stderr
)

func (s Stream) String() string {
	if s == Stderr {
		return "stderr"
	}
	return "stdout"
}

type line struct {
	stream Stream
	text   string
}

func isTransient(err error) bool {
	return errors.Is(err, syscall.EINTR) || errors.Is(err, syscall.EAGAIN)
}

// readLines sends each non-empty line of r to out until EOF, a non-transient
// error, or stop closes. Partial data read before a transient error is kept
// and the read resumes. It returns nil on EOF and on stop.
func readLines(r io.Reader, stream Stream, out chan<- line, stop <-chan struct{}) error {
	br := bufio.NewReader(r)
	var pending []byte
	retries := 0
	for {
		chunk, err := br.ReadBytes('\n')
		pending = append(pending, chunk...)

		if err != nil && isTransient(err) {
			retries++
			if retries > maxTransientRetries {
				return appErrors.New(appErrors.CodeStreamIO,
					fmt.Sprintf("read %s: gave up after %d interrupted reads", stream, maxTransientRetries), err)
			}
			log.Logf("%s read interrupted, retry %d/%d", stream, retries, maxTransientRetries)
			continue
		}
		retries = 0

		if len(pending) > 0 && (err == nil || err == io.EOF) {
			text := strings.ToValidUTF8(strings.TrimRight(string(pending), "\r\n"), "\uFFFD")
			pending = pending[:0]
			if text != "" {
				select {
				case out <- line{stream: stream, text: text}:
				case <-stop:
					return nil
				}
			}
		}

		switch {
		case err == nil:
		case err == io.EOF || errors.Is(err, io.ErrClosedPipe):
			return nil
		default:
			return appErrors.New(appErrors.CodeStreamIO, fmt.Sprintf("read %s: %v", stream, err), err)
		}
	}
}
