package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"

	appErrors "vidgrab/internal/errors"
)

// CompletionLine is the last output event of a successful session.
const CompletionLine = "Download completed successfully"

// EventKind distinguishes output lines from progress readings.
type EventKind int

const (
	EventOutput EventKind = iota
	EventProgress
)

// Event is one item of a session's event stream.
type Event struct {
	SessionID uuid.UUID
	Kind      EventKind
	Stream    Stream  // set for EventOutput
	Line      string  // set for EventOutput
	Percent   float64 // set for EventProgress
}

// Result is the terminal outcome of a session. Err is nil on success, or
// carries one of the cancelled, download_failed or stream_io codes.
type Result struct {
	SessionID  uuid.UUID
	Request    Request
	ExitCode   int
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
	// StreamErrors holds non-transient read failures. A failed stream stops
	// being drained; the other continues.
	StreamErrors []error
}

// Cancelled reports whether the session ended by cancellation.
func (r Result) Cancelled() bool {
	return appErrors.IsCode(r.Err, appErrors.CodeCancelled)
}

// Session is one managed yt-dlp run.
type Session struct {
	id     uuid.UUID
	req    Request
	events chan Event
	done   chan struct{}

	// mu guards cancel, cancelRequested, cmd and finished. It is never held
	// while blocking.
	mu              sync.Mutex
	cancel          chan struct{} // capacity 1
	cancelRequested bool
	cmd             *exec.Cmd
	finished        bool

	result Result
	// release runs before Done closes, so a finished session never blocks
	// the next Start.
	release func()
}

// ID returns the session identifier.
func (s *Session) ID() uuid.UUID { return s.id }

// Request returns the request the session was started with.
func (s *Session) Request() Request { return s.req }

// Events returns the event stream. It is closed once the session has been
// torn down, after the final event. Callers must keep receiving until then.
func (s *Session) Events() <-chan Event { return s.events }

// Done is closed when the result is available.
func (s *Session) Done() <-chan struct{} { return s.done }

// Wait blocks until the session ends and returns its result.
func (s *Session) Wait() Result {
	<-s.done
	return s.result
}

// Cancel requests cancellation. The first request fills the slot and
// returns true; later requests, or requests after the session ended, are
// no-ops that return false.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	// run empties the slot when it takes the token, so the flag is what
	// keeps the slot single-use.
	if s.finished || s.cancelRequested {
		return false
	}
	s.cancelRequested = true
	s.cancel <- struct{}{}
	return true
}

// Finished reports whether teardown is complete.
func (s *Session) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

type exitStatus struct {
	code int
	err  error
}

// run owns the child from spawn to teardown. stdout and stderr are the read
// ends of the pipes the child writes into; closeWriters closes the write ends.
func (s *Session) run(ctx context.Context, stdout, stderr *io.PipeReader, closeWriters func()) {
	defer close(s.done)
	if s.release != nil {
		defer s.release()
	}

	s.mu.Lock()
	cmd := s.cmd
	cancelSlot := s.cancel
	s.mu.Unlock()

	waitCh := make(chan exitStatus, 1)
	go func() {
		err := cmd.Wait()
		// cmd.Wait returns once its copy goroutines finished writing, so
		// closing here delivers EOF after the last line.
		closeWriters()
		waitCh <- exitStatus{code: exitCode(cmd, err), err: err}
	}()

	stop := make(chan struct{})
	lines := make(chan line)
	streamErrs := make(chan error, 2)
	var readers sync.WaitGroup
	for _, src := range []struct {
		r      *io.PipeReader
		stream Stream
	}{{stdout, Stdout}, {stderr, Stderr}} {
		src := src
		readers.Add(1)
		go func() {
			defer readers.Done()
			if err := readLines(src.r, src.stream, lines, stop); err != nil {
				log.Logf("session %s: %v", s.id, err)
				streamErrs <- err
				// Unblock the child's writer so Wait can return.
				_ = src.r.CloseWithError(err)
			}
		}()
	}
	go func() {
		readers.Wait()
		close(lines)
	}()

	drained := make(chan struct{})
	mark := newWatermark()
	go func() {
		defer close(drained)
		s.drain(lines, stop, mark)
	}()

	var status exitStatus
	cancelled := false
	select {
	case status = <-waitCh:
	case <-cancelSlot:
		cancelled = true
	case <-ctx.Done():
		cancelled = true
	}

	if cancelled {
		log.Logf("session %s: cancelling pid %d", s.id, cmd.Process.Pid)
		if err := cmd.Process.Kill(); err != nil {
			log.Logf("session %s: kill: %v", s.id, err)
		}
		status = <-waitCh
		close(stop)
		_ = stdout.Close()
		_ = stderr.Close()
		<-drained
	} else {
		// Natural exit: the writers are closed, so the drain ends at EOF
		// once every line has been forwarded.
		<-drained
		close(stop)
	}
	readers.Wait()

	s.mu.Lock()
	s.finished = true
	select {
	case <-s.cancel:
	default:
	}
	s.mu.Unlock()

	close(streamErrs)
	for err := range streamErrs {
		s.result.StreamErrors = append(s.result.StreamErrors, err)
	}
	s.result.ExitCode = status.code
	s.result.FinishedAt = time.Now()

	switch {
	case cancelled:
		s.result.Err = appErrors.New(appErrors.CodeCancelled, "download cancelled", ctx.Err())
	case status.code != 0:
		s.result.Err = appErrors.New(appErrors.CodeDownloadFailed,
			fmt.Sprintf("download failed: yt-dlp exited with status %d", status.code), status.err)
	default:
		if !mark.complete() {
			s.events <- Event{SessionID: s.id, Kind: EventProgress, Percent: 100}
		}
		s.events <- Event{SessionID: s.id, Kind: EventOutput, Stream: Stdout, Line: CompletionLine}
	}
	log.Logf("session %s: finished exit=%d err=%v", s.id, status.code, s.result.Err)
	close(s.events)
}

// drain forwards lines as events until lines closes or stop fires.
func (s *Session) drain(lines <-chan line, stop <-chan struct{}, mark *watermark) {
	for {
		select {
		case <-stop:
			return
		case l, ok := <-lines:
			if !ok {
				return
			}
			if !s.emit(Event{SessionID: s.id, Kind: EventOutput, Stream: l.stream, Line: l.text}, stop) {
				return
			}
			if pct, ok := ParseProgress(l.text); ok && mark.admit(pct) {
				if !s.emit(Event{SessionID: s.id, Kind: EventProgress, Percent: pct}, stop) {
					return
				}
			}
		}
	}
}

func (s *Session) emit(ev Event, stop <-chan struct{}) bool {
	select {
	case s.events <- ev:
		return true
	case <-stop:
		return false
	}
}

func exitCode(cmd *exec.Cmd, err error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
