package supervisor

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"vidgrab/internal/debug"
	appErrors "vidgrab/internal/errors"
)

const (
	// DefaultWaitDelay bounds how long Wait keeps copying output after the
	// child exits, e.g. when a grandchild still holds the pipes.
	DefaultWaitDelay = 2 * time.Second

	eventBuffer = 256
)

var log = debug.For("supervisor")

// CommandFactory builds the child command. Tests substitute a helper process.
type CommandFactory func(name string, args ...string) *exec.Cmd

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithCommandFactory replaces exec.Command.
func WithCommandFactory(f CommandFactory) Option {
	return func(s *Supervisor) {
		s.newCmd = f
	}
}

// WithWaitDelay overrides DefaultWaitDelay.
func WithWaitDelay(d time.Duration) Option {
	return func(s *Supervisor) {
		s.waitDelay = d
	}
}

// Supervisor starts sessions and keeps a registry of live ones.
type Supervisor struct {
	newCmd    CommandFactory
	waitDelay time.Duration

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
	active   *Session
}

// New creates a Supervisor.
func New(opts ...Option) *Supervisor {
	s := &Supervisor{
		newCmd:    exec.Command,
		waitDelay: DefaultWaitDelay,
		sessions:  make(map[uuid.UUID]*Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start spawns binPath for req and returns the running session. It fails
// with a busy error while another session is active and with spawn_failed
// if the process cannot be started. Cancelling ctx cancels the session.
func (s *Supervisor) Start(ctx context.Context, binPath string, req Request) (*Session, error) {
	if strings.TrimSpace(req.URL) == "" {
		return nil, appErrors.New(appErrors.CodeInvalidURL, "download URL is empty", nil)
	}

	s.mu.Lock()
	if s.active != nil {
		id := s.active.id
		s.mu.Unlock()
		return nil, appErrors.New(appErrors.CodeBusy, fmt.Sprintf("download %s is already running", id), nil)
	}
	sess := &Session{
		id:     uuid.New(),
		req:    req,
		events: make(chan Event, eventBuffer),
		done:   make(chan struct{}),
		cancel: make(chan struct{}, 1),
	}
	s.active = sess
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()
	cmd := s.newCmd(binPath, BuildArgs(req)...)
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW
	cmd.WaitDelay = s.waitDelay

	log.Logf("session %s: %s %s", sess.id, binPath, strings.Join(cmd.Args[1:], " "))
	sess.result = Result{SessionID: sess.id, Request: req, StartedAt: time.Now()}
	if err := cmd.Start(); err != nil {
		_ = stdoutW.Close()
		_ = stderrW.Close()
		s.release(sess)
		return nil, appErrors.New(appErrors.CodeSpawnFailed, fmt.Sprintf("start %s: %v", binPath, err), err)
	}

	sess.mu.Lock()
	sess.cmd = cmd
	sess.mu.Unlock()

	closeWriters := func() {
		_ = stdoutW.Close()
		_ = stderrW.Close()
	}
	sess.release = func() { s.release(sess) }
	go sess.run(ctx, stdoutR, stderrR, closeWriters)
	return sess, nil
}

func (s *Supervisor) release(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sess.id)
	if s.active == sess {
		s.active = nil
	}
}

// Cancel requests cancellation of the session with id. Unknown or finished
// sessions are ignored.
func (s *Supervisor) Cancel(id uuid.UUID) bool {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return false
	}
	return sess.Cancel()
}

// Lookup returns a live session by id.
func (s *Supervisor) Lookup(id uuid.UUID) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Active returns the running session, if any.
func (s *Supervisor) Active() (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active, s.active != nil
}
