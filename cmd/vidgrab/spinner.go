package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

const (
	defaultSpinnerInterval = 120 * time.Millisecond
	// defaultSpinnerDelay keeps fast commands free of spinner flicker.
	defaultSpinnerDelay = 300 * time.Millisecond
)

// stage names a slow step shown by the spinner.
type stage int

const (
	stageResolving stage = iota
	stageProbing
	stageCheckingRelease
	stageInstalling
	stageStarting
)

// statusReporter receives stage updates for long-running commands.
type statusReporter interface {
	Stage(st stage, detail string)
	Stop()
}

type noopReporter struct{}

func (noopReporter) Stage(stage, string) {}
func (noopReporter) Stop()               {}

type spinnerEvent struct {
	stage  stage
	detail string
}

type statusSpinner struct {
	writer        io.Writer
	delay         time.Duration
	frameInterval time.Duration
	frames        []rune

	events chan spinnerEvent
	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once

	mu       sync.Mutex
	frameIdx int
}

func newStatusSpinner(w io.Writer, delay time.Duration) *statusSpinner {
	return newCustomStatusSpinner(w, delay, defaultSpinnerInterval)
}

func newCustomStatusSpinner(w io.Writer, delay, frameInterval time.Duration) *statusSpinner {
	if w == nil {
		w = io.Discard
	}
	sp := &statusSpinner{
		writer:        w,
		delay:         delay,
		frameInterval: frameInterval,
		frames:        []rune{'|', '/', '-', '\\'},
		events:        make(chan spinnerEvent, 8),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
	go sp.loop()
	return sp
}

func (s *statusSpinner) Stage(st stage, detail string) {
	if s == nil {
		return
	}
	select {
	case <-s.stopCh:
		return
	default:
	}
	select {
	case s.events <- spinnerEvent{stage: st, detail: detail}:
	default:
	}
}

func (s *statusSpinner) Stop() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		close(s.stopCh)
		<-s.doneCh
	})
}

func (s *statusSpinner) loop() {
	defer close(s.doneCh)

	var delayCh <-chan time.Time
	if s.delay > 0 {
		timer := time.NewTimer(s.delay)
		defer timer.Stop()
		delayCh = timer.C
	}

	ticker := time.NewTicker(s.frameInterval)
	defer ticker.Stop()

	var current spinnerEvent
	hasStage := false
	visible := s.delay == 0

	for {
		select {
		case <-s.stopCh:
			if visible {
				s.clearLine()
			}
			return
		case ev := <-s.events:
			current = ev
			hasStage = true
			if visible {
				s.render(current)
			}
		case <-ticker.C:
			if visible && hasStage {
				s.render(current)
			}
		case <-delayCh:
			delayCh = nil
			visible = true
			if hasStage {
				s.render(current)
			}
		}
	}
}

func (s *statusSpinner) render(ev spinnerEvent) {
	frame := s.nextFrame()
	message := formatStageMessage(ev.stage, ev.detail)
	_, _ = fmt.Fprintf(s.writer, "\r\033[2K%c %s", frame, message)
}

func (s *statusSpinner) clearLine() {
	_, _ = fmt.Fprint(s.writer, "\r\033[2K")
}

func (s *statusSpinner) nextFrame() rune {
	s.mu.Lock()
	defer s.mu.Unlock()
	frame := s.frames[s.frameIdx%len(s.frames)]
	s.frameIdx++
	return frame
}

var stageMessages = map[stage]string{
	stageResolving:       "Looking for yt-dlp...",
	stageProbing:         "Asking yt-dlp about the video...",
	stageCheckingRelease: "Checking the latest yt-dlp release...",
	stageInstalling:      "Installing yt-dlp...",
	stageStarting:        "Starting download...",
}

func formatStageMessage(st stage, detail string) string {
	msg := stageMessages[st]
	if strings.TrimSpace(msg) == "" {
		msg = "Working..."
	}
	detail = strings.TrimSpace(detail)
	if detail == "" {
		return msg
	}
	return fmt.Sprintf("%s - %s", msg, detail)
}
