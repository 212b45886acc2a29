package history

import (
	"fmt"
	"strings"

	appErrors "vidgrab/internal/errors"
)

// Status is the lifecycle state of a recorded download.
type Status string

const (
	StatusUnknown   Status = ""
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

var validStatuses = map[Status]struct{}{
	StatusRunning:   {},
	StatusSucceeded: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

// ParseStatus normalises and validates a stored status string.
func ParseStatus(raw string) (Status, error) {
	status := Status(strings.ToLower(strings.TrimSpace(raw)))
	if err := status.Validate(); err != nil {
		return StatusUnknown, err
	}
	return status, nil
}

// Validate ensures the status is one of the known states.
func (s Status) Validate() error {
	if _, ok := validStatuses[s]; !ok {
		label := string(s)
		if label == "" {
			label = "blank"
		}
		return appErrors.New(appErrors.CodeInvalidStatus, fmt.Sprintf("invalid status: %s", label), nil)
	}
	return nil
}

// IsTerminal reports whether the download has ended.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCancelled
}

// CanTransitionTo allows only running to a terminal state.
func (s Status) CanTransitionTo(target Status) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if err := target.Validate(); err != nil {
		return err
	}
	if s == StatusRunning && target.IsTerminal() {
		return nil
	}
	return appErrors.New(appErrors.CodeInvalidTransition,
		fmt.Sprintf("cannot transition from %s to %s", s, target), nil)
}

// StatusFor classifies a session's terminal error.
func StatusFor(err error) Status {
	switch {
	case err == nil:
		return StatusSucceeded
	case appErrors.IsCode(err, appErrors.CodeCancelled):
		return StatusCancelled
	default:
		return StatusFailed
	}
}
