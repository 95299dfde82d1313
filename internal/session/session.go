// Package session tracks the lifecycle of one pipeline run per chat user.
//
// Sessions live in memory only and are lost on restart. A user may hold at
// most one non-terminal session; terminal sessions linger until the
// dispatcher removes them or a new run replaces them.
package session

import (
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusPlanning     Status = "planning"
	StatusImplementing Status = "implementing"
	StatusBuilding     Status = "building"
	StatusDeploying    Status = "deploying"
	StatusDone         Status = "done"
	StatusError        Status = "error"
	StatusCancelled    Status = "cancelled"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// IsTerminal returns true for done, error and cancelled.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusDone, StatusError, StatusCancelled:
		return true
	default:
		return false
	}
}

// Mode selects how ambitious the generated app is.
type Mode string

const (
	// ModeLight asks for a minimal app with few screens.
	ModeLight Mode = "light"
	// ModeFull asks for a complete app with more features.
	ModeFull Mode = "full"
)

// String returns the string representation of the mode.
func (m Mode) String() string {
	return string(m)
}

// ParseMode parses "light" or "full", case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeLight:
		return ModeLight, nil
	case ModeFull:
		return ModeFull, nil
	default:
		return "", fmt.Errorf("unknown mode %q: want light or full", s)
	}
}

// ProcessHandle is the part of a running child process a session needs in
// order to cancel it.
type ProcessHandle interface {
	Pid() int
	Terminate(grace time.Duration)
}

// Session is one pipeline run for one user. Values returned by the Store are
// snapshots; change a session only through Store methods.
type Session struct {
	RequestID   string
	UserID      string
	ChannelID   string
	Mode        Mode
	Idea        string
	Status      Status
	StartedAt   time.Time
	DisplayName string
	// Phase is the label of the phase currently running, if any.
	Phase string
	// Process is the child process of the running phase, if any.
	Process ProcessHandle
}

// Elapsed returns the time since the session started, truncated to seconds.
func (s Session) Elapsed(now time.Time) time.Duration {
	return now.Sub(s.StartedAt).Truncate(time.Second)
}

// Name returns the display name if one was set, else the idea.
func (s Session) Name() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return s.Idea
}
