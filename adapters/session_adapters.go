package adapters

import (
	"context"
	"sync"

	"github.com/go-logr/logr"
)

// LogNotifier writes user-facing notices to a logger, for headless callers.
type LogNotifier struct {
	Log logr.Logger
}

func (n LogNotifier) Notify(_ context.Context, role, message string) error {
	n.Log.Info(message, "role", role)
	return nil
}

// RecordingSession is an in-memory SessionCollaborator. It remembers which roles
// lost their session and the last redirect target.
type RecordingSession struct {
	mu       sync.Mutex
	cleared  map[string]int
	redirect string

	// OnClear, when set, runs after a role is cleared, e.g. to drop cookies.
	OnClear func(role string)
}

func NewRecordingSession() *RecordingSession {
	return &RecordingSession{cleared: make(map[string]int)}
}

func (s *RecordingSession) Clear(_ context.Context, role string) error {
	s.mu.Lock()
	s.cleared[role]++
	hook := s.OnClear
	s.mu.Unlock()
	if hook != nil {
		hook(role)
	}
	return nil
}

func (s *RecordingSession) Redirect(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.redirect = path
	return nil
}

// Cleared returns how many times role's session was cleared.
func (s *RecordingSession) Cleared(role string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cleared[role]
}

// RedirectTarget returns the most recent redirect path, empty if none.
func (s *RecordingSession) RedirectTarget() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.redirect
}
