package engine

import (
	"checkline/internal/domain"
	"checkline/internal/events"
)

// State is the lifecycle position of the session's document.
type State string

const (
	StateNone   State = "none"
	StateLoaded State = "loaded"
	StateActive State = "active"
	StateClosed State = "closed"
)

// Session holds the one document being edited.
type Session struct {
	State    State
	FileName string
	Doc      *domain.Document

	changes []Change
}

// Change describes one successful operation; Persist turns it into a change log row.
type Change = events.Entry

func NewSession() *Session {
	return &Session{State: StateNone}
}

// HasDocument reports whether a document is loaded and editable.
func (s *Session) HasDocument() bool {
	return s != nil && s.Doc != nil && (s.State == StateLoaded || s.State == StateActive)
}

// Drain returns the changes recorded since the previous call.
func (s *Session) Drain() []Change {
	out := s.changes
	s.changes = nil
	return out
}

func (s *Session) record(c Change) {
	s.changes = append(s.changes, c)
}
