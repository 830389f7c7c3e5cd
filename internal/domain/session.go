package domain

import "time"

// Session holds the state of one voice interaction. It is never shared
// between conversations.
type Session struct {
	ID            string    `json:"id"`
	AssistantMode bool      `json:"assistant_mode"`
	New           bool      `json:"new,omitempty"`
	UpdatedAt     time.Time `json:"updated_at,omitempty"`
}

func NewSession(id string) Session {
	return Session{ID: id, New: true}
}

// WithAssistantMode returns a copy of the session with the mode set.
func (s Session) WithAssistantMode(on bool) Session {
	s.AssistantMode = on
	return s
}
