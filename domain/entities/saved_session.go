package entities

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

const previewMaxRunes = 80

// SavedSession is a persisted completed conversation. It is created once
// per session lifecycle and updated in place when the same session is
// saved again before closing.
type SavedSession struct {
	ID        string        `json:"id" bson:"_id"`
	Timestamp time.Time     `json:"timestamp" bson:"timestamp"`
	Preview   string        `json:"preview" bson:"preview"`
	Messages  []ChatMessage `json:"messages" bson:"messages"`
	Summary   string        `json:"summary,omitempty" bson:"summary,omitempty"`
}

// NewSavedSession builds a persistable snapshot of a conversation. The
// preview is derived from the first user message.
func NewSavedSession(id string, messages []ChatMessage) *SavedSession {
	s := &SavedSession{
		ID:        id,
		Timestamp: time.Now(),
		Messages:  append([]ChatMessage(nil), messages...),
	}
	s.Preview = derivePreview(messages)
	return s
}

// Validate validates the saved session data.
func (s *SavedSession) Validate() error {
	if s.ID == "" {
		return errors.New("session id is required")
	}
	if len(s.Messages) == 0 {
		return errors.New("session has no messages")
	}
	return nil
}

func derivePreview(messages []ChatMessage) string {
	for _, m := range messages {
		text := strings.TrimSpace(m.Text)
		if m.Role != RoleUser || text == "" {
			continue
		}
		if utf8.RuneCountInString(text) <= previewMaxRunes {
			return text
		}
		runes := []rune(text)
		return string(runes[:previewMaxRunes]) + "…"
	}
	return ""
}
