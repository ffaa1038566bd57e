package entities

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the speaker of a transcript message.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// ChatMessage is one turn-fragment of dialogue. While IsComplete is false
// the message is the open message for its role and the unique target for
// further deltas of that role; once complete it is never mutated again.
type ChatMessage struct {
	ID         string    `json:"id" bson:"id"`
	Role       Role      `json:"role" bson:"role"`
	Text       string    `json:"text" bson:"text"`
	IsComplete bool      `json:"is_complete" bson:"is_complete"`
	Timestamp  time.Time `json:"timestamp" bson:"timestamp"`
}

// NewChatMessage creates an open or completed message for the given role.
func NewChatMessage(role Role, text string, complete bool) ChatMessage {
	return ChatMessage{
		ID:         uuid.NewString(),
		Role:       role,
		Text:       text,
		IsComplete: complete,
		Timestamp:  time.Now(),
	}
}
