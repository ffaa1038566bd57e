package repositories

import (
	"context"

	"github.com/hanifka/lentera/domain/entities"
)

// Summarizer derives a short summary of a finished conversation.
type Summarizer interface {
	Summarize(ctx context.Context, messages []entities.ChatMessage) (string, error)
}
