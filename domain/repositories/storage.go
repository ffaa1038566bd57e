package repositories

import (
	"context"

	"github.com/hanifka/lentera/domain/entities"
)

// SessionRepository persists finished conversations keyed by session id.
// The storage format is an opaque blob; only these four operations are
// required of it.
type SessionRepository interface {
	// Save inserts or updates in place when the id already exists.
	Save(ctx context.Context, session *entities.SavedSession) error
	// Load returns nil without error when no session has the id.
	Load(ctx context.Context, id string) (*entities.SavedSession, error)
	// List returns saved sessions, most recent first.
	List(ctx context.Context) ([]*entities.SavedSession, error)
	Delete(ctx context.Context, id string) error
}
