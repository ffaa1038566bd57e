package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hanifka/lentera/domain/entities"
	"github.com/hanifka/lentera/domain/repositories"
)

// HistoryService persists finished sessions and serves them back for
// review. Summaries are generated best-effort: a summarizer failure
// downgrades the save to a summary-less record, it never fails the save.
type HistoryService struct {
	sessions   repositories.SessionRepository
	summarizer repositories.Summarizer
	logger     *zap.Logger
}

// NewHistoryService creates a new history service. The summarizer may be
// nil when no summarization backend is configured.
func NewHistoryService(
	sessions repositories.SessionRepository,
	summarizer repositories.Summarizer,
	logger *zap.Logger,
) *HistoryService {
	return &HistoryService{
		sessions:   sessions,
		summarizer: summarizer,
		logger:     logger,
	}
}

// SaveConversation stores the finished session's message log. Sessions
// with no messages are not worth keeping and are skipped.
func (s *HistoryService) SaveConversation(ctx context.Context, sessionID string, messages []entities.ChatMessage) (*entities.SavedSession, error) {
	if len(messages) == 0 {
		s.logger.Debug("Skipping save of empty session", zap.String("sessionID", sessionID))
		return nil, nil
	}

	saved := entities.NewSavedSession(sessionID, messages)
	if err := saved.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session record: %w", err)
	}

	if s.summarizer != nil {
		summary, err := s.summarizer.Summarize(ctx, messages)
		if err != nil {
			s.logger.Warn("Failed to summarize session, saving without summary",
				zap.String("sessionID", sessionID),
				zap.Error(err))
		} else {
			saved.Summary = summary
		}
	}

	if err := s.sessions.Save(ctx, saved); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	s.logger.Info("Session saved",
		zap.String("sessionID", saved.ID),
		zap.Int("messages", len(saved.Messages)))
	return saved, nil
}

// Resume loads a saved session's full message log for replay.
func (s *HistoryService) Resume(ctx context.Context, sessionID string) (*entities.SavedSession, error) {
	saved, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if saved == nil {
		return nil, nil
	}
	return saved, nil
}

// List returns saved sessions, most recent first.
func (s *HistoryService) List(ctx context.Context) ([]*entities.SavedSession, error) {
	sessions, err := s.sessions.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// Delete removes a saved session. Deleting an absent session is not an
// error.
func (s *HistoryService) Delete(ctx context.Context, sessionID string) error {
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	s.logger.Info("Session deleted", zap.String("sessionID", sessionID))
	return nil
}

// PruneOlderThan removes saved sessions past the retention window and
// reports how many were removed.
func (s *HistoryService) PruneOlderThan(ctx context.Context, retention time.Duration) (int, error) {
	if retention <= 0 {
		return 0, nil
	}
	sessions, err := s.sessions.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions: %w", err)
	}

	cutoff := time.Now().Add(-retention)
	pruned := 0
	for _, saved := range sessions {
		if saved.Timestamp.After(cutoff) {
			continue
		}
		if err := s.sessions.Delete(ctx, saved.ID); err != nil {
			s.logger.Error("Failed to prune session",
				zap.String("sessionID", saved.ID),
				zap.Error(err))
			continue
		}
		pruned++
	}
	return pruned, nil
}
