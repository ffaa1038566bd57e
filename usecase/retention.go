package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RetentionService handles background pruning of expired saved sessions
type RetentionService struct {
	history   *HistoryService
	retention time.Duration
	logger    *zap.Logger
	stopChan  chan struct{}
}

// NewRetentionService creates a new retention service
func NewRetentionService(history *HistoryService, retention time.Duration, logger *zap.Logger) *RetentionService {
	return &RetentionService{
		history:   history,
		retention: retention,
		logger:    logger,
		stopChan:  make(chan struct{}),
	}
}

// Start begins the background pruning process. A non-positive retention
// disables pruning entirely.
func (s *RetentionService) Start() {
	if s.retention <= 0 {
		s.logger.Info("Session retention disabled, saved sessions are kept forever")
		return
	}
	go s.pruneLoop()
	s.logger.Info("Session retention service started",
		zap.Duration("retention", s.retention))
}

// Stop gracefully stops the retention service
func (s *RetentionService) Stop() {
	close(s.stopChan)
	s.logger.Info("Session retention service stopped")
}

// pruneLoop runs the pruning process periodically
func (s *RetentionService) pruneLoop() {
	// Run pruning every 30 minutes
	ticker := time.NewTicker(30 * time.Minute)
	defer ticker.Stop()

	// Run initial pruning after 1 minute
	initialTimer := time.NewTimer(1 * time.Minute)
	defer initialTimer.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-initialTimer.C:
			s.runPrune()
			// Initial timer only runs once
		case <-ticker.C:
			s.runPrune()
		}
	}
}

// runPrune performs the actual removal of expired sessions
func (s *RetentionService) runPrune() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pruned, err := s.history.PruneOlderThan(ctx, s.retention)
	if err != nil {
		s.logger.Error("Failed to prune expired sessions", zap.Error(err))
		return
	}

	if pruned > 0 {
		s.logger.Info("Pruned expired sessions", zap.Int("count", pruned))
	}
}
