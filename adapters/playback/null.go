package playback

import (
	"go.uber.org/zap"

	"github.com/hanifka/lentera/domain/entities"
)

// NullSink discards audio. It keeps the session fully functional on
// headless hosts where no playback binary is available; transcripts,
// insights, and observers all still work.
type NullSink struct {
	logger *zap.Logger
}

func NewNullSink(logger *zap.Logger) *NullSink {
	logger.Warn("Audio playback disabled, inbound audio will be discarded")
	return &NullSink{logger: logger}
}

func (s *NullSink) Play(chunk entities.AudioChunk) error { return nil }

func (s *NullSink) Flush() error { return nil }

func (s *NullSink) Close() error { return nil }
