package audio

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hanifka/lentera/domain/entities"
)

// Clock reports elapsed time on the playback timeline. Separated out so
// tests can drive the timeline directly.
type Clock interface {
	Now() time.Duration
}

type monotonicClock struct {
	start time.Time
}

func (c *monotonicClock) Now() time.Duration {
	return time.Since(c.start)
}

// NewClock returns a monotonic clock starting at zero.
func NewClock() Clock {
	return &monotonicClock{start: time.Now()}
}

// Sink is the audio output the scheduler plays into. Play begins immediate
// playback of one buffer; Flush stops everything currently sounding.
type Sink interface {
	Play(chunk entities.AudioChunk) error
	Flush() error
	Close() error
}

type scheduled struct {
	startTimer *time.Timer
	endTimer   *time.Timer
}

// Scheduler accepts decoded inbound audio buffers and schedules them
// back-to-back with no gap and no overlap. Each buffer's start is pinned to
// the end of the previous one, or to "now" when the agent fell silent and
// resumed.
type Scheduler struct {
	clock      Clock
	sink       Sink
	logger     *zap.Logger
	onSpeaking func(bool)

	mu        sync.Mutex
	nextStart time.Duration
	active    map[uint64]*scheduled
	seq       uint64
	closed    bool
}

// NewScheduler creates a playback scheduler. onSpeaking, when non-nil, is
// notified whenever the agent starts or stops producing audio.
func NewScheduler(clock Clock, sink Sink, logger *zap.Logger, onSpeaking func(bool)) *Scheduler {
	return &Scheduler{
		clock:      clock,
		sink:       sink,
		logger:     logger,
		onSpeaking: onSpeaking,
		active:     make(map[uint64]*scheduled),
	}
}

// Enqueue takes ownership of one decoded buffer and schedules it at the
// timeline cursor. Returns the scheduled start time.
func (s *Scheduler) Enqueue(chunk entities.AudioChunk) time.Duration {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0
	}

	now := s.clock.Now()
	if s.nextStart < now {
		s.nextStart = now
	}
	start := s.nextStart
	s.nextStart += chunk.Duration()

	id := s.seq
	s.seq++
	entry := &scheduled{}
	s.active[id] = entry
	wasSilent := len(s.active) == 1
	entry.startTimer = time.AfterFunc(start-now, func() {
		s.play(id, entry, chunk)
	})
	s.mu.Unlock()

	if wasSilent && s.onSpeaking != nil {
		s.onSpeaking(true)
	}
	return start
}

func (s *Scheduler) play(id uint64, entry *scheduled, chunk entities.AudioChunk) {
	s.mu.Lock()
	if _, ok := s.active[id]; !ok {
		// Flushed before the start timer fired.
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if err := s.sink.Play(chunk); err != nil {
		s.logger.Error("Failed to play audio buffer",
			zap.Duration("duration", chunk.Duration()),
			zap.Error(err))
	}

	s.mu.Lock()
	if _, ok := s.active[id]; ok {
		entry.endTimer = time.AfterFunc(chunk.Duration(), func() {
			s.finish(id)
		})
	}
	s.mu.Unlock()
}

func (s *Scheduler) finish(id uint64) {
	s.mu.Lock()
	if _, ok := s.active[id]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.active, id)
	silent := len(s.active) == 0
	s.mu.Unlock()

	if silent && s.onSpeaking != nil {
		s.onSpeaking(false)
	}
}

// Speaking reports whether the agent is currently producing audio, i.e.
// whether any buffer is scheduled or sounding.
func (s *Scheduler) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active) > 0
}

// Cursor returns the current timeline cursor.
func (s *Scheduler) Cursor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextStart
}

// Flush force-stops every scheduled and sounding buffer and resets the
// timeline cursor to zero, so the next utterance starts fresh instead of
// queueing behind stale audio.
func (s *Scheduler) Flush() {
	s.mu.Lock()
	wasSpeaking := len(s.active) > 0
	for id, entry := range s.active {
		if entry.startTimer != nil {
			entry.startTimer.Stop()
		}
		if entry.endTimer != nil {
			entry.endTimer.Stop()
		}
		delete(s.active, id)
	}
	s.nextStart = 0
	s.mu.Unlock()

	if err := s.sink.Flush(); err != nil {
		s.logger.Error("Failed to flush audio sink", zap.Error(err))
	}
	if wasSpeaking && s.onSpeaking != nil {
		s.onSpeaking(false)
	}
}

// Close flushes and releases the audio output.
func (s *Scheduler) Close() error {
	s.Flush()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.sink.Close()
}
