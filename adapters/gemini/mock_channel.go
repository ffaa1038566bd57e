package gemini

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hanifka/lentera/domain/entities"
	"github.com/hanifka/lentera/domain/repositories"
)

// MockChannel is a scripted stand-in for the live API, used when no API
// key is configured. Every user turn gets a canned spoken reply.
type MockChannel struct{}

// NewMockChannel creates a new mock channel
func NewMockChannel() repositories.RealtimeChannel {
	return &MockChannel{}
}

// Connect implements repositories.RealtimeChannel
func (c *MockChannel) Connect(ctx context.Context, cfg repositories.LiveConfig) (repositories.LiveSession, error) {
	session := &mockSession{
		events:     make(chan repositories.ChannelEvent, 64),
		sampleRate: 24000,
	}
	session.events <- repositories.ChannelEvent{Kind: repositories.EventOpened}
	return session, nil
}

type mockSession struct {
	events     chan repositories.ChannelEvent
	sampleRate int

	mu     sync.Mutex
	turns  int
	closed bool
}

func (s *mockSession) SendAudio(data []byte, mimeType string) error { return nil }

func (s *mockSession) SendImage(data []byte, mimeType string) error { return nil }

func (s *mockSession) SendText(text string, turnComplete bool) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("session closed")
	}
	s.turns++
	turn := s.turns
	s.mu.Unlock()

	reply := fmt.Sprintf("Good question. Today's topic is practice round %d, and the key point is that repetition builds fluency.", turn)
	go s.speak(reply)
	return nil
}

func (s *mockSession) SendToolResult(invocationID, name string, payload map[string]any) error {
	return nil
}

func (s *mockSession) Events() <-chan repositories.ChannelEvent {
	return s.events
}

func (s *mockSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.events <- repositories.ChannelEvent{Kind: repositories.EventClosed}
	close(s.events)
	return nil
}

// speak emits an agent turn: transcription deltas, a short burst of
// silence as audio, then turn completion.
func (s *mockSession) speak(text string) {
	// 200ms of silence at the mock's output rate.
	silence := make([]byte, s.sampleRate/5*2)

	events := []repositories.ChannelEvent{
		{Kind: repositories.EventTranscription, Role: entities.RoleAgent, Text: text, Final: true},
		{Kind: repositories.EventAudioData, Audio: silence, SampleRate: s.sampleRate},
		{Kind: repositories.EventTurnComplete},
	}
	for _, event := range events {
		time.Sleep(50 * time.Millisecond)
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		select {
		case s.events <- event:
		default:
		}
		s.mu.Unlock()
	}
}
