package repositories

import (
	"context"
	"errors"

	"github.com/hanifka/lentera/domain/entities"
)

// ErrTextUnsupported is returned by SendText when the transport has no
// direct text-send capability. Callers report it and carry on.
var ErrTextUnsupported = errors.New("channel does not support text turns")

// EventKind discriminates inbound channel events.
type EventKind string

const (
	EventOpened        EventKind = "opened"
	EventTranscription EventKind = "transcription"
	EventTurnComplete  EventKind = "turn_complete"
	EventAudioData     EventKind = "audio_data"
	EventInterrupted   EventKind = "interrupted"
	EventToolCall      EventKind = "tool_call"
	EventClosed        EventKind = "closed"
	EventError         EventKind = "error"
)

// ChannelEvent is the single typed inbound event consumed by the session
// core, decoupling the transport SDK's callback shape from dispatch.
type ChannelEvent struct {
	Kind EventKind

	// Transcription fields.
	Role  entities.Role
	Text  string
	Final bool

	// Decoded PCM payload for audio_data events.
	Audio      []byte
	SampleRate int

	// Tool invocation for tool_call events.
	Call *ToolInvocation

	// Terminal error for error events.
	Err error
}

// ToolInvocation is a server-issued request to run a registered capability.
type ToolInvocation struct {
	ID   string
	Name string
	Args map[string]any
}

// Schema is a minimal declaration of a tool's argument payload shape.
type Schema struct {
	Type        string
	Description string
	Properties  map[string]*Schema
	Required    []string
	Items       *Schema
}

// ToolDeclaration advertises a capability to the remote service.
type ToolDeclaration struct {
	Name        string
	Description string
	Parameters  *Schema
}

// LiveConfig is the configuration surface passed at connect time.
type LiveConfig struct {
	Model             string
	SystemInstruction string
	VoiceName         string
	TranscribeUser    bool
	TranscribeAgent   bool
	Tools             []ToolDeclaration
}

// RealtimeChannel opens bidirectional sessions to the remote tutoring
// service.
type RealtimeChannel interface {
	Connect(ctx context.Context, cfg LiveConfig) (LiveSession, error)
}

// LiveSession is one open realtime channel. The session connection owns
// the handle exclusively for its lifetime.
type LiveSession interface {
	// SendAudio streams one PCM payload. MIME carries the sample rate,
	// e.g. "audio/pcm;rate=16000".
	SendAudio(data []byte, mimeType string) error
	// SendImage streams one compressed still frame.
	SendImage(data []byte, mimeType string) error
	// SendText enqueues a completed user turn. Returns ErrTextUnsupported
	// when the transport cannot carry text.
	SendText(text string, turnComplete bool) error
	// SendToolResult reports exactly one structured result for an
	// invocation id.
	SendToolResult(invocationID, name string, payload map[string]any) error
	// Events yields inbound events in arrival order. The channel closes
	// after a closed or error event.
	Events() <-chan ChannelEvent
	Close() error
}
