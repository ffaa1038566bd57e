package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hanifka/lentera/domain/entities"
	"github.com/hanifka/lentera/internal/insight"
)

// FrameType defines the type of WebSocket frame
type FrameType string

// Supported frame types
const (
	FrameTypeStatus     FrameType = "status"
	FrameTypeTranscript FrameType = "transcript"
	FrameTypeInsight    FrameType = "insight"
	FrameTypeDiagram    FrameType = "diagram"
	FrameTypeError      FrameType = "error"
	FrameTypePing       FrameType = "ping"
	FrameTypePong       FrameType = "pong"
)

// BaseFrame defines the common structure for all WebSocket frames
type BaseFrame struct {
	Type      FrameType `json:"type" validate:"required"`
	Timestamp string    `json:"timestamp"`
	FrameID   string    `json:"frame_id,omitempty"`
}

// QualityPayload carries the outbound media cadence inside status frames
type QualityPayload struct {
	Tier        string  `json:"tier"`
	FrameRate   float64 `json:"frame_rate"`
	Compression float64 `json:"compression"`
}

// StatusFrame reports the session connection state to observers
type StatusFrame struct {
	BaseFrame
	State    string          `json:"state" validate:"required,oneof=disconnected connecting connected error"`
	Speaking bool            `json:"speaking"`
	Quality  *QualityPayload `json:"quality,omitempty"`
}

// TranscriptFrame carries the full merged message log
type TranscriptFrame struct {
	BaseFrame
	Messages []entities.ChatMessage `json:"messages"`
}

// InsightFrame carries the current insight snapshot
type InsightFrame struct {
	BaseFrame
	Topic       string                   `json:"topic,omitempty"`
	KeyPoint    string                   `json:"key_point,omitempty"`
	Highlight   bool                     `json:"highlight"`
	BlurWarning bool                     `json:"blur_warning"`
	Signals     []entities.InsightSignal `json:"signals,omitempty"`
}

// DiagramFrame instructs observers to draw on the board
type DiagramFrame struct {
	BaseFrame
	Kind  string         `json:"kind" validate:"required"`
	Title string         `json:"title,omitempty"`
	Spec  map[string]any `json:"spec,omitempty"`
}

// ErrorFrame represents an error report to observers
type ErrorFrame struct {
	BaseFrame
	Code    string `json:"error_code"`
	Message string `json:"message"`
}

// PingFrame represents a connection health check from an observer
type PingFrame struct {
	BaseFrame
	Data string `json:"data,omitempty"`
}

// PongFrame represents a pong response
type PongFrame struct {
	BaseFrame
	Data string `json:"data,omitempty"`
}

// FrameValidator provides validation for inbound observer frames
type FrameValidator struct{}

// NewFrameValidator creates a new frame validator
func NewFrameValidator() *FrameValidator {
	return &FrameValidator{}
}

// ValidateFrame validates an inbound frame. Observers are read-mostly:
// only health checks are accepted from the peer.
func (v *FrameValidator) ValidateFrame(frameBytes []byte) (interface{}, error) {
	var base BaseFrame
	if err := json.Unmarshal(frameBytes, &base); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	if base.Timestamp == "" {
		base.Timestamp = time.Now().Format(time.RFC3339)
	}

	switch base.Type {
	case FrameTypePing:
		var frame PingFrame
		if err := json.Unmarshal(frameBytes, &frame); err != nil {
			return nil, fmt.Errorf("invalid ping frame: %w", err)
		}
		return &frame, nil

	default:
		return nil, fmt.Errorf("unsupported frame type: %s", base.Type)
	}
}

// NewStatusFrame creates a status frame
func NewStatusFrame(state string, speaking bool, quality *QualityPayload) *StatusFrame {
	return &StatusFrame{
		BaseFrame: BaseFrame{
			Type:      FrameTypeStatus,
			Timestamp: time.Now().Format(time.RFC3339),
		},
		State:    state,
		Speaking: speaking,
		Quality:  quality,
	}
}

// NewTranscriptFrame creates a transcript frame
func NewTranscriptFrame(messages []entities.ChatMessage) *TranscriptFrame {
	return &TranscriptFrame{
		BaseFrame: BaseFrame{
			Type:      FrameTypeTranscript,
			Timestamp: time.Now().Format(time.RFC3339),
		},
		Messages: messages,
	}
}

// NewInsightFrame creates an insight frame from a snapshot
func NewInsightFrame(snapshot insight.Snapshot) *InsightFrame {
	return &InsightFrame{
		BaseFrame: BaseFrame{
			Type:      FrameTypeInsight,
			Timestamp: time.Now().Format(time.RFC3339),
		},
		Topic:       snapshot.Topic,
		KeyPoint:    snapshot.KeyPoint,
		Highlight:   snapshot.Highlight,
		BlurWarning: snapshot.BlurWarning,
		Signals:     snapshot.Signals,
	}
}

// NewDiagramFrame creates a diagram frame
func NewDiagramFrame(kind, title string, spec map[string]any) *DiagramFrame {
	return &DiagramFrame{
		BaseFrame: BaseFrame{
			Type:      FrameTypeDiagram,
			Timestamp: time.Now().Format(time.RFC3339),
		},
		Kind:  kind,
		Title: title,
		Spec:  spec,
	}
}

// NewErrorFrame creates a standardized error frame
func NewErrorFrame(code, message string) *ErrorFrame {
	return &ErrorFrame{
		BaseFrame: BaseFrame{
			Type:      FrameTypeError,
			Timestamp: time.Now().Format(time.RFC3339),
		},
		Code:    code,
		Message: message,
	}
}

// NewPongFrame creates a pong response frame
func NewPongFrame(data string) *PongFrame {
	return &PongFrame{
		BaseFrame: BaseFrame{
			Type:      FrameTypePong,
			Timestamp: time.Now().Format(time.RFC3339),
		},
		Data: data,
	}
}
