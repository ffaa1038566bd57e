package websocket

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/hanifka/lentera/domain/entities"
	"github.com/hanifka/lentera/internal/insight"
)

func TestFrameValidator_ValidatePing(t *testing.T) {
	validator := NewFrameValidator()

	frame := `{
		"type": "ping",
		"data": "test-ping"
	}`

	result, err := validator.ValidateFrame([]byte(frame))
	if err != nil {
		t.Errorf("ValidateFrame() error = %v", err)
	}

	pingFrame, ok := result.(*PingFrame)
	if !ok {
		t.Errorf("Expected *PingFrame, got %T", result)
	}

	if pingFrame.Data != "test-ping" {
		t.Errorf("Expected data 'test-ping', got '%s'", pingFrame.Data)
	}
}

func TestFrameValidator_InvalidJSON(t *testing.T) {
	validator := NewFrameValidator()

	invalidFrames := []string{
		`{invalid json}`,
		`{"type": "ping", "data":}`,
		``,
		`{"type": }`,
	}

	for i, frame := range invalidFrames {
		t.Run(fmt.Sprintf("invalid_json_%d", i), func(t *testing.T) {
			_, err := validator.ValidateFrame([]byte(frame))
			if err == nil {
				t.Errorf("Expected error for invalid JSON, got nil")
			}
		})
	}
}

func TestFrameValidator_UnsupportedFrameType(t *testing.T) {
	validator := NewFrameValidator()

	frames := []string{
		`{"type": "unsupported_type", "data": "some data"}`,
		`{"type": "transcript"}`,
		`{"type": "status", "state": "connected"}`,
	}

	for i, frame := range frames {
		t.Run(fmt.Sprintf("rejected_%d", i), func(t *testing.T) {
			_, err := validator.ValidateFrame([]byte(frame))
			if err == nil {
				t.Errorf("Expected error for unsupported frame type, got nil")
			}
		})
	}
}

func TestNewErrorFrame(t *testing.T) {
	code := "TEST_ERROR"
	message := "Test error message"

	errorFrame := NewErrorFrame(code, message)

	if errorFrame.Type != FrameTypeError {
		t.Errorf("Expected type %s, got %s", FrameTypeError, errorFrame.Type)
	}
	if errorFrame.Code != code {
		t.Errorf("Expected code %s, got %s", code, errorFrame.Code)
	}
	if errorFrame.Message != message {
		t.Errorf("Expected message %s, got %s", message, errorFrame.Message)
	}

	// Verify timestamp is recent
	timestamp, err := time.Parse(time.RFC3339, errorFrame.Timestamp)
	if err != nil {
		t.Errorf("Invalid timestamp format: %v", err)
	}
	if time.Since(timestamp) > time.Second {
		t.Errorf("Timestamp is not recent: %s", errorFrame.Timestamp)
	}
}

func TestNewPongFrame(t *testing.T) {
	data := "test-pong-data"
	pongFrame := NewPongFrame(data)

	if pongFrame.Type != FrameTypePong {
		t.Errorf("Expected type %s, got %s", FrameTypePong, pongFrame.Type)
	}
	if pongFrame.Data != data {
		t.Errorf("Expected data %s, got %s", data, pongFrame.Data)
	}
}

func TestNewInsightFrame(t *testing.T) {
	snapshot := insight.Snapshot{
		Topic:       "fractions",
		KeyPoint:    "denominators must match",
		Highlight:   true,
		BlurWarning: false,
	}

	frame := NewInsightFrame(snapshot)

	if frame.Type != FrameTypeInsight {
		t.Errorf("Expected type %s, got %s", FrameTypeInsight, frame.Type)
	}
	if frame.Topic != snapshot.Topic || frame.KeyPoint != snapshot.KeyPoint {
		t.Errorf("Snapshot fields not carried: %+v", frame)
	}
	if !frame.Highlight || frame.BlurWarning {
		t.Errorf("Flags not carried: highlight=%v blur=%v", frame.Highlight, frame.BlurWarning)
	}
}

func TestFrameSerialization(t *testing.T) {
	// Test that all frame types can be properly serialized
	tests := []struct {
		name  string
		frame interface{}
	}{
		{
			name: "StatusFrame",
			frame: NewStatusFrame("connected", true, &QualityPayload{
				Tier:        "good",
				FrameRate:   2.5,
				Compression: 0.65,
			}),
		},
		{
			name: "TranscriptFrame",
			frame: NewTranscriptFrame([]entities.ChatMessage{
				entities.NewChatMessage(entities.RoleUser, "hello", true),
			}),
		},
		{
			name:  "InsightFrame",
			frame: NewInsightFrame(insight.Snapshot{Topic: "algebra"}),
		},
		{
			name:  "DiagramFrame",
			frame: NewDiagramFrame("circle", "Unit circle", map[string]any{"radius": 1}),
		},
		{
			name:  "ErrorFrame",
			frame: NewErrorFrame("TEST_ERROR", "Test message"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.frame)
			if err != nil {
				t.Errorf("Failed to marshal frame: %v", err)
				return
			}

			var result map[string]interface{}
			if err := json.Unmarshal(data, &result); err != nil {
				t.Errorf("Failed to unmarshal frame: %v", err)
				return
			}

			if _, exists := result["type"]; !exists {
				t.Errorf("Frame missing 'type' field")
			}
			if _, exists := result["timestamp"]; !exists {
				t.Errorf("Frame missing 'timestamp' field")
			}
		})
	}
}
