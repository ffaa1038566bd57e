package gemini

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/hanifka/lentera/domain/entities"
	"github.com/hanifka/lentera/domain/repositories"
	"github.com/hanifka/lentera/internal/media"
)

// LiveChannel implements the realtime channel on the Gemini Live API.
type LiveChannel struct {
	client *genai.Client
	logger *zap.Logger
}

// NewLiveChannel creates a new Gemini live channel
func NewLiveChannel(logger *zap.Logger) (*LiveChannel, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &LiveChannel{
		client: client,
		logger: logger,
	}, nil
}

// Connect opens a live session and starts translating server messages
// into channel events.
func (c *LiveChannel) Connect(ctx context.Context, cfg repositories.LiveConfig) (repositories.LiveSession, error) {
	connectConfig := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
	}
	if cfg.SystemInstruction != "" {
		connectConfig.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: cfg.SystemInstruction}},
		}
	}
	if cfg.VoiceName != "" {
		connectConfig.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{
					VoiceName: cfg.VoiceName,
				},
			},
		}
	}
	if cfg.TranscribeUser {
		connectConfig.InputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	if cfg.TranscribeAgent {
		connectConfig.OutputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	if len(cfg.Tools) > 0 {
		connectConfig.Tools = []*genai.Tool{{
			FunctionDeclarations: convertDeclarations(cfg.Tools),
		}}
	}

	session, err := c.client.Live.Connect(ctx, cfg.Model, connectConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect live session: %w", err)
	}

	live := &liveSession{
		session: session,
		events:  make(chan repositories.ChannelEvent, 64),
		logger:  c.logger,
	}
	// The opened event goes into the buffer before the receive loop owns
	// the channel, so it always precedes anything the loop emits.
	live.events <- repositories.ChannelEvent{Kind: repositories.EventOpened}
	go live.receiveLoop()
	return live, nil
}

type liveSession struct {
	session *genai.Session
	events  chan repositories.ChannelEvent
	logger  *zap.Logger

	mu     sync.Mutex
	closed bool
}

func (s *liveSession) SendAudio(data []byte, mimeType string) error {
	return s.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{Data: data, MIMEType: mimeType},
	})
}

func (s *liveSession) SendImage(data []byte, mimeType string) error {
	return s.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Video: &genai.Blob{Data: data, MIMEType: mimeType},
	})
}

func (s *liveSession) SendText(text string, turnComplete bool) error {
	return s.session.SendClientContent(genai.LiveClientContentInput{
		Turns: []*genai.Content{{
			Role:  genai.RoleUser,
			Parts: []*genai.Part{{Text: text}},
		}},
		TurnComplete: &turnComplete,
	})
}

func (s *liveSession) SendToolResult(invocationID, name string, payload map[string]any) error {
	return s.session.SendToolResponse(genai.LiveToolResponseInput{
		FunctionResponses: []*genai.FunctionResponse{{
			ID:       invocationID,
			Name:     name,
			Response: payload,
		}},
	})
}

func (s *liveSession) Events() <-chan repositories.ChannelEvent {
	return s.events
}

func (s *liveSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.session.Close()
}

func (s *liveSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// receiveLoop translates server messages into channel events, strictly in
// arrival order. It owns the events channel and closes it on exit.
func (s *liveSession) receiveLoop() {
	defer close(s.events)
	for {
		message, err := s.session.Receive()
		if err != nil {
			if s.isClosed() {
				s.events <- repositories.ChannelEvent{Kind: repositories.EventClosed}
			} else {
				s.events <- repositories.ChannelEvent{Kind: repositories.EventError, Err: err}
			}
			return
		}
		s.translate(message)
	}
}

func (s *liveSession) translate(message *genai.LiveServerMessage) {
	if message.ToolCall != nil {
		for _, call := range message.ToolCall.FunctionCalls {
			s.events <- repositories.ChannelEvent{
				Kind: repositories.EventToolCall,
				Call: &repositories.ToolInvocation{
					ID:   call.ID,
					Name: call.Name,
					Args: call.Args,
				},
			}
		}
	}

	content := message.ServerContent
	if content == nil {
		return
	}

	if content.InputTranscription != nil && content.InputTranscription.Text != "" {
		s.events <- repositories.ChannelEvent{
			Kind:  repositories.EventTranscription,
			Role:  entities.RoleUser,
			Text:  content.InputTranscription.Text,
			Final: content.InputTranscription.Finished,
		}
	}
	if content.OutputTranscription != nil && content.OutputTranscription.Text != "" {
		s.events <- repositories.ChannelEvent{
			Kind:  repositories.EventTranscription,
			Role:  entities.RoleAgent,
			Text:  content.OutputTranscription.Text,
			Final: content.OutputTranscription.Finished,
		}
	}

	if content.ModelTurn != nil {
		for _, part := range content.ModelTurn.Parts {
			if part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			s.events <- repositories.ChannelEvent{
				Kind:       repositories.EventAudioData,
				Audio:      part.InlineData.Data,
				SampleRate: media.SampleRateFromMIME(part.InlineData.MIMEType, 0),
			}
		}
	}

	if content.Interrupted {
		s.events <- repositories.ChannelEvent{Kind: repositories.EventInterrupted}
	}
	if content.TurnComplete {
		s.events <- repositories.ChannelEvent{Kind: repositories.EventTurnComplete}
	}
}

func convertDeclarations(tools []repositories.ToolDeclaration) []*genai.FunctionDeclaration {
	declarations := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, tool := range tools {
		declarations = append(declarations, &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  convertSchema(tool.Parameters),
		})
	}
	return declarations
}

func convertSchema(schema *repositories.Schema) *genai.Schema {
	if schema == nil {
		return nil
	}
	out := &genai.Schema{
		Description: schema.Description,
		Required:    schema.Required,
		Items:       convertSchema(schema.Items),
	}
	switch schema.Type {
	case "string":
		out.Type = genai.TypeString
	case "number":
		out.Type = genai.TypeNumber
	case "integer":
		out.Type = genai.TypeInteger
	case "boolean":
		out.Type = genai.TypeBoolean
	case "array":
		out.Type = genai.TypeArray
	case "object":
		out.Type = genai.TypeObject
	}
	if len(schema.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(schema.Properties))
		for name, property := range schema.Properties {
			out.Properties[name] = convertSchema(property)
		}
	}
	return out
}
