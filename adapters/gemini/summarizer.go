package gemini

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/hanifka/lentera/domain/entities"
)

const (
	summarizerModel   = "gemini-2.0-flash"
	summarizerTimeout = 30 * time.Second
	summarizerPrompt  = "Summarize this tutoring session in two or three sentences. " +
		"Name the topics covered and how well the student followed. " +
		"Write in plain prose, no headings or bullet points."
)

// Summarizer produces a short session summary with the Gemini API.
type Summarizer struct {
	client *genai.Client
	logger *zap.Logger
}

// NewSummarizer creates a summarizer that reuses the live channel's client.
func NewSummarizer(channel *LiveChannel, logger *zap.Logger) *Summarizer {
	return &Summarizer{
		client: channel.client,
		logger: logger,
	}
}

// Summarize condenses the session's message log into a few sentences.
func (s *Summarizer) Summarize(ctx context.Context, messages []entities.ChatMessage) (string, error) {
	if len(messages) == 0 {
		return "", nil
	}

	var transcript strings.Builder
	for _, message := range messages {
		switch message.Role {
		case entities.RoleUser:
			transcript.WriteString("Student: ")
		case entities.RoleAgent:
			transcript.WriteString("Tutor: ")
		}
		transcript.WriteString(message.Text)
		transcript.WriteString("\n")
	}

	contents := []*genai.Content{
		genai.NewContentFromText(summarizerPrompt, genai.RoleUser),
		genai.NewContentFromText(transcript.String(), genai.RoleUser),
	}

	ctx, cancel := context.WithTimeout(ctx, summarizerTimeout)
	defer cancel()

	response, err := s.client.Models.GenerateContent(ctx, summarizerModel, contents, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate summary: %w", err)
	}
	if len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
		return "", fmt.Errorf("no summary generated")
	}

	var summary string
	for _, part := range response.Candidates[0].Content.Parts {
		if part.Text != "" {
			summary += part.Text
		}
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return "", fmt.Errorf("empty summary generated")
	}

	s.logger.Debug("Session summarized", zap.Int("messages", len(messages)))
	return summary, nil
}
