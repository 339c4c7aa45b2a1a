package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"scenetalk/internal/dialogue"
)

// StubClient implements dialogue.ScriptClient with deterministic output
// for development and tests.
type StubClient struct {
	logger *slog.Logger
}

// NewStubClient returns a stubbed script client.
func NewStubClient(logger *slog.Logger) *StubClient {
	return &StubClient{logger: logger}
}

// GenerateScript creates a deterministic four-line document about the
// scene.
func (s *StubClient) GenerateScript(ctx context.Context, scene string) (dialogue.Document, error) {
	scene = strings.TrimSpace(scene)
	if scene == "" {
		return dialogue.Document{}, fmt.Errorf("%w: scene description is required", dialogue.ErrInvalidInput)
	}

	doc := dialogue.Document{
		Title:     "Practice Conversation",
		Situation: scene,
		Conversation: []dialogue.Line{
			{Speaker: "Mika", Text: fmt.Sprintf("Hi! Are you ready for %s?", scene)},
			{Speaker: "Ken", Text: "Yes, I am. Let's go together."},
			{Speaker: "Mika", Text: "Great. What time should we meet?"},
			{Speaker: "Ken", Text: "How about three o'clock?"},
		},
	}

	s.logger.Debug("stub script generated", slog.String("scene", scene))

	return doc, nil
}
