package dialogue

import (
	"context"
	"fmt"
	"strings"
)

// Service fronts script generation with input validation.
type Service struct {
	client ScriptClient
}

// NewService constructs a Service.
func NewService(client ScriptClient) *Service {
	return &Service{client: client}
}

// GenerateScript validates the scene description and asks the script
// client for a document. A single failed or malformed call surfaces
// immediately; retries, if desired, belong to the caller.
func (s *Service) GenerateScript(ctx context.Context, scene string) (Document, error) {
	scene = strings.TrimSpace(scene)
	if scene == "" {
		return Document{}, fmt.Errorf("%w: scene description is required", ErrInvalidInput)
	}

	doc, err := s.client.GenerateScript(ctx, scene)
	if err != nil {
		return Document{}, fmt.Errorf("generate script: %w", err)
	}
	return doc, nil
}
