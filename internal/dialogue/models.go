// Package dialogue defines the script document produced by the language
// model, its structural validation, and the error kinds the rest of the
// application pattern-matches on.
package dialogue

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrConfiguration signals a missing or invalid credential. It is
	// user-correctable; the presentation layer shows a remediation hint.
	ErrConfiguration = errors.New("missing or invalid credentials")

	// ErrMalformedResponse signals model output that failed structural
	// validation. The user simply retries the request.
	ErrMalformedResponse = errors.New("malformed model response")

	// ErrEmptyConversation signals a conversation with no synthesizable
	// content (every line blank).
	ErrEmptyConversation = errors.New("conversation has no speakable lines")

	// ErrInvalidInput signals rejected user input.
	ErrInvalidInput = errors.New("invalid input")
)

// Line is one speaker/text pair within a document. Speaker labels are
// free text and may repeat; repeats receive the same synthesized voice
// within one assembly run. VoiceHint optionally steers voice assignment.
type Line struct {
	Speaker   string `json:"speaker"`
	Text      string `json:"text"`
	VoiceHint string `json:"voice_hint,omitempty"`
}

// Document is the structured script produced by the language model and
// optionally edited by hand before synthesis. It lives for the session
// only; nothing is persisted.
type Document struct {
	Title        string `json:"title"`
	Situation    string `json:"situation"`
	Conversation []Line `json:"conversation"`
}

// Validate reports whether a document satisfies the structural invariant:
// title, situation, and a non-empty conversation whose every line carries
// a speaker and text. It never returns an error; hand-edited documents
// are re-checked with this before synthesis.
func Validate(doc Document) bool {
	if strings.TrimSpace(doc.Title) == "" || strings.TrimSpace(doc.Situation) == "" {
		return false
	}
	if len(doc.Conversation) == 0 {
		return false
	}
	for _, line := range doc.Conversation {
		if strings.TrimSpace(line.Speaker) == "" || strings.TrimSpace(line.Text) == "" {
			return false
		}
	}
	return true
}

// ScriptClient describes the interface to draft a document with an LLM.
type ScriptClient interface {
	GenerateScript(ctx context.Context, scene string) (Document, error)
}
