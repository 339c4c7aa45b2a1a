package tts

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"scenetalk/internal/audio"
	"scenetalk/internal/dialogue"
)

// StubSynthesizer produces deterministic clips for development and
// tests: 40 ms of quiet tone per input character, so expected durations
// are easy to compute.
type StubSynthesizer struct {
	mu    sync.Mutex
	calls []StubCall
}

// StubCall records one synthesis request.
type StubCall struct {
	Text  string
	Voice Voice
}

// NewStubSynthesizer constructs StubSynthesizer.
func NewStubSynthesizer() *StubSynthesizer {
	return &StubSynthesizer{}
}

// Synthesize returns a tone clip whose duration is proportional to the
// text length.
func (s *StubSynthesizer) Synthesize(ctx context.Context, text string, voice Voice) (*audio.Clip, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text is required", dialogue.ErrInvalidInput)
	}
	s.mu.Lock()
	s.calls = append(s.calls, StubCall{Text: text, Voice: voice})
	s.mu.Unlock()

	d := StubDuration(text)
	return audio.Tone(audio.DefaultSampleRate, 330, d, 0.2), nil
}

// Calls returns the recorded synthesis requests.
func (s *StubSynthesizer) Calls() []StubCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StubCall, len(s.calls))
	copy(out, s.calls)
	return out
}

// StubDuration is the clip duration the stub produces for text.
func StubDuration(text string) time.Duration {
	return time.Duration(len(text)) * 40 * time.Millisecond
}

// FailingSynthesizer always returns the given error. Used to test that
// assembly aborts without partial results.
type FailingSynthesizer struct {
	Err error
}

// Synthesize returns the configured error.
func (f *FailingSynthesizer) Synthesize(ctx context.Context, text string, voice Voice) (*audio.Clip, error) {
	return nil, f.Err
}
