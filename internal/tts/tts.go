// Package tts provides speech synthesis engines behind a single
// Synthesizer interface. Two engines exist: the Azure subscription
// service and the unauthenticated public translate endpoint. Which one
// is used is decided by configuration at construction time.
package tts

import (
	"context"
	"fmt"

	"scenetalk/internal/audio"
)

// Voice is an opaque selector the engine maps to a synthesized timbre.
// Gender is used when honoring voice hints during assignment.
type Voice struct {
	ID     string
	Gender string
}

// Perceived genders in the default pool.
const (
	GenderFemale = "female"
	GenderMale   = "male"
)

// DefaultVoices returns the ordered default pool, alternating perceived
// gender so successive speakers are easy to tell apart.
func DefaultVoices() []Voice {
	return []Voice{
		{ID: "en-US-AriaNeural", Gender: GenderFemale},
		{ID: "en-US-DavisNeural", Gender: GenderMale},
		{ID: "en-US-JennyNeural", Gender: GenderFemale},
		{ID: "en-US-GuyNeural", Gender: GenderMale},
	}
}

// Synthesizer produces one speech clip for one line of dialogue.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, voice Voice) (*audio.Clip, error)
}

// SynthesisError reports an engine failure, carrying the engine's stated
// reason. RateLimited is set when retries against a rate-limited service
// were exhausted; the presentation layer shows a "try again later" hint
// for those.
type SynthesisError struct {
	Engine      string
	Reason      string
	RateLimited bool
	Err         error
}

func (e *SynthesisError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s synthesis failed: %s: %v", e.Engine, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s synthesis failed: %s", e.Engine, e.Reason)
}

func (e *SynthesisError) Unwrap() error { return e.Err }
