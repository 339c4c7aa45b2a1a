// Package assembler turns a validated conversation into audio: one clip
// per line, fixed inter-line silence, optional background ambience, and
// a combined export. It owns a process-scoped temporary directory for
// the files it writes and releases it deterministically on Close.
package assembler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"scenetalk/internal/audio"
	"scenetalk/internal/background"
	"scenetalk/internal/dialogue"
	"scenetalk/internal/tts"
)

// Inter-line gap inserted between emitted clips. There is no leading or
// trailing silence.
const defaultSilenceGap = 1000 * time.Millisecond

const combinedFileName = "combined_conversation.wav"

// Options configure an Assembler.
type Options struct {
	Voices     []tts.Voice   // ordered voice pool; defaults to tts.DefaultVoices
	SilenceGap time.Duration // defaults to 1 s
	SampleRate int           // defaults to audio.DefaultSampleRate
}

// AssembleOptions configure one assembly run.
type AssembleOptions struct {
	Background background.Source
}

// Result references the exported files inside the assembler's working
// directory: the combined conversation and one file per non-empty line,
// keyed by "<speaker>_<index>".
type Result struct {
	Combined   string
	Individual map[string]string
}

// Assembler sequences synthesis, silence insertion, background overlay,
// and export. One assembler instance exclusively owns its working
// directory for its lifetime; runs are strictly sequential.
type Assembler struct {
	logger      *slog.Logger
	synth       tts.Synthesizer
	backgrounds *background.Provider
	workdir     string
	voices      []tts.Voice
	gap         time.Duration
	rate        int
}

// New acquires a working directory and returns an assembler bound to it.
// Callers must Close it to release the directory.
func New(logger *slog.Logger, synth tts.Synthesizer, backgrounds *background.Provider, opts Options) (*Assembler, error) {
	voices := opts.Voices
	if len(voices) == 0 {
		voices = tts.DefaultVoices()
	}
	gap := opts.SilenceGap
	if gap == 0 {
		gap = defaultSilenceGap
	}
	rate := opts.SampleRate
	if rate <= 0 {
		rate = audio.DefaultSampleRate
	}

	workdir, err := os.MkdirTemp("", "scenetalk-"+uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("create working directory: %w", err)
	}

	return &Assembler{
		logger:      logger,
		synth:       synth,
		backgrounds: backgrounds,
		workdir:     workdir,
		voices:      voices,
		gap:         gap,
		rate:        rate,
	}, nil
}

// Workdir reports the directory result files live in.
func (a *Assembler) Workdir() string { return a.workdir }

// Close removes the working directory and everything in it.
func (a *Assembler) Close() error {
	if err := os.RemoveAll(a.workdir); err != nil {
		return fmt.Errorf("remove working directory: %w", err)
	}
	return nil
}

// Assemble synthesizes each non-empty line in order, assigns voices per
// speaker label, writes per-line files, concatenates with the configured
// gap, overlays the background, and exports the combined file. Synthesis
// failures abort the run with no partial result; background failures
// degrade to silence. The input slice is never mutated.
func (a *Assembler) Assemble(ctx context.Context, lines []dialogue.Line, opts AssembleOptions) (Result, error) {
	assignments := newVoiceAssignment(a.voices)

	individual := make(map[string]string)
	var parts []*audio.Clip

	for i, line := range lines {
		text := strings.TrimSpace(line.Text)
		if text == "" {
			continue
		}

		voice := assignments.voiceFor(line.Speaker, line.VoiceHint)

		clip, err := a.synth.Synthesize(ctx, text, voice)
		if err != nil {
			return Result{}, fmt.Errorf("synthesize line %d: %w", i, err)
		}
		clip = clip.Resample(a.rate)

		key := fmt.Sprintf("%s_%d", line.Speaker, i)
		path := filepath.Join(a.workdir, sanitizeFilename(key)+".wav")
		if err := clip.WriteWAV(path); err != nil {
			return Result{}, fmt.Errorf("write line %d: %w", i, err)
		}
		individual[key] = path

		if len(parts) > 0 {
			parts = append(parts, audio.Silence(a.rate, a.gap))
		}
		parts = append(parts, clip)

		a.logger.Debug("line synthesized",
			slog.Int("line", i),
			slog.String("speaker", line.Speaker),
			slog.String("voice", voice.ID),
			slog.Duration("duration", clip.Duration()),
		)
	}

	if len(parts) == 0 {
		return Result{}, dialogue.ErrEmptyConversation
	}

	combined := audio.Concat(a.rate, parts...)

	if a.backgrounds != nil && !opts.Background.IsNone() {
		if bg := a.backgrounds.Render(opts.Background, combined.Duration()); bg != nil {
			combined = combined.Overlay(bg, 0)
		}
	}

	combinedPath := filepath.Join(a.workdir, combinedFileName)
	if err := combined.WriteWAV(combinedPath); err != nil {
		return Result{}, fmt.Errorf("write combined file: %w", err)
	}

	a.logger.Info("conversation assembled",
		slog.Int("lines", len(individual)),
		slog.Duration("duration", combined.Duration()),
		slog.Int("speakers", assignments.count()),
	)

	return Result{Combined: combinedPath, Individual: individual}, nil
}

// voiceAssignment maps speaker labels to pool voices in first-seen
// order, honoring gender hints when a fresh speaker arrives. Distinct
// labels get distinct voices until the pool is exhausted; after that the
// pool wraps around.
type voiceAssignment struct {
	pool     []tts.Voice
	used     []bool
	taken    int
	assigned map[string]tts.Voice
}

func newVoiceAssignment(pool []tts.Voice) *voiceAssignment {
	return &voiceAssignment{
		pool:     pool,
		used:     make([]bool, len(pool)),
		assigned: make(map[string]tts.Voice),
	}
}

func (v *voiceAssignment) voiceFor(speaker, hint string) tts.Voice {
	if voice, ok := v.assigned[speaker]; ok {
		return voice
	}

	idx := v.pick(hint)
	voice := v.pool[idx]
	v.used[idx] = true
	v.taken++
	v.assigned[speaker] = voice
	return voice
}

// pick chooses the first unused voice, preferring a gender match when a
// hint is present. With the pool exhausted it wraps around.
func (v *voiceAssignment) pick(hint string) int {
	if v.taken >= len(v.pool) {
		return v.taken % len(v.pool)
	}
	if hint != "" {
		for i, voice := range v.pool {
			if !v.used[i] && voice.Gender == hint {
				return i
			}
		}
	}
	for i := range v.pool {
		if !v.used[i] {
			return i
		}
	}
	return 0
}

func (v *voiceAssignment) count() int { return len(v.assigned) }

func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		" ", "_",
		"/", "-",
		"\\", "-",
		":", "-",
		"*", "-",
		"?", "-",
		`"`, "-",
		"<", "-",
		">", "-",
		"|", "-",
	)
	name = replacer.Replace(name)
	if len(name) > 64 {
		name = name[:64]
	}
	return name
}
