// Package background supplies the ambience layer mixed under the
// combined conversation. Background audio is cosmetic: every failure
// path degrades to "no background" rather than erroring.
package background

import (
	"log/slog"
	"time"

	"scenetalk/internal/audio"
)

// DefaultAttenuationDB is the gain applied to background tracks relative
// to the foreground speech.
const DefaultAttenuationDB = -18.0

// Source selects where the ambience comes from: nothing, a generated
// preset, or a user-supplied file.
type Source struct {
	kind   sourceKind
	preset string
	path   string
}

type sourceKind int

const (
	sourceNone sourceKind = iota
	sourcePreset
	sourceFile
)

// None returns the empty source: no background.
func None() Source { return Source{} }

// Preset returns a source that synthesizes the named ambience category.
func Preset(name string) Source { return Source{kind: sourcePreset, preset: name} }

// File returns a source backed by an uploaded or preset audio file
// (WAV or MP3).
func File(path string) Source { return Source{kind: sourceFile, path: path} }

// IsNone reports whether the source requests no background at all.
func (s Source) IsNone() bool { return s.kind == sourceNone }

// ProviderOptions tune the provider.
type ProviderOptions struct {
	AttenuationDB float64 // negative gain for file-backed tracks; 0 means default
	SampleRate    int
}

// Provider renders background clips of a requested duration.
type Provider struct {
	logger        *slog.Logger
	attenuationDB float64
	sampleRate    int
}

// NewProvider constructs a Provider.
func NewProvider(logger *slog.Logger, opts ProviderOptions) *Provider {
	attenuation := opts.AttenuationDB
	if attenuation == 0 {
		attenuation = DefaultAttenuationDB
	}
	sampleRate := opts.SampleRate
	if sampleRate <= 0 {
		sampleRate = audio.DefaultSampleRate
	}
	return &Provider{
		logger:        logger,
		attenuationDB: attenuation,
		sampleRate:    sampleRate,
	}
}

// Render produces an ambience clip of exactly d, or nil when the source
// is empty or unusable. It never returns an error: the caller treats nil
// as silence.
func (p *Provider) Render(src Source, d time.Duration) *audio.Clip {
	if d <= 0 {
		return nil
	}

	switch src.kind {
	case sourceFile:
		clip, err := audio.DecodeFile(src.path)
		if err != nil {
			p.logger.Warn("background file unusable, continuing without background",
				slog.String("path", src.path),
				slog.String("error", err.Error()),
			)
			return nil
		}
		if clip.Len() == 0 {
			return nil
		}
		return clip.Resample(p.sampleRate).LoopTo(d).Gain(p.attenuationDB)

	case sourcePreset:
		return p.generate(src.preset, d)

	default:
		return nil
	}
}
