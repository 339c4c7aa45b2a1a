package background

import (
	"math/rand"
	"time"

	"scenetalk/internal/audio"
)

// Preset category names.
const (
	PresetClassroom = "classroom"
	PresetCafe      = "cafe"
	PresetPark      = "park"
	PresetHome      = "home"
)

// PresetNames lists the selectable generated ambience categories.
func PresetNames() []string {
	return []string{PresetClassroom, PresetCafe, PresetPark, PresetHome}
}

// generate synthesizes a placeholder ambience clip of exactly d by
// layering low-amplitude tones, with category-specific accents. This
// path is a fallback for when no real recording is supplied; the only
// requirement is "non-silent, non-jarring".
func (p *Provider) generate(preset string, d time.Duration) *audio.Clip {
	switch preset {
	case PresetClassroom:
		return p.noiseBed(d, -30)
	case PresetCafe:
		bed := p.noiseBed(d, -25)
		// occasional mid-frequency murmur
		return p.withAccents(bed, d, 5, 500*time.Millisecond, 200, 800, -35)
	case PresetPark:
		bed := p.noiseBed(d, -28)
		// sparse short high-frequency chirps
		return p.withAccents(bed, d, 3, 200*time.Millisecond, 1000, 2000, -30)
	case PresetHome:
		return p.noiseBed(d, -35)
	default:
		return p.noiseBed(d, -40)
	}
}

// noiseBed layers sine waves every 100 Hz into a dull wash, then
// attenuates the sum to level dB.
func (p *Provider) noiseBed(d time.Duration, level float64) *audio.Clip {
	bed := audio.Silence(p.sampleRate, d)
	for freq := 100; freq < 2000; freq += 100 {
		tone := audio.Tone(p.sampleRate, float64(freq), d, 0.02)
		bed = bed.Overlay(tone, 0)
	}
	return bed.Gain(level + 10)
}

// withAccents overlays count short tones of random frequency in
// [minFreq, maxFreq) at random positions.
func (p *Provider) withAccents(bed *audio.Clip, d time.Duration, count int, toneLen time.Duration, minFreq, maxFreq int, level float64) *audio.Clip {
	if d <= toneLen {
		return bed
	}
	for i := 0; i < count; i++ {
		freq := float64(minFreq + rand.Intn(maxFreq-minFreq))
		offset := time.Duration(rand.Int63n(int64(d - toneLen)))
		accent := audio.Tone(p.sampleRate, freq, toneLen, 0.5).Gain(level)
		bed = bed.Overlay(accent, offset)
	}
	return bed
}
