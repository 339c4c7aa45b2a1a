// Package audio holds the in-memory PCM clip type and the handful of
// operations the assembly pipeline needs: silence, concatenation, gain,
// overlay, looping, and trimming. Clips are mono 16-bit PCM; operations
// return new clips and never mutate their receiver.
package audio

import (
	"math"
	"time"
)

// DefaultSampleRate matches the synthesis engines' output format.
const DefaultSampleRate = 24000

// Clip is a mono 16-bit PCM buffer at a fixed sample rate.
type Clip struct {
	rate    int
	samples []int16
}

// NewClip wraps samples into a Clip. The slice is taken over by the clip.
func NewClip(rate int, samples []int16) *Clip {
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	return &Clip{rate: rate, samples: samples}
}

// Silence returns a clip of zero samples lasting d.
func Silence(rate int, d time.Duration) *Clip {
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	n := samplesFor(rate, d)
	return &Clip{rate: rate, samples: make([]int16, n)}
}

// SampleRate reports the clip's sample rate in Hz.
func (c *Clip) SampleRate() int { return c.rate }

// Len reports the number of samples.
func (c *Clip) Len() int { return len(c.samples) }

// Samples exposes the underlying buffer. Callers must not modify it.
func (c *Clip) Samples() []int16 { return c.samples }

// Duration reports the clip length as wall-clock time.
func (c *Clip) Duration() time.Duration {
	return time.Duration(len(c.samples)) * time.Second / time.Duration(c.rate)
}

// Concat joins clips in order at the given sample rate, resampling
// any clip recorded at a different rate.
func Concat(rate int, clips ...*Clip) *Clip {
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	total := 0
	resampled := make([]*Clip, 0, len(clips))
	for _, clip := range clips {
		if clip == nil || clip.Len() == 0 {
			continue
		}
		clip = clip.Resample(rate)
		resampled = append(resampled, clip)
		total += clip.Len()
	}
	out := make([]int16, 0, total)
	for _, clip := range resampled {
		out = append(out, clip.samples...)
	}
	return &Clip{rate: rate, samples: out}
}

// Gain scales the clip by db decibels (negative attenuates) and clamps
// to the 16-bit range.
func (c *Clip) Gain(db float64) *Clip {
	factor := math.Pow(10, db/20)
	out := make([]int16, len(c.samples))
	for i, s := range c.samples {
		out[i] = clampSample(float64(s) * factor)
	}
	return &Clip{rate: c.rate, samples: out}
}

// Overlay mixes other on top of c starting at offset. The result always
// has exactly the receiver's length; excess overlay samples are dropped.
func (c *Clip) Overlay(other *Clip, offset time.Duration) *Clip {
	out := make([]int16, len(c.samples))
	copy(out, c.samples)
	if other == nil || other.Len() == 0 {
		return &Clip{rate: c.rate, samples: out}
	}
	other = other.Resample(c.rate)
	start := samplesFor(c.rate, offset)
	for i, s := range other.samples {
		pos := start + i
		if pos >= len(out) {
			break
		}
		out[pos] = clampSample(float64(out[pos]) + float64(s))
	}
	return &Clip{rate: c.rate, samples: out}
}

// LoopTo repeats the clip end-to-end until it is at least d long, then
// truncates to exactly d.
func (c *Clip) LoopTo(d time.Duration) *Clip {
	want := samplesFor(c.rate, d)
	if len(c.samples) == 0 {
		return &Clip{rate: c.rate, samples: make([]int16, want)}
	}
	out := make([]int16, 0, want)
	for len(out) < want {
		out = append(out, c.samples...)
	}
	return &Clip{rate: c.rate, samples: out[:want]}
}

// TrimTo truncates the clip to at most d.
func (c *Clip) TrimTo(d time.Duration) *Clip {
	want := samplesFor(c.rate, d)
	if want >= len(c.samples) {
		out := make([]int16, len(c.samples))
		copy(out, c.samples)
		return &Clip{rate: c.rate, samples: out}
	}
	out := make([]int16, want)
	copy(out, c.samples[:want])
	return &Clip{rate: c.rate, samples: out}
}

// Resample converts the clip to rate using linear interpolation. The
// pipeline only meets rate mismatches on decoded background files, where
// fidelity is cosmetic.
func (c *Clip) Resample(rate int) *Clip {
	if rate <= 0 || rate == c.rate {
		return c
	}
	if len(c.samples) == 0 {
		return &Clip{rate: rate}
	}
	n := int(int64(len(c.samples)) * int64(rate) / int64(c.rate))
	if n == 0 {
		n = 1
	}
	out := make([]int16, n)
	step := float64(c.rate) / float64(rate)
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= len(c.samples)-1 {
			out[i] = c.samples[len(c.samples)-1]
			continue
		}
		frac := pos - float64(j)
		a := float64(c.samples[j])
		b := float64(c.samples[j+1])
		out[i] = clampSample(a + (b-a)*frac)
	}
	return &Clip{rate: rate, samples: out}
}

func samplesFor(rate int, d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(int64(d) * int64(rate) / int64(time.Second))
}

func clampSample(v float64) int16 {
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	default:
		return int16(v)
	}
}
