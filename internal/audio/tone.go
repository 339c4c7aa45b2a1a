package audio

import (
	"math"
	"time"
)

// Tone synthesizes a sine wave at freq Hz lasting d, scaled by amplitude
// in [0,1] of full scale. Used only for placeholder ambience beds.
func Tone(rate int, freq float64, d time.Duration, amplitude float64) *Clip {
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	if amplitude < 0 {
		amplitude = 0
	}
	if amplitude > 1 {
		amplitude = 1
	}
	n := samplesFor(rate, d)
	samples := make([]int16, n)
	scale := amplitude * float64(math.MaxInt16)
	step := 2 * math.Pi * freq / float64(rate)
	for i := range samples {
		samples[i] = clampSample(math.Sin(step*float64(i)) * scale)
	}
	return &Clip{rate: rate, samples: samples}
}
