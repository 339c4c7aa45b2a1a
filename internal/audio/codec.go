package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
)

// ErrUnsupportedFormat signals a file extension the decoder does not handle.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// DecodeFile decodes a WAV or MP3 file into a clip, chosen by extension.
func DecodeFile(path string) (*Clip, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read audio file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return DecodeWAV(bytes.NewReader(data))
	case ".mp3":
		return DecodeMP3(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// DecodeWAV decodes a RIFF/WAV stream, downmixing to mono.
func DecodeWAV(r io.ReadSeeker) (*Clip, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, errors.New("decode wav: not a valid wav file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode wav: %w", err)
	}
	if buf == nil || buf.Format == nil || len(buf.Data) == 0 {
		return nil, errors.New("decode wav: empty pcm buffer")
	}
	return fromIntBuffer(buf, int(dec.BitDepth)), nil
}

// DecodeMP3 decodes an MPEG audio stream, downmixing to mono.
// go-mp3 always emits 16-bit little-endian stereo frames.
func DecodeMP3(r io.Reader) (*Clip, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("decode mp3: %w", err)
	}
	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("decode mp3: %w", err)
	}
	frames := len(raw) / 4
	samples := make([]int16, frames)
	for i := 0; i < frames; i++ {
		left := int16(uint16(raw[i*4]) | uint16(raw[i*4+1])<<8)
		right := int16(uint16(raw[i*4+2]) | uint16(raw[i*4+3])<<8)
		samples[i] = int16((int32(left) + int32(right)) / 2)
	}
	return NewClip(dec.SampleRate(), samples), nil
}

// WriteWAV encodes the clip as 16-bit mono PCM at path.
func (c *Clip) WriteWAV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav file: %w", err)
	}
	enc := wav.NewEncoder(f, c.rate, 16, 1, 1)
	buf := &gaudio.IntBuffer{
		Format:         &gaudio.Format{NumChannels: 1, SampleRate: c.rate},
		SourceBitDepth: 16,
		Data:           make([]int, len(c.samples)),
	}
	for i, s := range c.samples {
		buf.Data[i] = int(s)
	}
	if err := enc.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("write wav data: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("close wav encoder: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close wav file: %w", err)
	}
	return nil
}

// fromIntBuffer converts a go-audio buffer of any channel count and bit
// depth into a mono 16-bit clip.
func fromIntBuffer(buf *gaudio.IntBuffer, bitDepth int) *Clip {
	channels := buf.Format.NumChannels
	if channels <= 0 {
		channels = 1
	}
	if bitDepth <= 0 {
		bitDepth = buf.SourceBitDepth
	}
	if bitDepth <= 0 {
		bitDepth = 16
	}
	shift := bitDepth - 16
	frames := len(buf.Data) / channels
	samples := make([]int16, frames)
	for i := 0; i < frames; i++ {
		var sum int64
		for ch := 0; ch < channels; ch++ {
			sum += int64(buf.Data[i*channels+ch])
		}
		v := sum / int64(channels)
		if shift > 0 {
			v >>= shift
		} else if shift < 0 {
			v <<= -shift
		}
		samples[i] = clampSample(float64(v))
	}
	return NewClip(buf.Format.SampleRate, samples)
}
