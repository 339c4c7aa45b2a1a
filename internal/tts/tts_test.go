package tts

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"scenetalk/internal/audio"
	"scenetalk/internal/dialogue"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func wavBytes(t *testing.T, d time.Duration) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.wav")
	require.NoError(t, audio.Tone(audio.DefaultSampleRate, 440, d, 0.3).WriteWAV(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func TestAzureEngineRequiresCredentials(t *testing.T) {
	_, err := NewAzureEngine(discardLogger(), "", "japaneast", nil)
	require.ErrorIs(t, err, dialogue.ErrConfiguration)

	_, err = NewAzureEngine(discardLogger(), "key", "", nil)
	require.ErrorIs(t, err, dialogue.ErrConfiguration)
}

func TestAzureEngineSynthesize(t *testing.T) {
	payload := wavBytes(t, 800*time.Millisecond)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "test-key", r.Header.Get("Ocp-Apim-Subscription-Key"))
		require.Equal(t, "application/ssml+xml", r.Header.Get("Content-Type"))
		require.Equal(t, azureOutputFormat, r.Header.Get("X-Microsoft-OutputFormat"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.Contains(t, string(body), `<voice name="en-US-AriaNeural">`)
		require.Contains(t, string(body), "Hello there")

		w.Header().Set("Content-Type", "audio/wav")
		w.Write(payload)
	}))
	defer srv.Close()

	engine, err := NewAzureEngine(discardLogger(), "test-key", "japaneast", &AzureOptions{BaseURL: srv.URL})
	require.NoError(t, err)

	clip, err := engine.Synthesize(context.Background(), "Hello there", Voice{ID: "en-US-AriaNeural", Gender: GenderFemale})
	require.NoError(t, err)
	require.InDelta(t, float64(800*time.Millisecond), float64(clip.Duration()), float64(5*time.Millisecond))
}

func TestAzureEngineEscapesSSML(t *testing.T) {
	payload := wavBytes(t, 100*time.Millisecond)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.Contains(t, string(body), "Tom &amp; Jerry &lt;3")
		w.Write(payload)
	}))
	defer srv.Close()

	engine, err := NewAzureEngine(discardLogger(), "key", "eastus", &AzureOptions{BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = engine.Synthesize(context.Background(), "Tom & Jerry <3", Voice{ID: "en-US-GuyNeural"})
	require.NoError(t, err)
}

func TestAzureEngineReportsEngineFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, "Unsupported voice")
	}))
	defer srv.Close()

	engine, err := NewAzureEngine(discardLogger(), "key", "eastus", &AzureOptions{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = engine.Synthesize(context.Background(), "Hello", Voice{ID: "bogus"})
	var synthErr *SynthesisError
	require.ErrorAs(t, err, &synthErr)
	require.Contains(t, synthErr.Reason, "Unsupported voice")
	require.False(t, synthErr.RateLimited)
}

func TestAzureEngineRejectedKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	engine, err := NewAzureEngine(discardLogger(), "wrong", "eastus", &AzureOptions{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = engine.Synthesize(context.Background(), "Hello", Voice{})
	require.ErrorIs(t, err, dialogue.ErrConfiguration)
}

func newTestTranslateEngine(baseURL string) *TranslateEngine {
	engine := NewTranslateEngine(discardLogger(), &TranslateOptions{
		BaseURL:     baseURL,
		BaseDelay:   time.Millisecond,
		PacingDelay: time.Millisecond,
		Jitter:      func() time.Duration { return time.Millisecond },
	})
	engine.decode = func(r io.Reader) (*audio.Clip, error) {
		io.Copy(io.Discard, r)
		return audio.Silence(audio.DefaultSampleRate, 500*time.Millisecond), nil
	}
	return engine
}

func TestTranslateEngineRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		require.Equal(t, "en", r.URL.Query().Get("tl"))
		require.Equal(t, "Hello there", r.URL.Query().Get("q"))
		w.Write([]byte("mp3-bytes"))
	}))
	defer srv.Close()

	engine := newTestTranslateEngine(srv.URL)
	clip, err := engine.Synthesize(context.Background(), "Hello there", Voice{})
	require.NoError(t, err)
	require.Equal(t, 500*time.Millisecond, clip.Duration())
	require.Equal(t, int32(3), calls.Load())
}

func TestTranslateEngineExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	engine := newTestTranslateEngine(srv.URL)
	_, err := engine.Synthesize(context.Background(), "Hello", Voice{})

	var synthErr *SynthesisError
	require.ErrorAs(t, err, &synthErr)
	require.True(t, synthErr.RateLimited)
	require.Equal(t, int32(translateMaxAttempts), calls.Load())
}

func TestTranslateEngineDoesNotRetryOtherFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	engine := newTestTranslateEngine(srv.URL)
	_, err := engine.Synthesize(context.Background(), "Hello", Voice{})

	var synthErr *SynthesisError
	require.ErrorAs(t, err, &synthErr)
	require.False(t, synthErr.RateLimited)
	require.Equal(t, int32(1), calls.Load())
}

func TestTranslateEnginePacesSuccessiveCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("mp3-bytes"))
	}))
	defer srv.Close()

	engine := newTestTranslateEngine(srv.URL)
	engine.pacingDelay = 50 * time.Millisecond

	start := time.Now()
	_, err := engine.Synthesize(context.Background(), "First", Voice{})
	require.NoError(t, err)
	_, err = engine.Synthesize(context.Background(), "Second", Voice{})
	require.NoError(t, err)
	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestDefaultVoicesAlternateGender(t *testing.T) {
	voices := DefaultVoices()
	require.GreaterOrEqual(t, len(voices), 4)
	for i := 1; i < len(voices); i++ {
		require.NotEqual(t, voices[i-1].Gender, voices[i].Gender)
	}
}
