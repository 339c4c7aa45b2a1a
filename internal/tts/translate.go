package tts

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"scenetalk/internal/audio"
	"scenetalk/internal/dialogue"
)

const (
	defaultTranslateEndpoint = "https://translate.google.com/translate_tts"

	// Bounded retry policy for the unauthenticated endpoint.
	translateMaxAttempts = 3
	translateBaseDelay   = 2 * time.Second
	jitterMin            = 1 * time.Second
	jitterMax            = 5 * time.Second

	// Fixed pacing between successive calls to stay under the rate limit.
	defaultPacingDelay = 250 * time.Millisecond
)

// TranslateOptions configures optional client behavior. BaseDelay,
// PacingDelay, and Jitter exist so tests can run without real sleeps.
type TranslateOptions struct {
	BaseURL     string
	HTTPClient  *http.Client
	Language    string
	BaseDelay   time.Duration
	PacingDelay time.Duration
	Jitter      func() time.Duration
}

// TranslateEngine synthesizes speech with the public, unauthenticated
// translate TTS endpoint. No credential is required, but the service is
// rate-limited: HTTP 429 responses are retried up to translateMaxAttempts
// with exponential backoff plus jitter, and a fixed pacing delay is
// inserted between successive calls regardless of outcome.
//
// The endpoint offers a single voice per language, so the voice identity
// is ignored here; distinct speakers still get distinct identities from
// the assembler for engines that honor them.
type TranslateEngine struct {
	logger      *slog.Logger
	endpoint    string
	language    string
	httpClient  *http.Client
	baseDelay   time.Duration
	pacingDelay time.Duration
	jitter      func() time.Duration
	decode      func(r io.Reader) (*audio.Clip, error)
	lastCall    time.Time
}

// NewTranslateEngine constructs the public engine.
func NewTranslateEngine(logger *slog.Logger, opts *TranslateOptions) *TranslateEngine {
	if opts == nil {
		opts = &TranslateOptions{}
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 30 * time.Second,
		}
	}

	endpoint := opts.BaseURL
	if endpoint == "" {
		endpoint = defaultTranslateEndpoint
	}

	language := opts.Language
	if language == "" {
		language = "en"
	}

	baseDelay := opts.BaseDelay
	if baseDelay == 0 {
		baseDelay = translateBaseDelay
	}

	pacingDelay := opts.PacingDelay
	if pacingDelay == 0 {
		pacingDelay = defaultPacingDelay
	}

	jitter := opts.Jitter
	if jitter == nil {
		jitter = func() time.Duration {
			return jitterMin + time.Duration(rand.Int63n(int64(jitterMax-jitterMin)))
		}
	}

	return &TranslateEngine{
		logger:      logger,
		endpoint:    endpoint,
		language:    language,
		httpClient:  httpClient,
		baseDelay:   baseDelay,
		pacingDelay: pacingDelay,
		jitter:      jitter,
		decode:      audio.DecodeMP3,
	}
}

// Synthesize fetches one MP3 clip for the line, retrying on rate limits.
func (e *TranslateEngine) Synthesize(ctx context.Context, text string, voice Voice) (*audio.Clip, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text is required", dialogue.ErrInvalidInput)
	}

	if err := e.pace(ctx); err != nil {
		return nil, err
	}

	var lastStatus int
	for attempt := 0; attempt < translateMaxAttempts; attempt++ {
		if attempt > 0 {
			delay := e.baseDelay*time.Duration(1<<uint(attempt)) + e.jitter()
			e.logger.Warn("translate tts rate limited, backing off",
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
			)
			if err := sleepCtx(ctx, delay); err != nil {
				return nil, err
			}
		}

		clip, status, err := e.fetch(ctx, text)
		if err != nil {
			return nil, err
		}
		if clip != nil {
			return clip, nil
		}
		lastStatus = status
		if status != http.StatusTooManyRequests {
			return nil, &SynthesisError{
				Engine: "translate",
				Reason: fmt.Sprintf("status=%d", status),
			}
		}
	}

	return nil, &SynthesisError{
		Engine:      "translate",
		Reason:      fmt.Sprintf("rate limited after %d attempts (status=%d)", translateMaxAttempts, lastStatus),
		RateLimited: true,
	}
}

// fetch performs one request. A nil clip with a status code means the
// caller should decide whether to retry.
func (e *TranslateEngine) fetch(ctx context.Context, text string) (*audio.Clip, int, error) {
	query := url.Values{}
	query.Set("ie", "UTF-8")
	query.Set("client", "tw-ob")
	query.Set("tl", e.language)
	query.Set("q", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, 0, &SynthesisError{Engine: "translate", Reason: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 512))
		return nil, resp.StatusCode, nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, &SynthesisError{Engine: "translate", Reason: "read audio", Err: err}
	}
	if len(raw) == 0 {
		return nil, 0, &SynthesisError{Engine: "translate", Reason: "empty audio response"}
	}

	clip, err := e.decode(strings.NewReader(string(raw)))
	if err != nil {
		return nil, 0, &SynthesisError{Engine: "translate", Reason: "decode audio", Err: err}
	}
	return clip, resp.StatusCode, nil
}

// pace enforces the fixed inter-request delay.
func (e *TranslateEngine) pace(ctx context.Context) error {
	if !e.lastCall.IsZero() {
		if wait := e.pacingDelay - time.Since(e.lastCall); wait > 0 {
			if err := sleepCtx(ctx, wait); err != nil {
				return err
			}
		}
	}
	e.lastCall = time.Now()
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
