package tts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"scenetalk/internal/audio"
	"scenetalk/internal/dialogue"
)

const (
	azureEndpointFormat = "https://%s.tts.speech.microsoft.com/cognitiveservices/v1"
	azureOutputFormat   = "riff-24khz-16bit-mono-pcm"
)

// AzureOptions configures optional client behavior.
type AzureOptions struct {
	BaseURL    string
	HTTPClient *http.Client
}

// AzureEngine synthesizes speech with Azure Cognitive Services. One call
// per line, no internal retry; engine-reported failures surface as
// *SynthesisError with the service's stated reason.
type AzureEngine struct {
	logger     *slog.Logger
	key        string
	endpoint   string
	httpClient *http.Client
}

// NewAzureEngine constructs the subscription engine. Both key and region
// are required.
func NewAzureEngine(logger *slog.Logger, key, region string, opts *AzureOptions) (*AzureEngine, error) {
	if strings.TrimSpace(key) == "" || strings.TrimSpace(region) == "" {
		return nil, fmt.Errorf("%w: Azure speech key and region are required", dialogue.ErrConfiguration)
	}
	if opts == nil {
		opts = &AzureOptions{}
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 30 * time.Second,
		}
	}

	endpoint := opts.BaseURL
	if endpoint == "" {
		endpoint = fmt.Sprintf(azureEndpointFormat, region)
	}

	return &AzureEngine{
		logger:     logger,
		key:        key,
		endpoint:   endpoint,
		httpClient: httpClient,
	}, nil
}

// Synthesize posts SSML for one line and decodes the returned WAV.
func (e *AzureEngine) Synthesize(ctx context.Context, text string, voice Voice) (*audio.Clip, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text is required", dialogue.ErrInvalidInput)
	}
	if voice.ID == "" {
		voice = DefaultVoices()[0]
	}

	ssml := buildSSML(text, voice.ID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, strings.NewReader(ssml))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", e.key)
	req.Header.Set("Content-Type", "application/ssml+xml")
	req.Header.Set("X-Microsoft-OutputFormat", azureOutputFormat)
	req.Header.Set("User-Agent", "scenetalk")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, &SynthesisError{Engine: "azure", Reason: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: azure rejected the key or region (status=%d)", dialogue.ErrConfiguration, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &SynthesisError{
			Engine: "azure",
			Reason: fmt.Sprintf("status=%d body=%s", resp.StatusCode, string(body)),
		}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &SynthesisError{Engine: "azure", Reason: "read audio", Err: err}
	}
	if len(raw) == 0 {
		return nil, &SynthesisError{Engine: "azure", Reason: "empty audio response"}
	}

	clip, err := audio.DecodeWAV(bytes.NewReader(raw))
	if err != nil {
		return nil, &SynthesisError{Engine: "azure", Reason: "decode audio", Err: err}
	}

	e.logger.Debug("azure synthesis complete",
		slog.String("voice", voice.ID),
		slog.Int("bytes", len(raw)),
		slog.Duration("duration", clip.Duration()),
	)

	return clip, nil
}

func buildSSML(text, voiceID string) string {
	var sb strings.Builder
	sb.WriteString(`<speak version="1.0" xml:lang="en-US"><voice name="`)
	sb.WriteString(voiceID)
	sb.WriteString(`">`)
	sb.WriteString(escapeSSML(text))
	sb.WriteString(`</voice></speak>`)
	return sb.String()
}

func escapeSSML(v string) string {
	r := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&apos;",
	)
	return r.Replace(v)
}
