// Package llm implements the script requestor against OpenAI's Chat
// Completions API.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"scenetalk/internal/dialogue"
)

const (
	defaultOpenAIEndpoint = "https://api.openai.com/v1/chat/completions"
	defaultModel          = "gpt-4o"
	defaultTemperature    = 0.7
)

const systemPrompt = "You are an expert English teacher who creates listening materials " +
	"for middle school students. Create natural English conversations appropriate for " +
	"middle school level (grades 7-9). Use simple, clear vocabulary, keep sentences " +
	"relatively short, and include common phrases used in daily conversation. Include " +
	"4-8 lines of dialogue between 2-3 speakers with natural conversational flow. " +
	"Respond with JSON in this exact format: " +
	`{"title": "Short descriptive title in English", ` +
	`"situation": "Brief description of the situation", ` +
	`"conversation": [{"speaker": "Speaker name", "text": "English dialogue"}]}`

// OpenAIOptions allows overriding HTTP behavior.
type OpenAIOptions struct {
	BaseURL     string
	HTTPClient  *http.Client
	Temperature float64
}

// OpenAIClient implements dialogue.ScriptClient against OpenAI's Chat
// Completions API.
type OpenAIClient struct {
	logger      *slog.Logger
	apiKey      string
	model       string
	endpoint    string
	httpClient  *http.Client
	temperature float64
}

// NewOpenAIClient constructs a new OpenAIClient. The key may be empty;
// GenerateScript reports dialogue.ErrConfiguration before any network
// call in that case.
func NewOpenAIClient(logger *slog.Logger, apiKey, model string, opts *OpenAIOptions) *OpenAIClient {
	if opts == nil {
		opts = &OpenAIOptions{}
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 45 * time.Second,
		}
	}

	endpoint := opts.BaseURL
	if endpoint == "" {
		endpoint = defaultOpenAIEndpoint
	}

	if model == "" {
		model = defaultModel
	}

	temperature := opts.Temperature
	if temperature == 0 {
		temperature = defaultTemperature
	}

	return &OpenAIClient{
		logger:      logger,
		apiKey:      apiKey,
		model:       model,
		endpoint:    endpoint,
		httpClient:  httpClient,
		temperature: temperature,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type completionRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature,omitempty"`
	ResponseFormat responseFormat `json:"response_format"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// GenerateScript sends one prompt to OpenAI and parses the JSON payload
// into a dialogue.Document. There is no retry: a failed or malformed
// call surfaces immediately.
func (c *OpenAIClient) GenerateScript(ctx context.Context, scene string) (dialogue.Document, error) {
	if strings.TrimSpace(c.apiKey) == "" {
		return dialogue.Document{}, fmt.Errorf("%w: OpenAI API key is required", dialogue.ErrConfiguration)
	}

	reqPayload := completionRequest{
		Model:          c.model,
		Temperature:    c.temperature,
		ResponseFormat: responseFormat{Type: "json_object"},
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: "Create a middle school level English conversation for this scene: " + scene},
		},
	}

	body, err := json.Marshal(reqPayload)
	if err != nil {
		return dialogue.Document{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return dialogue.Document{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return dialogue.Document{}, fmt.Errorf("call openai: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return dialogue.Document{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return dialogue.Document{}, fmt.Errorf("%w: openai rejected the API key (status=%d)", dialogue.ErrConfiguration, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return dialogue.Document{}, fmt.Errorf("openai error: status=%d body=%s", resp.StatusCode, truncate(respBody, 512))
	}

	var completion completionResponse
	if err := json.Unmarshal(respBody, &completion); err != nil {
		return dialogue.Document{}, fmt.Errorf("decode response: %w body=%s", err, truncate(respBody, 256))
	}

	if completion.Error != nil {
		return dialogue.Document{}, fmt.Errorf("openai error: %s (%s)", completion.Error.Message, completion.Error.Type)
	}

	if len(completion.Choices) == 0 {
		return dialogue.Document{}, fmt.Errorf("%w: openai returned no choices", dialogue.ErrMalformedResponse)
	}

	content := stripCodeFence(completion.Choices[0].Message.Content)

	doc, err := parseDocument([]byte(content))
	if err != nil {
		return dialogue.Document{}, err
	}

	c.logger.Debug("script generated",
		slog.String("title", doc.Title),
		slog.Int("lines", len(doc.Conversation)),
	)

	return doc, nil
}

// parseDocument enforces the structural invariant on the model payload:
// all three keys present and a non-empty conversation of speaker/text
// records.
func parseDocument(content []byte) (dialogue.Document, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(content, &raw); err != nil {
		return dialogue.Document{}, fmt.Errorf("%w: parse script json: %v", dialogue.ErrMalformedResponse, err)
	}
	for _, key := range []string{"title", "situation", "conversation"} {
		if _, ok := raw[key]; !ok {
			return dialogue.Document{}, fmt.Errorf("%w: missing %q", dialogue.ErrMalformedResponse, key)
		}
	}

	var doc dialogue.Document
	if err := json.Unmarshal(content, &doc); err != nil {
		return dialogue.Document{}, fmt.Errorf("%w: decode script: %v", dialogue.ErrMalformedResponse, err)
	}
	if len(doc.Conversation) == 0 {
		return dialogue.Document{}, fmt.Errorf("%w: conversation is empty", dialogue.ErrMalformedResponse)
	}
	for i, line := range doc.Conversation {
		if strings.TrimSpace(line.Speaker) == "" || strings.TrimSpace(line.Text) == "" {
			return dialogue.Document{}, fmt.Errorf("%w: conversation entry %d lacks speaker or text", dialogue.ErrMalformedResponse, i)
		}
	}
	return doc, nil
}

func stripCodeFence(v string) string {
	v = strings.TrimSpace(v)
	if strings.HasPrefix(v, "```") {
		v = strings.TrimPrefix(v, "```")
		if idx := strings.Index(v, "\n"); idx != -1 {
			v = v[idx+1:]
		}
		v = strings.TrimSuffix(v, "```")
	}
	return strings.TrimSpace(v)
}

func truncate(b []byte, max int) string {
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "…"
}
