package sfx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ElevenLabsOptions configures the ElevenLabs generator.
type ElevenLabsOptions struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// ElevenLabs drives the ElevenLabs sound-effect endpoint. Unlike the queue
// vendors it is synchronous: the response body is the audio itself.
type ElevenLabs struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewElevenLabs(opts ElevenLabsOptions) *ElevenLabs {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = "https://api.elevenlabs.io"
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &ElevenLabs{
		apiKey:  strings.TrimSpace(opts.APIKey),
		baseURL: base,
		client:  client,
	}
}

func (e *ElevenLabs) Name() string { return "elevenlabs" }

// HasCredentials reports whether the generator can perform remote calls.
func (e *ElevenLabs) HasCredentials() bool {
	return e.apiKey != ""
}

type elevenLabsRequest struct {
	Text            string  `json:"text"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
}

type elevenLabsError struct {
	Detail struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"detail"`
}

func (e *ElevenLabs) Generate(ctx context.Context, req Request) (*Asset, error) {
	if !e.HasCredentials() {
		return nil, ErrMissingAPIKey
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, errors.New("elevenlabs: prompt is required")
	}

	body, err := json.Marshal(elevenLabsRequest{Text: prompt, DurationSeconds: req.DurationSeconds})
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/sound-generation", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("xi-api-key", e.apiKey)

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: http request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var detail elevenLabsError
		if err := json.Unmarshal(raw, &detail); err == nil && detail.Detail.Message != "" {
			return nil, fmt.Errorf("elevenlabs: %s (%s)", detail.Detail.Message, detail.Detail.Status)
		}
		return nil, fmt.Errorf("elevenlabs: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if len(raw) == 0 {
		return nil, errors.New("elevenlabs: empty audio response")
	}
	format := resp.Header.Get("Content-Type")
	if format == "" {
		format = "audio/mpeg"
	}
	return &Asset{Data: raw, Format: format}, nil
}

var _ Generator = (*ElevenLabs)(nil)
