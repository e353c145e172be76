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

// StableAudioOptions configures the Stable Audio generator.
type StableAudioOptions struct {
	APIKey       string
	BaseURL      string
	HTTPClient   *http.Client
	PollInterval time.Duration
}

// StableAudio drives the Stability AI audio endpoint through its async queue:
// submission returns a generation id and the result is polled until ready.
type StableAudio struct {
	apiKey       string
	baseURL      string
	client       *http.Client
	pollInterval time.Duration
}

func NewStableAudio(opts StableAudioOptions) *StableAudio {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = "https://api.stability.ai"
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &StableAudio{
		apiKey:       strings.TrimSpace(opts.APIKey),
		baseURL:      base,
		client:       client,
		pollInterval: interval,
	}
}

func (s *StableAudio) Name() string { return "stableaudio" }

// HasCredentials reports whether the generator can perform remote calls.
func (s *StableAudio) HasCredentials() bool {
	return s.apiKey != ""
}

type stableAudioSubmitRequest struct {
	Prompt          string  `json:"prompt"`
	DurationSeconds float64 `json:"duration,omitempty"`
	OutputFormat    string  `json:"output_format"`
}

type stableAudioSubmitResponse struct {
	ID string `json:"id"`
}

type stableAudioError struct {
	Name    string   `json:"name"`
	Errors  []string `json:"errors"`
	Message string   `json:"message"`
}

func (s *StableAudio) Generate(ctx context.Context, req Request) (*Asset, error) {
	if !s.HasCredentials() {
		return nil, ErrMissingAPIKey
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, errors.New("stableaudio: prompt is required")
	}

	id, err := s.submit(ctx, stableAudioSubmitRequest{
		Prompt:          prompt,
		DurationSeconds: req.DurationSeconds,
		OutputFormat:    "mp3",
	})
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
		data, done, err := s.poll(ctx, id)
		if err != nil {
			return nil, err
		}
		if done {
			return &Asset{Data: data, Format: "audio/mpeg"}, nil
		}
	}
}

func (s *StableAudio) submit(ctx context.Context, payload stableAudioSubmitRequest) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("stableaudio: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v2beta/audio/stable-audio-2/text-to-audio", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("stableaudio: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("stableaudio: http request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("stableaudio: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", stableAudioStatusError(resp.StatusCode, raw)
	}
	var decoded stableAudioSubmitResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("stableaudio: decode response: %w", err)
	}
	if decoded.ID == "" {
		return "", errors.New("stableaudio: empty generation id")
	}
	return decoded.ID, nil
}

// poll fetches the generation result. A 202 means still rendering.
func (s *StableAudio) poll(ctx context.Context, id string) ([]byte, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/v2beta/audio/stable-audio-2/result/"+id, nil)
	if err != nil {
		return nil, false, fmt.Errorf("stableaudio: build poll request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)
	httpReq.Header.Set("Accept", "audio/*")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, false, fmt.Errorf("stableaudio: poll request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusAccepted {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, false, nil
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("stableaudio: read result: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, false, stableAudioStatusError(resp.StatusCode, raw)
	}
	if len(raw) == 0 {
		return nil, false, errors.New("stableaudio: empty audio result")
	}
	return raw, true, nil
}

func stableAudioStatusError(status int, raw []byte) error {
	var detail stableAudioError
	if err := json.Unmarshal(raw, &detail); err == nil {
		if len(detail.Errors) > 0 {
			return fmt.Errorf("stableaudio: %s (%s)", strings.Join(detail.Errors, "; "), detail.Name)
		}
		if detail.Message != "" {
			return fmt.Errorf("stableaudio: %s (%s)", detail.Message, detail.Name)
		}
	}
	return fmt.Errorf("stableaudio: status %d: %s", status, strings.TrimSpace(string(raw)))
}

var _ Generator = (*StableAudio)(nil)
