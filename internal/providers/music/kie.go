package music

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const ProviderKie = "kie"

// KieOptions configures the Kie adapter.
type KieOptions struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Kie integrates the kie.ai Suno gateway. Same task-id-poll family as DefAPI
// but with camelCase field names, uppercase status tokens, and partial-result
// states while the vendor streams clips.
type Kie struct {
	apiKey  string
	baseURL string
	client  *http.Client
	timeout time.Duration
}

func NewKie(opts KieOptions) *Kie {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = "https://api.kie.ai"
	}
	return &Kie{
		apiKey:  strings.TrimSpace(opts.APIKey),
		baseURL: base,
		client:  opts.HTTPClient,
		timeout: opts.Timeout,
	}
}

func (k *Kie) Name() string { return ProviderKie }

type kieGenerateRequest struct {
	Prompt       string `json:"prompt"`
	Lyrics       string `json:"lyrics,omitempty"`
	Title        string `json:"title,omitempty"`
	Style        string `json:"style,omitempty"`
	Tags         string `json:"tags,omitempty"`
	CustomMode   bool   `json:"customMode"`
	Instrumental bool   `json:"instrumental"`
	Model        string `json:"model,omitempty"`
}

type kieEnvelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func (e kieEnvelope) ok() bool {
	return e.Code == 0 || e.Code == 200
}

func (e kieEnvelope) errorText() string {
	if e.Msg != "" {
		return e.Msg
	}
	return fmt.Sprintf("code %d", e.Code)
}

type kieStatusData struct {
	TaskID   string `json:"taskId"`
	Status   string `json:"status"`
	ErrorMsg string `json:"errorMessage"`
	Response struct {
		SunoData []struct {
			ID       string  `json:"id"`
			AudioURL string  `json:"audioUrl"`
			Title    string  `json:"title"`
			Prompt   string  `json:"prompt"`
			Duration float64 `json:"duration"`
		} `json:"sunoData"`
	} `json:"response"`
}

// normalizeKieStatus folds Kie's partial-result vocabulary into the shared
// enum before the generic mapping runs. TEXT_SUCCESS and FIRST_SUCCESS mean
// the job is still rendering audio.
func normalizeKieStatus(raw string) Status {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "TEXT_SUCCESS", "FIRST_SUCCESS", "GENERATING":
		return StatusProcessing
	case "CREATE_TASK_FAILED", "GENERATE_AUDIO_FAILED", "SENSITIVE_WORD_ERROR", "CALLBACK_EXCEPTION":
		return StatusFailed
	}
	return NormalizeStatus(raw)
}

func (k *Kie) Generate(ctx context.Context, req GenerationRequest) (*Job, error) {
	req = sanitize(req)
	payload := kieGenerateRequest{
		Prompt:       req.Prompt,
		Lyrics:       req.Lyrics,
		Title:        req.Title,
		Style:        req.Style,
		Tags:         req.Tags,
		CustomMode:   req.CustomMode,
		Instrumental: req.Instrumental,
		Model:        req.Model,
	}
	var env kieEnvelope
	if err := k.invoke(ctx, http.MethodPost, "/api/v1/generate", payload, &env); err != nil {
		return nil, err
	}
	if !env.ok() {
		return nil, &VendorError{Provider: ProviderKie, StatusCode: http.StatusOK, Body: truncate(env.errorText(), maxErrorBodyLen)}
	}
	var data struct {
		TaskID string `json:"taskId"`
		ID     string `json:"id"`
	}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, fmt.Errorf("kie: decode task data: %w", err)
		}
	}
	id := data.TaskID
	if id == "" {
		id = data.ID
	}
	if id == "" {
		return nil, fmt.Errorf("kie: %w", ErrMissingJobID)
	}
	return &Job{ID: id, Provider: ProviderKie, Status: StatusStarting, CreatedAt: time.Now()}, nil
}

func (k *Kie) GetStatus(ctx context.Context, id string) (*StatusUpdate, error) {
	var env kieEnvelope
	path := "/api/v1/generate/record-info?taskId=" + url.QueryEscape(id)
	if err := k.invoke(ctx, http.MethodGet, path, nil, &env); err != nil {
		return nil, err
	}
	if !env.ok() {
		return nil, &VendorError{Provider: ProviderKie, StatusCode: http.StatusOK, Body: truncate(env.errorText(), maxErrorBodyLen)}
	}
	var data kieStatusData
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, fmt.Errorf("kie: decode status data: %w", err)
		}
	}

	update := &StatusUpdate{ID: id, Status: normalizeKieStatus(data.Status)}
	for _, clip := range data.Response.SunoData {
		update.Clips = append(update.Clips, Clip{
			ID:       clip.ID,
			AudioURL: clip.AudioURL,
			Title:    clip.Title,
			Lyrics:   clip.Prompt,
			Duration: clip.Duration,
		})
	}
	if len(update.Clips) > 0 {
		update.AudioURL = update.Clips[0].AudioURL
	}
	if update.Status == StatusFailed {
		update.Error = data.ErrorMsg
		if update.Error == "" {
			update.Error = "generation failed"
		}
	}
	return update, nil
}

func (k *Kie) invoke(ctx context.Context, method, path string, payload, out any) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("kie: marshal request: %w", err)
		}
	}
	resp, err := fetchWithRetry(ctx, k.client, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, method, k.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+k.apiKey)
		return req, nil
	}, k.timeout)
	if err != nil {
		var vendorErr *VendorError
		if errors.As(err, &vendorErr) && vendorErr.Provider == "" {
			vendorErr.Provider = ProviderKie
		}
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("kie: decode response: %w", err)
	}
	return nil
}

var _ Provider = (*Kie)(nil)
