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

const ProviderDefAPI = "defapi"

// DefAPIOptions configures the DefAPI adapter.
type DefAPIOptions struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// DefAPI talks to the DefAPI Suno gateway, a task-id-poll vendor: submission
// returns an opaque task id and results are fetched through a status endpoint.
type DefAPI struct {
	apiKey  string
	baseURL string
	client  *http.Client
	timeout time.Duration
}

func NewDefAPI(opts DefAPIOptions) *DefAPI {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = "https://api.defapi.org"
	}
	return &DefAPI{
		apiKey:  strings.TrimSpace(opts.APIKey),
		baseURL: base,
		client:  opts.HTTPClient,
		timeout: opts.Timeout,
	}
}

func (d *DefAPI) Name() string { return ProviderDefAPI }

type defAPIGenerateRequest struct {
	Prompt       string `json:"prompt"`
	Lyric        string `json:"lyric,omitempty"`
	Title        string `json:"title,omitempty"`
	Style        string `json:"style,omitempty"`
	Tags         string `json:"tags,omitempty"`
	CustomMode   bool   `json:"custom_mode"`
	Instrumental bool   `json:"instrumental"`
	Model        string `json:"model,omitempty"`
	Duration     int    `json:"duration,omitempty"`
}

type defAPIEnvelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

// ok reports whether the envelope carries no explicit error indicator. A 200
// transport status alone is not trusted: DefAPI embeds application errors in
// 200 bodies.
func (e defAPIEnvelope) ok() bool {
	if e.Error != "" {
		return false
	}
	return e.Code == 0 || e.Code == 200
}

func (e defAPIEnvelope) errorText() string {
	if e.Error != "" {
		return e.Error
	}
	if e.Message != "" && !strings.EqualFold(e.Message, "ok") && !strings.EqualFold(e.Message, "success") {
		return e.Message
	}
	return fmt.Sprintf("code %d", e.Code)
}

type defAPITaskData struct {
	TaskID string `json:"task_id"`
	ID     string `json:"id"`
}

type defAPIStatusData struct {
	TaskID       string `json:"task_id"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Output       any    `json:"output"`
	Clips        []struct {
		ID       string  `json:"id"`
		AudioURL string  `json:"audio_url"`
		Title    string  `json:"title"`
		Lyric    string  `json:"lyric"`
		Duration float64 `json:"duration"`
	} `json:"clips"`
}

func (d *DefAPI) Generate(ctx context.Context, req GenerationRequest) (*Job, error) {
	req = sanitize(req)
	payload := defAPIGenerateRequest{
		Prompt:       req.Prompt,
		Lyric:        req.Lyrics,
		Title:        req.Title,
		Style:        req.Style,
		Tags:         req.Tags,
		CustomMode:   req.CustomMode,
		Instrumental: req.Instrumental,
		Model:        req.Model,
		Duration:     req.DurationSeconds,
	}
	var env defAPIEnvelope
	if err := d.invoke(ctx, http.MethodPost, "/api/suno/generate", payload, &env); err != nil {
		return nil, err
	}
	if !env.ok() {
		return nil, &VendorError{Provider: ProviderDefAPI, StatusCode: http.StatusOK, Body: truncate(env.errorText(), maxErrorBodyLen)}
	}
	var data defAPITaskData
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, fmt.Errorf("defapi: decode task data: %w", err)
		}
	}
	id := data.TaskID
	if id == "" {
		id = data.ID
	}
	if id == "" {
		return nil, fmt.Errorf("defapi: %w", ErrMissingJobID)
	}
	return &Job{ID: id, Provider: ProviderDefAPI, Status: StatusStarting, CreatedAt: time.Now()}, nil
}

func (d *DefAPI) GetStatus(ctx context.Context, id string) (*StatusUpdate, error) {
	var env defAPIEnvelope
	path := "/api/suno/task/" + url.PathEscape(id)
	if err := d.invoke(ctx, http.MethodGet, path, nil, &env); err != nil {
		return nil, err
	}
	if !env.ok() {
		return nil, &VendorError{Provider: ProviderDefAPI, StatusCode: http.StatusOK, Body: truncate(env.errorText(), maxErrorBodyLen)}
	}
	var data defAPIStatusData
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, fmt.Errorf("defapi: decode status data: %w", err)
		}
	}

	update := &StatusUpdate{ID: id, Status: NormalizeStatus(data.Status)}
	for _, clip := range data.Clips {
		update.Clips = append(update.Clips, Clip{
			ID:       clip.ID,
			AudioURL: clip.AudioURL,
			Title:    clip.Title,
			Lyrics:   clip.Lyric,
			Duration: clip.Duration,
		})
	}
	if len(update.Clips) > 0 {
		update.AudioURL = update.Clips[0].AudioURL
	}
	if update.AudioURL == "" {
		update.AudioURL = ExtractAudioURL(data.Output)
	}
	if update.Status == StatusFailed {
		update.Error = data.ErrorMessage
		if update.Error == "" {
			update.Error = "generation failed"
		}
	}
	return update, nil
}

// GetUser reports the remaining credit balance for the configured key.
func (d *DefAPI) GetUser(ctx context.Context) (*AccountInfo, error) {
	var env defAPIEnvelope
	if err := d.invoke(ctx, http.MethodGet, "/api/account/info", nil, &env); err != nil {
		return nil, err
	}
	if !env.ok() {
		return nil, &VendorError{Provider: ProviderDefAPI, StatusCode: http.StatusOK, Body: truncate(env.errorText(), maxErrorBodyLen)}
	}
	var data struct {
		Credits float64 `json:"credits"`
		UserID  string  `json:"user_id"`
		Plan    string  `json:"plan"`
	}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, fmt.Errorf("defapi: decode account data: %w", err)
		}
	}
	return &AccountInfo{Credits: data.Credits, UserID: data.UserID, Plan: data.Plan}, nil
}

func (d *DefAPI) invoke(ctx context.Context, method, path string, payload, out any) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("defapi: marshal request: %w", err)
		}
	}
	resp, err := fetchWithRetry(ctx, d.client, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+d.apiKey)
		return req, nil
	}, d.timeout)
	if err != nil {
		var vendorErr *VendorError
		if errors.As(err, &vendorErr) && vendorErr.Provider == "" {
			vendorErr.Provider = ProviderDefAPI
		}
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("defapi: decode response: %w", err)
	}
	return nil
}

var _ Provider = (*DefAPI)(nil)
var _ AccountReporter = (*DefAPI)(nil)
