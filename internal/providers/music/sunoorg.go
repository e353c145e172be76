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

const ProviderSunoOrg = "sunoorg"

// SunoOrgOptions configures the SunoOrg adapter.
type SunoOrgOptions struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// SunoOrg integrates the sunoapi.org gateway. Unlike the other vendors its
// status endpoint returns one record per clip rather than one per job, so the
// job status is aggregated across records.
type SunoOrg struct {
	apiKey  string
	baseURL string
	client  *http.Client
	timeout time.Duration
}

func NewSunoOrg(opts SunoOrgOptions) *SunoOrg {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = "https://api.sunoapi.org"
	}
	return &SunoOrg{
		apiKey:  strings.TrimSpace(opts.APIKey),
		baseURL: base,
		client:  opts.HTTPClient,
		timeout: opts.Timeout,
	}
}

func (s *SunoOrg) Name() string { return ProviderSunoOrg }

type sunoOrgGenerateRequest struct {
	Prompt           string `json:"prompt"`
	Lyrics           string `json:"lyrics,omitempty"`
	Title            string `json:"title,omitempty"`
	Tags             string `json:"tags,omitempty"`
	MakeInstrumental bool   `json:"make_instrumental"`
	CustomMode       bool   `json:"custom_mode"`
	Model            string `json:"mv,omitempty"`
}

type sunoOrgEnvelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func (e sunoOrgEnvelope) ok() bool {
	return e.Code == 0 || e.Code == 200
}

func (e sunoOrgEnvelope) errorText() string {
	if e.Msg != "" {
		return e.Msg
	}
	return fmt.Sprintf("code %d", e.Code)
}

type sunoOrgRecord struct {
	ID       string  `json:"id"`
	Status   string  `json:"status"`
	AudioURL string  `json:"audio_url"`
	Title    string  `json:"title"`
	Lyric    string  `json:"lyric"`
	Duration float64 `json:"duration"`
	MetaData struct {
		ErrorMsg string `json:"error_msg"`
	} `json:"meta_data"`
}

func (s *SunoOrg) Generate(ctx context.Context, req GenerationRequest) (*Job, error) {
	req = sanitize(req)
	payload := sunoOrgGenerateRequest{
		Prompt:           req.Prompt,
		Lyrics:           req.Lyrics,
		Title:            req.Title,
		Tags:             strings.TrimSpace(strings.Join(nonEmpty(req.Style, req.Tags), ", ")),
		MakeInstrumental: req.Instrumental,
		CustomMode:       req.CustomMode,
		Model:            req.Model,
	}
	var env sunoOrgEnvelope
	if err := s.invoke(ctx, http.MethodPost, "/api/v1/gateway/generate/music", payload, &env); err != nil {
		return nil, err
	}
	if !env.ok() {
		return nil, &VendorError{Provider: ProviderSunoOrg, StatusCode: http.StatusOK, Body: truncate(env.errorText(), maxErrorBodyLen)}
	}
	id := extractSunoOrgTaskID(env.Data)
	if id == "" {
		return nil, fmt.Errorf("sunoorg: %w", ErrMissingJobID)
	}
	return &Job{ID: id, Provider: ProviderSunoOrg, Status: StatusStarting, CreatedAt: time.Now()}, nil
}

// extractSunoOrgTaskID handles the vendor's two observed submission shapes: a
// bare id string and an object carrying task_id or id.
func extractSunoOrgTaskID(data json.RawMessage) string {
	if len(data) == 0 {
		return ""
	}
	var plain string
	if err := json.Unmarshal(data, &plain); err == nil {
		return strings.TrimSpace(plain)
	}
	var wrapped struct {
		TaskID string `json:"task_id"`
		ID     string `json:"id"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return ""
	}
	if wrapped.TaskID != "" {
		return wrapped.TaskID
	}
	return wrapped.ID
}

func (s *SunoOrg) GetStatus(ctx context.Context, id string) (*StatusUpdate, error) {
	var env sunoOrgEnvelope
	path := "/api/v1/gateway/query?ids=" + url.QueryEscape(id)
	if err := s.invoke(ctx, http.MethodGet, path, nil, &env); err != nil {
		return nil, err
	}
	if !env.ok() {
		return nil, &VendorError{Provider: ProviderSunoOrg, StatusCode: http.StatusOK, Body: truncate(env.errorText(), maxErrorBodyLen)}
	}
	var records []sunoOrgRecord
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &records); err != nil {
			return nil, fmt.Errorf("sunoorg: decode status data: %w", err)
		}
	}

	update := &StatusUpdate{ID: id, Status: aggregateSunoOrgStatus(records)}
	for _, rec := range records {
		if rec.AudioURL == "" && NormalizeStatus(rec.Status) != StatusComplete {
			continue
		}
		update.Clips = append(update.Clips, Clip{
			ID:       rec.ID,
			AudioURL: rec.AudioURL,
			Title:    rec.Title,
			Lyrics:   rec.Lyric,
			Duration: rec.Duration,
		})
	}
	if len(update.Clips) > 0 {
		update.AudioURL = update.Clips[0].AudioURL
	}
	if update.Status == StatusFailed {
		for _, rec := range records {
			if rec.MetaData.ErrorMsg != "" {
				update.Error = rec.MetaData.ErrorMsg
				break
			}
		}
		if update.Error == "" {
			update.Error = "generation failed"
		}
	}
	return update, nil
}

// aggregateSunoOrgStatus folds per-clip states into one job status: any
// failure fails the job, all complete completes it, any progress keeps it
// processing.
func aggregateSunoOrgStatus(records []sunoOrgRecord) Status {
	if len(records) == 0 {
		return StatusStarting
	}
	complete := 0
	processing := false
	for _, rec := range records {
		switch NormalizeStatus(rec.Status) {
		case StatusFailed:
			return StatusFailed
		case StatusComplete:
			complete++
		case StatusProcessing:
			processing = true
		}
	}
	if complete == len(records) {
		return StatusComplete
	}
	if processing || complete > 0 {
		return StatusProcessing
	}
	return StatusStarting
}

// GetUser reports the remaining credit balance. The vendor returns the number
// directly in the data field.
func (s *SunoOrg) GetUser(ctx context.Context) (*AccountInfo, error) {
	var env sunoOrgEnvelope
	if err := s.invoke(ctx, http.MethodGet, "/api/v1/gateway/credit", nil, &env); err != nil {
		return nil, err
	}
	if !env.ok() {
		return nil, &VendorError{Provider: ProviderSunoOrg, StatusCode: http.StatusOK, Body: truncate(env.errorText(), maxErrorBodyLen)}
	}
	var credits float64
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &credits); err != nil {
			return nil, fmt.Errorf("sunoorg: decode credit data: %w", err)
		}
	}
	return &AccountInfo{Credits: credits}, nil
}

func (s *SunoOrg) invoke(ctx context.Context, method, path string, payload, out any) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("sunoorg: marshal request: %w", err)
		}
	}
	resp, err := fetchWithRetry(ctx, s.client, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
		return req, nil
	}, s.timeout)
	if err != nil {
		var vendorErr *VendorError
		if errors.As(err, &vendorErr) && vendorErr.Provider == "" {
			vendorErr.Provider = ProviderSunoOrg
		}
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("sunoorg: decode response: %w", err)
	}
	return nil
}

func nonEmpty(values ...string) []string {
	var out []string
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}

var _ Provider = (*SunoOrg)(nil)
var _ AccountReporter = (*SunoOrg)(nil)
