package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"harmoniq/internal/domain"
	"harmoniq/internal/http/handlers"
	"harmoniq/internal/http/httpapi"
	"harmoniq/internal/infra"
	"harmoniq/internal/middleware"
	"harmoniq/internal/providers/lyrics"
	"harmoniq/internal/providers/music"
	"harmoniq/internal/providers/sfx"
	"harmoniq/internal/storage"
)

type memGenerations struct {
	mu   sync.Mutex
	gens map[string]*domain.Generation
}

func newMemGenerations() *memGenerations {
	return &memGenerations{gens: make(map[string]*domain.Generation)}
}

func (m *memGenerations) Create(ctx context.Context, gen *domain.Generation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *gen
	m.gens[gen.ID] = &cp
	return nil
}

func (m *memGenerations) GetByID(ctx context.Context, id string) (*domain.Generation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	gen, ok := m.gens[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *gen
	return &cp, nil
}

func (m *memGenerations) List(ctx context.Context, params domain.GenerationListParams) ([]domain.Generation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Generation
	for _, gen := range m.gens {
		if params.APIKeyID != "" && gen.APIKeyID != params.APIKeyID {
			continue
		}
		if params.Status != "" && gen.Status != params.Status {
			continue
		}
		if params.Type != "" && gen.Type != params.Type {
			continue
		}
		out = append(out, *gen)
	}
	return out, nil
}

func (m *memGenerations) MarkDispatched(ctx context.Context, id, provider, upstreamID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	gen, ok := m.gens[id]
	if !ok {
		return domain.ErrNotFound
	}
	gen.Status = domain.GenerationStatusDispatched
	gen.Provider = provider
	gen.UpstreamID = upstreamID
	return nil
}

func (m *memGenerations) UpdateStatus(ctx context.Context, id string, status domain.GenerationStatus, audioURL string, clipsJSON []byte, errMsg *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	gen, ok := m.gens[id]
	if !ok {
		return domain.ErrNotFound
	}
	gen.Status = status
	if audioURL != "" {
		gen.AudioURL = audioURL
	}
	if len(clipsJSON) > 0 {
		gen.ClipsJSON = clipsJSON
	}
	if errMsg != nil {
		gen.ErrorMessage = *errMsg
	}
	return nil
}

func (m *memGenerations) ClaimDispatched(ctx context.Context, limit int) ([]domain.Generation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Generation
	for _, gen := range m.gens {
		if gen.Status != domain.GenerationStatusDispatched {
			continue
		}
		gen.Status = domain.GenerationStatusPolling
		out = append(out, *gen)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type memAssets struct {
	mu     sync.Mutex
	assets map[string][]domain.Asset
}

func newMemAssets() *memAssets {
	return &memAssets{assets: make(map[string][]domain.Asset)}
}

func (m *memAssets) SaveAll(ctx context.Context, generationID string, assets []domain.Asset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assets[generationID] = append(m.assets[generationID], assets...)
	return nil
}

func (m *memAssets) ListByGenerationID(ctx context.Context, generationID string) ([]domain.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Asset(nil), m.assets[generationID]...), nil
}

type fakeSFX struct {
	asset *sfx.Asset
	err   error
}

func (f *fakeSFX) Name() string { return "fakesfx" }
func (f *fakeSFX) Generate(ctx context.Context, req sfx.Request) (*sfx.Asset, error) {
	return f.asset, f.err
}

// generationView mirrors the wire shape of a generation record.
type generationView struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Status   string `json:"status"`
	Provider string `json:"provider"`
	AudioURL string `json:"audio_url"`
	Clips    []struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"clips"`
	Error string `json:"error"`
}

const testKeyPlaintext = "sk-harmoniq-test"

type testEnv struct {
	server *httptest.Server
	gens   *memGenerations
	assets *memAssets
	app    *handlers.App
}

func newTestEnv(t *testing.T, musicCfg music.Config, mutate func(*handlers.App)) *testEnv {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	gens := newMemGenerations()
	assets := newMemAssets()
	app := &handlers.App{
		Logger:      zerolog.New(io.Discard),
		Cfg:         &infra.Config{StorageBaseURL: "http://localhost:8080/static"},
		Music:       music.NewDispatcher(func() music.Config { return musicCfg }),
		Lyrics:      lyrics.NewStaticWriter(),
		Generations: gens,
		Assets:      assets,
		Store:       store,
	}
	if mutate != nil {
		mutate(app)
	}

	key := &domain.APIKey{ID: "key-1", KeyHash: middleware.HashAPIKey(testKeyPlaintext)}
	resolver := func(ctx context.Context, keyHash string) (*domain.APIKey, error) {
		if keyHash == key.KeyHash {
			return key, nil
		}
		return nil, domain.ErrNotFound
	}
	router := httpapi.NewRouter(app, httpapi.RouterOptions{
		DefaultLocale: "en",
		ResolveAPIKey: resolver,
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &testEnv{server: server, gens: gens, assets: assets, app: app}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+testKeyPlaintext)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp, raw
}

func TestGenerationsCreateAndStatusFlow(t *testing.T) {
	poll := 0
	vendor := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/suno/generate":
			_, _ = w.Write([]byte(`{"code":200,"data":{"task_id":"abc123"}}`))
		case r.Method == http.MethodGet && r.URL.Path == "/api/suno/task/abc123":
			poll++
			if poll == 1 {
				_, _ = w.Write([]byte(`{"code":200,"data":{"task_id":"abc123","status":"processing"}}`))
				return
			}
			_, _ = w.Write([]byte(`{"code":200,"data":{"task_id":"abc123","status":"completed","clips":[{"id":"c1","audio_url":"https://x/y.mp3","title":"Dreamy"}]}}`))
		default:
			t.Errorf("unexpected vendor request %s %s", r.Method, r.URL.Path)
			http.NotFound(w, r)
		}
	}))
	defer vendor.Close()

	env := newTestEnv(t, music.Config{DefAPIKey: "vendor-key", DefAPIBaseURL: vendor.URL}, nil)

	resp, raw := env.do(t, http.MethodPost, "/v1/generations", map[string]any{
		"prompt":       "dreamy synth track",
		"instrumental": true,
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("create status = %d: %s", resp.StatusCode, raw)
	}
	var created generationView
	if err := json.Unmarshal(raw, &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if created.Status != string(domain.GenerationStatusDispatched) || created.Provider != "defapi" {
		t.Fatalf("created = %+v", created)
	}

	resp, raw = env.do(t, http.MethodGet, "/v1/generations/"+created.ID+"/status", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first poll status = %d: %s", resp.StatusCode, raw)
	}
	var polled generationView
	if err := json.Unmarshal(raw, &polled); err != nil {
		t.Fatalf("decode poll response: %v", err)
	}
	if polled.Status != string(domain.GenerationStatusDispatched) {
		t.Fatalf("first poll status = %q", polled.Status)
	}

	resp, raw = env.do(t, http.MethodGet, "/v1/generations/"+created.ID+"/status", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("second poll status = %d: %s", resp.StatusCode, raw)
	}
	if err := json.Unmarshal(raw, &polled); err != nil {
		t.Fatalf("decode poll response: %v", err)
	}
	if polled.Status != string(domain.GenerationStatusComplete) {
		t.Fatalf("second poll status = %q", polled.Status)
	}
	if polled.AudioURL != "https://x/y.mp3" {
		t.Fatalf("audio url = %q", polled.AudioURL)
	}
	if len(polled.Clips) != 1 || polled.Clips[0].Title != "Dreamy" {
		t.Fatalf("clips = %+v", polled.Clips)
	}

	stored, err := env.gens.GetByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("stored record: %v", err)
	}
	if stored.Status != domain.GenerationStatusComplete || stored.AudioURL != "https://x/y.mp3" {
		t.Fatalf("stored = %+v", stored)
	}
}

func TestGenerationsCreateRequiresPrompt(t *testing.T) {
	env := newTestEnv(t, music.Config{DefAPIKey: "k"}, nil)
	resp, _ := env.do(t, http.MethodPost, "/v1/generations", map[string]any{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGenerationsCreateWithoutProvider(t *testing.T) {
	env := newTestEnv(t, music.Config{}, nil)
	resp, raw := env.do(t, http.MethodPost, "/v1/generations", map[string]any{"prompt": "anything"})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d: %s", resp.StatusCode, raw)
	}

	gens, err := env.gens.List(context.Background(), domain.GenerationListParams{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(gens) != 1 || gens[0].Status != domain.GenerationStatusFailed {
		t.Fatalf("stored = %+v", gens)
	}
}

func TestGenerationsGetUnknownID(t *testing.T) {
	env := newTestEnv(t, music.Config{DefAPIKey: "k"}, nil)
	resp, _ := env.do(t, http.MethodGet, "/v1/generations/nope", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestGenerationsHideOtherCallersRecords(t *testing.T) {
	env := newTestEnv(t, music.Config{DefAPIKey: "k"}, nil)
	foreign := &domain.Generation{ID: "g-foreign", APIKeyID: "someone-else", Type: domain.GenerationTypeMusic, Status: domain.GenerationStatusComplete}
	if err := env.gens.Create(context.Background(), foreign); err != nil {
		t.Fatalf("seed: %v", err)
	}

	resp, _ := env.do(t, http.MethodGet, "/v1/generations/g-foreign", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 for foreign record", resp.StatusCode)
	}

	resp, raw := env.do(t, http.MethodGet, "/v1/generations", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
	var list struct {
		Items []generationView `json:"items"`
	}
	if err := json.Unmarshal(raw, &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Items) != 0 {
		t.Fatalf("list leaked foreign records: %+v", list.Items)
	}
}

func TestGenerationsRequireAPIKey(t *testing.T) {
	env := newTestEnv(t, music.Config{DefAPIKey: "k"}, nil)
	req, err := http.NewRequest(http.MethodGet, env.server.URL+"/v1/generations", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestHealthIsPublic(t *testing.T) {
	env := newTestEnv(t, music.Config{}, nil)
	resp, err := http.Get(env.server.URL + "/v1/healthz")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestLyricsCreate(t *testing.T) {
	env := newTestEnv(t, music.Config{}, nil)
	resp, raw := env.do(t, http.MethodPost, "/v1/lyrics", map[string]any{
		"theme": "city nights",
		"mood":  "wistful",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, raw)
	}
	var got struct {
		Title    string `json:"title"`
		Lyrics   string `json:"lyrics"`
		Provider string `json:"provider"`
	}
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Provider != "static" || got.Lyrics == "" {
		t.Fatalf("response = %+v", got)
	}
	if got.Title != "City Nights" {
		t.Fatalf("title = %q", got.Title)
	}
}

func TestSFXCreateStoresAudio(t *testing.T) {
	mp3 := append([]byte("ID3"), bytes.Repeat([]byte{0}, 16)...)
	env := newTestEnv(t, music.Config{}, func(app *handlers.App) {
		app.SFX = &fakeSFX{asset: &sfx.Asset{Data: mp3, Format: "audio/mpeg"}}
	})

	resp, raw := env.do(t, http.MethodPost, "/v1/sfx", map[string]any{
		"prompt":           "door creak",
		"duration_seconds": 3,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d: %s", resp.StatusCode, raw)
	}
	var got struct {
		ID       string `json:"id"`
		URL      string `json:"url"`
		MimeType string `json:"mime_type"`
	}
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.URL == "" || got.MimeType != "audio/mpeg" {
		t.Fatalf("response = %+v", got)
	}
	assets, err := env.assets.ListByGenerationID(context.Background(), got.ID)
	if err != nil || len(assets) != 1 {
		t.Fatalf("assets = %+v, err = %v", assets, err)
	}
	if !env.app.Store.Exists(assets[0].StoragePath) {
		t.Fatalf("stored file missing at %q", assets[0].StoragePath)
	}
}

func TestSFXCreateRejectsNonAudio(t *testing.T) {
	env := newTestEnv(t, music.Config{}, func(app *handlers.App) {
		app.SFX = &fakeSFX{asset: &sfx.Asset{Data: []byte("<!DOCTYPE html>"), Format: "text/html"}}
	})

	resp, _ := env.do(t, http.MethodPost, "/v1/sfx", map[string]any{"prompt": "door creak"})
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", resp.StatusCode)
	}
}

func TestSFXCreateProviderError(t *testing.T) {
	env := newTestEnv(t, music.Config{}, func(app *handlers.App) {
		app.SFX = &fakeSFX{err: errors.New("vendor exploded")}
	})

	resp, _ := env.do(t, http.MethodPost, "/v1/sfx", map[string]any{"prompt": "door creak"})
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", resp.StatusCode)
	}
}

var _ domain.GenerationRepository = (*memGenerations)(nil)
var _ domain.AssetRepository = (*memAssets)(nil)
var _ sfx.Generator = (*fakeSFX)(nil)
