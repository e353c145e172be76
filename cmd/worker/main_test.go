package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"harmoniq/internal/domain"
	"harmoniq/internal/infra"
	"harmoniq/internal/providers/music"
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

// ClaimDispatched mirrors the repository contract: claimed rows move to
// polling and are invisible to the next claim.
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

var _ domain.GenerationRepository = (*memGenerations)(nil)
var _ domain.AssetRepository = (*memAssets)(nil)

func newTestWorker(t *testing.T, vendorURL string) (*pollWorker, *memGenerations, *memAssets) {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	gens := newMemGenerations()
	assets := newMemAssets()
	cfg := &infra.Config{
		StorageBaseURL:    "http://files.local/static",
		WorkerPollBase:    5 * time.Millisecond,
		WorkerPollMax:     10 * time.Millisecond,
		WorkerPollCeiling: 2 * time.Second,
	}
	worker := &pollWorker{
		ctx:    context.Background(),
		logger: zerolog.New(io.Discard),
		cfg:    cfg,
		music: music.NewDispatcher(func() music.Config {
			return music.Config{DefAPIKey: "vendor-key", DefAPIBaseURL: vendorURL}
		}),
		generations: gens,
		assets:      assets,
		store:       store,
		httpClient:  &http.Client{Timeout: 5 * time.Second},
	}
	return worker, gens, assets
}

func seedDispatched(t *testing.T, gens *memGenerations) *domain.Generation {
	t.Helper()
	gen := &domain.Generation{
		ID:         "g-1",
		APIKeyID:   "key-1",
		Type:       domain.GenerationTypeMusic,
		Provider:   "defapi",
		UpstreamID: "abc123",
		Status:     domain.GenerationStatusPolling,
	}
	if err := gens.Create(context.Background(), gen); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return gen
}

func TestHandleGenerationCompleteArchivesAudio(t *testing.T) {
	mp3 := append([]byte("ID3"), bytes.Repeat([]byte{0}, 32)...)
	var vendor *httptest.Server
	vendor = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/suno/task/abc123":
			_, _ = w.Write([]byte(`{"code":200,"data":{"task_id":"abc123","status":"completed","clips":[{"id":"c1","audio_url":"` + vendor.URL + `/audio/c1.mp3","title":"Dreamy","duration":42.5}]}}`))
		case "/audio/c1.mp3":
			_, _ = w.Write(mp3)
		default:
			http.NotFound(w, r)
		}
	}))
	defer vendor.Close()

	worker, gens, assets := newTestWorker(t, vendor.URL)
	gen := seedDispatched(t, gens)

	worker.handleGeneration(gen)

	stored, err := gens.GetByID(context.Background(), gen.ID)
	if err != nil {
		t.Fatalf("stored record: %v", err)
	}
	if stored.Status != domain.GenerationStatusComplete {
		t.Fatalf("status = %q, want complete", stored.Status)
	}
	if stored.AudioURL == "" {
		t.Fatalf("audio url not persisted")
	}

	saved, err := assets.ListByGenerationID(context.Background(), gen.ID)
	if err != nil || len(saved) != 1 {
		t.Fatalf("assets = %+v, err = %v", saved, err)
	}
	if saved[0].MimeType != "audio/mpeg" || saved[0].DurationSec != 42.5 {
		t.Fatalf("asset = %+v", saved[0])
	}
	if !worker.store.Exists(saved[0].StoragePath) {
		t.Fatalf("stored file missing at %q", saved[0].StoragePath)
	}
}

func TestHandleGenerationVendorFailureIsTerminal(t *testing.T) {
	vendor := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":200,"data":{"task_id":"abc123","status":"failed","error_message":"content rejected"}}`))
	}))
	defer vendor.Close()

	worker, gens, _ := newTestWorker(t, vendor.URL)
	gen := seedDispatched(t, gens)

	worker.handleGeneration(gen)

	stored, err := gens.GetByID(context.Background(), gen.ID)
	if err != nil {
		t.Fatalf("stored record: %v", err)
	}
	if stored.Status != domain.GenerationStatusFailed {
		t.Fatalf("status = %q, want failed", stored.Status)
	}
	if stored.ErrorMessage == "" {
		t.Fatalf("error message not persisted")
	}
}

func TestHandleGenerationPollErrorReleasesClaim(t *testing.T) {
	vendor := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"bad key"}`, http.StatusUnauthorized)
	}))
	defer vendor.Close()

	worker, gens, _ := newTestWorker(t, vendor.URL)
	gen := seedDispatched(t, gens)

	worker.handleGeneration(gen)

	stored, err := gens.GetByID(context.Background(), gen.ID)
	if err != nil {
		t.Fatalf("stored record: %v", err)
	}
	if stored.Status != domain.GenerationStatusDispatched {
		t.Fatalf("status = %q, want dispatched after poll error", stored.Status)
	}
	if stored.ErrorMessage == "" {
		t.Fatalf("release reason not persisted")
	}
}

func TestHandleGenerationCeilingReleasesClaim(t *testing.T) {
	vendor := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":200,"data":{"task_id":"abc123","status":"processing"}}`))
	}))
	defer vendor.Close()

	worker, gens, _ := newTestWorker(t, vendor.URL)
	worker.cfg.WorkerPollCeiling = 30 * time.Millisecond
	gen := seedDispatched(t, gens)

	worker.handleGeneration(gen)

	stored, err := gens.GetByID(context.Background(), gen.ID)
	if err != nil {
		t.Fatalf("stored record: %v", err)
	}
	if stored.Status != domain.GenerationStatusDispatched {
		t.Fatalf("status = %q, want dispatched after ceiling", stored.Status)
	}
}

func TestClaimedGenerationsAreNotReclaimed(t *testing.T) {
	gens := newMemGenerations()
	if err := gens.Create(context.Background(), &domain.Generation{
		ID:         "g-1",
		Provider:   "defapi",
		UpstreamID: "abc123",
		Status:     domain.GenerationStatusDispatched,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	first, err := gens.ClaimDispatched(context.Background(), 5)
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if len(first) != 1 || first[0].Status != domain.GenerationStatusPolling {
		t.Fatalf("first claim = %+v", first)
	}

	second, err := gens.ClaimDispatched(context.Background(), 5)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("second claim re-selected %+v", second)
	}
}
