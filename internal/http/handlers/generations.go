package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"harmoniq/internal/domain"
	"harmoniq/internal/middleware"
	"harmoniq/internal/providers/lyrics"
	"harmoniq/internal/providers/music"
	"harmoniq/internal/util/redact"
	"harmoniq/pkg/zip"
)

type generateRequest struct {
	Prompt          string `json:"prompt"`
	Lyrics          string `json:"lyrics"`
	WriteLyrics     bool   `json:"write_lyrics"`
	Title           string `json:"title"`
	Style           string `json:"style"`
	Tags            string `json:"tags"`
	Instrumental    bool   `json:"instrumental"`
	DurationSeconds int    `json:"duration_seconds"`
	Model           string `json:"model"`
	CustomMode      bool   `json:"custom_mode"`
}

type generationDTO struct {
	ID           string       `json:"id"`
	Type         string       `json:"type"`
	Status       string       `json:"status"`
	Provider     string       `json:"provider,omitempty"`
	Prompt       string       `json:"prompt"`
	Title        string       `json:"title,omitempty"`
	Lyrics       string       `json:"lyrics,omitempty"`
	AudioURL     string       `json:"audio_url,omitempty"`
	Clips        []music.Clip `json:"clips,omitempty"`
	Error        string       `json:"error,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty"`
}

func toGenerationDTO(gen *domain.Generation) generationDTO {
	dto := generationDTO{
		ID:          gen.ID,
		Type:        string(gen.Type),
		Status:      string(gen.Status),
		Provider:    gen.Provider,
		Prompt:      gen.Prompt,
		Title:       gen.Title,
		Lyrics:      gen.Lyrics,
		AudioURL:    gen.AudioURL,
		Error:       gen.ErrorMessage,
		CreatedAt:   gen.CreatedAt,
		CompletedAt: gen.CompletedAt,
	}
	if len(gen.ClipsJSON) > 0 {
		_ = json.Unmarshal(gen.ClipsJSON, &dto.Clips)
	}
	return dto
}

// GenerationsCreate submits a music generation to the active provider and
// persists the record.
func (a *App) GenerationsCreate(w http.ResponseWriter, r *http.Request) {
	key := a.currentAPIKey(r)
	if key == nil {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing api key context")
		return
	}
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.Prompt == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "prompt required")
		return
	}

	if req.WriteLyrics && req.Lyrics == "" && !req.Instrumental && a.Lyrics != nil {
		written, err := a.Lyrics.Write(r.Context(), lyrics.Request{
			Theme:  req.Prompt,
			Style:  req.Style,
			Locale: middleware.LocaleFromContext(r.Context()),
		})
		if err == nil && written != nil {
			req.Lyrics = written.Text
			if req.Title == "" {
				req.Title = written.Title
			}
		}
	}

	gen := &domain.Generation{
		ID:           uuid.NewString(),
		APIKeyID:     key.ID,
		Type:         domain.GenerationTypeMusic,
		Prompt:       req.Prompt,
		Lyrics:       req.Lyrics,
		Title:        req.Title,
		Style:        req.Style,
		Tags:         req.Tags,
		Instrumental: req.Instrumental,
		Status:       domain.GenerationStatusPending,
	}
	if err := a.Generations.Create(r.Context(), gen); err != nil {
		a.Logger.Error().Err(err).Msg("create generation record")
		a.error(w, http.StatusInternalServerError, "internal", "failed to record generation")
		return
	}

	job, err := a.Music.StartGeneration(r.Context(), music.GenerationRequest{
		Prompt:          req.Prompt,
		Lyrics:          req.Lyrics,
		Title:           req.Title,
		Style:           req.Style,
		Tags:            req.Tags,
		Instrumental:    req.Instrumental,
		DurationSeconds: req.DurationSeconds,
		Model:           req.Model,
		CustomMode:      req.CustomMode,
	})
	if err != nil {
		msg := redact.Error(err)
		failMsg := msg
		_ = a.Generations.UpdateStatus(r.Context(), gen.ID, domain.GenerationStatusFailed, "", nil, &failMsg)
		switch {
		case errors.Is(err, music.ErrNotConfigured):
			a.error(w, http.StatusServiceUnavailable, "not_configured", "no music provider configured")
		case errors.Is(err, music.ErrUnknownProvider):
			a.error(w, http.StatusServiceUnavailable, "not_configured", "unknown music provider configured")
		case errors.Is(err, music.ErrMissingJobID):
			a.error(w, http.StatusBadGateway, "provider_error", msg)
		default:
			a.Logger.Error().Str("generation_id", gen.ID).Msg(msg)
			a.error(w, http.StatusBadGateway, "provider_error", "music provider rejected the request")
		}
		return
	}

	if err := a.Generations.MarkDispatched(r.Context(), gen.ID, job.Provider, job.ID); err != nil {
		a.Logger.Error().Err(err).Str("generation_id", gen.ID).Msg("mark dispatched")
	}
	gen.Status = domain.GenerationStatusDispatched
	gen.Provider = job.Provider
	gen.UpstreamID = job.ID
	a.json(w, http.StatusAccepted, toGenerationDTO(gen))
}

// GenerationsList returns the caller's generations, newest first.
func (a *App) GenerationsList(w http.ResponseWriter, r *http.Request) {
	key := a.currentAPIKey(r)
	if key == nil {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing api key context")
		return
	}
	params := domain.GenerationListParams{APIKeyID: key.ID}
	q := r.URL.Query()
	if status := q.Get("status"); status != "" {
		params.Status = domain.GenerationStatus(status)
	}
	if typ := q.Get("type"); typ != "" {
		params.Type = domain.GenerationType(typ)
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil {
		params.Limit = limit
	}
	if offset, err := strconv.Atoi(q.Get("offset")); err == nil {
		params.Offset = offset
	}

	gens, err := a.Generations.List(r.Context(), params)
	if err != nil {
		a.Logger.Error().Err(err).Msg("list generations")
		a.error(w, http.StatusInternalServerError, "internal", "failed to list generations")
		return
	}
	items := make([]generationDTO, 0, len(gens))
	for i := range gens {
		items = append(items, toGenerationDTO(&gens[i]))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

// GenerationsGet returns one generation record.
func (a *App) GenerationsGet(w http.ResponseWriter, r *http.Request) {
	gen, ok := a.loadOwnedGeneration(w, r)
	if !ok {
		return
	}
	a.json(w, http.StatusOK, toGenerationDTO(gen))
}

// GenerationsStatus polls the provider for a live status update and persists
// the transition before returning it.
func (a *App) GenerationsStatus(w http.ResponseWriter, r *http.Request) {
	gen, ok := a.loadOwnedGeneration(w, r)
	if !ok {
		return
	}
	if gen.Status.Terminal() {
		a.json(w, http.StatusOK, toGenerationDTO(gen))
		return
	}
	if gen.UpstreamID == "" {
		a.error(w, http.StatusConflict, "not_dispatched", "generation was never dispatched to a provider")
		return
	}
	if active := a.Music.ProviderName(); active != "" && gen.Provider != "" && active != gen.Provider {
		a.error(w, http.StatusConflict, "provider_mismatch", fmt.Sprintf("generation belongs to provider %q", gen.Provider))
		return
	}

	update, err := a.Music.CheckStatus(r.Context(), gen.UpstreamID)
	if err != nil {
		a.Logger.Error().Str("generation_id", gen.ID).Msg(redact.Error(err))
		a.error(w, http.StatusBadGateway, "provider_error", "status check failed")
		return
	}
	applyStatusUpdate(gen, update)
	var errMsg *string
	if update.Error != "" {
		msg := redact.Text(update.Error)
		errMsg = &msg
	}
	if err := a.Generations.UpdateStatus(r.Context(), gen.ID, gen.Status, gen.AudioURL, gen.ClipsJSON, errMsg); err != nil {
		a.Logger.Error().Err(err).Str("generation_id", gen.ID).Msg("persist status update")
	}
	a.json(w, http.StatusOK, toGenerationDTO(gen))
}

// GenerationsDownload streams the stored audio for a generation as a zip
// bundle.
func (a *App) GenerationsDownload(w http.ResponseWriter, r *http.Request) {
	gen, ok := a.loadOwnedGeneration(w, r)
	if !ok {
		return
	}
	assets, err := a.Assets.ListByGenerationID(r.Context(), gen.ID)
	if err != nil {
		a.Logger.Error().Err(err).Msg("list assets")
		a.error(w, http.StatusInternalServerError, "internal", "failed to list assets")
		return
	}
	if len(assets) == 0 {
		a.error(w, http.StatusNotFound, "not_found", "no audio stored for this generation yet")
		return
	}

	tracks := make([]zip.Track, 0, len(assets))
	for _, asset := range assets {
		data, err := a.Store.Read(r.Context(), asset.StoragePath)
		if err != nil {
			a.Logger.Error().Err(err).Str("asset_id", asset.ID).Msg("read stored audio")
			continue
		}
		tracks = append(tracks, zip.Track{
			Filename: path.Base(asset.StoragePath),
			Title:    gen.Title,
			MIME:     asset.MimeType,
			Data:     data,
		})
	}
	if len(tracks) == 0 {
		a.error(w, http.StatusNotFound, "not_found", "stored audio is unavailable")
		return
	}
	archive, err := zip.ArchiveTracks(tracks)
	if err != nil {
		a.Logger.Error().Err(err).Msg("archive tracks")
		a.error(w, http.StatusInternalServerError, "internal", "failed to build archive")
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", gen.ID+".zip"))
	_, _ = w.Write(archive)
}

func (a *App) loadOwnedGeneration(w http.ResponseWriter, r *http.Request) (*domain.Generation, bool) {
	key := a.currentAPIKey(r)
	if key == nil {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing api key context")
		return nil, false
	}
	id := chi.URLParam(r, "id")
	if id == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "id required")
		return nil, false
	}
	gen, err := a.Generations.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "generation not found")
			return nil, false
		}
		a.Logger.Error().Err(err).Msg("load generation")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load generation")
		return nil, false
	}
	if gen.APIKeyID != key.ID {
		a.error(w, http.StatusNotFound, "not_found", "generation not found")
		return nil, false
	}
	return gen, true
}

// applyStatusUpdate folds a provider status update into the record. A
// non-terminal answer leaves the record's status alone so a worker's polling
// claim is not clobbered by an API-side poll.
func applyStatusUpdate(gen *domain.Generation, update *music.StatusUpdate) {
	switch update.Status {
	case music.StatusComplete:
		gen.Status = domain.GenerationStatusComplete
	case music.StatusFailed:
		gen.Status = domain.GenerationStatusFailed
		gen.ErrorMessage = redact.Text(update.Error)
	}
	if update.AudioURL != "" {
		gen.AudioURL = update.AudioURL
	}
	if len(update.Clips) > 0 {
		if clips, err := json.Marshal(update.Clips); err == nil {
			gen.ClipsJSON = clips
		}
	}
}
