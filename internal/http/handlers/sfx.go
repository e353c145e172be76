package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"harmoniq/internal/domain"
	"harmoniq/internal/providers/sfx"
	"harmoniq/internal/util/audiosniff"
	"harmoniq/internal/util/redact"
)

type sfxRequest struct {
	Prompt          string  `json:"prompt"`
	DurationSeconds float64 `json:"duration_seconds"`
}

type sfxResponse struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
	Bytes    int64  `json:"bytes"`
}

// SFXCreate generates a sound effect synchronously, stores the audio, and
// returns its URL.
func (a *App) SFXCreate(w http.ResponseWriter, r *http.Request) {
	key := a.currentAPIKey(r)
	if key == nil {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing api key context")
		return
	}
	if a.SFX == nil {
		a.error(w, http.StatusServiceUnavailable, "not_configured", "no sfx provider configured")
		return
	}
	var req sfxRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.Prompt == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "prompt required")
		return
	}

	genID := uuid.NewString()
	gen := &domain.Generation{
		ID:       genID,
		APIKeyID: key.ID,
		Type:     domain.GenerationTypeSFX,
		Prompt:   req.Prompt,
		Provider: a.SFX.Name(),
		Status:   domain.GenerationStatusPending,
	}
	if err := a.Generations.Create(r.Context(), gen); err != nil {
		a.Logger.Error().Err(err).Msg("create sfx record")
		a.error(w, http.StatusInternalServerError, "internal", "failed to record generation")
		return
	}

	asset, err := a.SFX.Generate(r.Context(), sfx.Request{
		Prompt:          req.Prompt,
		DurationSeconds: req.DurationSeconds,
		RequestID:       genID,
	})
	if err != nil {
		msg := redact.Error(err)
		_ = a.Generations.UpdateStatus(r.Context(), genID, domain.GenerationStatusFailed, "", nil, &msg)
		if errors.Is(err, sfx.ErrMissingAPIKey) {
			a.error(w, http.StatusServiceUnavailable, "not_configured", "sfx provider has no credentials")
			return
		}
		a.Logger.Error().Str("generation_id", genID).Msg(msg)
		a.error(w, http.StatusBadGateway, "provider_error", "sfx provider rejected the request")
		return
	}

	format, ok := audiosniff.Detect(asset.Data)
	if !ok {
		msg := "provider returned non-audio data"
		_ = a.Generations.UpdateStatus(r.Context(), genID, domain.GenerationStatusFailed, "", nil, &msg)
		a.error(w, http.StatusBadGateway, "provider_error", msg)
		return
	}

	storagePath := fmt.Sprintf("sfx/%s/effect%s", genID, format.Ext)
	storedKey, err := a.Store.Write(r.Context(), storagePath, asset.Data)
	if err != nil {
		a.Logger.Error().Err(err).Msg("store sfx audio")
		a.error(w, http.StatusInternalServerError, "internal", "failed to store audio")
		return
	}
	publicURL := a.Cfg.StorageBaseURL + "/" + storedKey

	record := domain.Asset{
		ID:           uuid.NewString(),
		GenerationID: genID,
		URL:          publicURL,
		StoragePath:  storedKey,
		MimeType:     format.MIME,
		SizeBytes:    int64(len(asset.Data)),
		DurationSec:  req.DurationSeconds,
		CreatedAt:    time.Now(),
	}
	if err := a.Assets.SaveAll(r.Context(), genID, []domain.Asset{record}); err != nil {
		a.Logger.Error().Err(err).Msg("save sfx asset")
	}
	if err := a.Generations.UpdateStatus(r.Context(), genID, domain.GenerationStatusComplete, publicURL, nil, nil); err != nil {
		a.Logger.Error().Err(err).Msg("complete sfx record")
	}

	a.json(w, http.StatusCreated, sfxResponse{
		ID:       genID,
		URL:      publicURL,
		MimeType: format.MIME,
		Bytes:    int64(len(asset.Data)),
	})
}
