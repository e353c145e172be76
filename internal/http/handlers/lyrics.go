package handlers

import (
	"encoding/json"
	"net/http"

	"harmoniq/internal/middleware"
	"harmoniq/internal/providers/lyrics"
)

type lyricsRequest struct {
	Theme string `json:"theme"`
	Style string `json:"style"`
	Mood  string `json:"mood"`
}

type lyricsResponse struct {
	Title    string            `json:"title"`
	Lyrics   string            `json:"lyrics"`
	Provider string            `json:"provider"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// LyricsCreate writes song lyrics for a theme. The response is synchronous;
// the writer falls back to a deterministic template when the model is
// unavailable.
func (a *App) LyricsCreate(w http.ResponseWriter, r *http.Request) {
	if a.currentAPIKey(r) == nil {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing api key context")
		return
	}
	if a.Lyrics == nil {
		a.error(w, http.StatusServiceUnavailable, "not_configured", "no lyrics writer configured")
		return
	}
	var req lyricsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.Theme == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "theme required")
		return
	}

	written, err := a.Lyrics.Write(r.Context(), lyrics.Request{
		Theme:  req.Theme,
		Style:  req.Style,
		Mood:   req.Mood,
		Locale: middleware.LocaleFromContext(r.Context()),
	})
	if err != nil || written == nil {
		a.Logger.Error().Err(err).Msg("write lyrics")
		a.error(w, http.StatusInternalServerError, "internal", "failed to write lyrics")
		return
	}
	a.json(w, http.StatusOK, lyricsResponse{
		Title:    written.Title,
		Lyrics:   written.Text,
		Provider: written.Provider,
		Metadata: written.Metadata,
	})
}
