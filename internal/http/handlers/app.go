package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"harmoniq/internal/domain"
	"harmoniq/internal/infra"
	"harmoniq/internal/middleware"
	"harmoniq/internal/providers/lyrics"
	"harmoniq/internal/providers/music"
	"harmoniq/internal/providers/sfx"
	"harmoniq/internal/storage"
)

// App carries the dependencies shared by all route handlers.
type App struct {
	Logger      zerolog.Logger
	Cfg         *infra.Config
	Music       *music.Dispatcher
	SFX         sfx.Generator
	Lyrics      lyrics.Writer
	Generations domain.GenerationRepository
	Assets      domain.AssetRepository
	Store       *storage.FileStore
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, errorBody{Error: errCode, Message: message})
}

func (a *App) currentAPIKey(r *http.Request) *domain.APIKey {
	return middleware.APIKeyFromContext(r.Context())
}
