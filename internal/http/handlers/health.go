package handlers

import (
	"net/http"
)

// Health reports liveness plus whether a music provider is currently usable,
// so load balancers can route around unconfigured instances.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	if a.Music != nil {
		body["music_configured"] = a.Music.IsConfigured()
	}
	a.json(w, http.StatusOK, body)
}
