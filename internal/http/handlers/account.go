package handlers

import "net/http"

type providerStatusResponse struct {
	Provider   string   `json:"provider,omitempty"`
	Configured bool     `json:"configured"`
	Credits    *float64 `json:"credits,omitempty"`
	Plan       string   `json:"plan,omitempty"`
}

// ProviderStatus reports which music provider is active and, when the vendor
// supports it, the remaining credit balance. Account info is advisory and is
// simply omitted when the lookup fails.
func (a *App) ProviderStatus(w http.ResponseWriter, r *http.Request) {
	if a.currentAPIKey(r) == nil {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing api key context")
		return
	}
	resp := providerStatusResponse{
		Provider:   a.Music.ProviderName(),
		Configured: a.Music.IsConfigured(),
	}
	if info := a.Music.GetUserInfo(r.Context()); info != nil {
		credits := info.Credits
		resp.Credits = &credits
		resp.Plan = info.Plan
	}
	a.json(w, http.StatusOK, resp)
}
