package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
)

type setCredentialRequest struct {
	APIKey string `json:"api_key"`
}

// CredentialStatus reports whether a Gemini API key is configured. The
// scheduler admits nothing until this is true.
func (a *App) CredentialStatus(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]bool{"configured": a.Client.HasCredential()})
}

// SetCredential stores a new API key, updates the live client, and persists
// it when a credential store is available. Pending jobs resume on the next
// scheduler tick.
func (a *App) SetCredential(w http.ResponseWriter, r *http.Request) {
	var req setCredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	key := strings.TrimSpace(req.APIKey)
	if key == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "api_key is required")
		return
	}

	if a.Credentials != nil {
		if err := a.Credentials.SetGeminiAPIKey(r.Context(), key); err != nil {
			a.Logger.Error().Err(err).Msg("api: persist api key failed")
			a.error(w, http.StatusInternalServerError, "internal", "failed to persist api key")
			return
		}
	}
	a.Client.SetAPIKey(key)
	a.Logger.Info().Bool("persisted", a.Credentials != nil).Msg("api: api key configured")
	a.json(w, http.StatusOK, map[string]bool{"configured": true})
}
