package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"vidqueue/internal/infra/credentials"
	"vidqueue/internal/providers/genai"
	"vidqueue/internal/queue"
	"vidqueue/internal/storage"
)

// App bundles the dependencies shared by all handlers.
type App struct {
	Store       *queue.Store
	Files       *storage.FileStore
	Client      *genai.Client
	Credentials *credentials.Store // nil when no database is configured
	Logger      zerolog.Logger

	// schedule defers a function by the given delay. Tests replace it to
	// observe export staggering without waiting.
	schedule func(d time.Duration, fn func())
}

func NewApp(store *queue.Store, files *storage.FileStore, client *genai.Client, creds *credentials.Store, logger zerolog.Logger) *App {
	return &App{
		Store:       store,
		Files:       files,
		Client:      client,
		Credentials: creds,
		Logger:      logger,
		schedule: func(d time.Duration, fn func()) {
			time.AfterFunc(d, fn)
		},
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, kind, message string) {
	a.json(w, code, map[string]string{"error": kind, "message": message})
}

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]string{"status": "ok"})
}
