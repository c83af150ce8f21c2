package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"vidqueue/internal/domain"
)

// maxBatchSize caps one creation request; the store itself accepts any
// positive count.
const maxBatchSize = 50

type createJobsRequest struct {
	Prompt      string `json:"prompt"`
	InputType   string `json:"input_type"`
	Model       string `json:"model"`
	AspectRatio string `json:"aspect_ratio"`
	Resolution  string `json:"resolution"`
	ImageData   string `json:"image_data,omitempty"`
	ImageMIME   string `json:"image_mime,omitempty"`
	Count       int    `json:"count"`
}

type jobView struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	Prompt      string     `json:"prompt"`
	InputType   string     `json:"input_type"`
	Model       string     `json:"model"`
	AspectRatio string     `json:"aspect_ratio"`
	Resolution  string     `json:"resolution"`
	Error       string     `json:"error,omitempty"`
	VideoURI    string     `json:"video_uri,omitempty"`
	DownloadURL string     `json:"download_url,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func viewOf(job domain.Job) jobView {
	v := jobView{
		ID:          job.ID,
		Status:      string(job.Status),
		Prompt:      job.Config.Prompt,
		InputType:   string(job.Config.InputType),
		Model:       job.Config.Model,
		AspectRatio: job.Config.AspectRatio,
		Resolution:  job.Config.Resolution,
		Error:       job.Error,
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
	}
	if job.Result != nil {
		v.VideoURI = job.Result.VideoURI
		v.DownloadURL = "/v1/jobs/" + job.ID + "/download"
	}
	return v
}

func (a *App) CreateJobs(w http.ResponseWriter, r *http.Request) {
	var req createJobsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.Count <= 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "count must be a positive integer")
		return
	}
	if req.Count > maxBatchSize {
		a.error(w, http.StatusBadRequest, "bad_request", "count exceeds batch limit")
		return
	}

	inputType := domain.InputType(req.InputType)
	if inputType == "" {
		inputType = domain.InputTypeText
	}
	if inputType != domain.InputTypeText && inputType != domain.InputTypeImage {
		a.error(w, http.StatusBadRequest, "bad_request", "unsupported input type")
		return
	}
	if inputType == domain.InputTypeImage && req.ImageData == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "image input requires image_data")
		return
	}

	cfg := domain.GenerationConfig{
		Prompt:      req.Prompt,
		InputType:   inputType,
		Model:       req.Model,
		AspectRatio: req.AspectRatio,
		Resolution:  req.Resolution,
	}
	if inputType == domain.InputTypeImage {
		cfg.ImageData = req.ImageData
		cfg.ImageMIME = req.ImageMIME
	}

	jobs, err := a.Store.CreateJobs(cfg, req.Count)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCount) || errors.Is(err, domain.ErrInvalidConfig) {
			a.error(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "failed to create jobs")
		return
	}

	a.Logger.Info().Int("count", len(jobs)).Str("model", cfg.Model).Msg("api: jobs created")

	views := make([]jobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, viewOf(job))
	}
	a.json(w, http.StatusAccepted, map[string]any{"jobs": views})
}

func (a *App) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := a.Store.Jobs()
	views := make([]jobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, viewOf(job))
	}
	a.json(w, http.StatusOK, map[string]any{"jobs": views})
}

func (a *App) RetryJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.Store.Retry(id); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			a.error(w, http.StatusNotFound, "not_found", "job not found")
		case errors.Is(err, domain.ErrNotRetryable):
			a.error(w, http.StatusConflict, "conflict", err.Error())
		default:
			a.error(w, http.StatusInternalServerError, "internal", "retry failed")
		}
		return
	}
	job, err := a.Store.Job(id)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "retry failed")
		return
	}
	a.json(w, http.StatusOK, viewOf(job))
}
