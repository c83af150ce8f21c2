package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"time"

	"github.com/go-chi/chi/v5"

	"vidqueue/internal/domain"
	"vidqueue/pkg/zip"
)

// exportStagger spaces bulk export actions apart so a burst of downloads does
// not hit the disk (or, for a browser client, the download manager) at once.
const exportStagger = 500 * time.Millisecond

// downloadFilename derives the suggested file name for a completed job.
func downloadFilename(jobID, storageKey string) string {
	ext := path.Ext(storageKey)
	if ext == "" {
		ext = ".mp4"
	}
	return "veo-" + jobID + ext
}

func (a *App) DownloadJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := a.Store.Job(id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "lookup failed")
		return
	}
	if job.Status != domain.JobStatusCompleted || job.Result == nil {
		a.error(w, http.StatusConflict, "conflict", "job has no downloadable result")
		return
	}

	full, err := a.Files.Path(job.Result.StorageKey)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "resolve file failed")
		return
	}
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", downloadFilename(job.ID, job.Result.StorageKey)))
	http.ServeFile(w, r, full)
}

// ExportAll schedules one export action per completed job, staggered 500ms
// apart starting at offset zero. Each action copies the materialized video
// into the exports/ area of the file store.
func (a *App) ExportAll(w http.ResponseWriter, r *http.Request) {
	var completed []domain.Job
	for _, job := range a.Store.Jobs() {
		if job.Status == domain.JobStatusCompleted && job.Result != nil {
			completed = append(completed, job)
		}
	}

	for i, job := range completed {
		job := job
		a.schedule(time.Duration(i)*exportStagger, func() {
			a.exportJob(job)
		})
	}

	a.json(w, http.StatusAccepted, map[string]any{"scheduled": len(completed)})
}

// exportJob runs after the originating request has ended, so it does not use
// the request context.
func (a *App) exportJob(job domain.Job) {
	ctx := context.Background()
	data, err := a.Files.Read(ctx, job.Result.StorageKey)
	if err != nil {
		a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("api: export read failed")
		return
	}
	key := "exports/" + downloadFilename(job.ID, job.Result.StorageKey)
	if _, err := a.Files.Write(ctx, key, data); err != nil {
		a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("api: export write failed")
		return
	}
	a.Logger.Info().Str("job_id", job.ID).Str("storage_key", key).Msg("api: exported video")
}

// Archive streams a zip of every completed video.
func (a *App) Archive(w http.ResponseWriter, r *http.Request) {
	var assets []zip.Asset
	for _, job := range a.Store.Jobs() {
		if job.Status != domain.JobStatusCompleted || job.Result == nil {
			continue
		}
		data, err := a.Files.Read(r.Context(), job.Result.StorageKey)
		if err != nil {
			a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("api: archive read failed")
			continue
		}
		assets = append(assets, zip.Asset{
			Filename: downloadFilename(job.ID, job.Result.StorageKey),
			MIME:     "video/mp4",
			Data:     data,
		})
	}
	if len(assets) == 0 {
		a.error(w, http.StatusNotFound, "not_found", "no completed videos to archive")
		return
	}

	blob := zip.ArchiveAssets(assets)
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="videos.zip"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(blob)
}
