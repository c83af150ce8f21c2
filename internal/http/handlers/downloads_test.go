package handlers

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vidqueue/internal/domain"
	"vidqueue/internal/queue"
)

func seedCompletedJobs(t *testing.T, app *App, n int) []string {
	t.Helper()
	created, err := app.Store.CreateJobs(domain.GenerationConfig{
		Prompt:    "a red fox",
		InputType: domain.InputTypeText,
	}, n)
	if err != nil {
		t.Fatalf("CreateJobs: %v", err)
	}
	ids := make([]string, 0, n)
	for _, job := range created {
		key := "videos/" + job.ID + "/video.mp4"
		if _, err := app.Files.Write(context.Background(), key, []byte("MP4-"+job.ID)); err != nil {
			t.Fatalf("seed file: %v", err)
		}
		done := time.Now()
		app.Store.Apply(job.ID, domain.JobStatusCompleted, queue.Update{
			Result:      &domain.Result{VideoURI: "https://files.example/" + job.ID, StorageKey: key},
			CompletedAt: &done,
		})
		ids = append(ids, job.ID)
	}
	return ids
}

func TestDownloadJob(t *testing.T) {
	app := testApp(t)
	ids := seedCompletedJobs(t, app, 1)

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/v1/jobs/"+ids[0]+"/download", nil), "id", ids[0])
	rec := httptest.NewRecorder()
	app.DownloadJob(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	want := `attachment; filename="veo-` + ids[0] + `.mp4"`
	if got := rec.Header().Get("Content-Disposition"); got != want {
		t.Fatalf("Content-Disposition = %q, want %q", got, want)
	}
	if got := rec.Body.String(); got != "MP4-"+ids[0] {
		t.Fatalf("body = %q", got)
	}
}

func TestDownloadJobWithoutResult(t *testing.T) {
	app := testApp(t)
	created, err := app.Store.CreateJobs(domain.GenerationConfig{
		Prompt:    "a red fox",
		InputType: domain.InputTypeText,
	}, 1)
	if err != nil {
		t.Fatalf("CreateJobs: %v", err)
	}

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/v1/jobs/"+created[0].ID+"/download", nil), "id", created[0].ID)
	rec := httptest.NewRecorder()
	app.DownloadJob(rec, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestExportAllStaggersDownloads(t *testing.T) {
	app := testApp(t)
	seedCompletedJobs(t, app, 3)

	// A pending job must not be exported.
	if _, err := app.Store.CreateJobs(domain.GenerationConfig{
		Prompt:    "still waiting",
		InputType: domain.InputTypeText,
	}, 1); err != nil {
		t.Fatalf("CreateJobs: %v", err)
	}

	var offsets []time.Duration
	var actions []func()
	app.schedule = func(d time.Duration, fn func()) {
		offsets = append(offsets, d)
		actions = append(actions, fn)
	}

	rec := httptest.NewRecorder()
	app.ExportAll(rec, httptest.NewRequest(http.MethodPost, "/v1/jobs/export", nil))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	var resp struct {
		Scheduled int `json:"scheduled"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Scheduled != 3 {
		t.Fatalf("scheduled = %d, want 3", resp.Scheduled)
	}

	want := []time.Duration{0, 500 * time.Millisecond, 1000 * time.Millisecond}
	if len(offsets) != len(want) {
		t.Fatalf("offsets = %v", offsets)
	}
	for i, d := range want {
		if offsets[i] != d {
			t.Fatalf("offset %d = %v, want %v", i, offsets[i], d)
		}
	}

	// Running the deferred actions produces the export copies.
	for _, fn := range actions {
		fn()
	}
	for _, job := range app.Store.Jobs() {
		if job.Status != domain.JobStatusCompleted {
			continue
		}
		key := "exports/veo-" + job.ID + ".mp4"
		data, err := app.Files.Read(context.Background(), key)
		if err != nil {
			t.Fatalf("export %s missing: %v", key, err)
		}
		if string(data) != "MP4-"+job.ID {
			t.Fatalf("export data = %q", data)
		}
	}
}

func TestArchiveBundlesCompletedVideos(t *testing.T) {
	app := testApp(t)
	ids := seedCompletedJobs(t, app, 2)

	rec := httptest.NewRecorder()
	app.Archive(rec, httptest.NewRequest(http.MethodGet, "/v1/jobs/archive", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/zip" {
		t.Fatalf("Content-Type = %q", got)
	}

	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	if len(zr.File) != 2 {
		t.Fatalf("zip holds %d files, want 2", len(zr.File))
	}
	names := map[string]bool{}
	for _, f := range zr.File {
		names[f.Name] = true
	}
	for _, id := range ids {
		if !names["veo-"+id+".mp4"] {
			t.Fatalf("zip missing entry for job %s: %v", id, names)
		}
	}
}

func TestArchiveEmpty(t *testing.T) {
	app := testApp(t)
	rec := httptest.NewRecorder()
	app.Archive(rec, httptest.NewRequest(http.MethodGet, "/v1/jobs/archive", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
