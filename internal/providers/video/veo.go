package video

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"vidqueue/internal/domain"
	"vidqueue/internal/providers/genai"
	"vidqueue/internal/storage"
)

// VeoRunner executes admitted jobs against the Veo API and materializes the
// results into the local file store. It satisfies queue.Runner.
type VeoRunner struct {
	client *genai.Client
	store  *storage.FileStore
	logger zerolog.Logger
}

func NewVeoRunner(client *genai.Client, store *storage.FileStore, logger zerolog.Logger) *VeoRunner {
	return &VeoRunner{client: client, store: store, logger: logger}
}

// Ready reports whether the underlying client holds an API key.
func (r *VeoRunner) Ready() bool {
	return r.client.HasCredential()
}

// SubmitAndAwait starts a generation operation for the job config and polls
// it to completion, returning the remote video URI.
func (r *VeoRunner) SubmitAndAwait(ctx context.Context, cfg domain.GenerationConfig) (string, error) {
	req := genai.VideoRequest{
		Prompt:      cfg.Prompt,
		Model:       cfg.Model,
		AspectRatio: cfg.AspectRatio,
		Resolution:  cfg.Resolution,
	}
	if cfg.InputType == domain.InputTypeImage {
		req.ImageData = cfg.ImageData
		req.ImageMIME = cfg.ImageMIME
	}
	return r.client.GenerateVideo(ctx, req)
}

// Materialize downloads the generated video and persists it under a key
// derived from the job ID.
func (r *VeoRunner) Materialize(ctx context.Context, jobID, videoURI string) (string, error) {
	data, mime, err := r.client.Download(ctx, videoURI)
	if err != nil {
		return "", err
	}
	key, err := r.store.Write(ctx, storageKey(jobID, mime), data)
	if err != nil {
		return "", err
	}
	r.logger.Debug().
		Str("job_id", jobID).
		Str("storage_key", key).
		Int("bytes", len(data)).
		Msg("veo: materialized video")
	return key, nil
}

func storageKey(jobID, mime string) string {
	ext := ".mp4"
	if strings.HasPrefix(mime, "video/") {
		if suffix := strings.TrimPrefix(mime, "video/"); suffix != "" && !strings.Contains(suffix, ";") {
			ext = "." + suffix
		}
	}
	return fmt.Sprintf("videos/%s/video%s", jobID, ext)
}
