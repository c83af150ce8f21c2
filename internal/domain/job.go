package domain

import "time"

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// InputType selects the payload shape sent to the generation API.
type InputType string

const (
	InputTypeText  InputType = "text"
	InputTypeImage InputType = "image"
)

// GenerationConfig is the immutable parameter snapshot captured when a job is
// created. Later edits on the submitting side must not affect enqueued jobs,
// so the store copies it by value.
type GenerationConfig struct {
	Prompt      string
	InputType   InputType
	Model       string
	AspectRatio string
	Resolution  string
	ImageData   string // base64-encoded reference image, image input only
	ImageMIME   string
}

// Result is present only on completed jobs.
type Result struct {
	VideoURI   string
	StorageKey string
}

// Job encapsulates the lifecycle of one video generation request.
type Job struct {
	ID          string
	Config      GenerationConfig
	Status      JobStatus
	Error       string
	Result      *Result
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// Terminal reports whether the job reached a final state.
func (j *Job) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}
