package queue

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"vidqueue/internal/domain"
)

// Store holds the ordered collection of jobs. All mutation goes through its
// methods; callers only ever see copies, so a snapshot taken before an update
// never changes under the reader.
type Store struct {
	mu   sync.Mutex
	jobs []*domain.Job
	now  func() time.Time
}

func NewStore() *Store {
	return &Store{now: time.Now}
}

// Update carries the fields merged into a job alongside a status change.
// Nil pointers leave the corresponding field untouched.
type Update struct {
	Error       *string
	Result      *domain.Result
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// CreateJobs appends count independent jobs with a copy of cfg, preserving
// FIFO submission order. Count must be positive.
func (s *Store) CreateJobs(cfg domain.GenerationConfig, count int) ([]domain.Job, error) {
	if count <= 0 {
		return nil, domain.ErrInvalidCount
	}
	if strings.TrimSpace(cfg.Prompt) == "" && cfg.InputType != domain.InputTypeImage {
		return nil, domain.ErrInvalidConfig
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	created := make([]domain.Job, 0, count)
	now := s.now()
	for i := 0; i < count; i++ {
		job := &domain.Job{
			ID:        uuid.NewString(),
			Config:    cfg, // value copy; GenerationConfig holds no shared references
			Status:    domain.JobStatusPending,
			CreatedAt: now,
		}
		s.jobs = append(s.jobs, job)
		created = append(created, cloneJob(job))
	}
	return created, nil
}

// Apply replaces the status of the job matching id and merges the provided
// fields. Unknown IDs are a no-op: an execution may report its outcome after
// the job was removed by the retention sweep. Order is never changed.
func (s *Store) Apply(id string, status domain.JobStatus, upd Update) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job := s.locked(id)
	if job == nil {
		return
	}
	job.Status = status
	if upd.Error != nil {
		job.Error = *upd.Error
	}
	if upd.Result != nil {
		r := *upd.Result
		job.Result = &r
	}
	if upd.StartedAt != nil {
		t := *upd.StartedAt
		job.StartedAt = &t
	}
	if upd.CompletedAt != nil {
		t := *upd.CompletedAt
		job.CompletedAt = &t
	}
}

// Retry moves a failed job back to pending and clears its error and result.
// The config snapshot is untouched, so the retried execution runs with the
// exact parameters the job was created with.
func (s *Store) Retry(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job := s.locked(id)
	if job == nil {
		return domain.ErrNotFound
	}
	if job.Status != domain.JobStatusFailed {
		return domain.ErrNotRetryable
	}
	job.Status = domain.JobStatusPending
	job.Error = ""
	job.Result = nil
	return nil
}

// Jobs returns a snapshot of all jobs in insertion order.
func (s *Store) Jobs() []domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, cloneJob(job))
	}
	return out
}

// Job returns a snapshot of a single job.
func (s *Store) Job(id string) (domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job := s.locked(id)
	if job == nil {
		return domain.Job{}, domain.ErrNotFound
	}
	return cloneJob(job), nil
}

// Sweep removes terminal jobs whose final transition is older than the
// retention period and returns how many were removed.
func (s *Store) Sweep(retention time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-retention)
	kept := s.jobs[:0]
	removed := 0
	for _, job := range s.jobs {
		if job.Terminal() && job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, job)
	}
	for i := len(kept); i < len(s.jobs); i++ {
		s.jobs[i] = nil
	}
	s.jobs = kept
	return removed
}

func (s *Store) locked(id string) *domain.Job {
	for _, job := range s.jobs {
		if job.ID == id {
			return job
		}
	}
	return nil
}

func cloneJob(job *domain.Job) domain.Job {
	out := *job
	if job.Result != nil {
		r := *job.Result
		out.Result = &r
	}
	if job.StartedAt != nil {
		t := *job.StartedAt
		out.StartedAt = &t
	}
	if job.CompletedAt != nil {
		t := *job.CompletedAt
		out.CompletedAt = &t
	}
	return out
}
