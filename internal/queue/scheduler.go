package queue

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"vidqueue/internal/domain"
)

// DefaultTickInterval is the period between admission checks.
const DefaultTickInterval = time.Second

// Runner executes admitted jobs against the remote generation service. Both
// calls are long-running and are invoked off the tick goroutine.
type Runner interface {
	// Ready reports whether a credential is configured. While false, no job
	// is admitted; pending jobs wait and resume once a key is set.
	Ready() bool
	// SubmitAndAwait starts a generation operation and polls it to a terminal
	// state, returning the remote video URI.
	SubmitAndAwait(ctx context.Context, cfg domain.GenerationConfig) (string, error)
	// Materialize downloads the remote video and returns a local storage key.
	Materialize(ctx context.Context, jobID, videoURI string) (string, error)
}

// Scheduler drives the job lifecycle: a fixed-period tick admits at most one
// pending job, subject to the gate, and launches its execution concurrently.
type Scheduler struct {
	store    *Store
	gate     *Gate
	runner   Runner
	logger   zerolog.Logger
	interval time.Duration
	now      func() time.Time

	wg sync.WaitGroup
}

type SchedulerOptions struct {
	Interval time.Duration
	Logger   zerolog.Logger
	// Now overrides the clock, for tests.
	Now func() time.Time
}

func NewScheduler(store *Store, gate *Gate, runner Runner, opts SchedulerOptions) *Scheduler {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		store:    store,
		gate:     gate,
		runner:   runner,
		logger:   opts.Logger,
		interval: interval,
		now:      now,
	}
}

// Run ticks until the context is cancelled, then waits for in-flight
// executions to report their outcome.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Msg("scheduler: started")
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			s.logger.Info().Msg("scheduler: stopped")
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick performs one admission check. It never blocks on remote work: the
// admission decision is committed to the store and the gate synchronously,
// and the execution itself runs in its own goroutine. At most one job moves
// from pending to processing per call.
func (s *Scheduler) Tick(ctx context.Context) {
	if !s.runner.Ready() {
		return
	}

	now := s.now()

	// A prune that changed the window defers admission to the next tick, so
	// the decision below always runs against a stable timestamp set.
	if s.gate.Prune(now) {
		return
	}

	jobs := s.store.Jobs()
	processing := 0
	for i := range jobs {
		if jobs[i].Status == domain.JobStatusProcessing {
			processing++
		}
	}
	if !s.gate.CanAdmit(processing, now) {
		return
	}

	var next *domain.Job
	for i := range jobs {
		if jobs[i].Status == domain.JobStatusPending {
			next = &jobs[i]
			break
		}
	}
	if next == nil {
		return
	}

	// Commit the admission before the goroutine starts. The next tick, even
	// one that fires before the remote call resolves, already sees the
	// updated processing count and window and cannot double-admit.
	started := now
	s.store.Apply(next.ID, domain.JobStatusProcessing, Update{StartedAt: &started})
	s.gate.Record(now)

	s.logger.Info().
		Str("job_id", next.ID).
		Str("model", next.Config.Model).
		Int("processing", processing+1).
		Msg("scheduler: admitted job")

	s.wg.Add(1)
	go func(job domain.Job) {
		defer s.wg.Done()
		s.execute(ctx, job)
	}(*next)
}

func (s *Scheduler) execute(ctx context.Context, job domain.Job) {
	uri, err := s.runner.SubmitAndAwait(ctx, job.Config)
	if err != nil {
		s.fail(job.ID, err)
		return
	}
	key, err := s.runner.Materialize(ctx, job.ID, uri)
	if err != nil {
		s.fail(job.ID, err)
		return
	}

	done := s.now()
	s.store.Apply(job.ID, domain.JobStatusCompleted, Update{
		Result:      &domain.Result{VideoURI: uri, StorageKey: key},
		CompletedAt: &done,
	})
	s.logger.Info().Str("job_id", job.ID).Str("storage_key", key).Msg("scheduler: job completed")
}

func (s *Scheduler) fail(jobID string, err error) {
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		msg = "generation failed"
	}
	done := s.now()
	s.store.Apply(jobID, domain.JobStatusFailed, Update{
		Error:       &msg,
		CompletedAt: &done,
	})
	s.logger.Error().Str("job_id", jobID).Str("error", msg).Msg("scheduler: job failed")
}
