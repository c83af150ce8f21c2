package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"vidqueue/internal/domain"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type stubRunner struct {
	ready      bool
	submitErr  error
	uri        string
	storageKey string

	// block, when non-nil, holds SubmitAndAwait until closed so jobs stay
	// in processing.
	block chan struct{}
}

func (r *stubRunner) Ready() bool { return r.ready }

func (r *stubRunner) SubmitAndAwait(ctx context.Context, cfg domain.GenerationConfig) (string, error) {
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if r.submitErr != nil {
		return "", r.submitErr
	}
	return r.uri, nil
}

func (r *stubRunner) Materialize(ctx context.Context, jobID, uri string) (string, error) {
	return r.storageKey, nil
}

func newTestScheduler(runner Runner, clk *fakeClock) (*Scheduler, *Store, *Gate) {
	store := NewStore()
	gate := NewGate(4, 4, time.Minute)
	sched := NewScheduler(store, gate, runner, SchedulerOptions{
		Logger: zerolog.Nop(),
		Now:    clk.Now,
	})
	return sched, store, gate
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func countStatus(store *Store, status domain.JobStatus) int {
	n := 0
	for _, job := range store.Jobs() {
		if job.Status == status {
			n++
		}
	}
	return n
}

func TestTickAdmitsAtMostOneJob(t *testing.T) {
	runner := &stubRunner{ready: true, block: make(chan struct{}), uri: "u", storageKey: "k"}
	clk := newFakeClock()
	sched, store, _ := newTestScheduler(runner, clk)

	if _, err := store.CreateJobs(testConfig(), 5); err != nil {
		t.Fatalf("CreateJobs: %v", err)
	}

	sched.Tick(context.Background())
	if got := countStatus(store, domain.JobStatusProcessing); got != 1 {
		t.Fatalf("one tick admitted %d jobs, want 1", got)
	}
	close(runner.block)
	sched.wg.Wait()
}

func TestAdmissionIsFIFO(t *testing.T) {
	runner := &stubRunner{ready: true, block: make(chan struct{}), uri: "u", storageKey: "k"}
	clk := newFakeClock()
	sched, store, _ := newTestScheduler(runner, clk)

	jobs, err := store.CreateJobs(testConfig(), 3)
	if err != nil {
		t.Fatalf("CreateJobs: %v", err)
	}

	sched.Tick(context.Background())
	clk.Advance(time.Second)
	sched.Tick(context.Background())

	first, _ := store.Job(jobs[0].ID)
	second, _ := store.Job(jobs[1].ID)
	third, _ := store.Job(jobs[2].ID)
	if first.Status != domain.JobStatusProcessing || second.Status != domain.JobStatusProcessing {
		t.Fatalf("oldest two should be processing, got %s/%s", first.Status, second.Status)
	}
	if third.Status != domain.JobStatusPending {
		t.Fatalf("newest should still be pending, got %s", third.Status)
	}
	if first.StartedAt == nil {
		t.Fatal("admission must set StartedAt")
	}
	close(runner.block)
	sched.wg.Wait()
}

func TestConcurrencyAndWindowCaps(t *testing.T) {
	runner := &stubRunner{ready: true, block: make(chan struct{}), uri: "u", storageKey: "k"}
	clk := newFakeClock()
	sched, store, gate := newTestScheduler(runner, clk)

	if _, err := store.CreateJobs(testConfig(), 5); err != nil {
		t.Fatalf("CreateJobs: %v", err)
	}

	// Four ticks, one second apart: four admissions.
	for i := 0; i < 4; i++ {
		sched.Tick(context.Background())
		clk.Advance(time.Second)
	}
	if got := countStatus(store, domain.JobStatusProcessing); got != 4 {
		t.Fatalf("processing = %d, want 4", got)
	}
	if got := countStatus(store, domain.JobStatusPending); got != 1 {
		t.Fatalf("pending = %d, want 1", got)
	}

	// Both caps are saturated; further ticks admit nothing.
	sched.Tick(context.Background())
	if got := countStatus(store, domain.JobStatusProcessing); got != 4 {
		t.Fatalf("processing after extra tick = %d, want 4", got)
	}

	// Let the first batch finish: the concurrency cap frees up but the
	// window still holds four admissions, so the fifth job stays pending.
	close(runner.block)
	sched.wg.Wait()
	waitFor(t, func() bool { return countStatus(store, domain.JobStatusCompleted) == 4 })

	sched.Tick(context.Background())
	if got := countStatus(store, domain.JobStatusPending); got != 1 {
		t.Fatalf("fifth job admitted inside a full window, pending = %d", got)
	}

	// Once the oldest admission ages out of the window, the next tick only
	// prunes; the tick after that admits.
	clk.Advance(57 * time.Second)
	runner.block = nil
	sched.Tick(context.Background())
	if got := gate.InWindow(clk.Now()); got >= 4 {
		t.Fatalf("expected pruned window, still %d entries", got)
	}
	if got := countStatus(store, domain.JobStatusPending); got != 1 {
		t.Fatal("prune tick must not admit")
	}

	sched.Tick(context.Background())
	waitFor(t, func() bool { return countStatus(store, domain.JobStatusCompleted) == 5 })
}

func TestPruneDefersAdmissionByOneTick(t *testing.T) {
	runner := &stubRunner{ready: true, uri: "u", storageKey: "k"}
	clk := newFakeClock()
	sched, store, gate := newTestScheduler(runner, clk)

	gate.Record(clk.Now().Add(-2 * time.Minute))
	if _, err := store.CreateJobs(testConfig(), 1); err != nil {
		t.Fatalf("CreateJobs: %v", err)
	}

	sched.Tick(context.Background())
	if got := countStatus(store, domain.JobStatusPending); got != 1 {
		t.Fatal("tick with a prune must not admit")
	}

	sched.Tick(context.Background())
	waitFor(t, func() bool { return countStatus(store, domain.JobStatusCompleted) == 1 })
}

func TestNoAdmissionWithoutCredential(t *testing.T) {
	runner := &stubRunner{ready: false, uri: "u", storageKey: "k"}
	clk := newFakeClock()
	sched, store, _ := newTestScheduler(runner, clk)

	if _, err := store.CreateJobs(testConfig(), 2); err != nil {
		t.Fatalf("CreateJobs: %v", err)
	}

	for i := 0; i < 3; i++ {
		sched.Tick(context.Background())
		clk.Advance(time.Second)
	}
	if got := countStatus(store, domain.JobStatusPending); got != 2 {
		t.Fatalf("jobs admitted without a credential, pending = %d", got)
	}

	// Selecting a credential later resumes the queue without intervention.
	runner.ready = true
	sched.Tick(context.Background())
	waitFor(t, func() bool { return countStatus(store, domain.JobStatusCompleted) == 1 })
}

func TestFailedExecutionCarriesRemoteMessage(t *testing.T) {
	runner := &stubRunner{ready: true, submitErr: errors.New("Unknown generation error")}
	clk := newFakeClock()
	sched, store, _ := newTestScheduler(runner, clk)

	jobs, err := store.CreateJobs(testConfig(), 1)
	if err != nil {
		t.Fatalf("CreateJobs: %v", err)
	}

	sched.Tick(context.Background())
	waitFor(t, func() bool { return countStatus(store, domain.JobStatusFailed) == 1 })

	got, _ := store.Job(jobs[0].ID)
	if got.Error != "Unknown generation error" {
		t.Fatalf("error = %q, want the remote message verbatim", got.Error)
	}
	if got.Result != nil {
		t.Fatal("failed job must not carry a result")
	}

	if err := store.Retry(jobs[0].ID); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	after, _ := store.Job(jobs[0].ID)
	if after.Status != domain.JobStatusPending || after.Error != "" {
		t.Fatalf("retry left job as %s with error %q", after.Status, after.Error)
	}
}

func TestSuccessfulExecutionRecordsResult(t *testing.T) {
	runner := &stubRunner{ready: true, uri: "https://files.example/video.mp4", storageKey: "videos/x/video.mp4"}
	clk := newFakeClock()
	sched, store, _ := newTestScheduler(runner, clk)

	jobs, err := store.CreateJobs(testConfig(), 1)
	if err != nil {
		t.Fatalf("CreateJobs: %v", err)
	}

	sched.Tick(context.Background())
	waitFor(t, func() bool { return countStatus(store, domain.JobStatusCompleted) == 1 })

	got, _ := store.Job(jobs[0].ID)
	if got.Result == nil || got.Result.VideoURI != runner.uri || got.Result.StorageKey != runner.storageKey {
		t.Fatalf("result = %+v", got.Result)
	}
	if got.Error != "" {
		t.Fatalf("completed job carries error %q", got.Error)
	}
	if got.CompletedAt == nil {
		t.Fatal("completion must set CompletedAt")
	}
	if got.Config != testConfig() {
		t.Fatal("config observed at completion must equal the creation snapshot")
	}
}
