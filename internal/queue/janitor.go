package queue

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultRetention is how long terminal jobs are kept before the sweep
// removes them.
const DefaultRetention = 24 * time.Hour

// Janitor periodically removes old terminal jobs from the store. Executions
// that outlive their job report into Apply, which treats unknown IDs as a
// no-op, so sweeping is safe while jobs are in flight.
type Janitor struct {
	store     *Store
	retention time.Duration
	logger    zerolog.Logger
	cron      *cron.Cron
}

func NewJanitor(store *Store, retention time.Duration, logger zerolog.Logger) *Janitor {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Janitor{
		store:     store,
		retention: retention,
		logger:    logger,
		cron:      cron.New(),
	}
}

// Start schedules the sweep every ten minutes and returns immediately.
func (j *Janitor) Start() error {
	if _, err := j.cron.AddFunc("@every 10m", j.sweep); err != nil {
		return err
	}
	j.cron.Start()
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

func (j *Janitor) sweep() {
	if removed := j.store.Sweep(j.retention); removed > 0 {
		j.logger.Info().Int("removed", removed).Msg("janitor: swept terminal jobs")
	}
}
