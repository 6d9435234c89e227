package migrator

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"gitlab.com/tozd/go/errors"
)

// Scheduler wraps gocron to re-invoke a migration request on a fixed
// interval (§4.G). It is the periodic counterpart to a one-shot /migrate
// call: the same Orchestrator.Run drives both.
type Scheduler struct {
	sched gocron.Scheduler

	mu   sync.Mutex
	jobs map[string]gocron.Job
}

func newScheduler() (*Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, &InternalError{Message: errors.Wrap(err, "failed to create scheduler").Error()}
	}

	return &Scheduler{sched: sched, jobs: map[string]gocron.Job{}}, nil
}

func (s *Scheduler) start() {
	s.sched.Start()
}

// addPeriodic registers task to run every intervalMinutes under id, which
// the caller has already reserved (typically a "sched_<uuid>" job
// identifier). Intervals below one minute are rejected before anything is
// registered (§4.G, §8 boundary behavior).
func (s *Scheduler) addPeriodic(id string, intervalMinutes int, task func()) error {
	if intervalMinutes < 1 {
		return &InvalidIntervalError{IntervalMinutes: intervalMinutes}
	}

	job, err := s.sched.NewJob(
		gocron.DurationJob(time.Duration(intervalMinutes)*time.Minute),
		gocron.NewTask(task),
	)
	if err != nil {
		return &InternalError{Message: errors.Wrap(err, "failed to schedule job").Error()}
	}

	s.mu.Lock()
	s.jobs[id] = job
	s.mu.Unlock()

	logger.Printf("scheduled periodic job %s every %d minutes", id, intervalMinutes)

	return nil
}

// shutdown stops the scheduler without blocking on in-flight runs beyond
// gocron's own drain, per SPEC_FULL.md §9 shutdown semantics.
func (s *Scheduler) shutdown(ctx context.Context) error {
	done := make(chan error, 1)

	go func() {
		done <- s.sched.Shutdown()
	}()

	select {
	case err := <-done:
		if err != nil {
			return &InternalError{Message: errors.Wrap(err, "scheduler shutdown failed").Error()}
		}

		logger.Print("scheduler stopped")

		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
