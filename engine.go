package migrator

import (
	"context"
	"sync"
)

// MigrationEngine is the process-wide singleton wiring the Job Store, the
// Scheduler, and a bounded worker pool over the Orchestrator (§6 "Global
// mutable state... Expose them via a MigrationEngine value constructed at
// startup, with an explicit shutdown operation"). One-shot jobs are handed
// to the pool via a buffered channel, mirroring the teacher's
// jobs-channel/worker-pool shape in bitbucket.go's bitBucketWorker.
type MigrationEngine struct {
	cfg          Config
	store        *jobStore
	orchestrator *Orchestrator
	scheduler    *Scheduler

	jobs chan engineJob
	wg   sync.WaitGroup

	mu       sync.Mutex
	draining bool
}

type engineJob struct {
	id  string
	req MigrationRequest
}

// NewMigrationEngine constructs the engine and starts its worker pool and
// scheduler. Callers must call Shutdown before process exit.
func NewMigrationEngine(cfg Config) (*MigrationEngine, error) {
	sched, err := newScheduler()
	if err != nil {
		return nil, err
	}

	e := &MigrationEngine{
		cfg:          cfg,
		store:        newJobStore(),
		orchestrator: newOrchestrator(cfg.WorkDir, cfg.HTTPTimeout),
		scheduler:    sched,
		jobs:         make(chan engineJob, cfg.MaxConcurrentJobs*4),
	}

	for i := 0; i < cfg.MaxConcurrentJobs; i++ {
		e.wg.Add(1)

		go e.worker()
	}

	sched.start()

	return e, nil
}

func (e *MigrationEngine) worker() {
	defer e.wg.Done()

	for job := range e.jobs {
		e.orchestrator.Run(context.Background(), job.id, job.req, e.store)
	}
}

// SubmitManual validates and normalizes req, assigns it a "manual_<uuid>"
// job identifier, records it as pending, and queues it for the worker pool.
// It does not wait for the job to run, though it blocks while the queue
// (4 × MaxConcurrentJobs entries) is full; the caller polls Status for the
// outcome (§6).
func (e *MigrationEngine) SubmitManual(req MigrationRequest) (string, error) {
	e.mu.Lock()
	draining := e.draining
	e.mu.Unlock()

	if draining {
		return "", &InternalError{Message: "engine is shutting down, no new jobs accepted"}
	}

	req.Actions.Normalize()

	if err := validateRequest(req); err != nil {
		return "", err
	}

	id := newManualJobID()

	e.store.upsert(id, func(r *JobRecord) {
		r.Status = JobPending
	})

	e.jobs <- engineJob{id: id, req: req}

	logger.Printf("accepted manual migration job %s", id)

	return id, nil
}

// SubmitScheduled registers req to run every intervalMinutes, sharing a
// single job identifier across every fire (§4.G, §8 S6: "the Job Store
// reflects the last fire's outcome").
func (e *MigrationEngine) SubmitScheduled(req MigrationRequest, intervalMinutes int) (string, error) {
	e.mu.Lock()
	draining := e.draining
	e.mu.Unlock()

	if draining {
		return "", &InternalError{Message: "engine is shutting down, no new jobs accepted"}
	}

	req.Actions.Normalize()

	if err := validateRequest(req); err != nil {
		return "", err
	}

	id := newScheduledJobID()

	e.store.upsert(id, func(r *JobRecord) {
		r.Status = JobScheduled
	})

	task := func() {
		e.orchestrator.Run(context.Background(), id, req, e.store)
	}

	if err := e.scheduler.addPeriodic(id, intervalMinutes, task); err != nil {
		return "", err
	}

	logger.Printf("registered periodic migration job %s every %d minutes", id, intervalMinutes)

	return id, nil
}

// Status returns a defensive-copy snapshot of the job's current record.
func (e *MigrationEngine) Status(id string) JobRecord {
	return e.store.snapshot(id)
}

// Shutdown stops accepting new manual jobs, stops the scheduler without
// waiting for in-flight periodic runs, then closes the worker pool and
// waits for any job already in flight to finish its current orchestrator
// run (SPEC_FULL.md §9).
func (e *MigrationEngine) Shutdown(ctx context.Context) error {
	logger.Print("engine shutdown requested, draining worker pool")

	e.mu.Lock()
	e.draining = true
	e.mu.Unlock()

	schedErr := e.scheduler.shutdown(ctx)

	close(e.jobs)

	done := make(chan struct{})

	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	return schedErr
}
