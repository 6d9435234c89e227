package migrator

import (
	"sync"

	"github.com/google/uuid"
)

// jobStore is a process-wide mapping of job identifier to JobRecord,
// protected by a single mutex with short critical sections and no nested
// locking (§4.E).
type jobStore struct {
	mu      sync.Mutex
	records map[string]JobRecord
}

func newJobStore() *jobStore {
	return &jobStore{records: map[string]JobRecord{}}
}

// newManualJobID mints a "manual_<uuid>" job identifier.
func newManualJobID() string {
	return manualJobPrefix + uuid.NewString()
}

// newScheduledJobID mints a "sched_<uuid>" job identifier.
func newScheduledJobID() string {
	return scheduledJobPrefix + uuid.NewString()
}

// upsert merges fields into the existing record, or inserts a fresh one
// initialized to pending before applying them.
func (s *jobStore) upsert(id string, apply func(*JobRecord)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		rec = JobRecord{Status: JobPending, Results: map[string]any{}}
	}

	apply(&rec)
	s.records[id] = rec
}

// snapshot returns a defensive copy of the record for id, or a synthetic
// {status: not_found} JobRecord if no such job exists.
func (s *jobStore) snapshot(id string) JobRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return JobRecord{Status: JobNotFound}
	}

	results := make(map[string]any, len(rec.Results))
	for k, v := range rec.Results {
		results[k] = v
	}

	out := JobRecord{Status: rec.Status, Results: results}
	if rec.Error != nil {
		errCopy := *rec.Error
		out.Error = &errCopy
	}

	return out
}
