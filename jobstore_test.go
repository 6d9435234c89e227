package migrator

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJobStoreSnapshotNotFound(t *testing.T) {
	store := newJobStore()
	rec := store.snapshot("missing")
	require.Equal(t, JobNotFound, rec.Status)
}

func TestJobStoreUpsertInsertsThenMutates(t *testing.T) {
	store := newJobStore()

	store.upsert("manual_1", func(r *JobRecord) {
		r.Status = JobPending
	})

	rec := store.snapshot("manual_1")
	require.Equal(t, JobPending, rec.Status)

	store.upsert("manual_1", func(r *JobRecord) {
		r.Status = JobCompleted
		r.Results = map[string]any{"repository": "success"}
	})

	rec = store.snapshot("manual_1")
	require.Equal(t, JobCompleted, rec.Status)
	require.Equal(t, "success", rec.Results["repository"])
}

func TestJobStoreSnapshotReturnsDefensiveCopy(t *testing.T) {
	store := newJobStore()
	store.upsert("manual_1", func(r *JobRecord) {
		r.Results = map[string]any{"repository": "success"}
	})

	rec := store.snapshot("manual_1")
	rec.Results["repository"] = "tampered"

	fresh := store.snapshot("manual_1")
	require.Equal(t, "success", fresh.Results["repository"])
}

func TestJobStoreConcurrentUpsertsAreSafe(t *testing.T) {
	store := newJobStore()

	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			store.upsert("manual_shared", func(r *JobRecord) {
				r.Status = JobProcessing
			})
		}()
	}

	wg.Wait()

	rec := store.snapshot("manual_shared")
	require.Equal(t, JobProcessing, rec.Status)
}

func TestJobIDPrefixes(t *testing.T) {
	require.True(t, strings.HasPrefix(newManualJobID(), manualJobPrefix))
	require.True(t, strings.HasPrefix(newScheduledJobID(), scheduledJobPrefix))
	require.NotEqual(t, newManualJobID(), newManualJobID())
}
