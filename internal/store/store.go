package store

import (
	"context"
	"errors"

	"github.com/example/delivery-coordinator/internal/models"
)

// ErrConflict is returned by UpdateJobIf when the record's current state no
// longer matches the expected prior state. Callers re-read and re-decide.
var ErrConflict = errors.New("conditional update conflict")

// Cond is the expected prior state for a conditional job update. A job
// update only commits while Status still matches and, when CourierEmpty is
// set, the job is still unassigned. This compare-and-swap is the only
// concurrency primitive the lifecycle needs.
type Cond struct {
	Status       models.JobStatus
	CourierEmpty bool
}

// JobWatcher observes committed job changes. Implementations invoke it in
// commit order for any single job.
type JobWatcher func(job models.Job)

// SampleWatcher observes accepted (non-stale) location sample upserts.
type SampleWatcher func(sample models.LocationSample)

// Store persists jobs and courier location samples.
type Store interface {
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id string) (models.Job, error)
	ListJobsByStatus(ctx context.Context, status models.JobStatus) ([]models.Job, error)

	// UpdateJobIf applies mutate to the job identified by id iff cond still
	// holds, returning the updated record. Fails with ErrConflict when the
	// condition no longer holds and apperr.ErrNotFound when the job does
	// not exist.
	UpdateJobIf(ctx context.Context, id string, cond Cond, mutate func(*models.Job)) (models.Job, error)

	// UpsertSample stores the sample unless a newer one for the same
	// courier already arrived. Returns false for a silently discarded
	// stale sample.
	UpsertSample(ctx context.Context, sample models.LocationSample) (bool, error)
	GetSample(ctx context.Context, courierID string) (models.LocationSample, error)
}
