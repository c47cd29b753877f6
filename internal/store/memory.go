package store

import (
	"context"
	"sync"

	"github.com/example/delivery-coordinator/internal/apperr"
	"github.com/example/delivery-coordinator/internal/models"
)

// MemoryStore keeps jobs and samples in process memory. Used by tests and
// brokerless local runs.
type MemoryStore struct {
	mu      sync.Mutex
	jobs    map[string]models.Job
	samples map[string]models.LocationSample

	jobWatcher    JobWatcher
	sampleWatcher SampleWatcher
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:    make(map[string]models.Job),
		samples: make(map[string]models.LocationSample),
	}
}

// WatchJobs registers a watcher invoked synchronously inside the commit
// path, so per-job delivery order matches commit order. The watcher runs
// under the store lock and must not call back into the store or block.
func (m *MemoryStore) WatchJobs(w JobWatcher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobWatcher = w
}

// WatchSamples registers a watcher for accepted sample upserts. Same
// constraints as WatchJobs.
func (m *MemoryStore) WatchSamples(w SampleWatcher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sampleWatcher = w
}

func (m *MemoryStore) CreateJob(ctx context.Context, job *models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = *job
	if m.jobWatcher != nil {
		m.jobWatcher(*job)
	}
	return nil
}

func (m *MemoryStore) GetJob(ctx context.Context, id string) (models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return models.Job{}, apperr.ErrNotFound
	}
	return job, nil
}

func (m *MemoryStore) ListJobsByStatus(ctx context.Context, status models.JobStatus) ([]models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Job, 0)
	for _, job := range m.jobs {
		if job.Status == status {
			out = append(out, job)
		}
	}
	return out, nil
}

func (m *MemoryStore) UpdateJobIf(ctx context.Context, id string, cond Cond, mutate func(*models.Job)) (models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return models.Job{}, apperr.ErrNotFound
	}
	if job.Status != cond.Status || (cond.CourierEmpty && job.CourierID != "") {
		return models.Job{}, ErrConflict
	}
	mutate(&job)
	m.jobs[id] = job
	if m.jobWatcher != nil {
		m.jobWatcher(job)
	}
	return job, nil
}

func (m *MemoryStore) UpsertSample(ctx context.Context, sample models.LocationSample) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.samples[sample.CourierID]
	if ok && !sample.CapturedAt.After(cur.CapturedAt) {
		return false, nil
	}
	m.samples[sample.CourierID] = sample
	if m.sampleWatcher != nil {
		m.sampleWatcher(sample)
	}
	return true, nil
}

func (m *MemoryStore) GetSample(ctx context.Context, courierID string) (models.LocationSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.samples[courierID]
	if !ok {
		return models.LocationSample{}, apperr.ErrNotFound
	}
	return s, nil
}
