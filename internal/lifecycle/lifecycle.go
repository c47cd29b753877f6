package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/delivery-coordinator/internal/apperr"
	"github.com/example/delivery-coordinator/internal/geo"
	"github.com/example/delivery-coordinator/internal/models"
	"github.com/example/delivery-coordinator/internal/observability"
	"github.com/example/delivery-coordinator/internal/store"
)

// Role of the actor requesting a transition.
type Role string

const (
	RoleRequester Role = "requester"
	RoleCourier   Role = "courier"
)

// Actor identifies who is asking for a transition.
type Actor struct {
	ID   string
	Role Role
}

// next is the single source of truth for the happy path. A status absent
// from the table has no forward transition.
var next = map[models.JobStatus]models.JobStatus{
	models.StatusAvailable:  models.StatusAccepted,
	models.StatusAccepted:   models.StatusCollected,
	models.StatusCollected:  models.StatusInProgress,
	models.StatusInProgress: models.StatusCompleted,
}

// Jobs is the slice of the store the lifecycle needs.
type Jobs interface {
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id string) (models.Job, error)
	ListJobsByStatus(ctx context.Context, status models.JobStatus) ([]models.Job, error)
	UpdateJobIf(ctx context.Context, id string, cond store.Cond, mutate func(*models.Job)) (models.Job, error)
}

// Announcer receives committed lifecycle changes for realtime fan-out and
// matching. The store watcher handles per-job ordered hub delivery; these
// hooks drive matching and party notifications.
type Announcer interface {
	JobCreated(ctx context.Context, job models.Job)
	JobTransitioned(ctx context.Context, job models.Job)
}

// Service owns valid transitions, timestamps and side effects for delivery
// jobs. All writes are conditional on the expected prior state, so the
// lifecycle is safe under concurrent acceptance attempts without locks.
type Service struct {
	jobs      Jobs
	announcer Announcer
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(jobs Jobs, announcer Announcer, logger *slog.Logger) *Service {
	return &Service{
		jobs:      jobs,
		announcer: announcer,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateParams carries everything fixed at job creation. Price is immutable
// after creation within this subsystem.
type CreateParams struct {
	RequesterID string
	Category    models.Category
	Pickup      models.Coord
	Dropoff     models.Coord
	Price       float64
}

// Create registers a new available job. Both coordinates must be valid
// before matching can run.
func (s *Service) Create(ctx context.Context, p CreateParams) (models.Job, error) {
	if _, err := geo.DistanceKm(p.Pickup, p.Dropoff); err != nil {
		return models.Job{}, apperr.Wrap("create job", err)
	}
	job := models.Job{
		ID:          uuid.NewString(),
		RequesterID: p.RequesterID,
		Category:    p.Category,
		Pickup:      p.Pickup,
		Dropoff:     p.Dropoff,
		Price:       p.Price,
		Status:      models.StatusAvailable,
		CreatedAt:   s.now(),
	}
	if err := s.jobs.CreateJob(ctx, &job); err != nil {
		return models.Job{}, apperr.Wrap("create job", err)
	}
	observability.JobsCreated.Inc()
	s.logger.Info("job created",
		"job_id", job.ID,
		"requester_id", job.RequesterID,
		"category", string(job.Category),
	)
	if s.announcer != nil {
		s.announcer.JobCreated(ctx, job)
	}
	return job, nil
}

func (s *Service) Get(ctx context.Context, jobID string) (models.Job, error) {
	return s.jobs.GetJob(ctx, jobID)
}

// ListAvailable lists jobs a courier may still browse manually even when it
// receives no proximity notifications.
func (s *Service) ListAvailable(ctx context.Context) ([]models.Job, error) {
	return s.jobs.ListJobsByStatus(ctx, models.StatusAvailable)
}

// Accept assigns the job to the courier. Exactly one courier wins a given
// available job; losers get apperr.ErrAlreadyTaken so clients can drop the
// job from their lists immediately.
func (s *Service) Accept(ctx context.Context, jobID string, actor Actor) (models.Job, error) {
	return s.apply(ctx, jobID, models.StatusAccepted, actor)
}

// Collect marks the package picked up.
func (s *Service) Collect(ctx context.Context, jobID string, actor Actor) (models.Job, error) {
	return s.apply(ctx, jobID, models.StatusCollected, actor)
}

// Start marks the delivery en route to the dropoff.
func (s *Service) Start(ctx context.Context, jobID string, actor Actor) (models.Job, error) {
	return s.apply(ctx, jobID, models.StatusInProgress, actor)
}

// Complete finishes the delivery.
func (s *Service) Complete(ctx context.Context, jobID string, actor Actor) (models.Job, error) {
	return s.apply(ctx, jobID, models.StatusCompleted, actor)
}

// Cancel aborts the job from any non-terminal state. Either the requester
// or the assigned courier may cancel; cancellation side effects (refunds,
// rating penalties) are an external policy concern.
func (s *Service) Cancel(ctx context.Context, jobID string, actor Actor) (models.Job, error) {
	return s.apply(ctx, jobID, models.StatusCancelled, actor)
}

// apply validates and commits one transition. Re-applying an already applied
// transition is a no-op success to tolerate client retries.
func (s *Service) apply(ctx context.Context, jobID string, target models.JobStatus, actor Actor) (models.Job, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return models.Job{}, err
	}

	if done, replayed := s.replayed(job, target, actor); replayed {
		return done, nil
	}

	if err := s.authorize(job, target, actor); err != nil {
		return models.Job{}, err
	}

	cond := store.Cond{Status: job.Status}
	if target == models.StatusAccepted {
		cond.CourierEmpty = true
	}

	updated, err := s.jobs.UpdateJobIf(ctx, jobID, cond, func(j *models.Job) {
		s.mutate(j, target, actor)
	})
	if errors.Is(err, store.ErrConflict) {
		return s.resolveConflict(ctx, jobID, target, actor)
	}
	if err != nil {
		return models.Job{}, err
	}

	observability.JobTransitions.WithLabelValues(string(target)).Inc()
	s.logger.Info("job transitioned",
		"job_id", updated.ID,
		"status", string(updated.Status),
		"actor_id", actor.ID,
		"actor_role", string(actor.Role),
	)
	if s.announcer != nil {
		s.announcer.JobTransitioned(ctx, updated)
	}
	return updated, nil
}

// authorize enforces the transition table and the actor rules. The switch
// is exhaustive over the closed status set: adding a status forces a review
// here.
func (s *Service) authorize(job models.Job, target models.JobStatus, actor Actor) error {
	switch target {
	case models.StatusCancelled:
		if job.Status.Terminal() {
			return apperr.ErrInvalidTransition
		}
		if actor.ID == job.RequesterID && actor.Role == RoleRequester {
			return nil
		}
		if job.CourierID != "" && actor.ID == job.CourierID && actor.Role == RoleCourier {
			return nil
		}
		return apperr.ErrForbidden
	case models.StatusAccepted, models.StatusCollected, models.StatusInProgress, models.StatusCompleted:
		if actor.Role != RoleCourier {
			return apperr.ErrForbidden
		}
		if target == models.StatusAccepted && job.Status != models.StatusAvailable {
			// Someone else got there first: the job is gone, not broken.
			return apperr.ErrAlreadyTaken
		}
		if next[job.Status] != target {
			return apperr.ErrInvalidTransition
		}
		if target != models.StatusAccepted && job.CourierID != actor.ID {
			return apperr.ErrForbidden
		}
		return nil
	case models.StatusAvailable:
		// Jobs only enter available at creation; never a transition target.
		return apperr.ErrInvalidTransition
	}
	return apperr.ErrInvalidTransition
}

// mutate applies the side effects of a committed transition. Timestamps are
// set exactly once, when the transition fires. Distance and ETA are derived
// at accept time and never recomputed.
func (s *Service) mutate(j *models.Job, target models.JobStatus, actor Actor) {
	now := s.now()
	j.Status = target
	switch target {
	case models.StatusAccepted:
		j.CourierID = actor.ID
		if d, err := geo.DistanceKm(j.Pickup, j.Dropoff); err == nil {
			eta := geo.EstimateEtaMinutes(d)
			j.DistanceKm = &d
			j.EtaMinutes = &eta
		}
		j.AcceptedAt = &now
	case models.StatusCollected:
		j.CollectedAt = &now
	case models.StatusInProgress:
		j.InProgressAt = &now
	case models.StatusCompleted:
		j.CompletedAt = &now
	case models.StatusCancelled:
		j.CancelledAt = &now
	case models.StatusAvailable:
		// unreachable; authorize rejects it
	}
}

// replayed detects an idempotent retry: current status already equals the
// requested target with its timestamp set, applied by the same actor.
func (s *Service) replayed(job models.Job, target models.JobStatus, actor Actor) (models.Job, bool) {
	if job.Status != target {
		return models.Job{}, false
	}
	switch target {
	case models.StatusAccepted:
		return job, job.CourierID == actor.ID && job.AcceptedAt != nil
	case models.StatusCollected:
		return job, job.CourierID == actor.ID && job.CollectedAt != nil
	case models.StatusInProgress:
		return job, job.CourierID == actor.ID && job.InProgressAt != nil
	case models.StatusCompleted:
		return job, job.CourierID == actor.ID && job.CompletedAt != nil
	case models.StatusCancelled:
		authorized := actor.ID == job.RequesterID || (job.CourierID != "" && actor.ID == job.CourierID)
		return job, authorized && job.CancelledAt != nil
	}
	return models.Job{}, false
}

// resolveConflict re-reads after a failed conditional write. A lost
// acceptance race surfaces as AlreadyTaken; a retry that raced its own
// earlier request resolves as an idempotent success.
func (s *Service) resolveConflict(ctx context.Context, jobID string, target models.JobStatus, actor Actor) (models.Job, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return models.Job{}, err
	}
	if done, replayed := s.replayed(job, target, actor); replayed {
		return done, nil
	}
	if target == models.StatusAccepted {
		observability.AcceptConflicts.Inc()
		return models.Job{}, apperr.ErrAlreadyTaken
	}
	return models.Job{}, apperr.ErrInvalidTransition
}
