package match

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/example/delivery-coordinator/internal/geo"
	"github.com/example/delivery-coordinator/internal/models"
	"github.com/example/delivery-coordinator/internal/observability"
	"github.com/example/delivery-coordinator/internal/presence"
)

// Transport delivers a notification to one recipient. Delivery and
// visibility are the transport's concern, not the matcher's.
type Transport interface {
	Notify(ctx context.Context, recipientID, title, body string, payload any) error
}

// JobLister is the read slice of the store the re-matcher needs.
type JobLister interface {
	ListJobsByStatus(ctx context.Context, status models.JobStatus) ([]models.Job, error)
}

// Service decides which couriers hear about which jobs. On job creation it
// fans out to every available courier with a fresh sample inside the match
// radius; while a job stays available it re-evaluates couriers whose
// location or availability changes, notifying each courier at most once per
// job.
type Service struct {
	presence  presence.Index
	transport Transport
	jobs      JobLister
	logger    *slog.Logger

	RadiusKm  float64
	Freshness time.Duration

	mu       sync.Mutex
	notified map[string]map[string]struct{} // jobID -> courierIDs already notified
}

func NewService(idx presence.Index, transport Transport, jobs JobLister, logger *slog.Logger, radiusKm float64, freshness time.Duration) *Service {
	if radiusKm <= 0 {
		radiusKm = 10
	}
	if freshness <= 0 {
		freshness = 2 * time.Minute
	}
	return &Service{
		presence:  idx,
		transport: transport,
		jobs:      jobs,
		logger:    logger,
		RadiusKm:  radiusKm,
		Freshness: freshness,
		notified:  make(map[string]map[string]struct{}),
	}
}

// JobCreated runs one matching pass for a new available job. Fan-out is
// parallel; notifications within a pass are unordered across couriers.
func (s *Service) JobCreated(ctx context.Context, job models.Job) {
	if job.Status != models.StatusAvailable {
		return
	}
	cands, err := s.presence.Candidates(ctx, job.Pickup, s.RadiusKm, s.Freshness)
	if err != nil {
		s.logger.Warn("candidate lookup failed", "job_id", job.ID, "err", err)
		return
	}
	var wg sync.WaitGroup
	for _, c := range cands {
		d, err := geo.DistanceKm(job.Pickup, c.Loc)
		if err != nil || d > s.RadiusKm {
			continue
		}
		if !s.markNotified(job.ID, c.CourierID) {
			continue
		}
		wg.Add(1)
		go func(courierID string, distanceKm float64) {
			defer wg.Done()
			s.emit(ctx, job, courierID, distanceKm)
		}(c.CourierID, d)
	}
	wg.Wait()
}

// JobTransitioned clears matching state once a job leaves available. The
// realtime hub handles party-facing fan-out via the store watcher; here we
// only stop further proximity notifications.
func (s *Service) JobTransitioned(ctx context.Context, job models.Job) {
	if job.Status == models.StatusAvailable {
		return
	}
	s.mu.Lock()
	delete(s.notified, job.ID)
	s.mu.Unlock()
}

// CourierChanged re-evaluates open jobs against one courier whose location
// or availability just changed. A courier that comes online near an
// existing job is still notified exactly once.
func (s *Service) CourierChanged(ctx context.Context, courierID string, loc models.Coord) {
	open, err := s.jobs.ListJobsByStatus(ctx, models.StatusAvailable)
	if err != nil {
		s.logger.Warn("open job lookup failed", "courier_id", courierID, "err", err)
		return
	}
	// Candidates applies the availability and freshness rules; a courier
	// filtered out there gets nothing.
	cands, err := s.presence.Candidates(ctx, loc, s.RadiusKm, s.Freshness)
	if err != nil {
		return
	}
	eligible := false
	for _, c := range cands {
		if c.CourierID == courierID {
			eligible = true
			break
		}
	}
	if !eligible {
		return
	}
	for _, job := range open {
		d, err := geo.DistanceKm(job.Pickup, loc)
		if err != nil || d > s.RadiusKm {
			continue
		}
		if !s.markNotified(job.ID, courierID) {
			continue
		}
		s.emit(ctx, job, courierID, d)
	}
}

func (s *Service) emit(ctx context.Context, job models.Job, courierID string, distanceKm float64) {
	intent := models.NotificationIntent{JobID: job.ID, CourierID: courierID, DistanceKm: distanceKm}
	title := "Nova corrida próxima"
	body := fmt.Sprintf("%s - R$ %.2f - %.1f km", job.Category, job.Price, distanceKm)
	if err := s.transport.Notify(ctx, courierID, title, body, intent); err != nil {
		s.logger.Warn("notification dispatch failed", "job_id", job.ID, "courier_id", courierID, "err", err)
		return
	}
	observability.NotificationsEmitted.Inc()
}

// markNotified records the (job, courier) pair, returning false when the
// courier was already notified for this job.
func (s *Service) markNotified(jobID, courierID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.notified[jobID]
	if !ok {
		set = make(map[string]struct{})
		s.notified[jobID] = set
	}
	if _, dup := set[courierID]; dup {
		return false
	}
	set[courierID] = struct{}{}
	return true
}
