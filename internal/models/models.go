package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// JobStatus is the closed set of delivery job states. The happy path is
// totally ordered; cancelled is reachable from any non-terminal state.
type JobStatus string

const (
	StatusAvailable  JobStatus = "available"
	StatusAccepted   JobStatus = "accepted"
	StatusCollected  JobStatus = "collected"
	StatusInProgress JobStatus = "in_progress"
	StatusCompleted  JobStatus = "completed"
	StatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether no further transition may leave s.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// rank orders the happy path. Cancelled has no rank.
func (s JobStatus) rank() int {
	switch s {
	case StatusAvailable:
		return 0
	case StatusAccepted:
		return 1
	case StatusCollected:
		return 2
	case StatusInProgress:
		return 3
	case StatusCompleted:
		return 4
	}
	return -1
}

// Before reports whether s precedes other on the happy path.
func (s JobStatus) Before(other JobStatus) bool {
	return s.rank() >= 0 && other.rank() >= 0 && s.rank() < other.rank()
}

// Category is the closed set of delivery categories used for pricing.
type Category string

const (
	CategoryDocuments Category = "documentos"
	CategoryFood      Category = "alimentos"
	CategoryPackages  Category = "encomendas"
	CategoryPharmacy  Category = "farmacia"
)

// Job is one delivery request from creation to a terminal state.
//
// CourierID is empty iff Status is available. DistanceKm and EtaMinutes are
// computed once at accept time and never recomputed. Each transition
// timestamp is set at most once, when the transition commits.
type Job struct {
	ID          string    `json:"id"`
	RequesterID string    `json:"requester_id"`
	CourierID   string    `json:"courier_id,omitempty"`
	Category    Category  `json:"category"`
	Pickup      Coord     `json:"pickup"`
	Dropoff     Coord     `json:"dropoff"`
	Price       float64   `json:"price"`
	DistanceKm  *float64  `json:"distance_km,omitempty"`
	EtaMinutes  *int      `json:"eta_minutes,omitempty"`
	Status      JobStatus `json:"status"`

	CreatedAt    time.Time  `json:"created_at"`
	AcceptedAt   *time.Time `json:"accepted_at,omitempty"`
	CollectedAt  *time.Time `json:"collected_at,omitempty"`
	InProgressAt *time.Time `json:"in_progress_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
}

// LocationSample is the latest known position of a courier. Samples are
// upserted last-write-wins by CapturedAt; older samples are discarded.
type LocationSample struct {
	CourierID  string    `json:"courier_id"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	AccuracyM  float64   `json:"accuracy_m"`
	CapturedAt time.Time `json:"captured_at"`
}

// Profile is the slice of a courier profile the session initializer needs.
type Profile struct {
	ID                  string `json:"id"`
	Role                string `json:"role"`
	FullName            string `json:"full_name,omitempty"`
	VehicleType         string `json:"vehicle_type,omitempty"`
	OnboardingCompleted bool   `json:"onboarding_completed"`
}

// NotificationIntent is emitted when a new available job falls within the
// matching radius of an available courier. Derived, never stored.
type NotificationIntent struct {
	JobID      string  `json:"job_id"`
	CourierID  string  `json:"courier_id"`
	DistanceKm float64 `json:"distance_km"`
}
