package presence

import (
	"context"
	"sync"
	"time"

	"github.com/example/delivery-coordinator/internal/geo"
	"github.com/example/delivery-coordinator/internal/models"
)

// Candidate is an available courier with its latest accepted sample.
type Candidate struct {
	CourierID  string
	Loc        models.Coord
	CapturedAt time.Time
}

// Index tracks which couriers are opted in for job notifications and where
// they last were. The matcher reads candidates from it; the location
// pipeline writes into it.
type Index interface {
	SetAvailable(ctx context.Context, courierID string, available bool) error
	Update(ctx context.Context, sample models.LocationSample) error
	// Candidates returns available couriers within radiusKm of origin whose
	// sample is fresher than freshness. Couriers with stale or missing
	// samples are excluded; they may still browse jobs manually.
	Candidates(ctx context.Context, origin models.Coord, radiusKm float64, freshness time.Duration) ([]Candidate, error)
}

// MemoryIndex is a naive full-scan index for tests and brokerless runs.
type MemoryIndex struct {
	mu       sync.RWMutex
	couriers map[string]*entry
	now      func() time.Time
}

type entry struct {
	available  bool
	loc        models.Coord
	capturedAt time.Time
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		couriers: make(map[string]*entry),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryIndex) SetAvailable(ctx context.Context, courierID string, available bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.couriers[courierID]
	if !ok {
		e = &entry{}
		m.couriers[courierID] = e
	}
	e.available = available
	return nil
}

func (m *MemoryIndex) Update(ctx context.Context, sample models.LocationSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.couriers[sample.CourierID]
	if !ok {
		e = &entry{}
		m.couriers[sample.CourierID] = e
	}
	if sample.CapturedAt.After(e.capturedAt) {
		e.loc = models.Coord{Lat: sample.Lat, Lng: sample.Lng}
		e.capturedAt = sample.CapturedAt
	}
	return nil
}

func (m *MemoryIndex) Candidates(ctx context.Context, origin models.Coord, radiusKm float64, freshness time.Duration) ([]Candidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cutoff := m.now().Add(-freshness)
	out := make([]Candidate, 0)
	for id, e := range m.couriers {
		if !e.available || e.capturedAt.IsZero() || e.capturedAt.Before(cutoff) {
			continue
		}
		d, err := geo.DistanceKm(origin, e.loc)
		if err != nil || d > radiusKm {
			continue
		}
		out = append(out, Candidate{CourierID: id, Loc: e.loc, CapturedAt: e.capturedAt})
	}
	return out, nil
}
