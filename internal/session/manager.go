package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/example/delivery-coordinator/internal/apperr"
	"github.com/example/delivery-coordinator/internal/models"
	"github.com/example/delivery-coordinator/internal/permission"
)

// Streamer starts and stops a courier's location stream. Start returns once
// the stream is running; the stream itself lives until Stop.
type Streamer interface {
	Start(ctx context.Context, courierID string) error
	Stop()
}

// Availability records the courier's opt-in for proximity matching.
type Availability interface {
	SetAvailable(ctx context.Context, courierID string, available bool) error
}

// Session is the ephemeral live state of one connected courier. Created on
// login or dashboard mount, destroyed on logout; a failed session is
// re-created rather than reused.
type Session struct {
	CourierID string

	init         *Initializer
	provider     *permission.ReportedProvider
	streamer     Streamer
	availability Availability
	logger       *slog.Logger

	mu        sync.Mutex
	available bool
	last      Result
}

// ReportPermission records the device-reported permission state consumed by
// the gate on the next initialization.
func (s *Session) ReportPermission(st permission.State) {
	s.provider.Set(st)
}

// Initialize bootstraps the session, retrying transient failures.
func (s *Session) Initialize(ctx context.Context, profile models.Profile, maxAttempts int, baseDelay time.Duration) Result {
	res := s.init.Retry(ctx, profile, maxAttempts, baseDelay)
	s.mu.Lock()
	s.last = res
	s.mu.Unlock()
	return res
}

// Last returns the most recent initialization result.
func (s *Session) Last() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// SetAvailable toggles the courier's opt-in. Going available requires a
// ready session and starts the location stream; going unavailable stops it.
func (s *Session) SetAvailable(ctx context.Context, available bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if available == s.available {
		return nil
	}
	if available {
		if s.last.State != StateReady {
			return apperr.Wrap("set available", apperr.ErrForbidden)
		}
		if err := s.streamer.Start(ctx, s.CourierID); err != nil {
			return apperr.Wrap("start location stream", err)
		}
	} else {
		s.streamer.Stop()
	}
	if err := s.availability.SetAvailable(ctx, s.CourierID, available); err != nil {
		if available {
			s.streamer.Stop()
		}
		return err
	}
	s.available = available
	s.logger.Info("courier availability changed", "courier_id", s.CourierID, "available", available)
	return nil
}

// Close tears the session down: stream stopped, courier marked unavailable.
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.available {
		s.streamer.Stop()
		_ = s.availability.SetAvailable(ctx, s.CourierID, false)
		s.available = false
	}
}

// Manager holds one session per connected courier.
type Manager struct {
	availability Availability
	newStreamer  func(courierID string) Streamer
	logger       *slog.Logger
	timeout      time.Duration
	cooldown     time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(availability Availability, newStreamer func(courierID string) Streamer, logger *slog.Logger, timeout, cooldown time.Duration) *Manager {
	return &Manager{
		availability: availability,
		newStreamer:  newStreamer,
		logger:       logger,
		timeout:      timeout,
		cooldown:     cooldown,
		sessions:     make(map[string]*Session),
	}
}

// Acquire returns the courier's session, creating it on first use. A
// session whose last run failed is re-created, not reused.
func (m *Manager) Acquire(courierID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[courierID]; ok {
		if s.Last().State != StateFailed {
			return s
		}
		delete(m.sessions, courierID)
	}
	provider := permission.NewReportedProvider()
	s := &Session{
		CourierID:    courierID,
		init:         NewInitializer(permission.NewGate(provider), m.logger, m.timeout, m.cooldown),
		provider:     provider,
		streamer:     m.newStreamer(courierID),
		availability: m.availability,
		logger:       m.logger,
	}
	m.sessions[courierID] = s
	return s
}

// Destroy tears down and forgets the courier's session.
func (m *Manager) Destroy(ctx context.Context, courierID string) {
	m.mu.Lock()
	s, ok := m.sessions[courierID]
	delete(m.sessions, courierID)
	m.mu.Unlock()
	if ok {
		s.Close(ctx)
	}
}
