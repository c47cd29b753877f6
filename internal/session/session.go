package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/example/delivery-coordinator/internal/apperr"
	"github.com/example/delivery-coordinator/internal/models"
	"github.com/example/delivery-coordinator/internal/observability"
	"github.com/example/delivery-coordinator/internal/permission"
)

// State of a courier session bootstrap.
type State string

const (
	StateIdle         State = "idle"
	StateInitializing State = "initializing"
	// StateReady allows the location stream to start and the courier to be
	// matched.
	StateReady State = "ready"
	// StateDegraded keeps the dashboard usable without location: the
	// courier is not eligible for proximity notifications.
	StateDegraded State = "degraded"
	StateFailed   State = "failed"
)

// Result of one initialization run. ServicesReady implies
// PermissionsGranted implies ProfileValid.
type Result struct {
	State              State    `json:"state"`
	ProfileValid       bool     `json:"profile_valid"`
	PermissionsGranted bool     `json:"permissions_granted"`
	ServicesReady      bool     `json:"services_ready"`
	Warnings           []string `json:"warnings,omitempty"`
	Err                error    `json:"-"`
}

// Gate is the slice of the permission gate the initializer needs.
type Gate interface {
	Request(ctx context.Context) (permission.State, error)
}

// Initializer bootstraps a courier's live session. Concurrent Initialize
// calls share one in-flight run (single-flight), so bursts of callers
// trigger at most one permission prompt. After a run finishes, its result
// is held for a cool-down window before a fresh run may start.
type Initializer struct {
	gate     Gate
	logger   *slog.Logger
	timeout  time.Duration
	cooldown time.Duration

	mu       sync.Mutex
	inflight *flight
	now      func() time.Time
}

type flight struct {
	done       chan struct{}
	result     Result
	finishedAt time.Time
}

func NewInitializer(gate Gate, logger *slog.Logger, timeout, cooldown time.Duration) *Initializer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if cooldown <= 0 {
		cooldown = 5 * time.Second
	}
	return &Initializer{
		gate:     gate,
		logger:   logger,
		timeout:  timeout,
		cooldown: cooldown,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Initialize runs the session bootstrap, or joins the in-flight run if one
// exists. Caller cancellation only stops the wait, never the shared run; a
// run that outlives its own timeout resolves to a failed result rather
// than staying initializing forever.
func (i *Initializer) Initialize(ctx context.Context, profile models.Profile) Result {
	i.mu.Lock()
	f := i.inflight
	if f != nil {
		select {
		case <-f.done:
			if i.now().Sub(f.finishedAt) < i.cooldown {
				i.mu.Unlock()
				return f.result
			}
			// Cool-down elapsed: a fresh run may start.
		default:
			i.mu.Unlock()
			return i.wait(ctx, f)
		}
	}
	f = &flight{done: make(chan struct{})}
	i.inflight = f
	i.mu.Unlock()

	go i.run(profile, f)
	return i.wait(ctx, f)
}

// Retry re-invokes Initialize with exponential backoff, stopping at the
// first ready result, at maxAttempts, or on an outcome retrying cannot
// change (invalid profile, hard permission denial). Each re-attempt resets
// the finished flight first; the cool-down window throttles independent
// callers, not the backoff loop itself.
func (i *Initializer) Retry(ctx context.Context, profile models.Profile, maxAttempts int, baseDelay time.Duration) Result {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	var res Result
	for attempt := 0; attempt < maxAttempts; attempt++ {
		res = i.Initialize(ctx, profile)
		if res.State == StateReady {
			return res
		}
		if errors.Is(res.Err, apperr.ErrProfileInvalid) {
			return res
		}
		if hard, denied := apperr.IsPermissionDenied(res.Err); denied && hard {
			return res
		}
		if attempt == maxAttempts-1 {
			break
		}
		delay := baseDelay << attempt
		i.logger.Info("session init retry",
			"attempt", attempt+1,
			"max_attempts", maxAttempts,
			"delay", delay.String(),
		)
		if !sleepWithContext(ctx, delay) {
			break
		}
		// Without this the next Initialize would serve the failed result
		// from the cool-down window instead of running again.
		i.Reset()
	}
	return res
}

// Reset drops any finished run so the next Initialize starts fresh. Used
// when a session is destroyed and re-created after failure.
func (i *Initializer) Reset() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.inflight != nil {
		select {
		case <-i.inflight.done:
			i.inflight = nil
		default:
			// Never drop a live run; joiners hold its handle.
		}
	}
}

func (i *Initializer) wait(ctx context.Context, f *flight) Result {
	select {
	case <-f.done:
		return f.result
	case <-ctx.Done():
		return Result{State: StateFailed, Err: apperr.Wrap("session init", ctx.Err())}
	}
}

func (i *Initializer) run(profile models.Profile, f *flight) {
	// Detached from any single caller: view teardown must not abort a run
	// other callers joined. The timeout bounds a hung provider.
	ctx, cancel := context.WithTimeout(context.Background(), i.timeout)
	defer cancel()

	res := i.bootstrap(ctx, profile)

	observability.SessionInits.WithLabelValues(string(res.State)).Inc()
	i.logger.Info("session init finished",
		"courier_id", profile.ID,
		"state", string(res.State),
		"permissions_granted", res.PermissionsGranted,
		"warnings", len(res.Warnings),
	)

	i.mu.Lock()
	f.result = res
	f.finishedAt = i.now()
	i.mu.Unlock()
	close(f.done)
}

func (i *Initializer) bootstrap(ctx context.Context, profile models.Profile) Result {
	res := Result{State: StateFailed}

	valid, warnings := ValidateProfile(profile)
	res.Warnings = warnings
	if !valid {
		res.Err = apperr.ErrProfileInvalid
		return res
	}
	res.ProfileValid = true

	st, err := i.gate.Request(ctx)
	if err != nil {
		if ctx.Err() != nil {
			res.Err = apperr.Wrap("permission request", apperr.ErrTimeout)
		} else {
			res.Err = apperr.Wrap("permission request", apperr.ErrDisconnected)
		}
		return res
	}

	switch st {
	case permission.StateGranted:
		res.PermissionsGranted = true
		res.ServicesReady = true
		res.State = StateReady
	case permission.StateDeniedHard:
		res.State = StateFailed
		res.Err = &apperr.PermissionError{Hard: true}
	default:
		// Soft denial: dashboard stays usable, matching stays off.
		res.State = StateDegraded
		res.Warnings = append(res.Warnings, "location permission not granted: limited mode")
	}
	return res
}

// ValidateProfile checks the profile shape and role. Missing optional
// fields produce warnings, not failures.
func ValidateProfile(profile models.Profile) (valid bool, warnings []string) {
	if strings.TrimSpace(profile.ID) == "" {
		return false, nil
	}
	if profile.Role != "courier" {
		return false, nil
	}
	if profile.VehicleType == "" {
		warnings = append(warnings, "vehicle type not set")
	}
	if !profile.OnboardingCompleted {
		warnings = append(warnings, "onboarding not completed")
	}
	return true, warnings
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
