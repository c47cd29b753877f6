package permission

import (
	"context"
	"sync"
)

// State of the location permission.
type State string

const (
	StateUnknown State = "unknown"
	StateGranted State = "granted"
	// StateDeniedSoft may be re-requested in-app.
	StateDeniedSoft State = "denied_soft"
	// StateDeniedHard requires the user to change system settings; the
	// gate never prompts for it again.
	StateDeniedHard State = "denied_hard"
)

// Granted reports whether location services may start.
func (s State) Granted() bool { return s == StateGranted }

// CanRetry reports whether a request could still change the outcome.
func (s State) CanRetry() bool { return s == StateUnknown || s == StateDeniedSoft }

// Provider is the platform permission store. Both calls are asynchronous;
// the gate guarantees they are never double-prompted.
type Provider interface {
	CheckPermission(ctx context.Context) (State, error)
	RequestPermission(ctx context.Context) (State, error)
}

// Gate serializes permission prompts for a process. Concurrent Request
// calls never trigger multiple OS dialogs: the second caller waits for the
// first prompt and observes its result.
type Gate struct {
	provider Provider
	mu       sync.Mutex
}

func NewGate(provider Provider) *Gate {
	return &Gate{provider: provider}
}

// Check queries the permission store without mutating anything. Fails
// closed: a query error reports a hard denial.
func (g *Gate) Check(ctx context.Context) State {
	st, err := g.provider.CheckPermission(ctx)
	if err != nil {
		return StateDeniedHard
	}
	return st
}

// Request prompts for location permission at most once per call chain.
// Already-granted and hard-denied states return without prompting.
func (g *Gate) Request(ctx context.Context) (State, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	st, err := g.provider.CheckPermission(ctx)
	if err != nil {
		return StateDeniedHard, err
	}
	switch st {
	case StateGranted:
		return StateGranted, nil
	case StateDeniedHard:
		// Prompting again cannot succeed and only irritates the user.
		return StateDeniedHard, nil
	}

	st, err = g.provider.RequestPermission(ctx)
	if err != nil {
		return StateDeniedHard, err
	}
	return st, nil
}
