package apperr

import (
	"errors"
	"fmt"
)

// Sentinel errors for the coordinator core. Callers branch with errors.Is.
var (
	// ErrInvalidCoordinate reports a latitude outside [-90,90] or a
	// longitude outside [-180,180].
	ErrInvalidCoordinate = errors.New("invalid coordinate")

	// ErrAlreadyTaken is returned to a courier that lost an acceptance
	// race. Expected outcome, not a fault: the client removes the job
	// from its list.
	ErrAlreadyTaken = errors.New("job already taken")

	// ErrInvalidTransition reports a transition not present in the
	// lifecycle table (wrong source status or skipped state).
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrForbidden reports an actor not authorized for the transition.
	ErrForbidden = errors.New("forbidden")

	// ErrProfileInvalid is a hard initialization failure; retrying
	// cannot change the outcome.
	ErrProfileInvalid = errors.New("profile invalid")

	ErrNotFound     = errors.New("not found")
	ErrTimeout      = errors.New("timeout")
	ErrDisconnected = errors.New("disconnected")
)

// PermissionError reports a denied location permission. Hard denials
// require the user to change system settings; soft denials may be
// re-requested.
type PermissionError struct {
	Hard bool
}

func (e *PermissionError) Error() string {
	if e.Hard {
		return "location permission denied: enable it in system settings"
	}
	return "location permission denied"
}

// IsPermissionDenied reports whether err is a permission denial and, if so,
// whether it is a hard one.
func IsPermissionDenied(err error) (hard, ok bool) {
	var pe *PermissionError
	if errors.As(err, &pe) {
		return pe.Hard, true
	}
	return false, false
}

// Retryable reports whether err is transient and worth retrying with
// backoff. Programming and authorization errors are excluded, as are
// permission denials, which need user action rather than retries.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrDisconnected):
		return true
	default:
		return false
	}
}

// Wrap annotates err with the operation name, preserving errors.Is/As.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}
