package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotReady marks a guarded phase transition whose precondition does
	// not hold yet. Recoverable: the operator completes the prerequisite.
	ErrNotReady = errors.New("phase not ready")
	// ErrOperation marks a host-executed algorithm failure. Recoverable:
	// the operator may retry the phase.
	ErrOperation = errors.New("operation failed")
	// ErrTimeout marks a host operation that produced no result artifact
	// within its configured window. Recoverable: extend, retry, or abort.
	ErrTimeout = errors.New("operation timed out")
	// ErrBusy marks an attempt to start a second interactive extraction
	// while one is already running in the same set.
	ErrBusy = errors.New("extraction already running")
	// ErrAlreadyComplete marks an attempt to add a job for a vessel index
	// that already holds a completed result.
	ErrAlreadyComplete = errors.New("vessel already has a completed centerline")
	// ErrLeakGuard marks incomplete cleanup of phase-owned scene entities.
	// Non-fatal: orchestration continues but the condition is flagged.
	ErrLeakGuard = errors.New("cleanup incomplete")
	// ErrInvariant marks internal state corruption. Fatal to the affected
	// job or session; sibling state must remain intact.
	ErrInvariant = errors.New("invariant violation")

	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
)

// Wrap builds an error message that includes phase context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, phase, operation, message string, err error) error {
	detail := buildDetail(phase, operation, message)
	if marker == nil {
		marker = ErrOperation
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Blocking reports whether an error must halt the current workflow action.
// Cosmetic scene failures and leak-guard conditions are surfaced as warnings
// only; everything else blocks.
func Blocking(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrLeakGuard)
}

func buildDetail(phase, operation, message string) string {
	parts := make([]string, 0, 3)
	if phase = strings.TrimSpace(phase); phase != "" {
		parts = append(parts, phase)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "workflow failure"
	}
	return strings.Join(parts, ": ")
}
