package service

import (
	"errors"

	"github.com/finovahq/expense-claims/internal/application/port"
)

// Error kinds surfaced by the core services. The API layer maps these to
// client-facing responses; the services only distinguish kind and message.
var (
	// ErrValidation marks missing or malformed caller input
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks a missing claim, approval, budget, or user, including
	// approvals that do not belong to the acting user or are already resolved
	ErrNotFound = errors.New("not found")

	// ErrStateConflict marks an operation illegal in the claim's current state,
	// including double-approval race losers
	ErrStateConflict = errors.New("state conflict")

	// ErrPolicyResolution marks a submission for which no approval policy
	// matches or an approval level cannot be staffed
	ErrPolicyResolution = errors.New("policy resolution error")
)

// IsNotFound reports whether the error is a not-found from either the service
// taxonomy or the storage layer
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, port.ErrNotFound)
}
