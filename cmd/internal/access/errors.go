package access

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the target resource does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrForbidden is the base error for every denial. Match with errors.Is;
	// the concrete DeniedError carries the reason.
	ErrForbidden = errors.New("access denied")
)

// Denial reasons.
const (
	ReasonNotShared    = "not_shared"
	ReasonInsufficient = "insufficient_permission"
	ReasonOwnerOnly    = "owner_only"
	ReasonLabelOwner   = "label_not_owned"
)

// DeniedError describes why access was denied. Unwraps to ErrForbidden.
type DeniedError struct {
	Resource string
	ID       string
	Reason   string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("access denied: %s %s: %s", e.Resource, e.ID, e.Reason)
}

func (e *DeniedError) Unwrap() error { return ErrForbidden }

func denied(resource, id, reason string) error {
	return &DeniedError{Resource: resource, ID: id, Reason: reason}
}
