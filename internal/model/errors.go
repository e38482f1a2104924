package model

import "errors"

// Recoverable outcomes callers branch on as normal control flow.
var (
	// ErrNotFound means a referenced master/client/service/appointment
	// does not exist or is out of the caller's scope.
	ErrNotFound = errors.New("not found")

	// ErrConflict means the requested interval is no longer free at
	// commit time. The caller should refresh slots and re-prompt.
	ErrConflict = errors.New("conflict")

	// ErrQuotaExceeded means a free-tier limit blocks the operation.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrInvalidTransition means the appointment's current status does
	// not permit the requested change.
	ErrInvalidTransition = errors.New("invalid status transition")
)
