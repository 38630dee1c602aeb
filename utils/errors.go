package utils

import "errors"

// Enrollment and transition errors surfaced to the API layer. All per-message
// delivery failures stay inside the processor and never use these.
var (
	ErrNotFound               = errors.New("record not found")
	ErrDuplicateEnrollment    = errors.New("contact already enrolled in this sequence")
	ErrUnsubscribed           = errors.New("contact has unsubscribed from communications")
	ErrInvalidStateTransition = errors.New("invalid enrollment state transition")
	ErrEnrollmentLimit        = errors.New("sequence enrollment limit reached")
	ErrNoContact              = errors.New("enrollment must reference exactly one contact")
)
