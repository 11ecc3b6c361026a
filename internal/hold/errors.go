package hold

import "errors"

var (
	// ErrSlotTaken means another active hold or confirmed appointment owns the slot.
	ErrSlotTaken = errors.New("hold: slot taken")
	// ErrHoldNotFound is returned for unknown hold ids (always tenant-scoped lookups).
	ErrHoldNotFound = errors.New("hold: not found")
	// ErrHoldExpired is returned when an operation hits a hold past its TTL.
	ErrHoldExpired = errors.New("hold: expired")
	// ErrInvalidTransition guards the per-hold state machine.
	ErrInvalidTransition = errors.New("hold: invalid status transition")
)
