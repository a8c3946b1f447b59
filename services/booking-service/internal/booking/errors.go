package booking

import "errors"

// Every error here maps to a corrective action at the caller: re-pick a
// slot, re-check status, retry payment. None of them abort the service.
var (
	ErrInvalidRange     = errors.New("invalid time range")
	ErrOverlap          = errors.New("slot overlaps an existing slot")
	ErrSlotUnavailable  = errors.New("slot is not available")
	ErrSlotBooked       = errors.New("slot is booked")
	ErrNotFound         = errors.New("not found")
	ErrInvalidState     = errors.New("invalid state transition")
	ErrInvalidOperation = errors.New("operation not applicable to this appointment")
	ErrPaymentFailed    = errors.New("payment failed")
	ErrUnauthorized     = errors.New("not authorized for this appointment")
	ErrNotAccepting     = errors.New("nutritionist is not accepting patients")
)
