package consultation

import "errors"

// Domain errors for consultation payloads and routing.
var (
	ErrInvalidRequest      = errors.New("consultation: invalid request")
	ErrMalformedRequest    = errors.New("consultation: malformed request line")
	ErrInvalidResponse     = errors.New("consultation: invalid faculty response")
	ErrInvalidCancellation = errors.New("consultation: invalid cancellation")
	ErrInvalidFaculty      = errors.New("consultation: invalid faculty id")
	ErrWrongFaculty        = errors.New("consultation: response from wrong faculty")

	// ErrNotDelivered wraps a publish failure so callers can tell a rejected
	// payload from an unreachable broker.
	ErrNotDelivered = errors.New("consultation: not delivered")
)
