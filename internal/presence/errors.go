package presence

import "errors"

var (
	// ErrNotFound means no presence has been recorded for the faculty member.
	ErrNotFound = errors.New("presence: faculty not found")

	// ErrUnsupportedTopic means the topic is not a status, mac_status or
	// heartbeat channel.
	ErrUnsupportedTopic = errors.New("presence: unsupported topic")

	// ErrInvalidPayload means the payload has the wrong shape for its channel.
	ErrInvalidPayload = errors.New("presence: invalid payload")

	// ErrUndetermined means the payload named no recognisable availability.
	ErrUndetermined = errors.New("presence: availability undetermined")
)
