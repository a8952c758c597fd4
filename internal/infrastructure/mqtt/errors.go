package mqtt

import "errors"

// Domain-specific errors for message bus operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when publishing while the bus is not Connected.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed wraps a failed transport connection attempt.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed is returned when the transport rejects or times out a publish.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed is returned when a subscribe operation fails.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrUnsubscribeFailed is returned when an unsubscribe operation fails.
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidQoS is returned when an invalid QoS level is specified.
	// Valid QoS levels are 0, 1, or 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic is returned for an empty publish topic or one containing wildcards.
	ErrInvalidTopic = errors.New("mqtt: invalid topic")

	// ErrInvalidPattern is returned when a subscription pattern is malformed.
	ErrInvalidPattern = errors.New("mqtt: invalid subscription pattern")

	// ErrInvalidHandler is returned when registering a nil handler.
	ErrInvalidHandler = errors.New("mqtt: handler cannot be nil")

	// ErrInvalidConfig is returned by Start when the broker endpoint is unusable.
	ErrInvalidConfig = errors.New("mqtt: invalid configuration")

	// ErrEncodeFailed is returned when a publish value cannot be serialised.
	ErrEncodeFailed = errors.New("mqtt: payload encoding failed")

	// ErrPayloadTooLarge is returned when an encoded payload exceeds maxPayloadSize.
	ErrPayloadTooLarge = errors.New("mqtt: payload too large")

	// ErrTimeout is returned when an operation times out.
	ErrTimeout = errors.New("mqtt: operation timed out")

	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("mqtt: service already started")

	// ErrNotStarted is returned by Connect before Start.
	ErrNotStarted = errors.New("mqtt: service not started")

	// ErrStopped is returned by lifecycle calls after Stop.
	ErrStopped = errors.New("mqtt: service stopped")
)
