package mqtt

import (
	"context"
	"fmt"

	"github.com/nerrad567/consultease-core/internal/infrastructure/config"
	"github.com/nerrad567/consultease-core/internal/infrastructure/jsoncodec"
)

// Maximum payload size for bus messages (1MB).
// This prevents resource exhaustion and aligns with typical broker limits.
const maxPayloadSize = 1 << 20

// Publish sends value to topic at the given QoS and returns nil once the
// message is accepted.
//
// Encoding:
//   - []byte and string are sent unchanged (the consultation request line is plain text)
//   - nil is sent as an empty payload
//   - anything else is JSON-encoded
//
// What "accepted" means depends on mqtt.publish.ack_policy: "broker" waits up to
// mqtt.publish.timeout for the QoS handshake (PUBACK/PUBCOMP); "handoff"
// returns once the message is queued on the connection.
//
// Errors:
//   - ErrInvalidTopic, ErrInvalidQoS, ErrEncodeFailed, ErrPayloadTooLarge:
//     rejected before reaching the transport, counters unchanged
//   - ErrNotConnected: the service is not Connected, counters unchanged
//   - ErrPublishFailed: the transport failed or timed out; PublishFailures++
//
// Example:
//
//	err := bus.Publish(mqtt.Topics{}.FacultyCancellations(3), cancellation, 1)
func (s *Service) Publish(topic string, value any, qos byte) error {
	return s.PublishContext(context.Background(), topic, value, qos)
}

// PublishRetained publishes a retained message at the configured default QoS.
//
// Use for state topics where new subscribers should see the latest value.
func (s *Service) PublishRetained(topic string, value any) error {
	return s.publish(context.Background(), topic, value, byte(s.cfg.QoS), true)
}

// PublishContext is Publish with a caller-supplied context. The configured
// publish timeout still applies.
func (s *Service) PublishContext(ctx context.Context, topic string, value any, qos byte) error {
	return s.publish(ctx, topic, value, qos, false)
}

func (s *Service) publish(ctx context.Context, topic string, value any, qos byte, retained bool) error {
	if err := ValidateTopic(topic); err != nil {
		return err
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}

	payload, err := encodePayload(value)
	if err != nil {
		return err
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPayloadTooLarge, len(payload), maxPayloadSize)
	}

	if s.state.load() != StateConnected {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, durationOr(s.cfg.Publish.Timeout, defaultPublishTimeout))
	defer cancel()

	awaitAck := s.cfg.Publish.AckPolicy != config.AckPolicyHandoff
	if err := s.transport.Publish(ctx, topic, qos, retained, payload, awaitAck); err != nil {
		s.counters.publishFailures.Add(1)
		s.getLogger().Warn("MQTT publish failed",
			"topic", topic,
			"qos", qos,
			"error", err,
		)
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}

	s.counters.published.Add(1)
	return nil
}

// encodePayload converts a publish value to wire bytes.
func encodePayload(value any) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return []byte{}, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		b, err := jsoncodec.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %T: %w", ErrEncodeFailed, value, err)
		}
		return b, nil
	}
}
