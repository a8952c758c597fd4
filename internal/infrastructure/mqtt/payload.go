package mqtt

import (
	"bytes"
	"fmt"
	"time"

	"github.com/nerrad567/consultease-core/internal/infrastructure/jsoncodec"
)

// PayloadKind tags how an inbound payload was decoded.
type PayloadKind int

const (
	// PayloadRaw means the bytes were not valid JSON. Only Raw is set.
	PayloadRaw PayloadKind = iota
	// PayloadJSON means the bytes decoded as JSON. Value holds the result
	// (map[string]any, []any, string, float64, bool or nil).
	PayloadJSON
)

func (k PayloadKind) String() string {
	if k == PayloadJSON {
		return "json"
	}
	return "raw"
}

// Payload is what handlers receive for each inbound message.
//
// Raw always carries the original bytes, whatever the Kind. Handlers that expect a
// fixed shape should call Decode rather than walk Value.
type Payload struct {
	Kind       PayloadKind
	Raw        []byte
	Value      any
	QoS        byte
	Retained   bool
	Duplicate  bool
	ReceivedAt time.Time
}

// decodePayload tries JSON first and falls back to raw bytes.
// A decode failure never loses the message.
func decodePayload(msg inboundMessage) Payload {
	p := Payload{
		Kind:       PayloadRaw,
		Raw:        msg.payload,
		QoS:        msg.qos,
		Retained:   msg.retained,
		Duplicate:  msg.duplicate,
		ReceivedAt: msg.receivedAt,
	}

	trimmed := bytes.TrimSpace(msg.payload)
	if len(trimmed) == 0 {
		return p
	}

	var v any
	if err := jsoncodec.Unmarshal(trimmed, &v); err == nil {
		p.Kind = PayloadJSON
		p.Value = v
	}
	return p
}

// IsJSON reports whether the payload decoded as JSON.
func (p Payload) IsJSON() bool {
	return p.Kind == PayloadJSON
}

// Map returns the payload as a JSON object, if it is one.
func (p Payload) Map() (map[string]any, bool) {
	if p.Kind != PayloadJSON {
		return nil, false
	}
	m, ok := p.Value.(map[string]any)
	return m, ok
}

// Decode unmarshals the raw bytes into v.
func (p Payload) Decode(v any) error {
	if p.Kind != PayloadJSON {
		return fmt.Errorf("payload is not JSON")
	}
	return jsoncodec.Unmarshal(p.Raw, v)
}

// String returns the raw payload as text.
func (p Payload) String() string {
	return string(p.Raw)
}

// MessageHandler receives messages whose topic matches the pattern it was
// registered under.
//
// Handlers run one at a time on the dispatch goroutine, in registration order.
// A returned error or a panic is logged and counted; it does not affect other
// handlers or later messages. Handlers must not call Service.Stop.
type MessageHandler interface {
	HandleMessage(topic string, payload Payload) error
}

// HandlerFunc adapts a function to MessageHandler.
type HandlerFunc func(topic string, payload Payload) error

// HandleMessage calls f(topic, payload).
func (f HandlerFunc) HandleMessage(topic string, payload Payload) error {
	return f(topic, payload)
}
