package consultation

import (
	"context"
	"errors"
	"sync"

	"github.com/nerrad567/consultease-core/internal/infrastructure/jsoncodec"
	"github.com/nerrad567/consultease-core/internal/infrastructure/mqtt"
)

type published struct {
	topic string
	value any
	qos   byte
}

// fakeBus records publishes and registrations.
type fakeBus struct {
	mu         sync.Mutex
	published  []published
	handlers   map[mqtt.HandlerID]mqtt.MessageHandler
	patterns   map[mqtt.HandlerID]string
	nextID     mqtt.HandlerID
	failTopics map[string]bool
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		handlers:   make(map[mqtt.HandlerID]mqtt.MessageHandler),
		patterns:   make(map[mqtt.HandlerID]string),
		failTopics: make(map[string]bool),
	}
}

var errFakePublish = errors.New("fake publish failure")

func (b *fakeBus) PublishContext(_ context.Context, topic string, value any, qos byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failTopics[topic] {
		return errFakePublish
	}
	b.published = append(b.published, published{topic: topic, value: value, qos: qos})
	return nil
}

func (b *fakeBus) RegisterHandler(pattern string, handler mqtt.MessageHandler) (mqtt.HandlerID, error) {
	if err := mqtt.ValidatePattern(pattern); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.handlers[b.nextID] = handler
	b.patterns[b.nextID] = pattern
	return b.nextID, nil
}

func (b *fakeBus) UnregisterHandler(id mqtt.HandlerID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, id)
	delete(b.patterns, id)
}

func (b *fakeBus) failOn(topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failTopics[topic] = true
}

func (b *fakeBus) on(topic string) []published {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []published
	for _, p := range b.published {
		if p.topic == topic {
			out = append(out, p)
		}
	}
	return out
}

func (b *fakeBus) registered() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, p := range b.patterns {
		out = append(out, p)
	}
	return out
}

// deliver routes a JSON message to every matching handler.
func (b *fakeBus) deliver(topic string, raw string) []error {
	b.mu.Lock()
	var targets []mqtt.MessageHandler
	for id, h := range b.handlers {
		if mqtt.Match(b.patterns[id], topic) {
			targets = append(targets, h)
		}
	}
	b.mu.Unlock()

	payload := jsonPayload(raw)
	var errs []error
	for _, h := range targets {
		if err := h.HandleMessage(topic, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// jsonPayload builds the Payload the bus would hand a handler.
func jsonPayload(raw string) mqtt.Payload {
	p := mqtt.Payload{Kind: mqtt.PayloadRaw, Raw: []byte(raw)}
	var v any
	if err := jsoncodec.Unmarshal([]byte(raw), &v); err == nil {
		p.Kind = mqtt.PayloadJSON
		p.Value = v
	}
	return p
}

type recordedEvent struct {
	facultyID      int
	event          string
	consultationID int
}

type fakeEvents struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (f *fakeEvents) WriteConsultationEvent(facultyID int, event string, consultationID int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{facultyID, event, consultationID})
}

func (f *fakeEvents) all() []recordedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedEvent(nil), f.events...)
}
