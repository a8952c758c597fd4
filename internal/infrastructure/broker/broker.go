// Package broker runs an in-process MQTT broker for development and tests.
//
// In production the central system connects to an external broker; with
// embedded_broker.enabled the same binary can run stand-alone on a laptop with
// desk-unit simulators pointed at it.
package broker

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"

	"github.com/nerrad567/consultease-core/internal/infrastructure/config"
)

const (
	listenerID   = "consultease-tcp"
	readyTimeout = 3 * time.Second
)

// ErrNotReady is returned when the server does not finish starting in time.
var ErrNotReady = errors.New("broker: listener not ready")

// Broker is an embedded MQTT broker accepting anonymous clients on one TCP listener.
type Broker struct {
	server *mochi.Server
	addr   string
}

// Start creates the broker, binds its listener and waits until the server
// has started serving. A nil logger discards broker logs.
func Start(cfg config.EmbeddedBrokerConfig, logger *slog.Logger) (*Broker, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("broker: address is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	server := mochi.New(&mochi.Options{
		InlineClient: true,
		Logger:       logger,
	})

	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		return nil, fmt.Errorf("broker: hook: %w", err)
	}
	started := newStartedHook()
	if err := server.AddHook(started, nil); err != nil {
		return nil, fmt.Errorf("broker: hook: %w", err)
	}
	if err := server.AddListener(listeners.NewTCP(listeners.Config{
		ID:      listenerID,
		Address: cfg.Address,
	})); err != nil {
		return nil, fmt.Errorf("broker: listener %s: %w", cfg.Address, err)
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := server.Serve(); err != nil {
			logger.Error("embedded broker stopped", "error", err)
			serveErr <- err
		}
	}()

	// Close must not run while Serve is still starting the listeners, and a
	// probe connection could still be attaching when Close runs. OnStarted
	// covers both.
	select {
	case <-started.done:
	case err := <-serveErr:
		_ = server.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrNotReady, cfg.Address, err)
	case <-time.After(readyTimeout):
		_ = server.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotReady, cfg.Address)
	}

	return &Broker{server: server, addr: cfg.Address}, nil
}

// startedHook closes done once the server has started every listener.
type startedHook struct {
	mochi.HookBase
	done chan struct{}
	once sync.Once
}

func newStartedHook() *startedHook {
	return &startedHook{done: make(chan struct{})}
}

func (h *startedHook) ID() string {
	return "consultease-started"
}

func (h *startedHook) Provides(b byte) bool {
	return b == mochi.OnStarted
}

func (h *startedHook) OnStarted() {
	h.once.Do(func() { close(h.done) })
}

// Addr returns the listener address.
func (b *Broker) Addr() string {
	return b.addr
}

// ConnectedClients returns the number of network clients known to the
// broker. The inline client is not counted.
func (b *Broker) ConnectedClients() int {
	return b.server.Clients.Len() - 1
}

// Publish injects a message as if a client had published it.
func (b *Broker) Publish(topic string, payload []byte, retain bool, qos byte) error {
	return b.server.Publish(topic, payload, retain, qos)
}

// Subscribe registers an inline subscriber. id must be unique per filter.
func (b *Broker) Subscribe(filter string, id int, fn func(topic string, payload []byte)) error {
	return b.server.Subscribe(filter, id, func(_ *mochi.Client, _ packets.Subscription, pk packets.Packet) {
		fn(pk.TopicName, pk.Payload)
	})
}

// Close stops the listener and disconnects every client.
func (b *Broker) Close() error {
	return b.server.Close()
}
