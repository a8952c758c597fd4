package mqtt

import (
	"context"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/consultease-core/internal/infrastructure/config"
)

// inboundMessage is a message as received from the transport, before decoding.
type inboundMessage struct {
	topic      string
	payload    []byte
	qos        byte
	retained   bool
	duplicate  bool
	receivedAt time.Time
}

// transportEvents are the callbacks a transport raises into the service.
// Both may be called from transport-owned goroutines.
type transportEvents struct {
	onMessage        func(msg inboundMessage)
	onConnectionLost func(err error)
}

// transport is the broker connection the service drives.
// The paho implementation is used in production; tests substitute a fake.
type transport interface {
	// Connect makes one connection attempt. It does not retry.
	Connect(ctx context.Context) error
	Disconnect(quiesce time.Duration)
	IsConnected() bool
	Subscribe(ctx context.Context, pattern string, qos byte) error
	Unsubscribe(ctx context.Context, pattern string) error
	// Publish hands a message to the broker connection. With awaitAck it waits
	// for the QoS handshake to complete (or ctx to end); otherwise it returns
	// once the message is queued, reporting only errors already known.
	Publish(ctx context.Context, topic string, qos byte, retained bool, payload []byte, awaitAck bool) error
}

type transportFactory func(cfg config.MQTTConfig, events transportEvents) transport

// pahoTransport adapts paho.mqtt.golang to transport.
type pahoTransport struct {
	client pahomqtt.Client
}

func newPahoTransport(cfg config.MQTTConfig, events transportEvents) transport {
	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg.Broker.ClientID)

	opts.SetDefaultPublishHandler(func(_ pahomqtt.Client, msg pahomqtt.Message) {
		events.onMessage(inboundMessage{
			topic:      msg.Topic(),
			payload:    msg.Payload(),
			qos:        msg.Qos(),
			retained:   msg.Retained(),
			duplicate:  msg.Duplicate(),
			receivedAt: time.Now(),
		})
	})

	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		events.onConnectionLost(err)
	})

	return &pahoTransport{client: pahomqtt.NewClient(opts)}
}

func (p *pahoTransport) Connect(ctx context.Context) error {
	token := p.client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
		}
		return nil
	case <-ctx.Done():
		// The attempt is abandoned; close it if it still completes.
		go func() {
			<-token.Done()
			if token.Error() == nil {
				p.client.Disconnect(0)
			}
		}()
		return fmt.Errorf("%w: %w", ErrConnectionFailed, ctx.Err())
	}
}

func (p *pahoTransport) Disconnect(quiesce time.Duration) {
	if !p.client.IsConnectionOpen() {
		return
	}
	p.client.Disconnect(uint(quiesce.Milliseconds()))
}

func (p *pahoTransport) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

func (p *pahoTransport) Subscribe(ctx context.Context, pattern string, qos byte) error {
	// nil callback: deliveries go to the default publish handler.
	if err := waitToken(ctx, p.client.Subscribe(pattern, qos, nil)); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, pattern, err)
	}
	return nil
}

func (p *pahoTransport) Unsubscribe(ctx context.Context, pattern string) error {
	if err := waitToken(ctx, p.client.Unsubscribe(pattern)); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUnsubscribeFailed, pattern, err)
	}
	return nil
}

func (p *pahoTransport) Publish(ctx context.Context, topic string, qos byte, retained bool, payload []byte, awaitAck bool) error {
	token := p.client.Publish(topic, qos, retained, payload)
	if !awaitAck {
		select {
		case <-token.Done():
			return token.Error()
		default:
			return nil
		}
	}
	return waitToken(ctx, token)
}

// waitToken waits for a paho token or for ctx to end, whichever comes first.
func waitToken(ctx context.Context, token pahomqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return ErrTimeout
		}
		return ctx.Err()
	}
}
