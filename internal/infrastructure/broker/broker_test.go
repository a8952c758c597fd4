package broker

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/nerrad567/consultease-core/internal/infrastructure/config"
)

func reserveTCPAddr(t *testing.T) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve listen addr: %v", err)
	}
	addr := l.Addr().String()
	if err := l.Close(); err != nil {
		t.Fatalf("close reserved listener: %v", err)
	}
	return addr
}

// mqttConnect is a minimal MQTT 3.1.1 CONNECT for client id "test".
var mqttConnect = []byte{
	0x10, 0x10,
	0x00, 0x04, 'M', 'Q', 'T', 'T', 0x04, 0x02, 0x00, 0x3c,
	0x00, 0x04, 't', 'e', 's', 't',
}

// waitClients polls until the broker has registered n clients. Reading the
// client registry also orders the test after the server's connection setup.
func waitClients(t *testing.T, b *Broker, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if b.ConnectedClients() == n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("ConnectedClients() = %d, want %d", b.ConnectedClients(), n)
}

func TestStart_AcceptsConnections(t *testing.T) {
	addr := reserveTCPAddr(t)

	b, err := Start(config.EmbeddedBrokerConfig{Enabled: true, Address: addr}, nil)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer func() { _ = b.Close() }()

	if b.Addr() != addr {
		t.Errorf("Addr() = %q, want %q", b.Addr(), addr)
	}
	if got := b.ConnectedClients(); got != 0 {
		t.Errorf("ConnectedClients() = %d before any connection, want 0", got)
	}

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("dial broker: %v", err)
	}
	defer func() { _ = conn.Close() }()

	if _, err := conn.Write(mqttConnect); err != nil {
		t.Fatalf("write CONNECT: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	ack := make([]byte, 4)
	if _, err := io.ReadFull(conn, ack); err != nil {
		t.Fatalf("read CONNACK: %v", err)
	}
	if ack[0] != 0x20 || ack[3] != 0x00 {
		t.Errorf("CONNACK = % x, want accepted", ack)
	}

	waitClients(t, b, 1)
}

func TestStart_CloseRightAfterStart(t *testing.T) {
	for i := 0; i < 5; i++ {
		b, err := Start(config.EmbeddedBrokerConfig{Enabled: true, Address: reserveTCPAddr(t)}, nil)
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if err := b.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
	}
}

func TestStart_AddressInUse(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer func() { _ = l.Close() }()

	if _, err := Start(config.EmbeddedBrokerConfig{Enabled: true, Address: l.Addr().String()}, nil); err == nil {
		t.Fatal("Start() expected error for an address already in use")
	}
}

func TestStart_EmptyAddress(t *testing.T) {
	if _, err := Start(config.EmbeddedBrokerConfig{Enabled: true}, nil); err == nil {
		t.Fatal("Start() expected error for empty address")
	}
}

func TestPublishSubscribeInline(t *testing.T) {
	b, err := Start(config.EmbeddedBrokerConfig{Enabled: true, Address: reserveTCPAddr(t)}, nil)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer func() { _ = b.Close() }()

	type msg struct {
		topic   string
		payload string
	}
	got := make(chan msg, 1)
	if err := b.Subscribe("consultease/faculty/+/status", 1, func(topic string, payload []byte) {
		got <- msg{topic: topic, payload: string(payload)}
	}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if err := b.Publish("consultease/faculty/2/status", []byte(`{"status":"AVAILABLE"}`), false, 0); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case m := <-got:
		if m.topic != "consultease/faculty/2/status" {
			t.Errorf("topic = %q", m.topic)
		}
		if m.payload != `{"status":"AVAILABLE"}` {
			t.Errorf("payload = %q", m.payload)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("inline subscriber did not receive message")
	}
}
