package mqtt

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/consultease-core/internal/infrastructure/config"
)

type fakePublish struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
	awaitAck bool
}

// fakeTransport records every call and lets tests script connect results,
// inject inbound messages and simulate connection loss.
type fakeTransport struct {
	mu           sync.Mutex
	events       transportEvents
	connected    bool
	connectCalls int
	connectErrs  []error
	failAlways   error
	connectGate  chan struct{}
	subscribes   []string
	unsubscribes []string
	published    []fakePublish
	publishErr   error
	subscribeErr error
	disconnects  int
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	f.mu.Lock()
	f.connectCalls++
	var err error
	switch {
	case len(f.connectErrs) > 0:
		err = f.connectErrs[0]
		f.connectErrs = f.connectErrs[1:]
	case f.failAlways != nil:
		err = f.failAlways
	}
	gate := f.connectGate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Disconnect(time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	f.connected = false
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) Subscribe(_ context.Context, pattern string, _ byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribes = append(f.subscribes, pattern)
	return f.subscribeErr
}

func (f *fakeTransport) Unsubscribe(_ context.Context, pattern string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribes = append(f.unsubscribes, pattern)
	return nil
}

func (f *fakeTransport) Publish(_ context.Context, topic string, qos byte, retained bool, payload []byte, awaitAck bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, fakePublish{
		topic:    topic,
		qos:      qos,
		retained: retained,
		payload:  append([]byte(nil), payload...),
		awaitAck: awaitAck,
	})
	if topic == (Topics{}).SystemStatus() {
		return nil
	}
	return f.publishErr
}

// deliver simulates an inbound message from the broker.
func (f *fakeTransport) deliver(topic, payload string) {
	f.mu.Lock()
	ev := f.events
	f.mu.Unlock()
	ev.onMessage(inboundMessage{topic: topic, payload: []byte(payload), qos: 1, receivedAt: time.Now()})
}

// drop simulates the broker link going away.
func (f *fakeTransport) drop(err error) {
	f.mu.Lock()
	f.connected = false
	ev := f.events
	f.mu.Unlock()
	ev.onConnectionLost(err)
}

func (f *fakeTransport) setPublishErr(err error) {
	f.mu.Lock()
	f.publishErr = err
	f.mu.Unlock()
}

func (f *fakeTransport) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connectCalls
}

func (f *fakeTransport) subscribed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.subscribes...)
}

func (f *fakeTransport) unsubscribed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.unsubscribes...)
}

// publishedTo returns the recorded publishes for topic.
func (f *fakeTransport) publishedTo(topic string) []fakePublish {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []fakePublish
	for _, p := range f.published {
		if p.topic == topic {
			out = append(out, p)
		}
	}
	return out
}

func (f *fakeTransport) disconnectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnects
}

// testConfig returns bus settings with short delays for unit tests.
func testConfig() config.MQTTConfig {
	cfg := config.DefaultMQTT()
	cfg.Broker.Host = "127.0.0.1"
	cfg.Broker.Port = 1883
	cfg.Broker.ClientID = "consultease-test"
	cfg.ConnectTimeout = time.Second
	cfg.Reconnect = config.MQTTReconnectConfig{
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     50 * time.Millisecond,
		Multiplier:   2,
		Jitter:       0,
	}
	cfg.Publish.Timeout = time.Second
	cfg.Dispatch.QueueSize = 16
	return cfg
}

// newFakeService returns a service wired to ft. It is stopped on cleanup.
func newFakeService(t *testing.T, ft *fakeTransport, mutate ...func(*config.MQTTConfig)) *Service {
	t.Helper()

	cfg := testConfig()
	for _, m := range mutate {
		m(&cfg)
	}

	s := New(cfg)
	s.newTransport = func(_ config.MQTTConfig, ev transportEvents) transport {
		ft.mu.Lock()
		ft.events = ev
		ft.mu.Unlock()
		return ft
	}
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

func startFakeService(t *testing.T, ft *fakeTransport, mutate ...func(*config.MQTTConfig)) *Service {
	t.Helper()

	s := newFakeService(t, ft, mutate...)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return s
}

func waitUntil(t *testing.T, timeout time.Duration, check func() bool, failMsg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(failMsg)
}

func waitConnected(t *testing.T, s *Service) {
	t.Helper()
	waitUntil(t, 2*time.Second, s.IsConnected, "service did not reach Connected")
}
