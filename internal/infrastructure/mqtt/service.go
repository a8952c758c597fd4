package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/consultease-core/internal/infrastructure/config"
)

// Logger is the logging interface the service writes to.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Service is the ConsultEase message bus client.
//
// It owns one broker connection, reconnects with bounded exponential backoff,
// routes inbound messages to handlers registered by topic pattern, and publishes
// with delivery accounting.
//
// Two goroutines run between Start and Stop: a supervisor that owns the
// connection lifecycle and a dispatcher that invokes handlers one message at a time.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Stop must not be called from inside a MessageHandler.
type Service struct {
	cfg          config.MQTTConfig
	newTransport transportFactory
	transport    transport

	registry *registry
	state    stateMachine
	counters counters
	conn     connInfo

	inbound    chan inboundMessage
	lost       chan error
	connectReq chan struct{}

	// subMu serialises broker subscribe/unsubscribe with resubscribeAll.
	subMu sync.Mutex

	lifecycleMu sync.Mutex
	started     bool
	stopOnce    sync.Once
	stopping    chan struct{}
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup

	onConnect    func()
	onDisconnect func(err error)
	callbackMu   sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex
}

// New creates a bus service for the given broker settings.
// Nothing touches the network until Start.
func New(cfg config.MQTTConfig) *Service {
	queueSize := cfg.Dispatch.QueueSize
	if queueSize < 1 {
		queueSize = defaultQueueSize
	}

	return &Service{
		cfg:          cfg,
		newTransport: newPahoTransport,
		registry:     newRegistry(),
		inbound:      make(chan inboundMessage, queueSize),
		lost:         make(chan error, 1),
		connectReq:   make(chan struct{}, 1),
		stopping:     make(chan struct{}),
		logger:       noopLogger{},
	}
}

// Start validates the broker endpoint, launches the supervisor and dispatch
// goroutines and requests the first connection. It does not wait for the
// connection to come up; use IsConnected or SetOnConnect for that.
//
// The service keeps running until Stop. Values from ctx are kept but its
// cancellation is not propagated.
func (s *Service) Start(ctx context.Context) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.state.load() == StateStopped {
		return ErrStopped
	}
	if s.started {
		return ErrAlreadyStarted
	}
	if err := s.cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.transport = s.newTransport(s.cfg, transportEvents{
		onMessage:        s.enqueue,
		onConnectionLost: s.connectionLost,
	})
	s.started = true

	s.wg.Add(2)
	go s.dispatchLoop()
	go s.superviseConnection()

	s.requestConnect()

	s.getLogger().Info("MQTT service started",
		"broker", s.cfg.BrokerURL(),
		"client_id", s.cfg.Broker.ClientID,
	)
	return nil
}

// Connect asks the supervisor to connect now. It returns immediately.
//
// While reconnecting it cuts the current backoff delay short; while connected
// it has no effect.
func (s *Service) Connect() error {
	if s.state.load() == StateStopped {
		return ErrStopped
	}

	s.lifecycleMu.Lock()
	started := s.started
	s.lifecycleMu.Unlock()
	if !started {
		return ErrNotStarted
	}

	s.requestConnect()
	return nil
}

func (s *Service) requestConnect() {
	select {
	case s.connectReq <- struct{}{}:
	default:
	}
}

// Stop shuts the service down. It is idempotent and safe to call before Start.
//
// On return the state is Stopped, both goroutines have exited, the graceful
// offline status has been published if the broker was reachable, and the
// transport is closed. A handler already running is allowed to finish; no
// further message is dispatched.
func (s *Service) Stop() error {
	s.stopOnce.Do(s.shutdown)
	return nil
}

func (s *Service) shutdown() {
	s.lifecycleMu.Lock()
	close(s.stopping)
	s.state.transition(StateStopped)
	started := s.started
	s.lifecycleMu.Unlock()

	if !started {
		return
	}

	// Deferred so the transport is closed even if an earlier step panics.
	defer s.getLogger().Info("MQTT service stopped")
	defer s.transport.Disconnect(defaultDisconnectQuiesce)
	defer s.publishOfflineStatus()
	defer s.wg.Wait()

	s.cancel()
}

// IsConnected reports whether the service is in the Connected state.
// It never blocks.
func (s *Service) IsConnected() bool {
	return s.state.load() == StateConnected
}

// State returns the current connection state.
func (s *Service) State() State {
	return s.state.load()
}

// HealthCheck returns nil when the bus is connected.
func (s *Service) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	switch s.state.load() {
	case StateConnected:
		return nil
	case StateStopped:
		return ErrStopped
	default:
		return ErrNotConnected
	}
}

// RegisterHandler adds handler for every topic matching pattern and returns an
// ID for UnregisterHandler. Several handlers may share a pattern; they run in
// registration order.
//
// It fails only for a malformed pattern or a nil handler. When connected, the
// first handler for a pattern subscribes it at the broker; if that fails the
// pattern is retried on the next reconnect.
func (s *Service) RegisterHandler(pattern string, handler MessageHandler) (HandlerID, error) {
	if err := ValidatePattern(pattern); err != nil {
		return 0, err
	}
	if handler == nil {
		return 0, ErrInvalidHandler
	}

	id, first := s.registry.register(pattern, handler)
	if first && s.state.load() == StateConnected {
		s.subscribePattern(pattern)
	}

	s.getLogger().Debug("MQTT handler registered", "pattern", pattern, "handler_id", id)
	return id, nil
}

// RegisterHandlerFunc is RegisterHandler for a plain function.
func (s *Service) RegisterHandlerFunc(pattern string, fn func(topic string, payload Payload) error) (HandlerID, error) {
	if fn == nil {
		return 0, ErrInvalidHandler
	}
	return s.RegisterHandler(pattern, HandlerFunc(fn))
}

// UnregisterHandler removes a registration. Unknown IDs are ignored.
// Removing the last handler of a pattern unsubscribes it when connected.
func (s *Service) UnregisterHandler(id HandlerID) {
	pattern, last, found := s.registry.unregister(id)
	if !found {
		return
	}
	if last && s.state.load() == StateConnected {
		s.unsubscribePattern(pattern)
	}
	s.getLogger().Debug("MQTT handler unregistered", "pattern", pattern, "handler_id", id)
}

// HandlerCount returns the number of registered handlers.
func (s *Service) HandlerCount() int {
	return s.registry.len()
}

// Patterns returns the distinct registered patterns in registration order.
func (s *Service) Patterns() []string {
	return s.registry.patterns()
}

func (s *Service) subscribePattern(pattern string) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	if !s.registry.hasPattern(pattern) {
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, defaultSubscribeTimeout)
	defer cancel()
	if err := s.transport.Subscribe(ctx, pattern, byte(s.cfg.QoS)); err != nil {
		s.conn.markError(err)
		s.getLogger().Warn("MQTT subscribe failed, will retry on reconnect",
			"pattern", pattern,
			"error", err,
		)
	}
}

func (s *Service) unsubscribePattern(pattern string) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	if s.registry.hasPattern(pattern) {
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, defaultSubscribeTimeout)
	defer cancel()
	if err := s.transport.Unsubscribe(ctx, pattern); err != nil {
		s.getLogger().Warn("MQTT unsubscribe failed",
			"pattern", pattern,
			"error", err,
		)
	}
}

// resubscribeAll issues a subscribe for every registered pattern.
// It returns the number of patterns that failed.
func (s *Service) resubscribeAll() int {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	failed := 0
	for _, pattern := range s.registry.patterns() {
		ctx, cancel := context.WithTimeout(s.ctx, defaultSubscribeTimeout)
		err := s.transport.Subscribe(ctx, pattern, byte(s.cfg.QoS))
		cancel()
		if err != nil {
			failed++
			s.conn.markError(err)
			s.getLogger().Warn("MQTT resubscribe failed",
				"pattern", pattern,
				"error", err,
			)
		}
	}
	return failed
}

func (s *Service) publishOnlineStatus() {
	s.publishSystemStatus(buildOnlinePayload(s.cfg.Broker.ClientID))
}

func (s *Service) publishOfflineStatus() {
	if !s.transport.IsConnected() {
		return
	}
	s.publishSystemStatus(buildOfflinePayload(s.cfg.Broker.ClientID))
}

// publishSystemStatus writes the retained status record. It bypasses the
// publish counters, which track application traffic only.
func (s *Service) publishSystemStatus(payload string) {
	ctx, cancel := context.WithTimeout(context.Background(), durationOr(s.cfg.Publish.Timeout, defaultPublishTimeout))
	defer cancel()

	err := s.transport.Publish(ctx, Topics{}.SystemStatus(), byte(s.cfg.QoS), true, []byte(payload), true)
	if err != nil {
		s.getLogger().Debug("MQTT status publish failed", "error", err)
	}
}

// SetOnConnect sets a callback invoked every time the service enters Connected,
// after subscriptions have been re-issued. It runs on the supervisor goroutine.
func (s *Service) SetOnConnect(callback func()) {
	s.callbackMu.Lock()
	s.onConnect = callback
	s.callbackMu.Unlock()
}

// SetOnDisconnect sets a callback invoked when an established connection drops.
func (s *Service) SetOnDisconnect(callback func(err error)) {
	s.callbackMu.Lock()
	s.onDisconnect = callback
	s.callbackMu.Unlock()
}

// SetLogger sets the logger. A nil logger restores the silent default.
func (s *Service) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.loggerMu.Lock()
	s.logger = logger
	s.loggerMu.Unlock()
}

func (s *Service) getLogger() Logger {
	s.loggerMu.RLock()
	defer s.loggerMu.RUnlock()
	return s.logger
}

func (s *Service) fireOnConnect() {
	s.callbackMu.RLock()
	callback := s.onConnect
	s.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

func (s *Service) fireOnDisconnect(err error) {
	s.callbackMu.RLock()
	callback := s.onDisconnect
	s.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

func (s *Service) uptimeSince(t time.Time) time.Duration {
	if t.IsZero() {
		return 0
	}
	return time.Since(t).Round(time.Second)
}
