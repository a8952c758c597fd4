package mqtt

import (
	"sync"
	"sync/atomic"
	"time"
)

// counters are the monotonic bus counters. All fields are updated atomically.
type counters struct {
	received          atomic.Uint64
	published         atomic.Uint64
	publishFailures   atomic.Uint64
	reconnectAttempts atomic.Uint64
	dropped           atomic.Uint64
	handlerErrors     atomic.Uint64
}

// connInfo records the last connection timestamps and error for Stats.
type connInfo struct {
	mu              sync.RWMutex
	lastConnectedAt time.Time
	lastLostAt      time.Time
	lastError       string
}

func (c *connInfo) markConnected(at time.Time) {
	c.mu.Lock()
	c.lastConnectedAt = at
	c.lastError = ""
	c.mu.Unlock()
}

func (c *connInfo) markLost(at time.Time, err error) {
	c.mu.Lock()
	c.lastLostAt = at
	if err != nil {
		c.lastError = err.Error()
	}
	c.mu.Unlock()
}

func (c *connInfo) markError(err error) {
	if err == nil {
		return
	}
	c.mu.Lock()
	c.lastError = err.Error()
	c.mu.Unlock()
}

// Stats is a point-in-time copy of the bus counters and connection status.
// Mutating it does not affect the service.
type Stats struct {
	Connected         bool       `json:"connected"`
	State             string     `json:"state"`
	Broker            string     `json:"broker"`
	ClientID          string     `json:"client_id"`
	MessagesReceived  uint64     `json:"messages_received"`
	MessagesPublished uint64     `json:"messages_published"`
	PublishFailures   uint64     `json:"publish_failures"`
	ReconnectAttempts uint64     `json:"reconnect_attempts"`
	MessagesDropped   uint64     `json:"messages_dropped"`
	HandlerErrors     uint64     `json:"handler_errors"`
	Handlers          int        `json:"handlers"`
	Patterns          []string   `json:"patterns"`
	QueueDepth        int        `json:"queue_depth"`
	LastConnectedAt   *time.Time `json:"last_connected_at,omitempty"`
	LastLostAt        *time.Time `json:"last_lost_at,omitempty"`
	LastError         string     `json:"last_error,omitempty"`
}

// Stats returns a snapshot of the counters and connection status.
func (s *Service) Stats() Stats {
	state := s.state.load()
	st := Stats{
		Connected:         state == StateConnected,
		State:             state.String(),
		Broker:            s.cfg.BrokerURL(),
		ClientID:          s.cfg.Broker.ClientID,
		MessagesReceived:  s.counters.received.Load(),
		MessagesPublished: s.counters.published.Load(),
		PublishFailures:   s.counters.publishFailures.Load(),
		ReconnectAttempts: s.counters.reconnectAttempts.Load(),
		MessagesDropped:   s.counters.dropped.Load(),
		HandlerErrors:     s.counters.handlerErrors.Load(),
		Handlers:          s.registry.len(),
		Patterns:          s.registry.patterns(),
		QueueDepth:        len(s.inbound),
	}

	s.conn.mu.RLock()
	defer s.conn.mu.RUnlock()
	if !s.conn.lastConnectedAt.IsZero() {
		t := s.conn.lastConnectedAt
		st.LastConnectedAt = &t
	}
	if !s.conn.lastLostAt.IsZero() {
		t := s.conn.lastLostAt
		st.LastLostAt = &t
	}
	st.LastError = s.conn.lastError

	return st
}
