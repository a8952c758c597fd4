package mqtt

import (
	"sync"
	"sync/atomic"
)

// State is the connection state of the bus service.
type State int32

const (
	// StateDisconnected is the initial state, before the first Connect.
	StateDisconnected State = iota
	// StateConnecting means a transport connection attempt is in flight.
	StateConnecting
	// StateConnected means the transport is up and subscriptions were re-issued.
	StateConnected
	// StateReconnecting means the service is waiting out a backoff delay.
	StateReconnecting
	// StateStopped is terminal. No reconnect happens after it.
	StateStopped
)

// String returns the lowercase state name used in logs and stats.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// stateMachine holds the current State.
//
// Reads are a single atomic load so IsConnected never blocks. Transitions are
// serialised by mu, and nothing leaves StateStopped.
type stateMachine struct {
	current atomic.Int32
	mu      sync.Mutex
}

func (m *stateMachine) load() State {
	return State(m.current.Load())
}

// transition moves to next unless the machine is stopped.
// It returns the previous state and whether the move happened.
func (m *stateMachine) transition(next State) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := State(m.current.Load())
	if prev == StateStopped {
		return prev, false
	}
	m.current.Store(int32(next))
	return prev, true
}
