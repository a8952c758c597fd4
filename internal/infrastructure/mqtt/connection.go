package mqtt

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/nerrad567/consultease-core/internal/infrastructure/config"
)

// newReconnectBackoff builds the retry schedule from config.
// Zero values fall back to 1s initial, 60s cap and a multiplier of 2.
func newReconnectBackoff(cfg config.MQTTReconnectConfig) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = durationOr(cfg.InitialDelay, time.Second)
	b.MaxInterval = durationOr(cfg.MaxDelay, 60*time.Second)
	b.Multiplier = cfg.Multiplier
	if b.Multiplier < 1 {
		b.Multiplier = 2
	}
	b.RandomizationFactor = cfg.Jitter
	b.Reset()
	return b
}

// nextDelay returns the next backoff delay, capped at MaxInterval even after jitter.
func nextDelay(b *backoff.ExponentialBackOff) time.Duration {
	d := b.NextBackOff()
	if d > b.MaxInterval || d < 0 {
		d = b.MaxInterval
	}
	return d
}

// superviseConnection owns the connection lifecycle.
//
//	Disconnected --Connect()--> Connecting
//	Connecting   --ok---------> Connected    (enterConnected)
//	Connecting   --fail-------> Reconnecting
//	Connected    --lost-------> Reconnecting
//	Reconnecting --delay------> Connecting
//	*            --Stop()-----> Stopped
//
// Only this goroutine connects, so at most one attempt is in flight.
func (s *Service) superviseConnection() {
	defer s.wg.Done()

	select {
	case <-s.ctx.Done():
		return
	case <-s.connectReq:
	}

	bo := newReconnectBackoff(s.cfg.Reconnect)
	for {
		if _, ok := s.state.transition(StateConnecting); !ok {
			return
		}

		err := s.attemptConnect()
		if s.ctx.Err() != nil {
			return
		}

		if err == nil {
			bo.Reset()
			connectedAt := time.Now()
			if !s.enterConnected(connectedAt) {
				return
			}
			err = s.awaitConnectionLoss()
			if s.ctx.Err() != nil {
				return
			}
			if !s.enterReconnecting(StateConnected, err, connectedAt) {
				return
			}
		} else if !s.enterReconnecting(StateConnecting, err, time.Time{}) {
			return
		}

		delay := nextDelay(bo)
		s.counters.reconnectAttempts.Add(1)
		s.getLogger().Info("MQTT reconnect scheduled", "delay", delay.String())
		if !s.waitBackoff(delay) {
			return
		}
	}
}

// attemptConnect makes one transport connection attempt.
func (s *Service) attemptConnect() error {
	// A loss notice left from the previous connection must not end the next one.
	select {
	case <-s.lost:
	default:
	}

	timeout := durationOr(s.cfg.ConnectTimeout, defaultConnectTimeout)
	ctx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()

	return s.transport.Connect(ctx)
}

// enterConnected is the entry action of Connected: it re-issues every
// registered subscription, announces the service as online and notifies the
// on-connect callback. It returns false if the service was stopped meanwhile.
func (s *Service) enterConnected(at time.Time) bool {
	if _, ok := s.state.transition(StateConnected); !ok {
		return false
	}
	s.conn.markConnected(at)

	failed := s.resubscribeAll()
	s.publishOnlineStatus()

	s.getLogger().Info("MQTT connected",
		"broker", s.cfg.BrokerURL(),
		"patterns", len(s.registry.patterns()),
		"resubscribe_failures", failed,
	)

	s.fireOnConnect()
	return true
}

// enterReconnecting records a failed attempt or a dropped connection.
func (s *Service) enterReconnecting(from State, err error, connectedAt time.Time) bool {
	if _, ok := s.state.transition(StateReconnecting); !ok {
		return false
	}

	if from == StateConnected {
		s.conn.markLost(time.Now(), err)
		s.getLogger().Warn("MQTT connection lost",
			"error", err,
			"connected_for", s.uptimeSince(connectedAt).String(),
		)
		s.fireOnDisconnect(err)
		return true
	}

	s.conn.markError(err)
	s.getLogger().Warn("MQTT connect attempt failed",
		"broker", s.cfg.BrokerURL(),
		"error", err,
	)
	return true
}

// awaitConnectionLoss blocks while connected. It returns the transport's loss
// error, or nil when the service is stopping.
func (s *Service) awaitConnectionLoss() error {
	for {
		select {
		case <-s.ctx.Done():
			return nil
		case err := <-s.lost:
			return err
		case <-s.connectReq:
			// Already connected.
		}
	}
}

// waitBackoff sleeps for delay. A Connect() call cuts the wait short.
// It returns false when the service is stopping.
func (s *Service) waitBackoff(delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-s.ctx.Done():
		return false
	case <-timer.C:
		return true
	case <-s.connectReq:
		return true
	}
}

// connectionLost is called by the transport when an established link drops.
func (s *Service) connectionLost(err error) {
	select {
	case s.lost <- err:
	default:
	}
}
