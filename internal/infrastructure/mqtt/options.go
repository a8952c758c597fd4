package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/consultease-core/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout applies when the config leaves connect_timeout unset.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout applies when the config leaves publish.timeout unset.
	defaultPublishTimeout = 5 * time.Second

	// defaultSubscribeTimeout bounds each subscribe/unsubscribe round trip.
	defaultSubscribeTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = time.Second

	// defaultKeepAlive applies when the config leaves keep_alive unset.
	defaultKeepAlive = 60 * time.Second

	// defaultQueueSize applies when the config leaves dispatch.queue_size unset.
	defaultQueueSize = 256

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// buildClientOptions creates paho options from the bus config.
//
// Reconnection is owned by the service's state machine, so paho's own
// auto-reconnect and connect-retry are switched off. Every inbound message goes
// through the default publish handler; subscriptions are made with a nil callback.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	opts.AddBroker(cfg.BrokerURL())
	opts.SetClientID(cfg.Broker.ClientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	// Clean session: the broker forgets subscriptions on reconnect, which is
	// why the service re-issues them on every Connected entry.
	opts.SetCleanSession(true)
	opts.SetResumeSubs(false)

	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)

	// Deliver to the default handler in arrival order; it only enqueues.
	opts.SetOrderMatters(true)

	opts.SetConnectTimeout(durationOr(cfg.ConnectTimeout, defaultConnectTimeout))
	opts.SetKeepAlive(durationOr(cfg.KeepAlive, defaultKeepAlive))
	opts.SetWriteTimeout(durationOr(cfg.Publish.Timeout, defaultPublishTimeout))

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tlsMinVersion,
		})
	}

	return opts
}

// configureLWT sets up Last Will and Testament for offline detection.
//
// The broker publishes it if the central system drops without a graceful Stop,
// so desk units and dashboards can tell a crash from a shutdown.
//
// Topic: consultease/system/status
// QoS: 1
// Retained: true
func configureLWT(opts *pahomqtt.ClientOptions, clientID string) {
	opts.SetWill(Topics{}.SystemStatus(), buildStatusPayload(clientID, "offline", "unexpected_disconnect"), 1, true)
}

// buildOnlinePayload creates the JSON payload for online status messages.
func buildOnlinePayload(clientID string) string {
	return buildStatusPayload(clientID, "online", "")
}

// buildOfflinePayload creates the JSON payload for graceful offline status.
func buildOfflinePayload(clientID string) string {
	return buildStatusPayload(clientID, "offline", "graceful_shutdown")
}

func buildStatusPayload(clientID, status, reason string) string {
	ts := time.Now().UTC().Format(time.RFC3339)
	if reason == "" {
		return fmt.Sprintf(`{"status":%q,"client_id":%q,"timestamp":%q}`, status, clientID, ts)
	}
	return fmt.Sprintf(`{"status":%q,"client_id":%q,"reason":%q,"timestamp":%q}`, status, clientID, reason, ts)
}

func durationOr(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}
