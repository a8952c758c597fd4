// Package mqtt is the message bus service of ConsultEase Core.
//
// This package manages:
//   - One broker connection with a supervised reconnect loop
//     (bounded exponential backoff with jitter)
//   - Handler registration by topic pattern with + and # wildcards
//   - A single dispatch goroutine that decodes payloads and runs handlers in order
//   - Publishing with per-call results and aggregate counters
//   - Last Will and Testament on consultease/system/status
//
// # Architecture
//
// Faculty desk units (ESP32) and the central system talk only through the
// broker. The service is the central system's side of that link:
//
//	Desk units ↔ MQTT Broker ↔ Service ↔ presence / consultation handlers
//
// The state machine, not paho, owns reconnection. Each time it enters
// Connected it re-subscribes every registered pattern, because clean sessions
// lose subscriptions across a reconnect.
//
// # Wildcards
//
// "a/#" matches "a" itself as well as everything below it. See Match.
//
// # Usage
//
//	bus := mqtt.New(cfg.MQTT)
//	bus.SetLogger(logger.Component("mqtt"))
//	if err := bus.Start(ctx); err != nil {
//	    return err
//	}
//	defer bus.Stop()
//
//	bus.RegisterHandlerFunc(mqtt.Topics{}.AllFacultyStatus(),
//	    func(topic string, p mqtt.Payload) error {
//	        log.Printf("%s: %s", topic, p)
//	        return nil
//	    })
//
//	err := bus.Publish(mqtt.Topics{}.FacultyMessages(3), request.Format(), 1)
package mqtt
