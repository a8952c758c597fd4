package mqtt

// enqueue is called by the transport for each inbound message.
//
// Messages that arrive while the service is not Connected are dropped, as are
// messages that find the queue full. Both are counted in MessagesDropped.
// Messages already queued are still dispatched after a disconnect.
func (s *Service) enqueue(msg inboundMessage) {
	if s.state.load() != StateConnected {
		s.counters.dropped.Add(1)
		return
	}

	select {
	case s.inbound <- msg:
	default:
		s.counters.dropped.Add(1)
		s.getLogger().Warn("MQTT dispatch queue full, message dropped",
			"topic", msg.topic,
			"queue_size", cap(s.inbound),
		)
	}
}

// dispatchLoop is the single consumer of the inbound queue.
// Messages are handled one at a time in arrival order.
func (s *Service) dispatchLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopping:
			return
		case msg := <-s.inbound:
			// Both cases may be ready; Stop wins.
			select {
			case <-s.stopping:
				return
			default:
			}
			s.dispatch(msg)
		}
	}
}

// dispatch decodes one message and runs every matching handler in
// registration order.
//
// Nothing is dispatched once the service is Stopped, even if the message was
// taken off the queue before the stopping signal was seen.
func (s *Service) dispatch(msg inboundMessage) {
	if s.state.load() == StateStopped {
		return
	}
	s.counters.received.Add(1)

	entries := s.registry.handlersFor(msg.topic)
	if len(entries) == 0 {
		s.getLogger().Debug("MQTT message without handler", "topic", msg.topic)
		return
	}

	payload := decodePayload(msg)
	for _, entry := range entries {
		s.invoke(entry, msg.topic, payload)
	}
}

// invoke runs one handler, containing its error or panic.
func (s *Service) invoke(entry handlerEntry, topic string, payload Payload) {
	defer func() {
		if r := recover(); r != nil {
			s.counters.handlerErrors.Add(1)
			s.getLogger().Error("MQTT handler panic recovered",
				"topic", topic,
				"pattern", entry.pattern,
				"handler_id", entry.id,
				"panic", r,
			)
		}
	}()

	if err := entry.handler.HandleMessage(topic, payload); err != nil {
		s.counters.handlerErrors.Add(1)
		s.getLogger().Warn("MQTT handler returned error",
			"topic", topic,
			"pattern", entry.pattern,
			"handler_id", entry.id,
			"error", err,
		)
	}
}
