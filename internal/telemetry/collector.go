package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "consultease"

// BusCollector exposes bus statistics as Prometheus metrics. It reads a
// fresh snapshot on every scrape.
type BusCollector struct {
	source StatsSource

	up                *prometheus.Desc
	received          *prometheus.Desc
	published         *prometheus.Desc
	publishFailures   *prometheus.Desc
	reconnectAttempts *prometheus.Desc
	dropped           *prometheus.Desc
	handlerErrors     *prometheus.Desc
	handlers          *prometheus.Desc
	queueDepth        *prometheus.Desc
}

func newBusDesc(name, help string, labels []string) *prometheus.Desc {
	return prometheus.NewDesc(prometheus.BuildFQName(namespace, "bus", name), help, labels, nil)
}

// NewBusCollector creates a collector reading from source.
func NewBusCollector(source StatsSource) *BusCollector {
	return &BusCollector{
		source:            source,
		up:                newBusDesc("connected", "Whether the bus is connected to the broker (1) or not (0).", []string{"state"}),
		received:          newBusDesc("messages_received_total", "Messages received from the broker.", nil),
		published:         newBusDesc("messages_published_total", "Messages published successfully.", nil),
		publishFailures:   newBusDesc("publish_failures_total", "Publishes that failed or timed out.", nil),
		reconnectAttempts: newBusDesc("reconnect_attempts_total", "Connection attempts made after a disconnect.", nil),
		dropped:           newBusDesc("messages_dropped_total", "Inbound messages dropped because the dispatch queue was full.", nil),
		handlerErrors:     newBusDesc("handler_errors_total", "Handler invocations that returned an error or panicked.", nil),
		handlers:          newBusDesc("handlers", "Registered message handlers.", nil),
		queueDepth:        newBusDesc("queue_depth", "Messages waiting in the dispatch queue.", nil),
	}
}

// Describe implements prometheus.Collector.
func (c *BusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.up
	ch <- c.received
	ch <- c.published
	ch <- c.publishFailures
	ch <- c.reconnectAttempts
	ch <- c.dropped
	ch <- c.handlerErrors
	ch <- c.handlers
	ch <- c.queueDepth
}

// Collect implements prometheus.Collector.
func (c *BusCollector) Collect(ch chan<- prometheus.Metric) {
	st := c.source.Stats()

	connected := 0.0
	if st.Connected {
		connected = 1
	}
	ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, connected, st.State)

	counters := []struct {
		desc  *prometheus.Desc
		value uint64
	}{
		{c.received, st.MessagesReceived},
		{c.published, st.MessagesPublished},
		{c.publishFailures, st.PublishFailures},
		{c.reconnectAttempts, st.ReconnectAttempts},
		{c.dropped, st.MessagesDropped},
		{c.handlerErrors, st.HandlerErrors},
	}
	for _, m := range counters {
		ch <- prometheus.MustNewConstMetric(m.desc, prometheus.CounterValue, float64(m.value))
	}

	ch <- prometheus.MustNewConstMetric(c.handlers, prometheus.GaugeValue, float64(st.Handlers))
	ch <- prometheus.MustNewConstMetric(c.queueDepth, prometheus.GaugeValue, float64(st.QueueDepth))
}

// Register adds the collector to reg. Registering twice is not an error.
func (c *BusCollector) Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if err := reg.Register(c); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			return err
		}
	}
	return nil
}
