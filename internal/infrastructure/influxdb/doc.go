// Package influxdb is the optional time-series sink for ConsultEase.
//
// It records three measurements:
//   - bus_stats: periodic message bus counters from the telemetry reporter
//   - faculty_presence: every availability observation from the presence recorder
//   - consultation_events: requests, responses and cancellations
//
// Writes are batched and non-blocking. Failures arrive asynchronously
// through SetOnError. A disconnected client silently discards points, which
// keeps the bus independent of InfluxDB availability.
//
// Configuration:
//
//	influxdb:
//	  enabled: true
//	  url: "http://localhost:8086"
//	  token: ""           # set CONSULTEASE_INFLUXDB_TOKEN instead
//	  org: "consultease"
//	  bucket: "consultease"
//	  batch_size: 100
//	  flush_interval: 10  # seconds
package influxdb
