// Package telemetry exports message bus statistics.
//
// Reporter writes a bus_stats point to the time-series sink on a fixed
// interval. BusCollector exposes the same snapshot to Prometheus on every
// scrape, so the two views never disagree about counter values.
package telemetry
