package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by ConsultEase.
const (
	MeasurementBusStats     = "bus_stats"
	MeasurementPresence     = "faculty_presence"
	MeasurementConsultation = "consultation_events"
)

// WritePoint writes a point stamped with the current time.
//
// Example:
//
//	client.WritePoint(influxdb.MeasurementBusStats,
//	    map[string]string{"client_id": "consultease-central-1a2b3c4d"},
//	    map[string]any{"messages_received": 42, "connected": true})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a point with an explicit timestamp, for example
// the time a presence message was received rather than when it was processed.
// Points written while disconnected are discarded.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
	c.written.Add(1)
}

// WritePresence records one faculty availability observation.
func (c *Client) WritePresence(facultyID int, present bool, status, source string, at time.Time) {
	availability := 0
	if present {
		availability = 1
	}

	c.WritePointWithTime(MeasurementPresence,
		map[string]string{
			"faculty_id": strconv.Itoa(facultyID),
			"source":     source,
		},
		map[string]any{
			"present":      present,
			"availability": availability,
			"status":       status,
		},
		at,
	)
}

// WriteConsultationEvent records a request, response or cancellation flowing
// through the bus.
func (c *Client) WriteConsultationEvent(facultyID int, event string, consultationID int) {
	c.WritePoint(MeasurementConsultation,
		map[string]string{
			"faculty_id": strconv.Itoa(facultyID),
			"event":      event,
		},
		map[string]any{
			"consultation_id": consultationID,
			"count":           1,
		},
	)
}
