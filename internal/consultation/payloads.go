package consultation

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/consultease-core/internal/infrastructure/jsoncodec"
)

// Response types sent by faculty desk units.
const (
	ResponseAcknowledge = "ACKNOWLEDGE"
	ResponseBusy        = "BUSY"
	ResponseAccepted    = "ACCEPTED"
	ResponseUnavailable = "UNAVAILABLE"
	ResponseRejected    = "REJECTED"
	ResponseDeclined    = "DECLINED"
	ResponseCompleted   = "COMPLETED"
)

// Message types carried in the "type" field of bus payloads.
const (
	TypeConsultationCancelled   = "consultation_cancelled"
	TypeConsultationStatus      = "consultation_status_changed"
	TypeConsultationResponse    = "consultation_response"
	TypeConsultationRequestSent = "consultation_request_sent"
	TypeFacultyResponseReceived = "faculty_response_received"
	TypeFacultyStatusChanged    = "faculty_status_changed"
	TypeFacultyMACStatus        = "faculty_mac_status"
)

// UI update triggers.
const (
	TriggerFacultyResponse     = "faculty_response"
	TriggerStudentCancellation = "student_cancellation"
)

// Beacon states on the mac_status channel.
const (
	MACStatusPresent = "faculty_present"
	MACStatusAbsent  = "faculty_absent"
)

// validResponseTypes maps each accepted response type to the consultation
// status it moves the request into. A refusal cancels the request, the same
// status a student cancellation produces.
var validResponseTypes = map[string]string{
	ResponseAcknowledge: "accepted",
	ResponseAccepted:    "accepted",
	ResponseBusy:        "busy",
	ResponseUnavailable: "busy",
	ResponseRejected:    "cancelled",
	ResponseDeclined:    "cancelled",
	ResponseCompleted:   "completed",
}

// StatusForResponse returns the consultation status a response type moves
// the request into, and whether the type is known.
func StatusForResponse(responseType string) (string, bool) {
	s, ok := validResponseTypes[strings.ToUpper(responseType)]
	return s, ok
}

// LooseString is a JSON field desk units send as either a string or a number,
// for example message_id and timestamp.
type LooseString string

// UnmarshalJSON accepts a JSON string, number or null.
func (s *LooseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*s = ""
	case data[0] == '"':
		var v string
		if err := jsoncodec.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = LooseString(v)
	default:
		if _, err := strconv.ParseFloat(string(data), 64); err != nil {
			return fmt.Errorf("expected string or number, got %s", data)
		}
		*s = LooseString(data)
	}
	return nil
}

// Int parses the value as an integer.
func (s LooseString) Int() (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(string(s)))
	return n, err == nil
}

// FacultyStatus is published by a desk unit on consultease/faculty/{id}/status.
type FacultyStatus struct {
	FacultyID     int         `json:"faculty_id"`
	Status        string      `json:"status,omitempty"`
	Present       *bool       `json:"present,omitempty"`
	Timestamp     LooseString `json:"timestamp,omitempty"`
	NTPSyncStatus string      `json:"ntp_sync_status,omitempty"`
	InGracePeriod *bool       `json:"in_grace_period,omitempty"`
}

// MACStatus is published on consultease/faculty/{id}/mac_status when the
// faculty member's BLE beacon is detected or lost.
type MACStatus struct {
	Status    string      `json:"status"`
	MAC       string      `json:"mac,omitempty"`
	Timestamp LooseString `json:"timestamp,omitempty"`
}

// Present reports the beacon state. ok is false for unknown status values.
func (m MACStatus) Present() (present, ok bool) {
	switch m.Status {
	case MACStatusPresent:
		return true, true
	case MACStatusAbsent:
		return false, true
	default:
		return false, false
	}
}

// Heartbeat is published periodically on consultease/faculty/{id}/heartbeat.
type Heartbeat struct {
	FacultyID     int         `json:"faculty_id,omitempty"`
	NTPSyncStatus string      `json:"ntp_sync_status,omitempty"`
	FreeHeap      int64       `json:"free_heap,omitempty"`
	Uptime        int64       `json:"uptime,omitempty"`
	Timestamp     LooseString `json:"timestamp,omitempty"`
}

// FacultyResponse is a desk unit's answer to a consultation request.
type FacultyResponse struct {
	FacultyID      *int        `json:"faculty_id"`
	FacultyName    string      `json:"faculty_name,omitempty"`
	ResponseType   string      `json:"response_type"`
	MessageID      LooseString `json:"message_id"`
	Timestamp      LooseString `json:"timestamp,omitempty"`
	FacultyPresent *bool       `json:"faculty_present,omitempty"`
	ResponseMethod string      `json:"response_method,omitempty"`
	Status         string      `json:"status,omitempty"`
}

// Validate checks the required fields and the response type.
func (r FacultyResponse) Validate() error {
	var missing []string
	if r.FacultyID == nil {
		missing = append(missing, "faculty_id")
	}
	if r.ResponseType == "" {
		missing = append(missing, "response_type")
	}
	if r.MessageID == "" {
		missing = append(missing, "message_id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidResponse, strings.Join(missing, ", "))
	}
	if _, ok := StatusForResponse(r.ResponseType); !ok {
		return fmt.Errorf("%w: unknown response_type %q", ErrInvalidResponse, r.ResponseType)
	}
	return nil
}

// ConsultationID returns message_id as a consultation id.
func (r FacultyResponse) ConsultationID() (int, bool) {
	return r.MessageID.Int()
}

// Cancellation tells a desk unit to drop a pending request.
type Cancellation struct {
	Type           string `json:"type"`
	ConsultationID int    `json:"consultation_id"`
	StudentName    string `json:"student_name,omitempty"`
	CourseCode     string `json:"course_code,omitempty"`
	CancelledAt    string `json:"cancelled_at"`
}

// NewCancellation builds a cancellation stamped with at.
func NewCancellation(consultationID int, studentName, courseCode string, at time.Time) Cancellation {
	return Cancellation{
		Type:           TypeConsultationCancelled,
		ConsultationID: consultationID,
		StudentName:    studentName,
		CourseCode:     courseCode,
		CancelledAt:    Timestamp(at),
	}
}

// Validate checks the type tag and consultation id.
func (c Cancellation) Validate() error {
	if c.Type != TypeConsultationCancelled {
		return fmt.Errorf("%w: type must be %q, got %q", ErrInvalidCancellation, TypeConsultationCancelled, c.Type)
	}
	if c.ConsultationID <= 0 {
		return fmt.Errorf("%w: consultation_id is required", ErrInvalidCancellation)
	}
	return nil
}

// UIUpdate is published on consultease/ui/consultation_updates for dashboards.
// Fields that don't apply to the update type are omitted.
type UIUpdate struct {
	Type           string `json:"type"`
	ConsultationID int    `json:"consultation_id,omitempty"`
	StudentID      int    `json:"student_id,omitempty"`
	FacultyID      int    `json:"faculty_id"`
	FacultyName    string `json:"faculty_name,omitempty"`
	OldStatus      string `json:"old_status,omitempty"`
	NewStatus      string `json:"new_status,omitempty"`
	ResponseType   string `json:"response_type,omitempty"`
	Present        *bool  `json:"present,omitempty"`
	Previous       *bool  `json:"previous,omitempty"`
	Sequence       uint64 `json:"sequence,omitempty"`
	Trigger        string `json:"trigger,omitempty"`
	Timestamp      string `json:"timestamp"`
}

// StudentNotification is published on consultease/student/{id}/notifications.
type StudentNotification struct {
	Type           string `json:"type"`
	ConsultationID int    `json:"consultation_id"`
	FacultyID      int    `json:"faculty_id"`
	FacultyName    string `json:"faculty_name,omitempty"`
	CourseCode     string `json:"course_code,omitempty"`
	ResponseType   string `json:"response_type"`
	NewStatus      string `json:"new_status"`
	RespondedAt    string `json:"responded_at"`
}

// SystemNotification is published on consultease/system/notifications.
type SystemNotification struct {
	Type           string `json:"type"`
	ConsultationID int    `json:"consultation_id,omitempty"`
	StudentID      int    `json:"student_id,omitempty"`
	StudentName    string `json:"student_name,omitempty"`
	FacultyID      int    `json:"faculty_id"`
	FacultyName    string `json:"faculty_name,omitempty"`
	ResponseType   string `json:"response_type,omitempty"`
	NewStatus      string `json:"new_status,omitempty"`
	DetectedMAC    string `json:"detected_mac,omitempty"`
	Present        *bool  `json:"present,omitempty"`
	CancelledBy    string `json:"cancelled_by,omitempty"`
	Timestamp      string `json:"timestamp"`
}

// Timestamp formats t the way every ConsultEase notification does.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
