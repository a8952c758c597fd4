package mqtt

import (
	"fmt"
	"strconv"
	"strings"
)

// Topic prefixes of the ConsultEase bus.
//
// Faculty desk units use consultease/faculty/{faculty_id}/{channel}; the central
// system and its UI use consultease/ui and consultease/system.
const (
	// TopicPrefix is the root of every ConsultEase topic.
	TopicPrefix = "consultease"

	// TopicPrefixFaculty is the base for per-faculty desk unit channels.
	TopicPrefixFaculty = "consultease/faculty"

	// TopicPrefixStudent is the base for per-student notification channels.
	TopicPrefixStudent = "consultease/student"

	// TopicPrefixUI is the base for UI fan-out topics.
	TopicPrefixUI = "consultease/ui"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "consultease/system"
)

// Faculty channel names (last topic segment).
const (
	ChannelStatus        = "status"
	ChannelMACStatus     = "mac_status"
	ChannelMessages      = "messages"
	ChannelResponses     = "responses"
	ChannelCancellations = "cancellations"
	ChannelHeartbeat     = "heartbeat"
)

// Topics provides builders for ConsultEase topics.
// Using these helpers keeps topic naming consistent between publishers and handlers.
//
//	topics := mqtt.Topics{}
//	topics.FacultyMessages(3)
//	// Returns: "consultease/faculty/3/messages"
type Topics struct{}

// =============================================================================
// Faculty Desk Unit Topics
// =============================================================================

// FacultyStatus returns the topic a desk unit publishes presence status on.
//
// Example: consultease/faculty/3/status
func (Topics) FacultyStatus(facultyID int) string {
	return facultyTopic(facultyID, ChannelStatus)
}

// FacultyMACStatus returns the topic for BLE beacon (MAC) detection events.
//
// Example: consultease/faculty/3/mac_status
func (Topics) FacultyMACStatus(facultyID int) string {
	return facultyTopic(facultyID, ChannelMACStatus)
}

// FacultyMessages returns the topic consultation requests are sent to.
//
// Example: consultease/faculty/3/messages
func (Topics) FacultyMessages(facultyID int) string {
	return facultyTopic(facultyID, ChannelMessages)
}

// FacultyResponses returns the topic a desk unit publishes responses on.
//
// Example: consultease/faculty/3/responses
func (Topics) FacultyResponses(facultyID int) string {
	return facultyTopic(facultyID, ChannelResponses)
}

// FacultyCancellations returns the topic cancellation notices are sent to.
//
// Example: consultease/faculty/3/cancellations
func (Topics) FacultyCancellations(facultyID int) string {
	return facultyTopic(facultyID, ChannelCancellations)
}

// FacultyHeartbeat returns the topic a desk unit publishes health beats on.
//
// Example: consultease/faculty/3/heartbeat
func (Topics) FacultyHeartbeat(facultyID int) string {
	return facultyTopic(facultyID, ChannelHeartbeat)
}

func facultyTopic(facultyID int, channel string) string {
	return fmt.Sprintf("%s/%d/%s", TopicPrefixFaculty, facultyID, channel)
}

// =============================================================================
// Student, UI and System Topics
// =============================================================================

// StudentNotifications returns the per-student notification topic.
//
// Example: consultease/student/42/notifications
func (Topics) StudentNotifications(studentID int) string {
	return fmt.Sprintf("%s/%d/notifications", TopicPrefixStudent, studentID)
}

// UIConsultationUpdates returns the UI fan-out topic for consultation changes.
func (Topics) UIConsultationUpdates() string {
	return TopicPrefixUI + "/consultation_updates"
}

// SystemNotifications returns the topic for operator-facing notices.
func (Topics) SystemNotifications() string {
	return TopicPrefixSystem + "/notifications"
}

// SystemStatus returns the retained online/offline topic of the central system.
// It is also the Last Will topic.
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// =============================================================================
// Subscription Patterns
// =============================================================================

// AllFacultyStatus returns a pattern matching every desk unit status topic.
//
// Pattern: consultease/faculty/+/status
func (Topics) AllFacultyStatus() string {
	return TopicPrefixFaculty + "/+/" + ChannelStatus
}

// AllFacultyMACStatus returns a pattern matching every beacon detection topic.
//
// Pattern: consultease/faculty/+/mac_status
func (Topics) AllFacultyMACStatus() string {
	return TopicPrefixFaculty + "/+/" + ChannelMACStatus
}

// AllFacultyResponses returns a pattern matching every desk unit response topic.
//
// Pattern: consultease/faculty/+/responses
func (Topics) AllFacultyResponses() string {
	return TopicPrefixFaculty + "/+/" + ChannelResponses
}

// AllFacultyHeartbeats returns a pattern matching every heartbeat topic.
//
// Pattern: consultease/faculty/+/heartbeat
func (Topics) AllFacultyHeartbeats() string {
	return TopicPrefixFaculty + "/+/" + ChannelHeartbeat
}

// AllUI returns a pattern matching every UI fan-out topic.
//
// Pattern: consultease/ui/#
func (Topics) AllUI() string {
	return TopicPrefixUI + "/#"
}

// AllTopics returns a pattern matching all ConsultEase topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: consultease/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}

// ParseFacultyTopic extracts the faculty ID and channel from a faculty topic.
//
// "consultease/faculty/3/status" returns (3, "status", true).
func ParseFacultyTopic(topic string) (facultyID int, channel string, ok bool) {
	rest, found := strings.CutPrefix(topic, TopicPrefixFaculty+"/")
	if !found {
		return 0, "", false
	}
	idPart, channel, found := strings.Cut(rest, "/")
	if !found || channel == "" || strings.Contains(channel, "/") {
		return 0, "", false
	}
	id, err := strconv.Atoi(idPart)
	if err != nil || id < 0 {
		return 0, "", false
	}
	return id, channel, true
}
