package presence

import "time"

// Kind separates availability observations from liveness-only heartbeats.
type Kind int

const (
	// KindPresence changes availability.
	KindPresence Kind = iota
	// KindHeartbeat only refreshes last_seen.
	KindHeartbeat
)

func (k Kind) String() string {
	if k == KindHeartbeat {
		return "heartbeat"
	}
	return "presence"
}

// Observation sources, named after the topic channel they arrived on.
const (
	SourceStatus    = "status"
	SourceMAC       = "mac_status"
	SourceHeartbeat = "heartbeat"
)

// Observation is one interpreted desk unit message.
type Observation struct {
	FacultyID     int
	Kind          Kind
	Source        string
	Present       bool
	Status        string
	DetectedMAC   string
	NTPSyncStatus string
	InGracePeriod *bool
	ObservedAt    time.Time
}

// Presence is the current availability of one faculty member.
type Presence struct {
	FacultyID     int       `json:"faculty_id"`
	Present       bool      `json:"present"`
	Status        string    `json:"status"`
	Source        string    `json:"source"`
	DetectedMAC   string    `json:"detected_mac,omitempty"`
	NTPSyncStatus string    `json:"ntp_sync_status,omitempty"`
	Sequence      uint64    `json:"sequence"`
	LastSeen      time.Time `json:"last_seen"`
	ChangedAt     time.Time `json:"changed_at"`
}

// HistoryEntry records one availability change.
type HistoryEntry struct {
	ID         int64     `json:"id"`
	FacultyID  int       `json:"faculty_id"`
	Present    bool      `json:"present"`
	Status     string    `json:"status"`
	Source     string    `json:"source"`
	RecordedAt time.Time `json:"recorded_at"`
}
