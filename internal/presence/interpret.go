package presence

import (
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/consultease-core/internal/consultation"
	"github.com/nerrad567/consultease-core/internal/infrastructure/mqtt"
)

// Interpret turns a desk unit message into an Observation.
//
// Status channel rules, in order:
//   - AVAILABLE or PRESENT: present
//   - AWAY, OFFLINE, UNAVAILABLE, or anything containing BUSY: not present
//     (busy faculty take no new consultations)
//   - any other or missing status: fall back to the "present" field
//   - a bare JSON bool or number is the availability itself
//
// The mac_status channel carries faculty_present or faculty_absent. A
// heartbeat never changes availability.
func Interpret(topic string, payload mqtt.Payload) (Observation, error) {
	facultyID, channel, ok := mqtt.ParseFacultyTopic(topic)
	if !ok {
		return Observation{}, fmt.Errorf("%w: %q", ErrUnsupportedTopic, topic)
	}

	obs := Observation{
		FacultyID:  facultyID,
		Source:     channel,
		ObservedAt: payload.ReceivedAt,
	}
	if obs.ObservedAt.IsZero() {
		obs.ObservedAt = time.Now()
	}

	var err error
	switch channel {
	case mqtt.ChannelStatus:
		err = interpretStatus(&obs, payload)
	case mqtt.ChannelMACStatus:
		err = interpretMAC(&obs, payload)
	case mqtt.ChannelHeartbeat:
		obs.Kind = KindHeartbeat
		var hb consultation.Heartbeat
		if payload.IsJSON() && payload.Decode(&hb) == nil {
			obs.NTPSyncStatus = hb.NTPSyncStatus
		}
	default:
		return Observation{}, fmt.Errorf("%w: channel %q", ErrUnsupportedTopic, channel)
	}
	if err != nil {
		return Observation{}, err
	}
	return obs, nil
}

func interpretStatus(obs *Observation, payload mqtt.Payload) error {
	if !payload.IsJSON() {
		return fmt.Errorf("%w: status is not JSON: %q", ErrInvalidPayload, truncate(payload.String()))
	}

	switch v := payload.Value.(type) {
	case bool:
		obs.Present = v
		return nil
	case float64:
		obs.Present = v != 0
		return nil
	case map[string]any:
		return interpretStatusObject(obs, v)
	default:
		return fmt.Errorf("%w: status payload of type %T", ErrInvalidPayload, v)
	}
}

func interpretStatusObject(obs *Observation, m map[string]any) error {
	status, _ := m["status"].(string)
	status = strings.ToUpper(strings.TrimSpace(status))
	obs.Status = status

	if s, ok := m["ntp_sync_status"].(string); ok {
		obs.NTPSyncStatus = s
	}
	if g, ok := m["in_grace_period"].(bool); ok {
		obs.InGracePeriod = &g
	}

	switch {
	case status == "AVAILABLE" || status == "PRESENT":
		obs.Present = true
		return nil
	case status == "AWAY" || status == "OFFLINE" || status == "UNAVAILABLE":
		obs.Present = false
		return nil
	case strings.Contains(status, "BUSY"):
		obs.Present = false
		return nil
	}

	present, ok := truthy(m["present"])
	if !ok {
		if status != "" {
			return fmt.Errorf("%w: unknown status %q and no present field", ErrUndetermined, status)
		}
		return fmt.Errorf("%w: no status or present field", ErrUndetermined)
	}
	obs.Present = present
	return nil
}

func interpretMAC(obs *Observation, payload mqtt.Payload) error {
	var ms consultation.MACStatus
	if err := payload.Decode(&ms); err != nil {
		return fmt.Errorf("%w: mac_status: %w", ErrInvalidPayload, err)
	}

	present, ok := ms.Present()
	if !ok {
		return fmt.Errorf("%w: unknown mac status %q", ErrUndetermined, ms.Status)
	}
	obs.Present = present
	obs.Status = ms.Status
	if present {
		obs.DetectedMAC = NormalizeMAC(ms.MAC)
	}
	return nil
}

// truthy reads a JSON bool or number.
func truthy(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case float64:
		return t != 0, true
	default:
		return false, false
	}
}

// NormalizeMAC upper-cases a MAC address and separates it with colons.
// Values that are not 12 hex digits are only trimmed and upper-cased.
func NormalizeMAC(mac string) string {
	mac = strings.ToUpper(strings.TrimSpace(mac))
	hex := strings.NewReplacer(":", "", "-", "", ".", "").Replace(mac)
	if len(hex) != 12 || strings.Trim(hex, "0123456789ABCDEF") != "" {
		return mac
	}

	var b strings.Builder
	for i := 0; i < 12; i += 2 {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(hex[i : i+2])
	}
	return b.String()
}

func truncate(s string) string {
	const limit = 64
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
