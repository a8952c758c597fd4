package consultation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// requestLine matches "CID:<id> From:<name> (SID:<id>): <message>".
// The name is matched lazily so it may itself contain parentheses, but not
// the "(SID:" marker; Validate rejects such names.
var requestLine = regexp.MustCompile(`(?s)^CID:(\d+) From:(.+?) \(SID:(\d+)\): (.*)$`)

// sidMarker opens the student id in a request line.
const sidMarker = "(SID:"

// maxMessageLength bounds the text a desk unit has to render.
const maxMessageLength = 512

// ConsultationRequest is a student's request routed to a faculty desk unit.
//
// On the wire it is a single text line (see Format). CourseCode travels only
// in notifications, not in the line itself.
type ConsultationRequest struct {
	ConsultationID int    `json:"consultation_id"`
	StudentID      int    `json:"student_id"`
	StudentName    string `json:"student_name"`
	CourseCode     string `json:"course_code,omitempty"`
	Message        string `json:"message"`
}

// Validate checks the fields Format needs.
func (r ConsultationRequest) Validate() error {
	switch {
	case r.ConsultationID <= 0:
		return fmt.Errorf("%w: consultation_id must be positive", ErrInvalidRequest)
	case r.StudentID <= 0:
		return fmt.Errorf("%w: student_id must be positive", ErrInvalidRequest)
	case strings.TrimSpace(r.StudentName) == "":
		return fmt.Errorf("%w: student_name is required", ErrInvalidRequest)
	case strings.ContainsAny(r.StudentName, "\r\n"):
		return fmt.Errorf("%w: student_name must be a single line", ErrInvalidRequest)
	case strings.Contains(r.StudentName, sidMarker):
		return fmt.Errorf("%w: student_name must not contain %q", ErrInvalidRequest, sidMarker)
	case len(r.Message) > maxMessageLength:
		return fmt.Errorf("%w: message exceeds %d bytes", ErrInvalidRequest, maxMessageLength)
	}
	return nil
}

// Format renders the line published on consultease/faculty/{id}/messages.
func (r ConsultationRequest) Format() string {
	return fmt.Sprintf("CID:%d From:%s (SID:%d): %s",
		r.ConsultationID, strings.TrimSpace(r.StudentName), r.StudentID, r.Message)
}

// ParseConsultationRequest parses a line produced by Format.
func ParseConsultationRequest(line string) (ConsultationRequest, error) {
	m := requestLine.FindStringSubmatch(strings.TrimRight(line, "\r\n"))
	if m == nil {
		return ConsultationRequest{}, fmt.Errorf("%w: %q", ErrMalformedRequest, line)
	}

	cid, err := strconv.Atoi(m[1])
	if err != nil {
		return ConsultationRequest{}, fmt.Errorf("%w: consultation id: %w", ErrMalformedRequest, err)
	}
	sid, err := strconv.Atoi(m[3])
	if err != nil {
		return ConsultationRequest{}, fmt.Errorf("%w: student id: %w", ErrMalformedRequest, err)
	}

	return ConsultationRequest{
		ConsultationID: cid,
		StudentID:      sid,
		StudentName:    m[2],
		Message:        m[4],
	}, nil
}
