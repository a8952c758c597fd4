package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/nerrad567/consultease-core/internal/consultation"
	"github.com/nerrad567/consultease-core/internal/infrastructure/jsoncodec"
)

// CancellationRequest is the body of POST /faculty/{id}/cancellations.
type CancellationRequest struct {
	ConsultationID int    `json:"consultation_id"`
	StudentName    string `json:"student_name,omitempty"`
	CourseCode     string `json:"course_code,omitempty"`
}

// handleSendRequest publishes a consultation request to a faculty desk unit.
func (s *Server) handleSendRequest(w http.ResponseWriter, r *http.Request) {
	if s.consultations == nil {
		writeUnavailable(w, "consultation messaging is not enabled")
		return
	}
	facultyID, ok := facultyIDParam(w, r)
	if !ok {
		return
	}

	var req consultation.ConsultationRequest
	if err := jsoncodec.Decode(r.Body, &req, true); err != nil {
		writeBadRequest(w, "invalid JSON: "+err.Error())
		return
	}

	if err := s.consultations.SendRequest(r.Context(), facultyID, req); err != nil {
		s.writeConsultationError(w, err, facultyID, req.ConsultationID)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":          "sent",
		"faculty_id":      facultyID,
		"consultation_id": req.ConsultationID,
	})
}

// handleSendCancellation tells a faculty desk unit to drop a request.
func (s *Server) handleSendCancellation(w http.ResponseWriter, r *http.Request) {
	if s.consultations == nil {
		writeUnavailable(w, "consultation messaging is not enabled")
		return
	}
	facultyID, ok := facultyIDParam(w, r)
	if !ok {
		return
	}

	var body CancellationRequest
	if err := jsoncodec.Decode(r.Body, &body, true); err != nil {
		writeBadRequest(w, "invalid JSON: "+err.Error())
		return
	}

	c := consultation.NewCancellation(body.ConsultationID, body.StudentName, body.CourseCode, time.Now())
	if err := s.consultations.SendCancellationContext(r.Context(), facultyID, c); err != nil {
		s.writeConsultationError(w, err, facultyID, body.ConsultationID)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":          "cancelled",
		"faculty_id":      facultyID,
		"consultation_id": body.ConsultationID,
		"cancelled_at":    c.CancelledAt,
	})
}

// writeConsultationError maps notifier errors to HTTP status codes.
func (s *Server) writeConsultationError(w http.ResponseWriter, err error, facultyID, consultationID int) {
	switch {
	case errors.Is(err, consultation.ErrInvalidRequest),
		errors.Is(err, consultation.ErrInvalidCancellation),
		errors.Is(err, consultation.ErrInvalidFaculty):
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, err.Error())
	case errors.Is(err, consultation.ErrNotDelivered):
		s.logger.Warn("consultation message not delivered",
			"faculty_id", facultyID,
			"consultation_id", consultationID,
			"error", err,
		)
		writeError(w, http.StatusServiceUnavailable, ErrCodeBusDown, err.Error())
	default:
		s.logger.Error("consultation message failed",
			"faculty_id", facultyID,
			"consultation_id", consultationID,
			"error", err,
		)
		writeInternalError(w, "failed to send message")
	}
}
