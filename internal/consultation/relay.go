package consultation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/consultease-core/internal/infrastructure/mqtt"
)

// Bus is the part of the message bus the relay needs. *mqtt.Service
// satisfies it.
type Bus interface {
	Publisher
	RegisterHandler(pattern string, handler mqtt.MessageHandler) (mqtt.HandlerID, error)
	UnregisterHandler(id mqtt.HandlerID)
}

// RelayStats counts what the relay has done since Start.
type RelayStats struct {
	Relayed  uint64 `json:"relayed"`
	Rejected uint64 `json:"rejected"`
}

// ResponseRelay validates faculty responses and republishes them for the UI,
// the student who asked, and the system notification feed.
type ResponseRelay struct {
	bus     Bus
	pending *Pending
	events  EventWriter
	logger  Logger
	topics  mqtt.Topics
	now     func() time.Time

	mu        sync.Mutex
	handlerID mqtt.HandlerID
	started   bool

	relayed  atomic.Uint64
	rejected atomic.Uint64
}

// NewResponseRelay creates a relay. Pass the Notifier's Pending so responses
// reach the right student.
func NewResponseRelay(bus Bus, pending *Pending) *ResponseRelay {
	if pending == nil {
		pending = NewPending(0)
	}
	return &ResponseRelay{
		bus:     bus,
		pending: pending,
		events:  noopEvents{},
		logger:  noopLogger{},
		now:     time.Now,
	}
}

// SetLogger sets the logger. Call before Start.
func (r *ResponseRelay) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// SetEventWriter sets the time-series sink. Call before Start.
func (r *ResponseRelay) SetEventWriter(w EventWriter) {
	if w != nil {
		r.events = w
	}
}

// Start subscribes to consultease/faculty/+/responses.
func (r *ResponseRelay) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return nil
	}
	id, err := r.bus.RegisterHandler(r.topics.AllFacultyResponses(), r)
	if err != nil {
		return fmt.Errorf("registering response handler: %w", err)
	}
	r.handlerID = id
	r.started = true
	return nil
}

// Stop unsubscribes. Safe to call more than once.
func (r *ResponseRelay) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started {
		return
	}
	r.bus.UnregisterHandler(r.handlerID)
	r.started = false
}

// Stats returns the relay counters.
func (r *ResponseRelay) Stats() RelayStats {
	return RelayStats{
		Relayed:  r.relayed.Load(),
		Rejected: r.rejected.Load(),
	}
}

// HandleMessage implements mqtt.MessageHandler. Invalid responses are
// counted and returned as errors, which the bus logs; nothing is republished
// for them.
func (r *ResponseRelay) HandleMessage(topic string, payload mqtt.Payload) error {
	facultyID, channel, ok := mqtt.ParseFacultyTopic(topic)
	if !ok || channel != mqtt.ChannelResponses {
		return r.reject(fmt.Errorf("%w: unexpected topic %q", ErrInvalidResponse, topic))
	}

	var resp FacultyResponse
	if err := payload.Decode(&resp); err != nil {
		return r.reject(fmt.Errorf("%w: %w", ErrInvalidResponse, err))
	}
	if err := resp.Validate(); err != nil {
		return r.reject(err)
	}

	// The topic is authoritative for which desk unit answered.
	if *resp.FacultyID != facultyID {
		r.logger.Warn("faculty response id does not match topic",
			"topic_faculty_id", facultyID,
			"payload_faculty_id", *resp.FacultyID,
		)
	}

	responseType := strings.ToUpper(resp.ResponseType)
	newStatus, _ := StatusForResponse(responseType)
	consultationID, _ := resp.ConsultationID()
	now := Timestamp(r.now())

	var req PendingRequest
	known := false
	if consultationID > 0 {
		req, known = r.pending.Lookup(consultationID)
	}
	// A request is only answered by the desk unit it was sent to.
	if known && req.FacultyID != facultyID {
		r.logger.Warn("faculty response for a request sent to another faculty member",
			"consultation_id", consultationID,
			"topic_faculty_id", facultyID,
			"request_faculty_id", req.FacultyID,
		)
		return r.reject(fmt.Errorf("%w: consultation %d was sent to faculty %d, answered by faculty %d",
			ErrWrongFaculty, consultationID, req.FacultyID, facultyID))
	}
	if known {
		req, known = r.pending.Resolve(consultationID)
	}

	ctx := context.Background()
	update := UIUpdate{
		Type:           TypeConsultationStatus,
		ConsultationID: consultationID,
		StudentID:      req.StudentID,
		FacultyID:      facultyID,
		FacultyName:    resp.FacultyName,
		OldStatus:      "pending",
		NewStatus:      newStatus,
		ResponseType:   responseType,
		Trigger:        TriggerFacultyResponse,
		Timestamp:      now,
	}
	if err := r.bus.PublishContext(ctx, r.topics.UIConsultationUpdates(), update, uiQoS); err != nil {
		r.logger.Warn("UI response update not published", "consultation_id", consultationID, "error", err)
	}

	if known && req.StudentID > 0 {
		note := StudentNotification{
			Type:           TypeConsultationResponse,
			ConsultationID: consultationID,
			FacultyID:      facultyID,
			FacultyName:    resp.FacultyName,
			CourseCode:     req.CourseCode,
			ResponseType:   responseType,
			NewStatus:      newStatus,
			RespondedAt:    now,
		}
		if err := r.bus.PublishContext(ctx, r.topics.StudentNotifications(req.StudentID), note, studentQoS); err != nil {
			r.logger.Warn("student notification not published",
				"student_id", req.StudentID,
				"consultation_id", consultationID,
				"error", err,
			)
		}
	}

	system := SystemNotification{
		Type:           TypeFacultyResponseReceived,
		ConsultationID: consultationID,
		StudentID:      req.StudentID,
		StudentName:    req.StudentName,
		FacultyID:      facultyID,
		FacultyName:    resp.FacultyName,
		ResponseType:   responseType,
		NewStatus:      newStatus,
		Timestamp:      now,
	}
	if err := r.bus.PublishContext(ctx, r.topics.SystemNotifications(), system, systemQoS); err != nil {
		r.logger.Debug("system notification not published", "type", system.Type, "error", err)
	}

	r.events.WriteConsultationEvent(facultyID, EventResponse, consultationID)
	r.relayed.Add(1)

	r.logger.Info("faculty response relayed",
		"faculty_id", facultyID,
		"consultation_id", consultationID,
		"response_type", responseType,
		"student_known", known,
	)
	return nil
}

func (r *ResponseRelay) reject(err error) error {
	r.rejected.Add(1)
	return err
}
