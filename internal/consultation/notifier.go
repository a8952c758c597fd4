package consultation

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/consultease-core/internal/infrastructure/mqtt"
)

// Delivery QoS per channel. Requests use exactly-once so a desk unit never
// shows the same request twice.
const (
	requestQoS      byte = 2
	cancellationQoS byte = 1
	uiQoS           byte = 1
	studentQoS      byte = 1
	systemQoS       byte = 0
)

// Event names written to the time-series sink.
const (
	EventRequest      = "request"
	EventResponse     = "response"
	EventCancellation = "cancellation"
)

// Publisher is the part of the bus the notifier needs.
type Publisher interface {
	PublishContext(ctx context.Context, topic string, value any, qos byte) error
}

// EventWriter records consultation traffic. *influxdb.Client satisfies it.
type EventWriter interface {
	WriteConsultationEvent(facultyID int, event string, consultationID int)
}

// Logger is the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopEvents struct{}

func (noopEvents) WriteConsultationEvent(int, string, int) {}

// Notifier sends consultation requests and cancellations to desk units.
type Notifier struct {
	bus     Publisher
	pending *Pending
	events  EventWriter
	logger  Logger
	topics  mqtt.Topics
	now     func() time.Time
}

// NewNotifier creates a notifier. pending may be shared with a ResponseRelay
// so responses can be routed back to students.
func NewNotifier(bus Publisher, pending *Pending) *Notifier {
	if pending == nil {
		pending = NewPending(0)
	}
	return &Notifier{
		bus:     bus,
		pending: pending,
		events:  noopEvents{},
		logger:  noopLogger{},
		now:     time.Now,
	}
}

// SetLogger sets the logger. Call before first use.
func (n *Notifier) SetLogger(logger Logger) {
	if logger != nil {
		n.logger = logger
	}
}

// SetEventWriter sets the time-series sink. Call before first use.
func (n *Notifier) SetEventWriter(w EventWriter) {
	if w != nil {
		n.events = w
	}
}

// SendRequest publishes req as a text line on the faculty's messages topic
// and tracks it until the faculty responds.
func (n *Notifier) SendRequest(ctx context.Context, facultyID int, req ConsultationRequest) error {
	if facultyID <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidFaculty, facultyID)
	}
	if err := req.Validate(); err != nil {
		return err
	}

	topic := n.topics.FacultyMessages(facultyID)
	if err := n.bus.PublishContext(ctx, topic, req.Format(), requestQoS); err != nil {
		return fmt.Errorf("%w: %w", ErrNotDelivered, err)
	}

	n.pending.Add(PendingRequest{
		ConsultationID: req.ConsultationID,
		FacultyID:      facultyID,
		StudentID:      req.StudentID,
		StudentName:    req.StudentName,
		CourseCode:     req.CourseCode,
		SentAt:         n.now(),
	})
	n.events.WriteConsultationEvent(facultyID, EventRequest, req.ConsultationID)

	n.logger.Info("consultation request sent",
		"faculty_id", facultyID,
		"consultation_id", req.ConsultationID,
		"student_id", req.StudentID,
	)

	n.notifySystem(ctx, SystemNotification{
		Type:           TypeConsultationRequestSent,
		ConsultationID: req.ConsultationID,
		StudentID:      req.StudentID,
		StudentName:    req.StudentName,
		FacultyID:      facultyID,
		Timestamp:      Timestamp(n.now()),
	})
	return nil
}

// SendCancellation tells the desk unit to drop a request, then fans the
// change out to the UI and system notification topics.
func (n *Notifier) SendCancellation(facultyID int, c Cancellation) error {
	return n.SendCancellationContext(context.Background(), facultyID, c)
}

// SendCancellationContext is SendCancellation with a caller context.
func (n *Notifier) SendCancellationContext(ctx context.Context, facultyID int, c Cancellation) error {
	if facultyID <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidFaculty, facultyID)
	}
	if c.CancelledAt == "" {
		c.CancelledAt = Timestamp(n.now())
	}
	if err := c.Validate(); err != nil {
		return err
	}

	if err := n.bus.PublishContext(ctx, n.topics.FacultyCancellations(facultyID), c, cancellationQoS); err != nil {
		return fmt.Errorf("%w: %w", ErrNotDelivered, err)
	}

	pending, _ := n.pending.Resolve(c.ConsultationID)
	studentName := c.StudentName
	if studentName == "" {
		studentName = pending.StudentName
	}

	n.events.WriteConsultationEvent(facultyID, EventCancellation, c.ConsultationID)
	n.logger.Info("consultation cancelled",
		"faculty_id", facultyID,
		"consultation_id", c.ConsultationID,
	)

	update := UIUpdate{
		Type:           TypeConsultationStatus,
		ConsultationID: c.ConsultationID,
		StudentID:      pending.StudentID,
		FacultyID:      facultyID,
		OldStatus:      "pending",
		NewStatus:      "cancelled",
		Trigger:        TriggerStudentCancellation,
		Timestamp:      c.CancelledAt,
	}
	if err := n.bus.PublishContext(ctx, n.topics.UIConsultationUpdates(), update, uiQoS); err != nil {
		n.logger.Warn("UI cancellation update not published", "consultation_id", c.ConsultationID, "error", err)
	}

	n.notifySystem(ctx, SystemNotification{
		Type:           TypeConsultationCancelled,
		ConsultationID: c.ConsultationID,
		StudentID:      pending.StudentID,
		StudentName:    studentName,
		FacultyID:      facultyID,
		CancelledBy:    "student",
		Timestamp:      c.CancelledAt,
	})
	return nil
}

// Pending returns the tracker shared with the response relay.
func (n *Notifier) Pending() *Pending {
	return n.pending
}

// notifySystem publishes at QoS 0; a lost system notice is only logged.
func (n *Notifier) notifySystem(ctx context.Context, note SystemNotification) {
	if err := n.bus.PublishContext(ctx, n.topics.SystemNotifications(), note, systemQoS); err != nil {
		n.logger.Debug("system notification not published", "type", note.Type, "error", err)
	}
}
