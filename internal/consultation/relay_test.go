package consultation

import (
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/consultease-core/internal/infrastructure/mqtt"
)

func newTestRelay(bus *fakeBus, pending *Pending) (*ResponseRelay, *fakeEvents) {
	events := &fakeEvents{}
	r := NewResponseRelay(bus, pending)
	r.SetEventWriter(events)
	r.now = func() time.Time { return fixedNow }
	return r, events
}

func TestResponseRelay_StartStop(t *testing.T) {
	bus := newFakeBus()
	r, _ := newTestRelay(bus, nil)

	if err := r.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := r.Start(); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
	if got := bus.registered(); len(got) != 1 || got[0] != "consultease/faculty/+/responses" {
		t.Errorf("registered = %v, want one responses pattern", got)
	}

	r.Stop()
	r.Stop()
	if got := bus.registered(); len(got) != 0 {
		t.Errorf("registered after Stop = %v", got)
	}
}

func TestResponseRelay_KnownStudent(t *testing.T) {
	bus := newFakeBus()
	pending := NewPending(time.Hour)
	pending.Add(PendingRequest{ConsultationID: 41, FacultyID: 1, StudentID: 2023001, StudentName: "Ana Cruz", CourseCode: "CS 101"})
	r, events := newTestRelay(bus, pending)
	if err := r.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	topics := mqtt.Topics{}

	errs := bus.deliver(topics.FacultyResponses(1), `{
		"faculty_id": 1,
		"faculty_name": "Cris Angelo Salonga",
		"response_type": "ACKNOWLEDGE",
		"message_id": "41",
		"timestamp": "1717000000123",
		"faculty_present": true,
		"response_method": "physical_button"
	}`)
	if len(errs) != 0 {
		t.Fatalf("HandleMessage() errors = %v", errs)
	}

	ui := bus.on(topics.UIConsultationUpdates())
	if len(ui) != 1 {
		t.Fatalf("UI updates = %d, want 1", len(ui))
	}
	update := ui[0].value.(UIUpdate)
	if update.Type != TypeConsultationStatus || update.NewStatus != "accepted" || update.StudentID != 2023001 || update.ConsultationID != 41 {
		t.Errorf("UI update = %+v", update)
	}

	student := bus.on(topics.StudentNotifications(2023001))
	if len(student) != 1 {
		t.Fatalf("student notifications = %d, want 1", len(student))
	}
	note := student[0].value.(StudentNotification)
	if note.ResponseType != ResponseAcknowledge || note.CourseCode != "CS 101" || note.FacultyName != "Cris Angelo Salonga" {
		t.Errorf("student notification = %+v", note)
	}

	if len(bus.on(topics.SystemNotifications())) != 1 {
		t.Error("expected one system notification")
	}
	if _, ok := pending.Lookup(41); ok {
		t.Error("answered request should be resolved")
	}
	if ev := events.all(); len(ev) != 1 || ev[0] != (recordedEvent{1, EventResponse, 41}) {
		t.Errorf("events = %+v", ev)
	}
	if st := r.Stats(); st.Relayed != 1 || st.Rejected != 0 {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestResponseRelay_UnknownStudent(t *testing.T) {
	bus := newFakeBus()
	r, _ := newTestRelay(bus, nil)
	if err := r.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	errs := bus.deliver("consultease/faculty/2/responses",
		`{"faculty_id": 2, "response_type": "busy", "message_id": 77}`)
	if len(errs) != 0 {
		t.Fatalf("HandleMessage() errors = %v", errs)
	}

	ui := bus.on(mqtt.Topics{}.UIConsultationUpdates())
	if len(ui) != 1 {
		t.Fatalf("UI updates = %d, want 1", len(ui))
	}
	update := ui[0].value.(UIUpdate)
	if update.ResponseType != ResponseBusy || update.NewStatus != "busy" || update.StudentID != 0 {
		t.Errorf("UI update = %+v", update)
	}

	bus.mu.Lock()
	for _, p := range bus.published {
		if _, _, ok := mqtt.ParseFacultyTopic(p.topic); ok {
			t.Errorf("unexpected publish to %s", p.topic)
		}
	}
	bus.mu.Unlock()
	if len(bus.on(mqtt.Topics{}.StudentNotifications(0))) != 0 {
		t.Error("no student notification without a known student")
	}
}

func TestResponseRelay_DeclineCancels(t *testing.T) {
	bus := newFakeBus()
	r, _ := newTestRelay(bus, nil)
	if err := r.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	errs := bus.deliver("consultease/faculty/3/responses",
		`{"faculty_id": 3, "response_type": "DECLINED", "message_id": 12}`)
	if len(errs) != 0 {
		t.Fatalf("HandleMessage() errors = %v", errs)
	}

	ui := bus.on(mqtt.Topics{}.UIConsultationUpdates())
	if len(ui) != 1 {
		t.Fatalf("UI updates = %d, want 1", len(ui))
	}
	if update := ui[0].value.(UIUpdate); update.NewStatus != "cancelled" {
		t.Errorf("UI update NewStatus = %q, want cancelled", update.NewStatus)
	}
}

func TestResponseRelay_InvalidResponses(t *testing.T) {
	tests := []struct {
		name  string
		topic string
		raw   string
	}{
		{name: "not json", topic: "consultease/faculty/1/responses", raw: "ACK"},
		{name: "missing message id", topic: "consultease/faculty/1/responses", raw: `{"faculty_id":1,"response_type":"BUSY"}`},
		{name: "missing faculty id", topic: "consultease/faculty/1/responses", raw: `{"response_type":"BUSY","message_id":"3"}`},
		{name: "unknown response type", topic: "consultease/faculty/1/responses", raw: `{"faculty_id":1,"response_type":"LATER","message_id":"3"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := newFakeBus()
			r, events := newTestRelay(bus, nil)

			err := r.HandleMessage(tt.topic, jsonPayload(tt.raw))
			if !errors.Is(err, ErrInvalidResponse) {
				t.Errorf("HandleMessage() error = %v, want ErrInvalidResponse", err)
			}

			bus.mu.Lock()
			n := len(bus.published)
			bus.mu.Unlock()
			if n != 0 {
				t.Errorf("invalid response republished %d times", n)
			}
			if len(events.all()) != 0 {
				t.Error("invalid response recorded as event")
			}
			if r.Stats().Rejected != 1 {
				t.Errorf("Rejected = %d, want 1", r.Stats().Rejected)
			}
		})
	}
}

func TestResponseRelay_WrongTopic(t *testing.T) {
	r, _ := newTestRelay(newFakeBus(), nil)

	err := r.HandleMessage("consultease/faculty/1/status", jsonPayload(`{"faculty_id":1}`))
	if !errors.Is(err, ErrInvalidResponse) {
		t.Errorf("HandleMessage() error = %v, want ErrInvalidResponse", err)
	}
}

func TestResponseRelay_PublishFailureStillRelays(t *testing.T) {
	bus := newFakeBus()
	bus.failOn(mqtt.Topics{}.UIConsultationUpdates())
	r, _ := newTestRelay(bus, nil)

	err := r.HandleMessage("consultease/faculty/4/responses",
		jsonPayload(`{"faculty_id":4,"response_type":"ACKNOWLEDGE","message_id":"5"}`))
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if len(bus.on(mqtt.Topics{}.SystemNotifications())) != 1 {
		t.Error("system notification should still be published")
	}
	if r.Stats().Relayed != 1 {
		t.Errorf("Relayed = %d, want 1", r.Stats().Relayed)
	}
}

func TestResponseRelay_ResponseFromOtherFaculty(t *testing.T) {
	bus := newFakeBus()
	pending := NewPending(time.Hour)
	pending.Add(PendingRequest{ConsultationID: 41, FacultyID: 1, StudentID: 2023001, StudentName: "Ana Cruz"})
	r, events := newTestRelay(bus, pending)
	if err := r.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	topics := mqtt.Topics{}

	errs := bus.deliver(topics.FacultyResponses(5),
		`{"faculty_id": 5, "response_type": "BUSY", "message_id": "41"}`)
	if len(errs) != 1 || !errors.Is(errs[0], ErrWrongFaculty) {
		t.Fatalf("HandleMessage() errors = %v, want ErrWrongFaculty", errs)
	}

	if req, ok := pending.Lookup(41); !ok || req.FacultyID != 1 {
		t.Errorf("pending request = %+v, %v; want still pending for faculty 1", req, ok)
	}
	if n := len(bus.on(topics.StudentNotifications(2023001))); n != 0 {
		t.Errorf("student notifications = %d, want 0", n)
	}
	if n := len(bus.on(topics.UIConsultationUpdates())); n != 0 {
		t.Errorf("UI updates = %d, want 0", n)
	}
	if len(events.all()) != 0 {
		t.Error("mismatched response recorded as event")
	}
	if st := r.Stats(); st.Relayed != 0 || st.Rejected != 1 {
		t.Errorf("Stats() = %+v, want 0 relayed, 1 rejected", st)
	}

	// The right desk unit can still answer.
	errs = bus.deliver(topics.FacultyResponses(1),
		`{"faculty_id": 1, "response_type": "ACKNOWLEDGE", "message_id": "41"}`)
	if len(errs) != 0 {
		t.Fatalf("HandleMessage() errors = %v", errs)
	}
	if n := len(bus.on(topics.StudentNotifications(2023001))); n != 1 {
		t.Errorf("student notifications = %d, want 1", n)
	}
	if _, ok := pending.Lookup(41); ok {
		t.Error("answered request should be resolved")
	}
}
