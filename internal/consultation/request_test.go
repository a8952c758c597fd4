package consultation

import (
	"errors"
	"strings"
	"testing"
)

func TestConsultationRequest_Format(t *testing.T) {
	req := ConsultationRequest{
		ConsultationID: 1717000000,
		StudentID:      12345,
		StudentName:    "Test Student",
		Message:        "Test consultation for busy vs acknowledge comparison",
	}

	want := "CID:1717000000 From:Test Student (SID:12345): Test consultation for busy vs acknowledge comparison"
	if got := req.Format(); got != want {
		t.Errorf("Format() = %q, want %q", got, want)
	}
}

func TestParseConsultationRequest(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    ConsultationRequest
		wantErr bool
	}{
		{
			name: "simple",
			line: "CID:41 From:Ana Cruz (SID:2023001): Thesis chapter 2 review",
			want: ConsultationRequest{ConsultationID: 41, StudentID: 2023001, StudentName: "Ana Cruz", Message: "Thesis chapter 2 review"},
		},
		{
			name: "name with parentheses",
			line: "CID:7 From:Juan (JJ) Reyes (SID:99): Grades: midterm",
			want: ConsultationRequest{ConsultationID: 7, StudentID: 99, StudentName: "Juan (JJ) Reyes", Message: "Grades: midterm"},
		},
		{
			name: "multi-line message",
			line: "CID:8 From:Li (SID:5): line one\nline two",
			want: ConsultationRequest{ConsultationID: 8, StudentID: 5, StudentName: "Li", Message: "line one\nline two"},
		},
		{
			name: "empty message",
			line: "CID:9 From:Li (SID:5): ",
			want: ConsultationRequest{ConsultationID: 9, StudentID: 5, StudentName: "Li", Message: ""},
		},
		{name: "missing CID", line: "From:Li (SID:5): hi", wantErr: true},
		{name: "non-numeric SID", line: "CID:9 From:Li (SID:abc): hi", wantErr: true},
		{name: "json", line: `{"consultation_id": 9}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseConsultationRequest(tt.line)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseConsultationRequest() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, ErrMalformedRequest) {
					t.Errorf("error %v should wrap ErrMalformedRequest", err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("ParseConsultationRequest() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestConsultationRequest_FormatParseInverse(t *testing.T) {
	req := ConsultationRequest{ConsultationID: 3, StudentID: 4, StudentName: "Maria Santos", Message: "Can we talk about (the) project?"}

	got, err := ParseConsultationRequest(req.Format())
	if err != nil {
		t.Fatalf("ParseConsultationRequest() error = %v", err)
	}
	if got != req {
		t.Errorf("round trip = %+v, want %+v", got, req)
	}
}

func TestConsultationRequest_SIDMarkerNameDoesNotRoundTrip(t *testing.T) {
	req := ConsultationRequest{ConsultationID: 3, StudentID: 4, StudentName: "Ana (SID:9): Cruz", Message: "hi"}

	// Such a line parses as a different request, so it must never be sent.
	got, err := ParseConsultationRequest(req.Format())
	if err == nil && got == req {
		t.Fatalf("round trip unexpectedly preserved %+v", got)
	}
	if err := req.Validate(); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("Validate() error = %v, want ErrInvalidRequest", err)
	}
}

func TestConsultationRequest_Validate(t *testing.T) {
	valid := ConsultationRequest{ConsultationID: 1, StudentID: 2, StudentName: "Ana", Message: "hi"}

	tests := []struct {
		name   string
		mutate func(r *ConsultationRequest)
	}{
		{name: "zero consultation id", mutate: func(r *ConsultationRequest) { r.ConsultationID = 0 }},
		{name: "zero student id", mutate: func(r *ConsultationRequest) { r.StudentID = 0 }},
		{name: "blank name", mutate: func(r *ConsultationRequest) { r.StudentName = "  " }},
		{name: "multi-line name", mutate: func(r *ConsultationRequest) { r.StudentName = "Ana\nCruz" }},
		{name: "name with sid marker", mutate: func(r *ConsultationRequest) { r.StudentName = "Ana (SID:9): Cruz" }},
		{name: "name with bare sid marker", mutate: func(r *ConsultationRequest) { r.StudentName = "Ana(SID:x" }},
		{name: "message too long", mutate: func(r *ConsultationRequest) { r.Message = strings.Repeat("x", maxMessageLength+1) }},
	}

	if err := valid.Validate(); err != nil {
		t.Fatalf("valid request: Validate() error = %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.mutate(&r)
			if err := r.Validate(); !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("Validate() error = %v, want ErrInvalidRequest", err)
			}
		})
	}
}
