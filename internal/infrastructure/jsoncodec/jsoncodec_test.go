package jsoncodec

import (
	"bytes"
	"strings"
	"testing"
)

type statusPayload struct {
	FacultyID int    `json:"faculty_id"`
	Status    string `json:"status"`
	Present   bool   `json:"present"`
}

func TestMarshalAndUnmarshal(t *testing.T) {
	in := statusPayload{FacultyID: 3, Status: "AVAILABLE", Present: true}
	data, err := Marshal(in)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if !strings.Contains(string(data), `"faculty_id":3`) {
		t.Fatalf("expected snake_case keys, got %s", data)
	}

	var out statusPayload
	if err := Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if out != in {
		t.Fatalf("expected round trip to match, got %#v", out)
	}
}

func TestUnmarshal_Invalid(t *testing.T) {
	var v any
	if err := Unmarshal([]byte("CID:1 From:Ana"), &v); err == nil {
		t.Fatal("expected error for non-JSON input")
	}
}

func TestEncodeAndDecode(t *testing.T) {
	buf := &bytes.Buffer{}
	payload := statusPayload{FacultyID: 7, Status: "AWAY"}

	if err := Encode(buf, payload); err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	var decoded statusPayload
	if err := Decode(buf, &decoded, true); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded != payload {
		t.Fatalf("expected decoded payload to match, got %#v", decoded)
	}
}

func TestDecode_StrictRejectsUnknownFields(t *testing.T) {
	var decoded statusPayload
	err := Decode(strings.NewReader(`{"faculty_id":1,"colour":"red"}`), &decoded, true)
	if err == nil {
		t.Fatal("expected unknown field error in strict mode")
	}

	if err := Decode(strings.NewReader(`{"faculty_id":1,"colour":"red"}`), &decoded, false); err != nil {
		t.Fatalf("lenient decode failed: %v", err)
	}
}
