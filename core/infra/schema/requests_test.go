package schema

import (
	"encoding/json"
	"testing"
)

func TestValidateCreateNoteRequest(t *testing.T) {
	valid := json.RawMessage(`{"title":"groceries","body":"milk"}`)
	if err := ValidateRequest(RequestCreateNote, valid); err != nil {
		t.Fatalf("expected valid create request: %v", err)
	}
	missingTitle := json.RawMessage(`{"body":"milk"}`)
	if err := ValidateRequest(RequestCreateNote, missingTitle); err == nil {
		t.Fatalf("expected error for missing title")
	}
	extraField := json.RawMessage(`{"title":"x","owner":"nope"}`)
	if err := ValidateRequest(RequestCreateNote, extraField); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestValidateUpdateNoteRequest(t *testing.T) {
	valid := json.RawMessage(`{"holder":"session-a","title":"renamed"}`)
	if err := ValidateRequest(RequestUpdateNote, valid); err != nil {
		t.Fatalf("expected valid update request: %v", err)
	}
	bodyOnly := json.RawMessage(`{"holder":"session-a","body":"new text"}`)
	if err := ValidateRequest(RequestUpdateNote, bodyOnly); err != nil {
		t.Fatalf("expected body-only patch to validate: %v", err)
	}
	noFields := json.RawMessage(`{"holder":"session-a"}`)
	if err := ValidateRequest(RequestUpdateNote, noFields); err == nil {
		t.Fatalf("expected error for empty patch")
	}
	noHolder := json.RawMessage(`{"title":"renamed"}`)
	if err := ValidateRequest(RequestUpdateNote, noHolder); err == nil {
		t.Fatalf("expected error for missing holder")
	}
}

func TestValidateAcquireLockRequest(t *testing.T) {
	if err := ValidateRequest(RequestAcquireLock, json.RawMessage(`{"holder":"session-a"}`)); err != nil {
		t.Fatalf("expected valid acquire request: %v", err)
	}
	if err := ValidateRequest(RequestAcquireLock, json.RawMessage(`{"holder":""}`)); err == nil {
		t.Fatalf("expected error for empty holder")
	}
	if err := ValidateRequest(RequestAcquireLock, json.RawMessage(`{}`)); err == nil {
		t.Fatalf("expected error for missing holder")
	}
}

func TestValidateRequestUnknownSchema(t *testing.T) {
	if err := ValidateRequest("nope", json.RawMessage(`{}`)); err == nil {
		t.Fatalf("expected error for unknown schema name")
	}
}
