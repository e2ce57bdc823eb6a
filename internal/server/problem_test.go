package server

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
)

func TestNotFound_WritesProblemJSON(t *testing.T) {
	w := httptest.NewRecorder()
	NotFound(w, "channel not found", "/api/v1/channels/foo")

	if w.Code != 404 {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("content-type = %q, want application/problem+json", ct)
	}

	var p Problem
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Type != ProblemTypeNotFound {
		t.Errorf("type = %q, want %q", p.Type, ProblemTypeNotFound)
	}
	if p.Detail != "channel not found" {
		t.Errorf("detail = %q, want %q", p.Detail, "channel not found")
	}
}

func TestBadRequest_WritesProblemJSON(t *testing.T) {
	w := httptest.NewRecorder()
	BadRequest(w, "invalid payload", "/api/v1/consent")

	if w.Code != 400 {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestInternalError_WritesProblemJSON(t *testing.T) {
	w := httptest.NewRecorder()
	InternalError(w, "unexpected", "/api/v1/health")

	if w.Code != 500 {
		t.Fatalf("status = %d, want 500", w.Code)
	}
}

func TestRateLimited_WritesProblemJSON(t *testing.T) {
	w := httptest.NewRecorder()
	RateLimited(w, "slow down", "/api/v1/health")

	if w.Code != 429 {
		t.Fatalf("status = %d, want 429", w.Code)
	}
}
