package heads

import (
	"context"
	"errors"
	"testing"

	"github.com/synheart/synheart-runtime/pkg/models"
)

type stubHead struct {
	name string
	err  error
	fn   func(models.HumanStateVector) models.HumanStateVector
}

func (s *stubHead) Name() string { return s.name }

func (s *stubHead) Process(ctx context.Context, hsv models.HumanStateVector) (models.HumanStateVector, error) {
	if s.err != nil {
		return hsv, s.err
	}
	if s.fn != nil {
		return s.fn(hsv), nil
	}
	return hsv, nil
}

func TestRunner_passesThroughOnSuccess(t *testing.T) {
	stub := &stubHead{name: "stub", fn: func(hsv models.HumanStateVector) models.HumanStateVector {
		hsv.Meta.SessionID = "touched"
		return hsv
	}}
	r := NewRunner(stub, nil)

	out, err := r.Process(context.Background(), models.HumanStateVector{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Meta.SessionID != "touched" {
		t.Error("expected head transform to apply")
	}
}

func TestRunner_errSkipDoesNotCountAsFailure(t *testing.T) {
	stub := &stubHead{name: "stub", err: ErrSkip}
	r := NewRunner(stub, nil)

	for i := 0; i < maxConsecutiveFailures+5; i++ {
		out, err := r.Process(context.Background(), models.HumanStateVector{})
		if err != nil {
			t.Fatalf("ErrSkip must not surface as an error, got %v", err)
		}
		_ = out
	}
	if r.Disabled() {
		t.Error("ErrSkip must never disable the head")
	}
}

func TestRunner_disablesAfterConsecutiveFailures(t *testing.T) {
	stub := &stubHead{name: "stub", err: errors.New("model unavailable")}
	r := NewRunner(stub, nil)

	var lastErr error
	for i := 0; i < maxConsecutiveFailures; i++ {
		_, lastErr = r.Process(context.Background(), models.HumanStateVector{})
	}
	if lastErr == nil {
		t.Fatal("expected error from failing head")
	}
	if !r.Disabled() {
		t.Fatal("expected head disabled after consecutive failures")
	}

	out, err := r.Process(context.Background(), models.HumanStateVector{Meta: models.Meta{SessionID: "base"}})
	if err != nil {
		t.Fatalf("disabled head must return base HSV without error, got %v", err)
	}
	if out.Meta.SessionID != "base" {
		t.Error("disabled head must pass the HSV through unchanged")
	}
}

func TestRunner_resetReenablesHead(t *testing.T) {
	stub := &stubHead{name: "stub", err: errors.New("boom")}
	r := NewRunner(stub, nil)
	for i := 0; i < maxConsecutiveFailures; i++ {
		r.Process(context.Background(), models.HumanStateVector{})
	}
	if !r.Disabled() {
		t.Fatal("expected disabled")
	}
	r.Reset()
	if r.Disabled() {
		t.Fatal("expected re-enabled after Reset")
	}
}

func TestRunner_successResetsFailureCounter(t *testing.T) {
	calls := 0
	stub := &stubHead{name: "stub", fn: func(hsv models.HumanStateVector) models.HumanStateVector {
		calls++
		return hsv
	}}
	r := NewRunner(stub, nil)
	r.failures = maxConsecutiveFailures - 1

	if _, err := r.Process(context.Background(), models.HumanStateVector{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.failures != 0 {
		t.Errorf("expected failure counter reset to 0 after success, got %d", r.failures)
	}
}
