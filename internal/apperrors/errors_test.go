package apperrors

import (
	"errors"
	"testing"
)

func TestIsInternalMatchesKind(t *testing.T) {
	err := Internal("engine_panic", "something broke")
	if !IsInternal(err) {
		t.Fatal("expected Internal-kind error to report IsInternal")
	}
	if IsInternal(State("bad_state", "not ready")) {
		t.Fatal("state-kind error should not report IsInternal")
	}
}

func TestIsInternalUnwrapsThroughWrap(t *testing.T) {
	cause := errors.New("boom")
	wrapped := Wrap(KindInternal, "wrapped_panic", cause)
	if !IsInternal(wrapped) {
		t.Fatal("wrapped internal error should still report IsInternal")
	}
	if !errors.Is(wrapped, cause) {
		t.Fatal("errors.Is should see through Wrap to the original cause")
	}
}

func TestIsInternalFalseForPlainError(t *testing.T) {
	if IsInternal(errors.New("plain")) {
		t.Fatal("a plain stdlib error should never report IsInternal")
	}
}

func TestErrorMessageIncludesKindAndCause(t *testing.T) {
	cause := errors.New("root cause")
	err := Wrap(KindRisk, "max_position", cause)
	got := err.Error()
	if got == "" {
		t.Fatal("expected a non-empty error string")
	}
	if err.Code != "max_position" || err.Kind != KindRisk {
		t.Fatalf("unexpected kind/code: %+v", err)
	}
}
