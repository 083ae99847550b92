package fault

import (
	"errors"
	"strings"
	"testing"
)

func TestTypeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"validation", Validation("bad input"), ErrValidation},
		{"not found", NotFound("no such survey"), ErrMissing},
		{"unauthorized", Unauthorized("who are you"), ErrUnauthorized},
		{"forbidden", Forbidden("not yours"), ErrForbidden},
		{"conflict", Conflict("still referenced"), ErrConflict},
		{"internal", Internal("boom", errors.New("disk on fire")), ErrInternal},
		{"plain error defaults to internal", errors.New("whatever"), ErrInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TypeOf(tt.err); got != tt.want {
				t.Errorf("TypeOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMessage(t *testing.T) {
	err := Validation("question %d expects exactly one option", 42)
	if got := Message(err); got != "question 42 expects exactly one option" {
		t.Errorf("Message() = %q", got)
	}

	if got := Message(errors.New("internal detail")); got != "" {
		t.Errorf("Message() on plain error = %q, want empty", got)
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := Internal("saving submission", cause)

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to see through the fault")
	}
	if !strings.Contains(err.Error(), "connection reset") {
		t.Errorf("Error() = %q, cause missing", err.Error())
	}
}

func TestIsHelpers(t *testing.T) {
	if !IsValidation(Validation("nope")) {
		t.Error("IsValidation(Validation) = false")
	}
	if IsValidation(NotFound("nope")) {
		t.Error("IsValidation(NotFound) = true")
	}
	if !IsNotFound(NotFound("gone")) {
		t.Error("IsNotFound(NotFound) = false")
	}
}
