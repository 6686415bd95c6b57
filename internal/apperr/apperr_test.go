package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsMatchesByKind(t *testing.T) {
	err := Conflict("task %s already completed", "abc")
	if !errors.Is(err, ErrConflict) {
		t.Error("expected conflict error to match ErrConflict")
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("conflict error should not match ErrNotFound")
	}
}

func TestIsThroughWrapping(t *testing.T) {
	err := fmt.Errorf("complete task: %w", NotFound("task not found"))
	if !errors.Is(err, ErrNotFound) {
		t.Error("expected wrapped error to match ErrNotFound")
	}
	if got := KindOf(err); got != KindNotFound {
		t.Errorf("KindOf = %q, want %q", got, KindNotFound)
	}
	if got := MessageOf(err); got != "task not found" {
		t.Errorf("MessageOf = %q, want %q", got, "task not found")
	}
}

func TestKindOfPlainError(t *testing.T) {
	if got := KindOf(errors.New("boom")); got != "" {
		t.Errorf("KindOf = %q, want empty", got)
	}
	if got := MessageOf(errors.New("boom")); got != "" {
		t.Errorf("MessageOf = %q, want empty", got)
	}
}

func TestErrorString(t *testing.T) {
	cause := errors.New("disk full")
	err := &Error{Kind: KindPrecondition, Message: "bad level", Err: cause}
	if got := err.Error(); got != "bad level: disk full" {
		t.Errorf("Error() = %q, want %q", got, "bad level: disk full")
	}
	if !errors.Is(err, cause) {
		t.Error("expected Unwrap to expose the cause")
	}
}
