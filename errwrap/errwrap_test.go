package errwrap

import (
	"errors"
	"strings"
	"testing"
)

func TestWrapfAddsContext(t *testing.T) {
	base := errors.New("boom")
	wrapped := Wrapf(base, "system %d", 7)
	if wrapped == nil {
		t.Fatalf("Wrapf should not return nil for a non-nil error")
	}
	if got := wrapped.Error(); got == "" || got == base.Error() {
		t.Errorf("expected wrapped message to add context, got: %q", got)
	}
	if !errors.Is(wrapped, base) {
		t.Errorf("expected wrapped error to unwrap to base")
	}
}

func TestAppendNilHandling(t *testing.T) {
	if got := Append(nil, nil); got != nil {
		t.Errorf("Append(nil, nil) = %v, want nil", got)
	}
	err := errors.New("boom")
	if got := Append(nil, err); got != err {
		t.Errorf("Append(nil, err) = %v, want err", got)
	}
	if got := Append(err, nil); got != err {
		t.Errorf("Append(err, nil) = %v, want err", got)
	}
}

func TestAppendAggregates(t *testing.T) {
	first := errors.New("first")
	second := errors.New("second")
	combined := Append(first, second)
	if combined == nil {
		t.Fatalf("Append should not return nil for two non-nil errors")
	}
	msg := combined.Error()
	if !strings.Contains(msg, "first") || !strings.Contains(msg, "second") {
		t.Errorf("expected aggregate to mention both errors, got: %q", msg)
	}
}

func TestString(t *testing.T) {
	if got := String(nil); got != "" {
		t.Errorf("String(nil) = %q, want empty", got)
	}
	err := errors.New("boom")
	if got := String(err); got != "boom" {
		t.Errorf("String(err) = %q, want %q", got, "boom")
	}
}
