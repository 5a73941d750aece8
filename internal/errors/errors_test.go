package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{name: "message only", err: NotFoundf("job %d not found", 7), want: "job 7 not found"},
		{name: "with cause", err: &AppError{Code: ErrCodeInternal, Message: "load", Cause: errors.New("boom")}, want: "load: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	cause := errors.New("db down")
	err := Wrap(cause, ErrCodeInternal, "create job")
	if !errors.Is(err, cause) {
		t.Fatalf("wrapped error should unwrap to cause")
	}
	if GetCode(err) != ErrCodeInternal {
		t.Errorf("GetCode() = %q", GetCode(err))
	}
	if Wrap(nil, ErrCodeInternal, "noop") != nil {
		t.Errorf("Wrap(nil) should be nil")
	}
}

func TestIsHelpers(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", Conflictf("dup"))
	if !IsConflict(wrapped) {
		t.Errorf("IsConflict() should see through wrapping")
	}
	if IsNotFound(wrapped) || IsValidation(wrapped) {
		t.Errorf("unexpected code match")
	}
	if !IsValidation(ValidationField("sort", "bad sort")) {
		t.Errorf("IsValidation() = false")
	}
	if GetField(ValidationField("sort", "bad sort")) != "sort" {
		t.Errorf("GetField() mismatch")
	}
	if IsAppError(nil, ErrCodeInternal) || GetCode(errors.New("x")) != "" {
		t.Errorf("plain errors carry no code")
	}
	if !IsAppError(Internalf("x"), ErrCodeInternal) {
		t.Errorf("Internalf code mismatch")
	}
}
