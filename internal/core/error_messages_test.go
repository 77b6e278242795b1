package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    string
		wantMessage string
	}{
		{
			name:        "nil error returns empty",
			err:         nil,
			wantCode:    "",
			wantMessage: "",
		},
		{
			name:        "missing session token",
			err:         sessionf("session token missing"),
			wantCode:    "SES001",
			wantMessage: "No working file was named in the request",
		},
		{
			name:        "session mismatch",
			err:         sessionf("file %q does not match the active session", "abc"),
			wantCode:    "SES002",
			wantMessage: "This request belongs to a different working file",
		},
		{
			name:        "row not found",
			err:         validationf("row not found: %d", 7),
			wantCode:    "VAL001",
			wantMessage: "The row no longer exists",
		},
		{
			name:        "empty history",
			err:         &Error{Kind: ErrEmptyHistory},
			wantCode:    "HIS001",
			wantMessage: "There is nothing to undo",
		},
		{
			name:        "wrapped storage error",
			err:         fmt.Errorf("undo: %w", storageErr("get blob", errors.New("disk gone"))),
			wantCode:    "STO001",
			wantMessage: "Stored data could not be accessed",
		},
		{
			name:        "unknown error returns default",
			err:         errors.New("some random internal error"),
			wantCode:    "ERR000",
			wantMessage: "An unexpected error occurred",
		},
		{
			name:        "case insensitive matching",
			err:         errors.New("ROW NOT FOUND"),
			wantCode:    "VAL001",
			wantMessage: "The row no longer exists",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
			if got.Message != tt.wantMessage {
				t.Errorf("MapError() message = %q, want %q", got.Message, tt.wantMessage)
			}
		})
	}
}

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		err  error
		kind error
		name string
	}{
		{validationf("x"), ErrValidation, "validation"},
		{sessionf("x"), ErrSession, "session"},
		{&Error{Kind: ErrEmptyHistory}, ErrEmptyHistory, "empty_history"},
		{storageErr("put", errors.New("boom")), ErrStorage, "storage"},
		{errors.New("plain"), nil, "internal"},
	}

	for _, tt := range tests {
		if tt.kind != nil && !errors.Is(tt.err, tt.kind) {
			t.Errorf("errors.Is(%v, %v) = false", tt.err, tt.kind)
		}
		if got := KindOf(tt.err); got != tt.name {
			t.Errorf("KindOf(%v) = %q, want %q", tt.err, got, tt.name)
		}
	}
}

func TestError_UnwrapKeepsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := storageErr("put blob", cause)

	if !errors.Is(err, cause) {
		t.Error("storage error should unwrap to its cause")
	}
	want := "storage error: put blob: disk full"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestIsUserFacing(t *testing.T) {
	if IsUserFacing(nil) {
		t.Error("nil should not be user facing")
	}
	if !IsUserFacing(validationf("column not found: %q", "Vendor")) {
		t.Error("column not found should be user facing")
	}
	if IsUserFacing(errors.New("segfault")) {
		t.Error("unknown errors should not be user facing")
	}
}
