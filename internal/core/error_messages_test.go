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
			name:        "missing sheet beats generic source error",
			err:         fmt.Errorf("%w: sheet not found: Listagem de Horas", ErrSourceUnavailable),
			wantCode:    "SRC001",
			wantMessage: "The workbook has no sheet with the configured name",
		},
		{
			name:        "unreadable source",
			err:         fmt.Errorf("%w: zip: not a valid zip file", ErrSourceUnavailable),
			wantCode:    "SRC003",
			wantMessage: "The object is not a readable spreadsheet",
		},
		{
			name:        "missing destination table",
			err:         fmt.Errorf("%w: relation \"voluntarios.stg\" does not exist", ErrSinkFatal),
			wantCode:    "SNK001",
			wantMessage: "The destination table does not exist",
		},
		{
			name:        "connection refused",
			err:         errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"),
			wantCode:    "SNK002",
			wantMessage: "Unable to connect to the database",
		},
		{
			name:        "whole batch rejected",
			err:         fmt.Errorf("%w: copy aborted", ErrSinkFatal),
			wantCode:    "SNK004",
			wantMessage: "The sink rejected the whole batch",
		},
		{
			name:        "unknown profile",
			err:         fmt.Errorf("%w: horas_v9", ErrProfileNotFound),
			wantCode:    "MAP001",
			wantMessage: "No profile is registered under that name",
		},
		{
			name:        "busy",
			err:         ErrTooManyInvocations,
			wantCode:    "INV001",
			wantMessage: "Too many invocations in progress",
		},
		{
			name:        "deadline",
			err:         fmt.Errorf("fetch grid: %w", errors.New("context deadline exceeded")),
			wantCode:    "INV003",
			wantMessage: "The invocation ran past its deadline",
		},
		{
			name:        "unknown error returns default",
			err:         errors.New("some random internal error"),
			wantCode:    "ERR000",
			wantMessage: "An unexpected error occurred",
		},
		{
			name:        "case insensitive matching",
			err:         errors.New("SHEET NOT FOUND"),
			wantCode:    "SRC001",
			wantMessage: "The workbook has no sheet with the configured name",
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

func TestFormatUserError(t *testing.T) {
	result := FormatUserError(ErrTooManyInvocations)

	expected := "Too many invocations in progress (Code: INV001). Resend the notification after a short delay"
	if result != expected {
		t.Errorf("FormatUserError() = %q, want %q", result, expected)
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil error is not user facing", err: nil, want: false},
		{name: "known error is user facing", err: ErrInvalidMapping, want: true},
		{name: "unknown error is not user facing", err: errors.New("random internal error xyz"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUserFacing(tt.err); got != tt.want {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewUserError(t *testing.T) {
	t.Run("nil error returns nil", func(t *testing.T) {
		if got := NewUserError(nil); got != nil {
			t.Errorf("NewUserError(nil) = %v, want nil", got)
		}
	})

	t.Run("wraps technical error with user message", func(t *testing.T) {
		techErr := fmt.Errorf("%w: horas", ErrProfileNotFound)
		userErr := NewUserError(techErr)

		if userErr.Error() != "No profile is registered under that name" {
			t.Errorf("Error() = %q, want user message", userErr.Error())
		}
		if !errors.Is(userErr, ErrProfileNotFound) {
			t.Error("Unwrap() should expose the sentinel")
		}
	})
}
