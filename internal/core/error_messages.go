// # Error Codes Reference
//
// This file maps technical errors to user-facing messages with codes that
// operators can quote when an invocation fails.
//
// # Source Errors (SRC001-SRC099)
//
//	SRC001 - Sheet missing: The workbook has no sheet with the configured name
//	         Action: Check the sheet name in the profile against the workbook
//	         Patterns: "sheet not found"
//
//	SRC002 - Object missing: The uploaded object could not be found
//	         Action: Check the bucket and object name in the notification
//	         Patterns: "no such file", "object not found"
//
//	SRC003 - Unreadable workbook: The object is not a readable spreadsheet
//	         Action: Re-export the workbook as .xlsx or UTF-8 .csv
//	         Patterns: "source unavailable"
//
// # Sink Errors (SNK001-SNK099)
//
//	SNK001 - Destination missing: The destination table does not exist
//	         Action: Create the staging table before loading
//	         Patterns: "does not exist"
//
//	SNK002 - Connection refused: Unable to connect to the database
//	         Action: Please try again in a few moments
//	         Patterns: "connection refused"
//
//	SNK003 - Connection reset: Database connection was interrupted
//	         Action: Please try again
//	         Patterns: "connection reset"
//
//	SNK004 - Batch rejected: The sink rejected the whole batch
//	         Action: Check the run log for the database error
//	         Patterns: "sink failed"
//
// # Mapping Errors (MAP001-MAP099)
//
//	MAP001 - No profile: No profile is registered under that name
//	         Action: List profiles with GET /profiles
//	         Patterns: "profile not found"
//
//	MAP002 - Duplicate profile: Two profiles share a name
//	         Action: Rename one of the profile files
//	         Patterns: "profile already registered"
//
//	MAP003 - Invalid mapping: The profile's mapping cannot be run
//	         Action: Fix the profile definition
//	         Patterns: "invalid mapping"
//
// # Invocation Errors (INV001-INV099)
//
//	INV001 - Busy: Too many invocations in progress
//	         Action: Resend the notification after a short delay
//	         Patterns: "too many concurrent invocations"
//
//	INV002 - Cancelled: The invocation was cancelled
//	         Action: Resend the notification
//	         Patterns: "context canceled"
//
//	INV003 - Timed out: The invocation ran past its deadline
//	         Action: Split the workbook or raise INGEST_INVOCATION_TIMEOUT
//	         Patterns: "context deadline exceeded", "timeout"
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error: An unexpected error occurred
//	         Action: Check the server logs for the run ID
//
// Patterns are matched case-insensitively with strings.Contains and the first
// match wins, so specific patterns come before the general ones they contain.

package core

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// Source
	{
		pattern: "sheet not found",
		msg: UserMessage{
			Message: "The workbook has no sheet with the configured name",
			Action:  "Check the sheet name in the profile against the workbook",
			Code:    "SRC001",
		},
	},
	{
		pattern: "no such file",
		msg: UserMessage{
			Message: "The uploaded object could not be found",
			Action:  "Check the bucket and object name in the notification",
			Code:    "SRC002",
		},
	},
	{
		pattern: "object not found",
		msg: UserMessage{
			Message: "The uploaded object could not be found",
			Action:  "Check the bucket and object name in the notification",
			Code:    "SRC002",
		},
	},
	{
		pattern: "source unavailable",
		msg: UserMessage{
			Message: "The object is not a readable spreadsheet",
			Action:  "Re-export the workbook as .xlsx or UTF-8 .csv",
			Code:    "SRC003",
		},
	},

	// Sink
	{
		pattern: "does not exist",
		msg: UserMessage{
			Message: "The destination table does not exist",
			Action:  "Create the staging table before loading",
			Code:    "SNK001",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to the database",
			Action:  "Please try again in a few moments",
			Code:    "SNK002",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "SNK003",
		},
	},
	{
		pattern: "sink failed",
		msg: UserMessage{
			Message: "The sink rejected the whole batch",
			Action:  "Check the run log for the database error",
			Code:    "SNK004",
		},
	},

	// Mapping
	{
		pattern: "profile not found",
		msg: UserMessage{
			Message: "No profile is registered under that name",
			Action:  "List profiles with GET /profiles",
			Code:    "MAP001",
		},
	},
	{
		pattern: "profile already registered",
		msg: UserMessage{
			Message: "Two profiles share a name",
			Action:  "Rename one of the profile files",
			Code:    "MAP002",
		},
	},
	{
		pattern: "invalid mapping",
		msg: UserMessage{
			Message: "The profile's mapping cannot be run",
			Action:  "Fix the profile definition",
			Code:    "MAP003",
		},
	},

	// Invocation
	{
		pattern: "too many concurrent invocations",
		msg: UserMessage{
			Message: "Too many invocations in progress",
			Action:  "Resend the notification after a short delay",
			Code:    "INV001",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "The invocation was cancelled",
			Action:  "Resend the notification",
			Code:    "INV002",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "The invocation ran past its deadline",
			Action:  "Split the workbook or raise INGEST_INVOCATION_TIMEOUT",
			Code:    "INV003",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "The invocation ran past its deadline",
			Action:  "Split the workbook or raise INGEST_INVOCATION_TIMEOUT",
			Code:    "INV003",
		},
	},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Check the server logs for the run ID",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-facing message. The first
// matching pattern wins; unmatched errors get ERR000. A nil error gives the
// zero UserMessage.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError renders "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matched a specific pattern rather than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user message.
// Error() gives the user message; Unwrap() gives the original.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
