package core

// error_messages.go is the error codes reference.
//
// This file defines user-friendly error messages with codes for support reference.
// When users encounter errors, they can quote the error code to support staff
// for faster diagnosis.
//
// # Session Errors (SES001-SES099)
//
//	SES001 - Missing token: The request did not name a working file
//	         Action: Reload the page or upload the file again
//	         Patterns: "session token missing"
//
//	SES002 - Token mismatch: The request belongs to a different working file
//	         Action: Reload the page to continue with the current file
//	         Patterns: "does not match"
//
//	SES003 - Session expired: The working file could not be recovered
//	         Action: Upload the file again
//	         Patterns: "session expired"
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Row not found          Patterns: "row not found"
//	VAL002 - Column not found       Patterns: "column not found"
//	VAL003 - Unknown operator       Patterns: "unknown operator"
//	VAL004 - Invalid priority       Patterns: "invalid priority"
//	VAL005 - Rule not found         Patterns: "rule not found"
//	VAL006 - No invoice column      Patterns: "no invoice column"
//	VAL007 - Empty file             Patterns: "empty file"
//	VAL008 - Reserved column        Patterns: "is reserved"
//
// # History Errors (HIS001-HIS099)
//
//	HIS001 - Nothing to undo        Patterns: "nothing to undo"
//
// # Storage Errors (STO001-STO099)
//
//	STO001 - Storage failure        Patterns: "storage error"
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large        Patterns: "file too large"
//	FILE002 - Invalid CSV           Patterns: "invalid csv"
//	FILE003 - No file               Patterns: "no file provided"
//
// # Load and Request Errors
//
//	LOAD001 - System busy           Patterns: "too many concurrent loads"
//	REQ001  - Request cancelled     Patterns: "context canceled"
//	REQ002  - Request timeout       Patterns: "context deadline exceeded"
//	RATE001 - Rate limited          Patterns: "rate limit"
//
// # Default Error (ERR000)
//
// Fallback when no specific pattern matches.
//
// # Pattern Matching
//
// Error patterns are matched case-insensitively using strings.Contains.
// The first matching pattern wins, so more specific patterns are listed
// before general ones.

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to user messages.
// The first matching pattern wins, so order matters.
var errorPatterns = []errorPattern{
	// =========================================================================
	// Session Errors (SES001-SES003)
	// =========================================================================
	{
		pattern: "session token missing",
		msg: UserMessage{
			Message: "No working file was named in the request",
			Action:  "Reload the page or upload the file again",
			Code:    "SES001",
		},
	},
	{
		pattern: "does not match",
		msg: UserMessage{
			Message: "This request belongs to a different working file",
			Action:  "Reload the page to continue with the current file",
			Code:    "SES002",
		},
	},
	{
		pattern: "session expired",
		msg: UserMessage{
			Message: "Your working session has expired",
			Action:  "Upload the file again",
			Code:    "SES003",
		},
	},

	// =========================================================================
	// Validation Errors (VAL001-VAL008)
	// =========================================================================
	{
		pattern: "row not found",
		msg: UserMessage{
			Message: "The row no longer exists",
			Action:  "Refresh the table and try again",
			Code:    "VAL001",
		},
	},
	{
		pattern: "column not found",
		msg: UserMessage{
			Message: "The column does not exist",
			Action:  "Refresh the table and pick an existing column",
			Code:    "VAL002",
		},
	},
	{
		pattern: "unknown operator",
		msg: UserMessage{
			Message: "The rule uses an unsupported operator",
			Action:  "Use contains, equals, >, <, >= or <=",
			Code:    "VAL003",
		},
	},
	{
		pattern: "invalid priority",
		msg: UserMessage{
			Message: "The priority is not recognised",
			Action:  "Use High, Medium or Low",
			Code:    "VAL004",
		},
	},
	{
		pattern: "rule not found",
		msg: UserMessage{
			Message: "The rule no longer exists",
			Action:  "Reload the rule list",
			Code:    "VAL005",
		},
	},
	{
		pattern: "no invoice column",
		msg: UserMessage{
			Message: "No invoice number column was detected",
			Action:  "Choose the column that identifies invoices",
			Code:    "VAL006",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The uploaded file has no data rows",
			Action:  "Upload a file with at least one invoice",
			Code:    "VAL007",
		},
	},
	{
		pattern: "is reserved",
		msg: UserMessage{
			Message: "The file uses a reserved column name",
			Action:  "Rename columns called row_id, priority, priority_reason or row_status",
			Code:    "VAL008",
		},
	},

	// =========================================================================
	// History and Storage Errors
	// =========================================================================
	{
		pattern: "nothing to undo",
		msg: UserMessage{
			Message: "There is nothing to undo",
			Action:  "No changes have been made since the last commit",
			Code:    "HIS001",
		},
	},
	{
		pattern: "storage error",
		msg: UserMessage{
			Message: "Stored data could not be accessed",
			Action:  "Please try again",
			Code:    "STO001",
		},
	},

	// =========================================================================
	// File Errors (FILE001-FILE003)
	// =========================================================================
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds maximum size limit",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{
		pattern: "invalid csv",
		msg: UserMessage{
			Message: "File is not a valid CSV",
			Action:  "Ensure file is comma-separated with consistent columns",
			Code:    "FILE002",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a CSV file to upload",
			Code:    "FILE003",
		},
	},

	// =========================================================================
	// Load, Request and Rate Errors
	// =========================================================================
	{
		pattern: "too many concurrent loads",
		msg: UserMessage{
			Message: "Too many files are being loaded",
			Action:  "Please wait a moment and try again",
			Code:    "LOAD001",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "REQ001",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Please try again",
			Code:    "REQ002",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// It searches through known error patterns (case-insensitive) and returns
// the first match. If no pattern matches, a generic fallback message with
// code ERR000 is returned.
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

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
