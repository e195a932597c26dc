// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support
// reference. When users encounter errors, they can quote the error code
// to support staff for faster diagnosis.
//
// Error codes are grouped by category:
//
// # Configuration Errors (CFG001-CFG099)
//
//	CFG001 - Invalid configuration: validation rejected the import settings
//	         Action: Run the validate action and fix every listed problem
//
// # Source Errors (SRC001-SRC099)
//
//	SRC001 - Source unavailable: the CSV file or URL could not be read
//	         Action: Check the path or URL and that the file is accessible
//
//	SRC002 - Empty content: the CSV source contained no content
//	         Action: Upload a CSV file with a header and data rows
//
//	SRC003 - No data rows: the CSV had a header but no data
//	         Action: Add at least one data row below the header
//
//	SRC004 - Missing columns: required columns are absent from the header
//	         Action: Add the missing columns or adjust required_columns
//
// # Run Errors (RUN001-RUN099)
//
//	RUN001 - Already running: another import currently holds the lock
//	         Action: Wait for it to finish or cancel it explicitly
//
//	RUN002 - Run cancelled: the import was cancelled
//	         Action: Start a new import when ready
//
//	RUN003 - Run timed out: the import exceeded its time budget
//	         Action: Split the CSV into smaller files
//
// # Storage Errors (DB001-DB099)
//
//	DB001 - Connection failed: the database could not be reached
//	        Action: Please try again in a few moments
//
//	DB002 - Constraint violation: a record conflicted with existing data
//	        Action: Review your CSV for duplicate values
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error: an unexpected error occurred
//	         Action: Please try again or contact support
//
// Patterns are matched case-insensitively with strings.Contains; the first
// match wins, so specific patterns come before general ones. When a user
// reports ERR000, check the import log for the original technical error.
package importer

import (
	"errors"
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

// errorPatterns maps technical error strings (case-insensitive) to user
// messages. Sentinel errors from this package are matched by their message
// text so wrapped errors map correctly too.
var errorPatterns = []errorPattern{
	{
		pattern: "invalid import configuration",
		msg: UserMessage{
			Message: "The import configuration is invalid",
			Action:  "Run the validate action and fix every listed problem",
			Code:    "CFG001",
		},
	},
	{
		pattern: "csv source unavailable",
		msg: UserMessage{
			Message: "The CSV file or URL could not be read",
			Action:  "Check the path or URL and that the file is accessible",
			Code:    "SRC001",
		},
	},
	{
		pattern: "csv content is empty",
		msg: UserMessage{
			Message: "The CSV source contained no content",
			Action:  "Upload a CSV file with a header and data rows",
			Code:    "SRC002",
		},
	},
	{
		pattern: "no data rows",
		msg: UserMessage{
			Message: "The CSV had a header but no data rows",
			Action:  "Add at least one data row below the header",
			Code:    "SRC003",
		},
	},
	{
		pattern: "missing required columns",
		msg: UserMessage{
			Message: "Required columns are missing from the CSV header",
			Action:  "Add the missing columns or adjust required_columns",
			Code:    "SRC004",
		},
	},
	{
		pattern: "already running",
		msg: UserMessage{
			Message: "Another import is currently running",
			Action:  "Wait for it to finish or cancel it explicitly",
			Code:    "RUN001",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "The import was cancelled",
			Action:  "Start a new import when ready",
			Code:    "RUN002",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "The import timed out",
			Action:  "Split the CSV into smaller files",
			Code:    "RUN003",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "The database could not be reached",
			Action:  "Please try again in a few moments",
			Code:    "DB001",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "The database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB001",
		},
	},
	{
		pattern: "unique constraint",
		msg: UserMessage{
			Message: "A record conflicted with existing data",
			Action:  "Review your CSV for duplicate values",
			Code:    "DB002",
		},
	},
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A record conflicted with existing data",
			Action:  "Review your CSV for duplicate values",
			Code:    "DB002",
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
// It searches known error patterns (case-insensitive) and returns the
// first match, or the ERR000 fallback if nothing matches.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var ve *ValidationError
	if errors.As(err, &ve) {
		msg := errorPatterns[0].msg
		return msg
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

// IsUserFacing reports whether an error maps to a specific known pattern
// rather than the generic ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
