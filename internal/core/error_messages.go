package core

// error_messages.go maps technical errors to user-facing messages with
// support codes.
//
// # Error Codes Reference
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large: File exceeds the maximum upload size
//	FILE002 - Unsupported format: Only .csv, .xls, .xlsx and .json are accepted
//	FILE003 - Invalid CSV: The CSV file could not be read
//	FILE004 - Invalid spreadsheet: The workbook could not be read
//	FILE005 - Invalid JSON: The JSON file could not be read
//	FILE006 - Encoding error: The file uses an unreadable text encoding
//	FILE007 - No file: No file was provided
//	FILE008 - Empty file: The file has no data rows
//
// # Catalog Errors (CAT001-CAT099)
//
//	CAT001 - Catalog not found
//	CAT002 - Catalog already processed: mappings and imports need a pending catalog
//	CAT003 - No field mappings: mappings must be saved before an import
//	CAT004 - Invalid field mapping
//	CAT005 - Schema pending: the file has not been analyzed yet
//
// # Supplier Errors (SUP001-SUP099)
//
//	SUP001 - Supplier not found
//	SUP002 - Supplier inactive
//	SUP003 - Invalid supplier
//
// # Job Errors (JOB001-JOB099)
//
//	JOB001 - Job not found
//	JOB002 - Import cancelled
//	JOB003 - Job already finished
//	JOB004 - Job interrupted: the worker stopped while the job was running
//
// # Source Errors (SRC001-SRC099)
//
//	SRC001 - Fetch failed: the catalog file could not be retrieved
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Duplicate key
//	DB003 - Foreign key: referenced record does not exist
//	DB004 - Connection refused
//	DB005 - Connection reset
//	DB006 - Timeout
//	DB007 - Deadlock
//	DB008 - Write failed: a batch could not be saved
//
// # Request Errors (REQ001-REQ099)
//
//	REQ001 - Request cancelled
//	REQ002 - Request timeout
//	REQ003 - System busy
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error: check application logs for the technical error
//
// Patterns are matched case-insensitively with strings.Contains and the
// first match wins, so specific patterns precede general ones.

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
	// File errors
	{"file too large", UserMessage{"File exceeds the maximum upload size", "Split the file into smaller files", "FILE001"}},
	{"unsupported file format", UserMessage{"This file type is not supported", "Upload a .csv, .xls, .xlsx or .json file", "FILE002"}},
	{"decode text", UserMessage{"The file uses an unreadable text encoding", "Save the file as UTF-8", "FILE006"}},
	{"parse csv", UserMessage{"The CSV file could not be read", "Check quoting and that every line is comma-separated", "FILE003"}},
	{"parse excel", UserMessage{"The spreadsheet could not be read", "Re-save the workbook as .xlsx and upload it again", "FILE004"}},
	{"parse json", UserMessage{"The JSON file could not be read", "Provide an object or an array of objects", "FILE005"}},
	{"no file provided", UserMessage{"No file was provided", "Select a catalog file to upload", "FILE007"}},
	{"empty file", UserMessage{"The file has no data rows", "Upload a file with a header and at least one row", "FILE008"}},

	// Catalog errors
	{"catalog not found", UserMessage{"Catalog not found", "Check the catalog id", "CAT001"}},
	{"catalog already processed", UserMessage{"This catalog has already been processed", "Upload the file again to import it with new mappings", "CAT002"}},
	{"field mappings must be defined", UserMessage{"Field mappings are not defined", "Save field mappings before starting the import", "CAT003"}},
	{"invalid field mapping", UserMessage{"A field mapping is invalid", "Give every mapping a source and target column and a known rule", "CAT004"}},
	{"schema not detected yet", UserMessage{"The file is still being analyzed", "Try again in a few moments", "CAT005"}},

	// Supplier errors
	{"supplier not found", UserMessage{"Supplier not found", "Register the supplier first", "SUP001"}},
	{"supplier is inactive", UserMessage{"Supplier is inactive", "Reactivate the supplier before uploading", "SUP002"}},
	{"invalid supplier", UserMessage{"Supplier details are invalid", "Provide a positive id and a name", "SUP003"}},

	// Job errors
	{"job not found", UserMessage{"Job not found", "Check the job id", "JOB001"}},
	{"import cancelled", UserMessage{"The import was cancelled", "Upload the file again when ready", "JOB002"}},
	{"job already finished", UserMessage{"The job has already finished", "Check the catalog status", "JOB003"}},
	{"job interrupted", UserMessage{"The job was interrupted", "Upload the file again", "JOB004"}},

	// Source errors
	{"fetch from", UserMessage{"The catalog file could not be retrieved", "Check the source and try again", "SRC001"}},

	// Database errors
	{"persistence error", UserMessage{"Imported rows could not be saved", "Please try again", "DB008"}},
	{"duplicate key", UserMessage{"A record with this ID already exists", "Please try again", "DB001"}},
	{"violates foreign key", UserMessage{"Referenced record does not exist", "Check that the supplier and catalog exist", "DB003"}},
	{"connection refused", UserMessage{"Unable to connect to a backing service", "Please try again in a few moments", "DB004"}},
	{"connection reset", UserMessage{"A backing service connection was interrupted", "Please try again", "DB005"}},
	{"deadlock", UserMessage{"The database was busy with conflicting operations", "Please try again", "DB007"}},

	// Request errors
	{"context canceled", UserMessage{"Request was cancelled", "Please try again", "REQ001"}},
	{"context deadline exceeded", UserMessage{"Request timed out", "Try a smaller file or try again later", "REQ002"}},
	{"timeout", UserMessage{"Operation timed out", "Please try again later", "DB006"}},
	{"server busy", UserMessage{"The server is busy with other uploads", "Please wait a moment and try again", "REQ003"}},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message. The first
// matching pattern wins; unmatched errors get ERR000.
//
//	msg := MapError(ErrCatalogNotPending)
//	// msg.Code == "CAT002"
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

// IsUserFacing reports whether err matches a known pattern.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error, kept for logging, with its user message.
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

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
