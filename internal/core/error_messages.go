package core

// error_messages.go maps technical errors to stable codes with operator
// guidance. Report messages and HTTP errors carry the code so support can
// find the cause quickly.
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Duplicate key            "duplicate key"
//	DB002 - Unique constraint        "unique constraint", "violates unique"
//	DB003 - Foreign key              "foreign key constraint", "violates foreign key"
//	DB004 - Connection refused       "connection refused"
//	DB005 - Connection reset         "connection reset", "broken pipe"
//	DB006 - Timeout                  "timeout", "i/o timeout"
//	DB007 - Deadlock                 "deadlock"
//	DB008 - Database busy            "database is locked", "sqlite_busy"
//	DB009 - Record not found         "record not found"
//	DB010 - Check constraint         "check constraint"
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Invalid date            "invalid date"
//	VAL002 - Invalid number          "invalid number"
//	VAL003 - Required field          "required field"
//	VAL004 - Sheet not found         "sheet index out of range"
//	VAL005 - Bad request body        "invalid request body"
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large         "file too large"
//	FILE002 - Invalid workbook       "invalid workbook", "zip: not a valid zip file"
//	FILE003 - No file                "no file provided"
//	FILE004 - Empty workbook         "empty workbook"
//
// # Import Errors (IMP001-IMP099)
//
//	IMP001 - Session not found       "import session not found"
//	IMP002 - Commit in progress      "commit already in progress"
//	IMP003 - System busy             "too many concurrent commits"
//	IMP004 - Unknown phase           "unknown phase"
//	IMP005 - Missing dependency      "no associated", "not resolved"
//	IMP006 - Phase aborted           "phase aborted"
//	IMP007 - Request cancelled       "context canceled"
//	IMP008 - Request timeout         "context deadline exceeded"
//	IMP009 - Run not found           "import run not found"
//	IMP010 - Folio conflict          "already belongs to another borrower"
//	IMP011 - Payment conflict        "already recorded with a different amount"
//
// # Default Error (ERR000)
//
// Patterns are matched case-insensitively with strings.Contains and the
// first match wins, so specific patterns come before general ones.

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var (
	msgUnique = UserMessage{
		Message: "This value must be unique but already exists",
		Action:  "Check the workbook for duplicated names or national ids",
		Code:    "DB002",
	}
	msgForeignKey = UserMessage{
		Message: "Referenced record does not exist",
		Action:  "Re-run the earlier phases before this one",
		Code:    "DB003",
	}
	msgBusy = UserMessage{
		Message: "Database is busy",
		Action:  "Please try again",
		Code:    "DB008",
	}
	msgInvalidWorkbook = UserMessage{
		Message: "File is not a valid xlsx workbook",
		Action:  "Save the file as Excel Workbook (.xlsx)",
		Code:    "FILE002",
	}
	msgMissingDependency = UserMessage{
		Message: "A required record from an earlier phase is missing",
		Action:  "Fix the errors of the earlier phase and re-run it",
		Code:    "IMP005",
	}
)

var errorPatterns = []errorPattern{
	// =========================================================================
	// Database Constraint Errors (DB001-DB003, DB010)
	// =========================================================================
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A record with this key already exists",
			Action:  "Check the workbook for duplicated rows",
			Code:    "DB001",
		},
	},
	{pattern: "unique constraint", msg: msgUnique},
	{pattern: "violates unique", msg: msgUnique},
	{pattern: "foreign key constraint", msg: msgForeignKey},
	{pattern: "violates foreign key", msg: msgForeignKey},
	{
		pattern: "check constraint",
		msg: UserMessage{
			Message: "A value is outside its allowed range",
			Action:  "Check amounts and the credit subject of the row",
			Code:    "DB010",
		},
	},

	// =========================================================================
	// Database Connection Errors (DB004-DB008)
	// These are transient: ensure operations retry them.
	// =========================================================================
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB004",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB005",
		},
	},
	{
		pattern: "broken pipe",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB005",
		},
	},
	// Context errors are matched before the generic "timeout" pattern.
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "IMP007",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try again, or import a smaller workbook",
			Code:    "IMP008",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Please try again later",
			Code:    "DB006",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB007",
		},
	},
	{pattern: "database is locked", msg: msgBusy},
	{pattern: "sqlite_busy", msg: msgBusy},
	{
		pattern: "record not found",
		msg: UserMessage{
			Message: "Record not found",
			Action:  "Re-run the earlier phases before this one",
			Code:    "DB009",
		},
	},

	// =========================================================================
	// Validation Errors (VAL001-VAL005)
	// =========================================================================
	{
		pattern: "invalid date",
		msg: UserMessage{
			Message: "Invalid date format detected",
			Action:  "Use DD/MM/YYYY or YYYY-MM-DD",
			Code:    "VAL001",
		},
	},
	{
		pattern: "invalid number",
		msg: UserMessage{
			Message: "Invalid number format detected",
			Action:  "Enter amounts and terms as plain numbers",
			Code:    "VAL002",
		},
	},
	{
		pattern: "required field",
		msg: UserMessage{
			Message: "Required field is empty",
			Action:  "Fill in client name, term and weekly quota",
			Code:    "VAL003",
		},
	},
	{
		pattern: "invalid request body",
		msg: UserMessage{
			Message: "The request body could not be read",
			Action:  "Send a valid JSON body",
			Code:    "VAL005",
		},
	},
	{
		pattern: "sheet index out of range",
		msg: UserMessage{
			Message: "Sheet not found",
			Action:  "Reload the import preview",
			Code:    "VAL004",
		},
	},

	// =========================================================================
	// File Errors (FILE001-FILE004)
	// =========================================================================
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds maximum size limit",
			Action:  "Split the workbook into smaller files",
			Code:    "FILE001",
		},
	},
	{pattern: "invalid workbook", msg: msgInvalidWorkbook},
	{pattern: "not a valid zip file", msg: msgInvalidWorkbook},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select an xlsx file to import",
			Code:    "FILE003",
		},
	},
	{
		pattern: "empty workbook",
		msg: UserMessage{
			Message: "The workbook has no sheets",
			Action:  "Please upload a workbook with at least one population sheet",
			Code:    "FILE004",
		},
	},

	// =========================================================================
	// Import Errors (IMP001-IMP011)
	// =========================================================================
	{
		pattern: "import session not found",
		msg: UserMessage{
			Message: "Import session not found",
			Action:  "The session may have expired. Please upload the file again",
			Code:    "IMP001",
		},
	},
	{
		pattern: "commit already in progress",
		msg: UserMessage{
			Message: "A commit is already running for this import",
			Action:  "Wait for it to finish",
			Code:    "IMP002",
		},
	},
	{
		pattern: "too many concurrent commits",
		msg: UserMessage{
			Message: "System is busy processing other imports",
			Action:  "Please wait a moment and try again",
			Code:    "IMP003",
		},
	},
	{
		pattern: "unknown phase",
		msg: UserMessage{
			Message: "Unknown commit phase",
			Action:  "Use one of: populations, coordinators, clients, guarantors, credits, payments",
			Code:    "IMP004",
		},
	},
	{pattern: "no associated", msg: msgMissingDependency},
	{pattern: "not resolved", msg: msgMissingDependency},
	{
		pattern: "phase aborted",
		msg: UserMessage{
			Message: "The phase stopped before processing its rows",
			Action:  "Check the database connection and re-run the phase",
			Code:    "IMP006",
		},
	},
	{
		pattern: "import run not found",
		msg: UserMessage{
			Message: "Import run not found",
			Action:  "List the import history to find a valid run id",
			Code:    "IMP009",
		},
	},
	{
		pattern: "already belongs to another borrower",
		msg: UserMessage{
			Message: "Two rows use the same folio for different borrowers",
			Action:  "Give each credit its own folio and re-run the Credits phase",
			Code:    "IMP010",
		},
	},
	{
		pattern: "already recorded with a different amount",
		msg: UserMessage{
			Message: "A payment for this date was already recorded with another amount",
			Action:  "Check the payment cell against the stored payment",
			Code:    "IMP011",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// transientCodes are the codes the retry helper treats as retryable.
var transientCodes = map[string]bool{
	"DB004": true,
	"DB005": true,
	"DB006": true,
	"DB007": true,
	"DB008": true,
}

// MapError converts a technical error to a user-friendly message.
// If no pattern matches, ERR000 is returned.
//
// Example:
//
//	err := errors.New("UNIQUE constraint failed: routes.name")
//	msg := MapError(err)
//	// msg.Code == "DB002"
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

// IsTransient reports whether err is a connectivity or contention error
// that may succeed on retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	return transientCodes[MapError(err).Code]
}

// UserError wraps a technical error with a user-friendly message.
// The original error is preserved for logging.
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

// reportMessage renders a unit failure for the commit report:
// `<scope>: <message> (<code>): <store error>`.
func reportMessage(scope string, err error) string {
	msg := MapError(err)
	return fmt.Sprintf("%s: %s (%s): %v", scope, msg.Message, msg.Code, err)
}
