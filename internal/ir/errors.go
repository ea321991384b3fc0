package ir

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes failures surfaced by augmentation, encoding, and execution.
type ErrorCode string

const (
	// CodeParse indicates the statement could not be parsed.
	CodeParse ErrorCode = "PARSE_ERROR"

	// CodeUnsupportedQueryType indicates a statement kind outside the supported set.
	CodeUnsupportedQueryType ErrorCode = "UNSUPPORTED_QUERY_TYPE"

	// CodeUnsupportedColumnType indicates a column type with no type tag.
	CodeUnsupportedColumnType ErrorCode = "UNSUPPORTED_COLUMN_TYPE"

	// CodeMissingColumnDefinitions indicates CREATE without columns or INSERT without a column list.
	CodeMissingColumnDefinitions ErrorCode = "MISSING_COLUMN_DEFINITIONS"

	// CodeColumnNotFound indicates a named column is absent from the live schema.
	CodeColumnNotFound ErrorCode = "COLUMN_NOT_FOUND"

	// CodeTypeMismatch indicates a value kind the column's tag cannot hold.
	CodeTypeMismatch ErrorCode = "TYPE_MISMATCH"

	// CodeValidation indicates a malformed value for the column's tag.
	CodeValidation ErrorCode = "VALIDATION_ERROR"

	// CodeUnscopedMutation indicates UPDATE or DELETE without WHERE.
	CodeUnscopedMutation ErrorCode = "UNSCOPED_MUTATION_REJECTED"

	// CodeResolution indicates (owner, name) did not resolve to a database.
	CodeResolution ErrorCode = "RESOLUTION_ERROR"

	// CodeChainCall indicates the contract gateway rejected or failed a call.
	CodeChainCall ErrorCode = "CHAIN_CALL_ERROR"

	// CodeRollbackFailure indicates the mirror could not be restored after a failure.
	CodeRollbackFailure ErrorCode = "ROLLBACK_FAILURE"

	// CodeReservedIdentifier indicates user SQL named the bookkeeping prefix.
	CodeReservedIdentifier ErrorCode = "RESERVED_IDENTIFIER"

	// CodeTableNotFound indicates the table does not exist on chain.
	CodeTableNotFound ErrorCode = "TABLE_NOT_FOUND"

	// CodeMirror indicates the mirror store rejected the rewritten statement.
	CodeMirror ErrorCode = "MIRROR_ERROR"

	// CodeMirrorDiverged indicates mirror and chain disagree on affected rows.
	CodeMirrorDiverged ErrorCode = "MIRROR_DIVERGED"
)

// Error is the structured error returned across package boundaries.
// Table and Column carry context when known.
type Error struct {
	Code    ErrorCode
	Message string
	Table   string
	Column  string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	switch {
	case e.Table != "" && e.Column != "":
		msg += fmt.Sprintf(" (table=%s, column=%s)", e.Table, e.Column)
	case e.Column != "":
		msg += fmt.Sprintf(" (column=%s)", e.Column)
	case e.Table != "":
		msg += fmt.Sprintf(" (table=%s)", e.Table)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf creates an Error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError creates an Error wrapping a cause.
func WrapError(code ErrorCode, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// WithTable sets the table context and returns e.
func (e *Error) WithTable(table string) *Error {
	e.Table = table
	return e
}

// WithColumn sets the column context and returns e.
func (e *Error) WithColumn(column string) *Error {
	e.Column = column
	return e
}

// RollbackError reports that restoring the mirror failed after an earlier
// failure. Both errors stay reachable through errors.Is and errors.As.
type RollbackError struct {
	Trigger error
	Restore error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("%s: mirror restore failed: %v (after: %v)", CodeRollbackFailure, e.Restore, e.Trigger)
}

func (e *RollbackError) Unwrap() []error {
	return []error{e.Trigger, e.Restore}
}

// CodeOf returns the code carried by err. A failed rollback takes
// precedence over the error that triggered it.
func CodeOf(err error) (ErrorCode, bool) {
	var re *RollbackError
	if errors.As(err, &re) {
		return CodeRollbackFailure, true
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}

// IsCode reports whether err carries code.
func IsCode(err error, code ErrorCode) bool {
	got, ok := CodeOf(err)
	return ok && got == code
}

// IsRollbackFailure reports whether restoring the mirror failed.
func IsRollbackFailure(err error) bool {
	var re *RollbackError
	return errors.As(err, &re)
}

// Retryable reports whether the failed call may succeed if repeated
// unchanged. Only chain call failures qualify; validation and scope
// rejections never do.
func Retryable(err error) bool {
	if IsRollbackFailure(err) {
		return false
	}
	return IsCode(err, CodeChainCall)
}
