package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/seiql/internal/engine"
	"github.com/roach88/seiql/internal/ir"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Statement rejected or failed, scenarios failed
	ExitCommandError = 2 // Bad flags, unreadable config, missing files
)

// ErrCodeUnknown is reported for failures that carry no structured code.
const ErrCodeUnknown = "UNKNOWN"

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // diagnostics; defaults to Writer
	Verbose   bool
}

// CLIResponse is the JSON envelope for every command.
type CLIResponse struct {
	Status      string    `json:"status"` // "ok" or "error"
	Data        any       `json:"data,omitempty"`
	Error       *CLIError `json:"error,omitempty"`
	ExecutionID string    `json:"execution_id,omitempty"`
}

// CLIError is the error structure for CLI responses. Code is the
// structured error code, e.g. VALIDATION_ERROR.
type CLIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Table     string `json:"table,omitempty"`
	Column    string `json:"column,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
	Details   any    `json:"details,omitempty"`
}

// Success outputs a successful result in the configured format. text
// renders the text form; when nil, data is printed with fmt.
func (f *OutputFormatter) Success(data any, text func(io.Writer)) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	if text != nil {
		text(f.Writer)
		return nil
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error envelope in the configured format.
func (f *OutputFormatter) Error(e *CLIError) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error:  e,
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", e.Code, e.Message)
	if e.Table != "" || e.Column != "" {
		fmt.Fprintf(f.Writer, "  table=%s column=%s\n", e.Table, e.Column)
	}
	if f.Verbose && e.Details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", e.Details)
	}
	return nil
}

// Fail reports err and returns the ExitError the command should return.
func (f *OutputFormatter) Fail(err error) error {
	if outErr := f.Error(toCLIError(err)); outErr != nil {
		return outErr
	}
	return WrapExitError(ExitFailure, "command failed", err)
}

// toCLIError flattens err into the response error shape.
func toCLIError(err error) *CLIError {
	out := &CLIError{Code: ErrCodeUnknown, Message: err.Error()}
	if code, ok := ir.CodeOf(err); ok {
		out.Code = string(code)
	}
	var e *ir.Error
	if errors.As(err, &e) {
		out.Table = e.Table
		out.Column = e.Column
	}
	out.Retryable = ir.Retryable(err)

	var rb *ir.RollbackError
	switch {
	case errors.As(err, &rb):
		out.Details = map[string]string{
			"trigger": rb.Trigger.Error(),
			"restore": rb.Restore.Error(),
			"hint":    "the mirror may no longer match the chain; rebuild it before retrying",
		}
	case engine.IsDivergence(err):
		out.Details = map[string]string{
			"hint": "mirror and chain disagree; rebuild the mirror for this database",
		}
	}
	return out
}

// VerboseLog outputs a message only if verbose mode is enabled.
// In JSON mode it goes to ErrWriter so the JSON stays parseable.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
