package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/roach88/connect/internal/ir"
	"github.com/roach88/connect/internal/schema"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Runtime failure (coordinator failed to stop, transaction not found)
	ExitCommandError = 2 // Command error (invalid paths, bad config, store load failure)
)

// Error codes reported in the JSON envelope.
const (
	ErrCodeGeneric             = "E001" // Generic/unknown error
	ErrCodeNotFound            = "E005" // Path not found
	ErrCodeSchema              = "E010" // Schema could not be loaded
	ErrCodeConfig              = "E011" // Configuration could not be loaded
	ErrCodeStoreLoad           = "E020" // Store or WAL could not be opened
	ErrCodeTransactionNotFound = "E030" // No such WAL transaction
	ErrCodeCorruptTransaction  = "E031" // WAL entry failed its digest check
)

// ExitError carries the process exit code out of a command.
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

// NewExitError creates an ExitError without a cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError creates an ExitError around err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error, ExitFailure if it has none.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// CLIResponse is the JSON envelope of every command.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError is the error part of the envelope.
type CLIError struct {
	Code    string        `json:"code"`
	Message string        `json:"message"`
	Details *ErrorDetails `json:"details,omitempty"`
}

// ErrorDetails carries what the coordinator's errors know about a failure.
type ErrorDetails struct {
	Kind          ir.ErrorCode `json:"kind,omitempty"`
	Resource      string       `json:"resource,omitempty"`
	TransactionID string       `json:"transaction_id,omitempty"`
	Field         string       `json:"field,omitempty"`
}

func (d *ErrorDetails) String() string {
	var parts []string
	for _, kv := range [][2]string{
		{"kind", string(d.Kind)},
		{"resource", d.Resource},
		{"transaction_id", d.TransactionID},
		{"field", d.Field},
	} {
		if kv[1] != "" {
			parts = append(parts, kv[0]+"="+kv[1])
		}
	}
	return strings.Join(parts, " ")
}

// detailsOf extracts details from err, or returns nil when it carries none.
func detailsOf(err error) *ErrorDetails {
	var d ErrorDetails
	var irErr *ir.Error
	if errors.As(err, &irErr) {
		d.Kind = irErr.Code
		d.Resource = irErr.Resource
		d.TransactionID = irErr.TransactionID
	}
	var loadErr *schema.LoadError
	if errors.As(err, &loadErr) {
		d.Field = loadErr.Field
	}
	if d == (ErrorDetails{}) {
		return nil
	}
	return &d
}

// OutputFormatter writes command results as text or as a JSON envelope.
// Diagnostics go to ErrWriter so they never corrupt JSON output.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer
	Verbose   bool
}

// Success writes data; text output relies on data's String method.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error writes an error with no cause attached.
func (f *OutputFormatter) Error(code, message string) error {
	return f.write(code, message, nil)
}

// Fail writes err, with whatever details its chain carries.
func (f *OutputFormatter) Fail(code string, err error) error {
	return f.write(code, err.Error(), detailsOf(err))
}

func (f *OutputFormatter) write(code, message string, details *ErrorDetails) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %s\n", details)
	}
	return nil
}

// VerboseLog writes a diagnostic line when --verbose is set.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}
