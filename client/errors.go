package client

import (
	"encoding/json"
	"fmt"
	"runtime"
	"time"
)

// ArgumentGuardError is returned when an operation is called with an
// argument that is missing or would act on more than the caller meant,
// such as a delete with no target. No remote call has been issued.
type ArgumentGuardError struct {
	Code       string                 `json:"code"`
	Type       string                 `json:"type"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details"`
	Operation  string                 `json:"operation"`
	StackTrace []string               `json:"stack_trace,omitempty"`
	Timestamp  time.Time              `json:"timestamp,omitempty"`
}

// NewArgumentGuardError builds an ArgumentGuardError for operation.
func NewArgumentGuardError(operation, message string) *ArgumentGuardError {
	return &ArgumentGuardError{
		Code:       "E_ARGUMENT_GUARD",
		Type:       "ARGUMENT_ERROR",
		Message:    message,
		Details:    map[string]interface{}{"operation": operation},
		Operation:  operation,
		StackTrace: captureStackTrace(),
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface.
func (e *ArgumentGuardError) Error() string {
	return e.FormatError(false)
}

// FormatError formats the error based on debug mode.
func (e *ArgumentGuardError) FormatError(debugMode bool) string {
	if !debugMode {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Operation, e.Message)
	}

	errorData := map[string]interface{}{
		"code":      e.Code,
		"type":      e.Type,
		"message":   e.Message,
		"operation": e.Operation,
	}

	if len(e.Details) > 0 {
		errorData["details"] = e.Details
	}

	if len(e.StackTrace) > 0 {
		errorData["stack_trace"] = e.StackTrace
	}

	if !e.Timestamp.IsZero() {
		errorData["timestamp"] = e.Timestamp.Format(time.RFC3339Nano)
	}

	b, _ := json.MarshalIndent(errorData, "", "  ")
	return string(b)
}

// UnknownTableError is returned when an alias is not listed in the
// application schema.
type UnknownTableError struct {
	Code    string                 `json:"code"`
	Type    string                 `json:"type"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details"`
	Alias   string                 `json:"alias"`
	AppDBID string                 `json:"app_dbid,omitempty"`
}

// NewUnknownTableError builds an UnknownTableError.
func NewUnknownTableError(alias, appDBID string) *UnknownTableError {
	msg := fmt.Sprintf("table alias %q not found", alias)
	if appDBID != "" {
		msg = fmt.Sprintf("table alias %q not found in application %s", alias, appDBID)
	}
	return &UnknownTableError{
		Code:    "E_UNKNOWN_TABLE",
		Type:    "TABLE_ERROR",
		Message: msg,
		Details: map[string]interface{}{"alias": alias, "app_dbid": appDBID},
		Alias:   alias,
		AppDBID: appDBID,
	}
}

// Error implements the error interface.
func (e *UnknownTableError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// BatchError reports a fan-out in which some sub-calls failed. Effects of
// the sub-calls that succeeded are not rolled back. Unwrap returns the
// first failure, so errors.As still reaches the remote error.
type BatchError struct {
	Code      string                 `json:"code"`
	Type      string                 `json:"type"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details"`
	Operation string                 `json:"operation"`
	Failed    int                    `json:"failed"`
	Total     int                    `json:"total"`
	Cause     error                  `json:"-"`
}

// NewBatchError builds a BatchError for operation.
func NewBatchError(operation string, failed, total int, cause error) *BatchError {
	return &BatchError{
		Code:    "E_PARTIAL_FAILURE",
		Type:    "BATCH_ERROR",
		Message: fmt.Sprintf("%d of %d sub-calls failed", failed, total),
		Details: map[string]interface{}{
			"operation": operation,
			"failed":    failed,
			"total":     total,
		},
		Operation: operation,
		Failed:    failed,
		Total:     total,
		Cause:     cause,
	}
}

// Error implements the error interface.
func (e *BatchError) Error() string {
	return e.FormatError(false)
}

// FormatError formats the error based on debug mode.
func (e *BatchError) FormatError(debugMode bool) string {
	if !debugMode {
		return fmt.Sprintf("%s: %s: %s (caused by: %s)", e.Code, e.Operation, e.Message, e.Cause.Error())
	}

	errorData := map[string]interface{}{
		"code":      e.Code,
		"type":      e.Type,
		"message":   e.Message,
		"operation": e.Operation,
		"details":   e.Details,
		"cause":     map[string]interface{}{"message": e.Cause.Error()},
	}

	b, _ := json.MarshalIndent(errorData, "", "  ")
	return string(b)
}

// Unwrap returns the first sub-call failure.
func (e *BatchError) Unwrap() error {
	return e.Cause
}

// Helper functions

// captureStackTrace captures the current stack trace for error reporting.
func captureStackTrace() []string {
	const maxDepth = 32
	pcs := make([]uintptr, maxDepth)
	n := runtime.Callers(3, pcs) // Skip captureStackTrace, the error constructor, and runtime.Callers

	frames := make([]string, 0, n)
	callersFrames := runtime.CallersFrames(pcs[:n])

	for {
		frame, more := callersFrames.Next()

		frames = append(frames, fmt.Sprintf("%s (%s:%d)",
			frame.Function,
			frame.File,
			frame.Line,
		))

		if !more {
			break
		}
	}

	return frames
}

// FormatError is a helper to format any error with debug mode support.
func FormatError(err error, debugMode bool) string {
	if err == nil {
		return ""
	}

	// Check if error implements our custom format interface
	type debugFormatter interface {
		FormatError(bool) string
	}

	if formatter, ok := err.(debugFormatter); ok {
		return formatter.FormatError(debugMode)
	}

	// Fallback to standard error string
	return err.Error()
}
