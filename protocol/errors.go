package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Remote error codes the client branches on.
const (
	RemoteCodeUnknown         = 1
	RemoteCodeInvalidInput    = 2
	RemoteCodeNoPermission    = 3
	RemoteCodeBadTicket       = 4
	RemoteCodeSignInRequired  = 22
	RemoteCodeInvalidAppToken = 24
	RemoteCodeNoSuchRecord    = 30
	RemoteCodeNoSuchField     = 31
	RemoteCodeNoSuchDatabase  = 32
	RemoteCodeMissingRequired = 50
	RemoteCodeNonUniqueValue  = 51
)

// RemoteCallError is returned when the service answers with a non-zero
// error code. Code, Text and Detail are the service's own values.
type RemoteCallError struct {
	Action string `json:"action"`
	DBID   string `json:"dbid,omitempty"`
	Code   int    `json:"code"`
	Text   string `json:"text"`
	Detail string `json:"detail,omitempty"`
}

// NewRemoteCallError creates a new remote call error.
func NewRemoteCallError(action string, code int, text, detail string) *RemoteCallError {
	return &RemoteCallError{
		Action: action,
		Code:   code,
		Text:   text,
		Detail: detail,
	}
}

// Error implements the error interface
func (e *RemoteCallError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: [%d] %s (%s)", e.Action, e.Code, e.Text, e.Detail)
	}
	return fmt.Sprintf("%s: [%d] %s", e.Action, e.Code, e.Text)
}

// IsAuthFailure reports whether the error means the ticket or app token
// was rejected.
func (e *RemoteCallError) IsAuthFailure() bool {
	switch e.Code {
	case RemoteCodeBadTicket, RemoteCodeSignInRequired, RemoteCodeInvalidAppToken:
		return true
	default:
		return false
	}
}

// ToJSON serializes the error to JSON.
func (e *RemoteCallError) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// RemoteCode returns the remote error code carried by err, if any.
func RemoteCode(err error) (int, bool) {
	var rce *RemoteCallError
	if errors.As(err, &rce) {
		return rce.Code, true
	}
	return 0, false
}

// IsNoSuchRecord reports whether err is the remote "no such record" error.
func IsNoSuchRecord(err error) bool {
	code, ok := RemoteCode(err)
	return ok && code == RemoteCodeNoSuchRecord
}

// ErrorCode represents local failures of the transport layer.
type ErrorCode int

const (
	// Connection errors (1000-1099)
	ErrorCodeConnectionRefused ErrorCode = 1001
	ErrorCodeTimeout           ErrorCode = 1002
	ErrorCodeHTTPStatus        ErrorCode = 1003
	ErrorCodeBackpressure      ErrorCode = 1010

	// Protocol errors (2000-2099)
	ErrorCodeProtocolError ErrorCode = 2001
)

// TransportError represents a failure to complete a call, as opposed to a
// call the service answered with an error.
type TransportError struct {
	Code        ErrorCode              `json:"code"`
	Message     string                 `json:"message"`
	Details     map[string]interface{} `json:"details,omitempty"`
	IsRetryable bool                   `json:"isRetryable"`
	Cause       error                  `json:"-"`
}

// Error implements the error interface
func (e *TransportError) Error() string {
	msg := fmt.Sprintf("[%d] %s", e.Code, e.Message)
	if len(e.Details) > 0 {
		detailsJSON, _ := json.Marshal(e.Details)
		msg += fmt.Sprintf(" (details: %s)", string(detailsJSON))
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause error.
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// NewTransportError creates a new transport error
func NewTransportError(code ErrorCode, message string, details map[string]interface{}, cause error) *TransportError {
	return &TransportError{
		Code:        code,
		Message:     message,
		Details:     details,
		IsRetryable: isRetryable(code),
		Cause:       cause,
	}
}

// isRetryable determines if an error code represents a retryable error
func isRetryable(code ErrorCode) bool {
	switch code {
	case ErrorCodeTimeout, ErrorCodeBackpressure:
		return true
	default:
		return false
	}
}

// ConnectionError creates a connection-related transport error
func ConnectionError(message string, details map[string]interface{}, cause error) *TransportError {
	return NewTransportError(ErrorCodeConnectionRefused, message, details, cause)
}

// TimeoutError creates a timeout transport error
func TimeoutError(message string, details map[string]interface{}, cause error) *TransportError {
	return NewTransportError(ErrorCodeTimeout, message, details, cause)
}

// HTTPStatusError creates an error for a non-2xx HTTP status
func HTTPStatusError(status int, action string) *TransportError {
	return NewTransportError(ErrorCodeHTTPStatus, "unexpected HTTP status", map[string]interface{}{
		"status": status,
		"action": action,
	}, nil)
}

// BackpressureError creates a backpressure transport error
func BackpressureError(inFlight int) *TransportError {
	return NewTransportError(ErrorCodeBackpressure, "too many calls in flight", map[string]interface{}{
		"inFlight": inFlight,
	}, nil)
}

// ProtocolError represents malformed or inconsistent responses.
type ProtocolError struct {
	Code    string                 `json:"code"`
	Type    string                 `json:"type"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// NewProtocolError creates a protocol error.
func NewProtocolError(code, message string, cause error) *ProtocolError {
	return &ProtocolError{
		Code:    code,
		Type:    "PROTOCOL_ERROR",
		Message: message,
		Cause:   cause,
	}
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %s)", e.Code, e.Message, e.Cause.Error())
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error.
func (e *ProtocolError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail entry and returns e.
func (e *ProtocolError) WithDetail(key string, v interface{}) *ProtocolError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = v
	return e
}
