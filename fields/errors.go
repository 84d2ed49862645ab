package fields

import (
	"encoding/json"
	"fmt"
)

// UnknownFieldError is returned when a field name has no registered spec.
type UnknownFieldError struct {
	Code    string                 `json:"code"`
	Type    string                 `json:"type"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details"`
	Ref     string                 `json:"ref"`
}

// NewUnknownFieldError builds an UnknownFieldError for ref.
func NewUnknownFieldError(ref string) *UnknownFieldError {
	return &UnknownFieldError{
		Code:    "E_UNKNOWN_FIELD",
		Type:    "FIELD_ERROR",
		Message: fmt.Sprintf("unrecognized field name: %s", ref),
		Details: map[string]interface{}{
			"ref": ref,
		},
		Ref: ref,
	}
}

// Error implements the error interface.
func (e *UnknownFieldError) Error() string {
	return e.FormatError(false)
}

// FormatError formats the error based on debug mode.
func (e *UnknownFieldError) FormatError(debugMode bool) string {
	if !debugMode {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	b, _ := json.MarshalIndent(e, "", "  ")
	return string(b)
}

// DuplicateFieldError is returned when two declarations share one id.
type DuplicateFieldError struct {
	Code    string                 `json:"code"`
	Type    string                 `json:"type"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details"`
}

// NewDuplicateFieldError builds a DuplicateFieldError.
func NewDuplicateFieldError(id ID, first, second string) *DuplicateFieldError {
	return &DuplicateFieldError{
		Code:    "E_DUPLICATE_FIELD",
		Type:    "FIELD_ERROR",
		Message: fmt.Sprintf("fields %q and %q both declare id %d", first, second, id),
		Details: map[string]interface{}{
			"fid":    int(id),
			"first":  first,
			"second": second,
		},
	}
}

// Error implements the error interface.
func (e *DuplicateFieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
