package query

import (
	"fmt"

	"github.com/dan-strohschein/qbdriver/fields"
)

// InvalidQueryValueError is returned when a structured query value would
// corrupt the clause grammar.
type InvalidQueryValueError struct {
	Code    string                 `json:"code"`
	Type    string                 `json:"type"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details"`
	Field   fields.ID              `json:"field"`
	Value   string                 `json:"value"`
}

// NewInvalidQueryValueError builds an InvalidQueryValueError.
func NewInvalidQueryValueError(id fields.ID, v, reason string) *InvalidQueryValueError {
	return &InvalidQueryValueError{
		Code:    "E_INVALID_QUERY_VALUE",
		Type:    "QUERY_ERROR",
		Message: fmt.Sprintf("query value for field %d rejected: %s", id, reason),
		Details: map[string]interface{}{
			"fid":    int(id),
			"value":  v,
			"reason": reason,
		},
		Field: id,
		Value: v,
	}
}

// Error implements the error interface.
func (e *InvalidQueryValueError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// InvalidOptionError is returned for an unrecognized query option key.
type InvalidOptionError struct {
	Code    string                 `json:"code"`
	Type    string                 `json:"type"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details"`
	Option  string                 `json:"option"`
}

// NewInvalidOptionError builds an InvalidOptionError.
func NewInvalidOptionError(option string) *InvalidOptionError {
	return &InvalidOptionError{
		Code:    "E_INVALID_OPTION",
		Type:    "QUERY_ERROR",
		Message: fmt.Sprintf("bad option specified: %s", option),
		Details: map[string]interface{}{
			"option":    option,
			"supported": []string{"limit", "skip"},
		},
		Option: option,
	}
}

// Error implements the error interface.
func (e *InvalidOptionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
