package value

import (
	"fmt"
)

// UnsupportedValueError is returned when a value has no protocol string form.
type UnsupportedValueError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details"`
	Value   interface{}            `json:"-"`
}

// NewUnsupportedValueError builds an UnsupportedValueError for v.
func NewUnsupportedValueError(v interface{}) *UnsupportedValueError {
	return &UnsupportedValueError{
		Code:    "E_UNSUPPORTED_VALUE",
		Message: fmt.Sprintf("cannot send value of type %T", v),
		Details: map[string]interface{}{
			"type": fmt.Sprintf("%T", v),
		},
		Value: v,
	}
}

// Error implements the error interface.
func (e *UnsupportedValueError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ConversionError is returned by the built-in in-converters when a raw
// string cannot be read as the declared type.
type ConversionError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Raw     string `json:"raw"`
	Target  string `json:"target"`
	Cause   error  `json:"-"`
}

func newConversionError(raw, target string, cause error) *ConversionError {
	return &ConversionError{
		Code:    "E_CONVERSION",
		Message: fmt.Sprintf("cannot convert %q to %s", raw, target),
		Raw:     raw,
		Target:  target,
		Cause:   cause,
	}
}

// Error implements the error interface.
func (e *ConversionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %s)", e.Code, e.Message, e.Cause.Error())
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error.
func (e *ConversionError) Unwrap() error {
	return e.Cause
}
