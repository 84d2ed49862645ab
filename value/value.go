// Package value defines the values exchanged with the table service and
// their string rendering. The service stores and returns every field as a
// string; Value is the typed form application code works with.
package value

import (
	"math"
	"strconv"
	"time"
)

// Value is a sealed interface. Only String, Int, Float, Bool and Time
// implement it.
type Value interface {
	// Render returns the protocol string for the value.
	Render() string
	value()
}

// String is a text value. It renders unchanged.
type String string

func (String) value() {}

// Render implements Value.
func (s String) Render() string { return string(s) }

// Int is an integral number.
type Int int64

func (Int) value() {}

// Render implements Value.
func (i Int) Render() string { return strconv.FormatInt(int64(i), 10) }

// Float is a non-integral number. Integral floats render without a
// fractional part, e.g. Float(3) renders as "3".
type Float float64

func (Float) value() {}

// Render implements Value.
func (f Float) Render() string { return strconv.FormatFloat(float64(f), 'f', -1, 64) }

// Bool renders as "1" or "0".
type Bool bool

func (Bool) value() {}

// Render implements Value.
func (b Bool) Render() string {
	if b {
		return "1"
	}
	return "0"
}

// Time is a timestamp. It renders as epoch milliseconds, so sub-millisecond
// precision is lost on the wire.
type Time time.Time

func (Time) value() {}

// Render implements Value.
func (t Time) Render() string { return strconv.FormatInt(time.Time(t).UnixMilli(), 10) }

// Std returns the value as a time.Time.
func (t Time) Std() time.Time { return time.Time(t) }

// Of converts a native Go value to a Value. Values that already implement
// Value are returned as is; anything that is not a string, number, boolean
// or time.Time fails with *UnsupportedValueError.
func Of(v interface{}) (Value, error) {
	switch x := v.(type) {
	case Value:
		return x, nil
	case string:
		return String(x), nil
	case bool:
		return Bool(x), nil
	case int:
		return Int(x), nil
	case int8:
		return Int(x), nil
	case int16:
		return Int(x), nil
	case int32:
		return Int(x), nil
	case int64:
		return Int(x), nil
	case uint:
		return ofUint(uint64(x), v)
	case uint8:
		return Int(x), nil
	case uint16:
		return Int(x), nil
	case uint32:
		return Int(x), nil
	case uint64:
		return ofUint(x, v)
	case float32:
		return Float(x), nil
	case float64:
		return Float(x), nil
	case time.Time:
		return Time(x), nil
	default:
		return nil, NewUnsupportedValueError(v)
	}
}

func ofUint(u uint64, orig interface{}) (Value, error) {
	if u > math.MaxInt64 {
		return nil, NewUnsupportedValueError(orig)
	}
	return Int(int64(u)), nil
}

// Render converts a native Go value or Value to its protocol string.
func Render(v interface{}) (string, error) {
	val, err := Of(v)
	if err != nil {
		return "", err
	}
	return val.Render(), nil
}
