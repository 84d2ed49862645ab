package value

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseNumeric reads a numeric field. Integral numbers become Int, others
// Float. A blank field stays a blank String.
func ParseNumeric(raw string) (Value, error) {
	if raw == "" {
		return String(""), nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return Int(i), nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, newConversionError(raw, "numeric", err)
	}
	return Float(f), nil
}

// ParseEpochMillis reads a date or datetime field returned as epoch
// milliseconds. A blank field stays a blank String.
func ParseEpochMillis(raw string) (Value, error) {
	if raw == "" {
		return String(""), nil
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, newConversionError(raw, "date", err)
	}
	return Time(time.UnixMilli(ms)), nil
}

// AsInt coerces a decoded value to an integer.
func AsInt(v Value) (int64, error) {
	switch x := v.(type) {
	case Int:
		return int64(x), nil
	case Float:
		return int64(x), nil
	case Bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case Time:
		return x.Std().UnixMilli(), nil
	case String:
		i, err := strconv.ParseInt(strings.TrimSpace(string(x)), 10, 64)
		if err != nil {
			return 0, newConversionError(string(x), "int", err)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to int", v)
	}
}

// AsFloat coerces a decoded value to a float.
func AsFloat(v Value) (float64, error) {
	switch x := v.(type) {
	case Float:
		return float64(x), nil
	case Int:
		return float64(x), nil
	case Bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case String:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(x)), 64)
		if err != nil {
			return 0, newConversionError(string(x), "float", err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to float", v)
	}
}

// AsBool coerces a decoded value to a boolean. Checkbox fields come back
// as "1"/"0".
func AsBool(v Value) (bool, error) {
	switch x := v.(type) {
	case Bool:
		return bool(x), nil
	case Int:
		return x != 0, nil
	case Float:
		return x != 0, nil
	case String:
		switch strings.ToLower(string(x)) {
		case "1", "true", "yes", "y", "on":
			return true, nil
		case "0", "false", "no", "n", "off", "":
			return false, nil
		default:
			return false, newConversionError(string(x), "boolean", nil)
		}
	default:
		return false, fmt.Errorf("cannot convert %T to boolean", v)
	}
}

// AsTime coerces a decoded value to a time.Time. Strings are read as epoch
// milliseconds first, then as RFC 3339 or a plain date.
func AsTime(v Value) (time.Time, error) {
	switch x := v.(type) {
	case Time:
		return x.Std(), nil
	case Int:
		return time.UnixMilli(int64(x)), nil
	case String:
		s := string(x)
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.UnixMilli(ms), nil
		}
		formats := []string{
			time.RFC3339,
			time.RFC3339Nano,
			"2006-01-02 15:04:05",
			"2006-01-02",
		}
		for _, format := range formats {
			if t, err := time.Parse(format, s); err == nil {
				return t, nil
			}
		}
		return time.Time{}, newConversionError(s, "datetime", nil)
	default:
		return time.Time{}, fmt.Errorf("cannot convert %T to datetime", v)
	}
}
