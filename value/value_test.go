package value

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	ts := time.UnixMilli(1700000000123)

	tests := []struct {
		name string
		in   interface{}
		want string
	}{
		{"string", "a&b", "a&b"},
		{"empty string", "", ""},
		{"int", 42, "42"},
		{"negative int64", int64(-7), "-7"},
		{"uint8", uint8(9), "9"},
		{"float", 1.5, "1.5"},
		{"integral float", float64(3), "3"},
		{"true", true, "1"},
		{"false", false, "0"},
		{"time", ts, "1700000000123"},
		{"value passthrough", Int(5), "5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Render(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOf_Unsupported(t *testing.T) {
	for _, in := range []interface{}{nil, struct{}{}, []string{"a"}, map[string]int{}, uint64(math.MaxUint64)} {
		_, err := Of(in)
		var uve *UnsupportedValueError
		require.Error(t, err)
		assert.True(t, errors.As(err, &uve), "expected UnsupportedValueError for %T", in)
	}
}

func TestParseNumeric(t *testing.T) {
	v, err := ParseNumeric("123")
	require.NoError(t, err)
	assert.Equal(t, Int(123), v)

	v, err = ParseNumeric("1.25")
	require.NoError(t, err)
	assert.Equal(t, Float(1.25), v)

	v, err = ParseNumeric("")
	require.NoError(t, err)
	assert.Equal(t, String(""), v)

	_, err = ParseNumeric("abc")
	var ce *ConversionError
	assert.ErrorAs(t, err, &ce)
	assert.Equal(t, "numeric", ce.Target)
}

func TestParseEpochMillis_RoundTrip(t *testing.T) {
	orig := Time(time.UnixMilli(1234567890123))

	v, err := ParseEpochMillis(orig.Render())
	require.NoError(t, err)
	decoded, ok := v.(Time)
	require.True(t, ok)
	assert.True(t, orig.Std().Equal(decoded.Std()))

	_, err = ParseEpochMillis("yesterday")
	assert.Error(t, err)
}

func TestCoercions(t *testing.T) {
	i, err := AsInt(String("17"))
	require.NoError(t, err)
	assert.Equal(t, int64(17), i)

	f, err := AsFloat(Int(2))
	require.NoError(t, err)
	assert.Equal(t, 2.0, f)

	b, err := AsBool(String("1"))
	require.NoError(t, err)
	assert.True(t, b)

	b, err = AsBool(String("0"))
	require.NoError(t, err)
	assert.False(t, b)

	_, err = AsBool(String("maybe"))
	assert.Error(t, err)

	tm, err := AsTime(String("1000"))
	require.NoError(t, err)
	assert.Equal(t, int64(1000), tm.UnixMilli())

	tm, err = AsTime(String("2024-03-01"))
	require.NoError(t, err)
	assert.Equal(t, 2024, tm.Year())

	_, err = AsInt(String("x1"))
	assert.Error(t, err)
}
