// Package codec converts between application values and the service's
// string-only field representation, applying per-field converters.
package codec

import (
	"github.com/dan-strohschein/qbdriver/fields"
	"github.com/dan-strohschein/qbdriver/value"
)

// Codec encodes and decodes field values for one table.
type Codec struct {
	reg *fields.Registry
}

// New creates a codec over reg.
func New(reg *fields.Registry) *Codec {
	if reg == nil {
		reg = fields.Empty()
	}
	return &Codec{reg: reg}
}

// Registry returns the registry the codec resolves fields against.
func (c *Codec) Registry() *fields.Registry {
	return c.reg
}

// Encode renders v for field ref. The field's out-converter runs first;
// the result must be a string, number, boolean or time.
func (c *Codec) Encode(ref interface{}, v interface{}) (string, error) {
	_, spec, err := c.reg.Lookup(ref)
	if err != nil {
		return "", err
	}
	return encode(spec, v)
}

// EncodeID is Encode for an already resolved id.
func (c *Codec) EncodeID(id fields.ID, v interface{}) (string, error) {
	spec, _ := c.reg.ByID(id)
	return encode(spec, v)
}

func encode(spec *fields.Spec, v interface{}) (string, error) {
	val, err := value.Of(v)
	if err != nil {
		return "", err
	}
	if spec != nil && spec.Out != nil {
		if val, err = spec.Out(val); err != nil {
			return "", err
		}
		if val == nil {
			return "", value.NewUnsupportedValueError(nil)
		}
	}
	return val.Render(), nil
}

// Decode reads raw for field ref. Without an in-converter the raw string is
// returned unchanged and Decode cannot fail for a resolvable ref.
func (c *Codec) Decode(ref interface{}, raw string) (value.Value, error) {
	_, spec, err := c.reg.Lookup(ref)
	if err != nil {
		return nil, err
	}
	return decode(spec, raw)
}

// DecodeID is Decode for an already resolved id.
func (c *Codec) DecodeID(id fields.ID, raw string) (value.Value, error) {
	spec, _ := c.reg.ByID(id)
	return decode(spec, raw)
}

func decode(spec *fields.Spec, raw string) (value.Value, error) {
	if spec != nil && spec.In != nil {
		return spec.In(raw)
	}
	return value.String(raw), nil
}
