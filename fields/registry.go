// Package fields builds the per-table field registry: a bidirectional
// lookup between field names and the numeric field ids assigned by the
// remote schema, carrying optional value converters.
package fields

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/dan-strohschein/qbdriver/value"
)

// ID is a field id assigned by the remote schema.
type ID int

// RecordID is the reserved field holding each row's identifier.
const RecordID ID = 3

// IsRecordID reports whether id is the reserved row-identifier field.
func (id ID) IsRecordID() bool { return id == RecordID }

// String returns the decimal form used on the wire.
func (id ID) String() string { return strconv.Itoa(int(id)) }

// InConverter turns a raw field string from the service into a Value.
type InConverter func(raw string) (value.Value, error)

// OutConverter transforms a Value before it is rendered for the service.
type OutConverter func(v value.Value) (value.Value, error)

// Kind selects the semantic type of a declaration.
type Kind int

const (
	KindPlain Kind = iota
	KindDate
	KindNumeric
	KindCustom
)

// Decl declares one field of a table. Build it with Bare, Date, Numeric or
// Custom; the kind is resolved once by NewRegistry.
type Decl struct {
	ID   ID
	Kind Kind
	In   InConverter
	Out  OutConverter
}

// Bare declares a field with no conversion.
func Bare(id int) Decl { return Decl{ID: ID(id), Kind: KindPlain} }

// Date declares a date/datetime field decoded from epoch milliseconds.
func Date(id int) Decl { return Decl{ID: ID(id), Kind: KindDate} }

// Numeric declares a field decoded as a number.
func Numeric(id int) Decl { return Decl{ID: ID(id), Kind: KindNumeric} }

// Custom declares a field with caller-supplied converters. Either may be nil.
func Custom(id int, in InConverter, out OutConverter) Decl {
	return Decl{ID: ID(id), Kind: KindCustom, In: in, Out: out}
}

// Spec is a resolved field declaration.
type Spec struct {
	ID   ID
	Name string
	In   InConverter
	Out  OutConverter
}

// Registry maps field names and ids to their Spec. It is immutable after
// NewRegistry returns and safe for concurrent use.
type Registry struct {
	byID   map[ID]*Spec
	byName map[string]*Spec
}

// NewRegistry resolves decls into a Registry. Every spec is reachable by
// both id and name.
func NewRegistry(decls map[string]Decl) (*Registry, error) {
	r := &Registry{
		byID:   make(map[ID]*Spec, len(decls)),
		byName: make(map[string]*Spec, len(decls)),
	}

	// Sorted so duplicate-id errors name the same pair on every run.
	names := make([]string, 0, len(decls))
	for name := range decls {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		d := decls[name]
		if d.ID <= 0 {
			return nil, fmt.Errorf("field %q: id must be positive, got %d", name, d.ID)
		}
		if isNumericRef(name) {
			return nil, fmt.Errorf("field %q: name must not be numeric", name)
		}
		if prev, ok := r.byID[d.ID]; ok {
			return nil, NewDuplicateFieldError(d.ID, prev.Name, name)
		}

		spec := &Spec{ID: d.ID, Name: name}
		switch d.Kind {
		case KindDate:
			spec.In = value.ParseEpochMillis
		case KindNumeric:
			spec.In = value.ParseNumeric
		case KindCustom:
			spec.In = d.In
			spec.Out = d.Out
		}

		r.byID[d.ID] = spec
		r.byName[name] = spec
	}

	return r, nil
}

// Empty returns a registry with no declared fields. Numeric references
// still resolve.
func Empty() *Registry {
	r, _ := NewRegistry(nil)
	return r
}

// Resolve returns the field id for ref. Integer refs, and strings holding a
// positive integer, pass through unchanged whether or not they are declared.
// Any other string must be a declared name.
func (r *Registry) Resolve(ref interface{}) (ID, error) {
	switch x := ref.(type) {
	case ID:
		return positive(x)
	case int:
		return positive(ID(x))
	case int64:
		return positive(ID(x))
	case string:
		if n, err := strconv.Atoi(x); err == nil && n > 0 {
			return ID(n), nil
		}
		if spec, ok := r.byName[x]; ok {
			return spec.ID, nil
		}
		return 0, NewUnknownFieldError(x)
	default:
		return 0, NewUnknownFieldError(fmt.Sprintf("%v", ref))
	}
}

// ResolveAll resolves refs in order.
func (r *Registry) ResolveAll(refs []interface{}) ([]ID, error) {
	ids := make([]ID, len(refs))
	for i, ref := range refs {
		id, err := r.Resolve(ref)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

// ByID returns the spec declared for id.
func (r *Registry) ByID(id ID) (*Spec, bool) {
	s, ok := r.byID[id]
	return s, ok
}

// ByName returns the spec declared under name.
func (r *Registry) ByName(name string) (*Spec, bool) {
	s, ok := r.byName[name]
	return s, ok
}

// Lookup resolves ref and returns its spec, if one was declared. Numeric
// refs to undeclared fields resolve with a nil spec.
func (r *Registry) Lookup(ref interface{}) (ID, *Spec, error) {
	id, err := r.Resolve(ref)
	if err != nil {
		return 0, nil, err
	}
	return id, r.byID[id], nil
}

// Len returns the number of declared fields.
func (r *Registry) Len() int {
	return len(r.byID)
}

func positive(id ID) (ID, error) {
	if id <= 0 {
		return 0, NewUnknownFieldError(id.String())
	}
	return id, nil
}

func isNumericRef(s string) bool {
	n, err := strconv.Atoi(s)
	return err == nil && n > 0
}
