// Package query compiles query expressions, column lists, sort lists and
// options into the service's bracketed clause grammar:
//
//	{6.EX.'1'}AND{8.GT.'5'}
//
// Compiled fragments are plain text. XML escaping happens once, when the
// protocol package serializes the request that carries them.
package query

import (
	"sort"
	"strconv"
	"strings"

	"github.com/dan-strohschein/qbdriver/codec"
	"github.com/dan-strohschein/qbdriver/fields"
)

// Expr is a query expression: either a Literal or a Where.
type Expr interface {
	compile(c *Compiler) (string, error)
}

// Literal is a pre-formed query string, passed through unchanged.
type Literal string

func (l Literal) compile(*Compiler) (string, error) { return string(l), nil }

// Where is a structured query. Each key is a field reference; each value is
// either a scalar (an equality test) or a Cmp holding one value per
// comparator, e.g.
//
//	query.Where{"status": query.Cmp{"gt": 5}, "owner": "ann"}
type Where map[string]interface{}

// Cmp maps comparator names (EX, XEX, CT, GT, GTE, LT, LTE, ...) to values.
// Comparator names are upper-cased when compiled.
type Cmp map[string]interface{}

// Equality comparator used for scalar constraints.
const Equals = "EX"

func (w Where) compile(c *Compiler) (string, error) {
	keys := make([]string, 0, len(w))
	for k := range w {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clauses := make([]string, 0, len(w))
	for _, key := range keys {
		id, err := c.reg().Resolve(key)
		if err != nil {
			return "", err
		}

		var cmp map[string]interface{}
		switch x := w[key].(type) {
		case Cmp:
			cmp = x
		case map[string]interface{}:
			cmp = x
		}

		if cmp == nil {
			s, err := c.prepareValue(id, w[key])
			if err != nil {
				return "", err
			}
			clauses = append(clauses, Clause(id, Equals, s))
			continue
		}

		comps := make([]string, 0, len(cmp))
		for comp := range cmp {
			comps = append(comps, comp)
		}
		sort.Strings(comps)
		for _, comp := range comps {
			s, err := c.prepareValue(id, cmp[comp])
			if err != nil {
				return "", err
			}
			clauses = append(clauses, Clause(id, strings.ToUpper(comp), s))
		}
	}

	return strings.Join(clauses, "AND"), nil
}

// Clause renders a single {id.CMP.'value'} clause. value is not checked.
func Clause(id fields.ID, comparator, value string) string {
	return "{" + id.String() + "." + comparator + ".'" + value + "'}"
}

// RecordRange matches row identifiers from lo to hi inclusive.
func RecordRange(lo, hi int64) string {
	return Clause(fields.RecordID, "GTE", strconv.FormatInt(lo, 10)) + "AND" +
		Clause(fields.RecordID, "LTE", strconv.FormatInt(hi, 10))
}

// RecordIn matches any of rids with a single OR-list equality clause.
func RecordIn(rids []int64) string {
	parts := make([]string, len(rids))
	for i, rid := range rids {
		parts[i] = strconv.FormatInt(rid, 10)
	}
	return Clause(fields.RecordID, Equals, strings.Join(parts, " OR "))
}

// Compiler compiles query fragments against one table's fields.
type Compiler struct {
	codec *codec.Codec
}

// NewCompiler creates a compiler that resolves and encodes through c.
func NewCompiler(c *codec.Codec) *Compiler {
	return &Compiler{codec: c}
}

func (c *Compiler) reg() *fields.Registry {
	return c.codec.Registry()
}

// Compile compiles q. A nil expression compiles to the empty string.
func (c *Compiler) Compile(q Expr) (string, error) {
	if q == nil {
		return "", nil
	}
	return q.compile(c)
}

// prepareValue encodes v and rejects values that would break the clause
// grammar or inject a boolean operator.
func (c *Compiler) prepareValue(id fields.ID, v interface{}) (string, error) {
	s, err := c.codec.EncodeID(id, v)
	if err != nil {
		return "", err
	}
	if strings.Contains(s, "}") {
		return "", NewInvalidQueryValueError(id, s, "value contains '}'")
	}
	if s == "OR" {
		return "", NewInvalidQueryValueError(id, s, "value is OR")
	}
	return s, nil
}

// Columns resolves refs into a dot-joined column list.
func (c *Compiler) Columns(refs []interface{}) (string, []fields.ID, error) {
	ids, err := c.reg().ResolveAll(refs)
	if err != nil {
		return "", nil, err
	}
	return JoinIDs(ids), ids, nil
}

// JoinIDs dot-joins ids.
func JoinIDs(ids []fields.ID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, ".")
}
