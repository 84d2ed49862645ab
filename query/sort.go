package query

import (
	"sort"
	"strconv"
	"strings"

	"github.com/dan-strohschein/qbdriver/fields"
)

// Sort orders results by one field.
type Sort struct {
	Field interface{}
	Desc  bool
}

// Asc sorts ascending by ref.
func Asc(ref interface{}) Sort { return Sort{Field: ref} }

// Desc sorts descending by ref.
func Desc(ref interface{}) Sort { return Sort{Field: ref, Desc: true} }

// SortList is a compiled sort specification.
type SortList struct {
	// Fields is the dot-joined id list.
	Fields string
	// Order holds one A or D per sorted field.
	Order string
	// HasDesc is set when any field sorts descending.
	HasDesc bool
}

// Sorts compiles sorts into a SortList.
func (c *Compiler) Sorts(sorts []Sort) (SortList, error) {
	var sl SortList
	if len(sorts) == 0 {
		return sl, nil
	}

	ids := make([]fields.ID, len(sorts))
	var order strings.Builder
	for i, s := range sorts {
		id, err := c.reg().Resolve(s.Field)
		if err != nil {
			return SortList{}, err
		}
		ids[i] = id
		if s.Desc {
			order.WriteByte('D')
			sl.HasDesc = true
		} else {
			order.WriteByte('A')
		}
	}

	sl.Fields = JoinIDs(ids)
	sl.Order = order.String()
	return sl, nil
}

// Options holds query options. Recognized keys are "limit" and "skip".
type Options map[string]int

var optionTokens = map[string]string{
	"limit": "num",
	"skip":  "skp",
}

// Options compiles opts into the dot-joined option list. When the sort list
// has a descending field the sort order token comes first. Unrecognized
// keys fail with *InvalidOptionError.
func (c *Compiler) Options(opts Options, sl SortList) (string, error) {
	var tokens []string
	if sl.HasDesc {
		tokens = append(tokens, "sortorder-"+sl.Order)
	}

	keys := make([]string, 0, len(opts))
	for k := range opts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		tok, ok := optionTokens[k]
		if !ok {
			return "", NewInvalidOptionError(k)
		}
		tokens = append(tokens, tok+"-"+strconv.Itoa(opts[k]))
	}

	return strings.Join(tokens, "."), nil
}
