package protocol

import (
	"encoding/csv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// CSVSafe reports whether v survives a bulk import unchanged. A leading
// quote is read by the service as a quoted field, and whitespace at either
// end is trimmed, so such values must go through single-record calls.
// Commas, embedded quotes and newlines are fine: they are quoted.
func CSVSafe(v string) bool {
	if v == "" {
		return true
	}
	if v[0] == '"' {
		return false
	}
	first, _ := utf8.DecodeRuneInString(v)
	last, _ := utf8.DecodeLastRuneInString(v)
	return !unicode.IsSpace(first) && !unicode.IsSpace(last)
}

// CSVBuilder accumulates the rows of one bulk import. All rows share the
// column order given by the import's clist.
type CSVBuilder struct {
	buf  strings.Builder
	w    *csv.Writer
	rows int
}

// NewCSVBuilder creates an empty builder.
func NewCSVBuilder() *CSVBuilder {
	b := &CSVBuilder{}
	b.w = csv.NewWriter(&b.buf)
	return b
}

// Add appends one row. It returns false, leaving the builder unchanged,
// when any value is not CSVSafe or the row would be written as a blank
// line, which the service skips.
func (b *CSVBuilder) Add(values []string) bool {
	if len(values) == 0 || (len(values) == 1 && values[0] == "") {
		return false
	}
	for _, v := range values {
		if !CSVSafe(v) {
			return false
		}
	}
	if err := b.w.Write(values); err != nil {
		return false
	}
	b.rows++
	return true
}

// Len returns the number of rows added.
func (b *CSVBuilder) Len() int {
	return b.rows
}

// Block returns the accumulated rows as a CDATA block.
func (b *CSVBuilder) Block() *CSVBlock {
	b.w.Flush()
	return &CSVBlock{Data: b.buf.String()}
}
