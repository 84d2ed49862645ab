package testutil

import (
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/dan-strohschein/qbdriver/client"
)

// Option modifies a record under construction.
type Option func(client.Record)

// RecordFactory builds records from defaults. A default that is a
// func() interface{} is called for every record built.
type RecordFactory struct {
	defaults map[string]interface{}
}

// NewRecordFactory creates a factory with the given defaults.
func NewRecordFactory(defaults map[string]interface{}) *RecordFactory {
	return &RecordFactory{defaults: defaults}
}

// Build creates a single record with optional overrides.
func (f *RecordFactory) Build(options ...Option) client.Record {
	rec := make(client.Record, len(f.defaults))
	for k, v := range f.defaults {
		if gen, ok := v.(func() interface{}); ok {
			v = gen()
		}
		rec[k] = v
	}
	for _, opt := range options {
		opt(rec)
	}
	return rec
}

// BuildList creates count records.
func (f *RecordFactory) BuildList(count int, options ...Option) []client.Record {
	out := make([]client.Record, count)
	for i := range out {
		out[i] = f.Build(options...)
	}
	return out
}

// WithField sets a specific field value.
func WithField(name string, value interface{}) Option {
	return func(rec client.Record) {
		rec[name] = value
	}
}

// WithoutField removes a field.
func WithoutField(name string) Option {
	return func(rec client.Record) {
		delete(rec, name)
	}
}

var (
	labelSequence uint64
	dbidSequence  uint64
)

// SequenceLabel generates unique labels.
func SequenceLabel() interface{} {
	n := atomic.AddUint64(&labelSequence, 1)
	return fmt.Sprintf("label-%d", n)
}

// SequenceDBID generates unique table ids with the given prefix.
func SequenceDBID(prefix string) string {
	n := atomic.AddUint64(&dbidSequence, 1)
	return fmt.Sprintf("%s%05d", prefix, n)
}

// RandomString generates a random alphanumeric string.
func RandomString(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[rand.IntN(len(charset))]
	}
	return string(b)
}

// RandomInt generates a random integer between min and max (inclusive).
func RandomInt(min, max int) int {
	return min + rand.IntN(max-min+1)
}

// RandomDate generates a millisecond-precision time within the last year.
func RandomDate() time.Time {
	back := time.Duration(rand.Int64N(int64(365 * 24 * time.Hour)))
	return time.Now().Add(-back).Truncate(time.Millisecond)
}

// HostileStrings are text values that stress the bulk import format and
// the XML document: separators, quotes, line breaks, markup and the
// CDATA terminator.
var HostileStrings = []string{
	"a,b",
	`say "hi"`,
	"two\nlines",
	"<tag attr='x'>&amp;</tag>",
	"end]]>more",
	"]]>",
	"tab\tinside",
	"comma, quote\" and ]]> together",
	"ünïcödé ✓",
}

// CSVUnsafeStrings are text values the bulk import would not carry
// unchanged.
var CSVUnsafeStrings = []string{
	" leading space",
	"trailing space ",
	`"quoted start`,
	"\ttab start",
}
