package client

import (
	"context"
	"strconv"

	"github.com/dan-strohschein/qbdriver/codec"
	"github.com/dan-strohschein/qbdriver/fields"
	"github.com/dan-strohschein/qbdriver/logger"
	"github.com/dan-strohschein/qbdriver/protocol"
	"github.com/dan-strohschein/qbdriver/query"
	"github.com/dan-strohschein/qbdriver/value"
)

// Record is one record mutation. Keys are field names or decimal field
// ids; values are anything value.Of accepts.
type Record map[string]interface{}

// Table is one remote table with its field declarations.
type Table struct {
	client   *Client
	app      *App
	ref      string
	codec    *codec.Codec
	compiler *query.Compiler
	logger   logger.Logger
}

func newTable(c *Client, app *App, ref string, reg *fields.Registry) *Table {
	cd := codec.New(reg)
	return &Table{
		client:   c,
		app:      app,
		ref:      ref,
		codec:    cd,
		compiler: query.NewCompiler(cd),
		logger:   c.logger.WithFields(logger.String("table", ref)),
	}
}

// Ref returns the dbid or alias the table was created with.
func (t *Table) Ref() string {
	return t.ref
}

// Registry returns the table's field registry.
func (t *Table) Registry() *fields.Registry {
	return t.codec.Registry()
}

// DBID resolves the table reference. Aliases need an App.
func (t *Table) DBID(ctx context.Context) (string, error) {
	if t.app != nil {
		return t.app.Resolve(ctx, t.ref)
	}
	if IsAlias(t.ref) {
		return "", NewUnknownTableError(t.ref, "")
	}
	return t.ref, nil
}

// call resolves the dbid first, so no table call is issued before the
// alias lookup it depends on has finished.
func (t *Table) call(ctx context.Context, action string, req *protocol.Request) (*protocol.Response, error) {
	dbid, err := t.DBID(ctx)
	if err != nil {
		return nil, err
	}
	if t.app != nil && req.AppToken == "" {
		req.AppToken = t.app.token
	}
	return t.client.call(ctx, action, req, dbid)
}

// Row is one decoded query result, addressable by field id and by name.
type Row struct {
	reg    *fields.Registry
	rid    int64
	values map[fields.ID]value.Value
}

// Get returns the value of the field ref names.
func (r Row) Get(ref interface{}) (value.Value, bool) {
	id, err := r.reg.Resolve(ref)
	if err != nil {
		return nil, false
	}
	v, ok := r.values[id]
	return v, ok
}

// RID returns the record id, from field 3 when it was selected and from
// the record element otherwise. It is 0 when neither is present.
func (r Row) RID() int64 {
	if v, ok := r.values[fields.RecordID]; ok {
		if n, err := value.AsInt(v); err == nil {
			return n
		}
	}
	return r.rid
}

// Len returns the number of fields in the row.
func (r Row) Len() int {
	return len(r.values)
}

// Map returns the row keyed by decimal id and, for declared fields, also
// by name.
func (r Row) Map() map[string]value.Value {
	out := make(map[string]value.Value, 2*len(r.values))
	for id, v := range r.values {
		out[id.String()] = v
		if spec, ok := r.reg.ByID(id); ok {
			out[spec.Name] = v
		}
	}
	return out
}

func (t *Table) decodeRow(rec protocol.Record) (Row, error) {
	row := Row{
		reg:    t.Registry(),
		values: make(map[fields.ID]value.Value, len(rec.Fields)),
	}
	if rec.RID != "" {
		rid, err := strconv.ParseInt(rec.RID, 10, 64)
		if err != nil {
			return Row{}, protocol.NewProtocolError("E_BAD_RID", "record rid is not an integer", err).
				WithDetail("rid", rec.RID)
		}
		row.rid = rid
	}
	for _, f := range rec.Fields {
		v, err := t.codec.DecodeID(fields.ID(f.ID), f.Value)
		if err != nil {
			return Row{}, err
		}
		row.values[fields.ID(f.ID)] = v
	}
	return row, nil
}

// readRequest compiles the parts of a DoQuery request shared by the read
// operations.
func (t *Table) readRequest(q query.Expr, columns []interface{}, sorts []query.Sort, opts query.Options) (*protocol.Request, []fields.ID, error) {
	if len(columns) == 0 {
		return nil, nil, NewArgumentGuardError("query", "query called without a column list")
	}
	compiled, err := t.compiler.Compile(q)
	if err != nil {
		return nil, nil, err
	}
	clist, ids, err := t.compiler.Columns(columns)
	if err != nil {
		return nil, nil, err
	}
	sl, err := t.compiler.Sorts(sorts)
	if err != nil {
		return nil, nil, err
	}
	options, err := t.compiler.Options(opts, sl)
	if err != nil {
		return nil, nil, err
	}
	return &protocol.Request{
		Fmt:     "structured",
		Query:   compiled,
		CList:   clist,
		SList:   sl.Fields,
		Options: options,
	}, ids, nil
}

// Query runs q and returns the selected columns of every matching record.
// A nil q matches every record.
func (t *Table) Query(ctx context.Context, q query.Expr, columns []interface{}, sorts []query.Sort, opts query.Options) ([]Row, error) {
	req, _, err := t.readRequest(q, columns, sorts, opts)
	if err != nil {
		return nil, err
	}
	resp, err := t.call(ctx, protocol.ActionDoQuery, req)
	if err != nil {
		return nil, err
	}

	recs := resp.Records()
	rows := make([]Row, 0, len(recs))
	for _, rec := range recs {
		row, err := t.decodeRow(rec)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// QueryColumn runs q and returns one column as a flat list of values.
func (t *Table) QueryColumn(ctx context.Context, q query.Expr, column interface{}, sorts []query.Sort, opts query.Options) ([]value.Value, error) {
	req, ids, err := t.readRequest(q, []interface{}{column}, sorts, opts)
	if err != nil {
		return nil, err
	}
	resp, err := t.call(ctx, protocol.ActionDoQuery, req)
	if err != nil {
		return nil, err
	}

	id := ids[0]
	var out []value.Value
	for _, rec := range resp.Records() {
		for _, f := range rec.Fields {
			if fields.ID(f.ID) != id {
				continue
			}
			v, err := t.codec.DecodeID(id, f.Value)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
	}
	return out, nil
}

// Count returns the number of records matching q.
func (t *Table) Count(ctx context.Context, q query.Expr) (int, error) {
	compiled, err := t.compiler.Compile(q)
	if err != nil {
		return 0, err
	}
	resp, err := t.call(ctx, protocol.ActionDoQueryCount, &protocol.Request{Query: compiled})
	if err != nil {
		return 0, err
	}
	return resp.NumMatches, nil
}
