package client

import (
	"context"
	"sort"
	"strconv"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/dan-strohschein/qbdriver/fields"
	"github.com/dan-strohschein/qbdriver/logger"
	"github.com/dan-strohschein/qbdriver/metrics"
	"github.com/dan-strohschein/qbdriver/protocol"
	"github.com/dan-strohschein/qbdriver/query"
	"github.com/dan-strohschein/qbdriver/value"
)

// mutation is a normalized Record: ids resolved, values rendered.
type mutation struct {
	position int
	ids      []fields.ID // ascending
	values   map[fields.ID]string
	rid      int64 // updates only
}

// key identifies the mutation's row set.
func (m mutation) key() string {
	return query.JoinIDs(m.ids)
}

// row returns the values in column order.
func (m mutation) row() []string {
	out := make([]string, len(m.ids))
	for i, id := range m.ids {
		out[i] = m.values[id]
	}
	return out
}

// subcall is one planned remote call of a write or delete.
type subcall struct {
	kind      string
	action    string
	req       *protocol.Request
	positions []int
}

func (t *Table) normalize(op string, recs []Record, isAdd bool) ([]mutation, error) {
	reg := t.Registry()
	muts := make([]mutation, len(recs))
	for pos, rec := range recs {
		m := mutation{
			position: pos,
			ids:      make([]fields.ID, 0, len(rec)),
			values:   make(map[fields.ID]string, len(rec)),
		}
		for key, v := range rec {
			id, err := reg.Resolve(key)
			if err != nil {
				return nil, err
			}
			if _, dup := m.values[id]; dup {
				return nil, NewArgumentGuardError(op, "field "+id.String()+" is referenced more than once in record "+strconv.Itoa(pos))
			}
			s, err := t.codec.EncodeID(id, v)
			if err != nil {
				return nil, err
			}
			m.ids = append(m.ids, id)
			m.values[id] = s
		}
		if !isAdd {
			raw, ok := m.values[fields.RecordID]
			if !ok {
				return nil, NewArgumentGuardError(op, "record "+strconv.Itoa(pos)+" has no record id (field 3)")
			}
			rid, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || rid <= 0 {
				return nil, NewArgumentGuardError(op, "record "+strconv.Itoa(pos)+" has invalid record id "+strconv.Quote(raw))
			}
			m.rid = rid
		}
		sort.Slice(m.ids, func(i, j int) bool { return m.ids[i] < m.ids[j] })
		muts[pos] = m
	}
	return muts, nil
}

// planWrite groups mutations into row sets and decides, per row, between
// one bulk import per row set and a single-record call.
func planWrite(muts []mutation, isAdd bool) []subcall {
	rowSets := make(map[string][]mutation)
	var keys []string
	for _, m := range muts {
		k := m.key()
		if _, ok := rowSets[k]; !ok {
			keys = append(keys, k)
		}
		rowSets[k] = append(rowSets[k], m)
	}

	var calls, single []subcall
	var singles []mutation
	for _, k := range keys {
		rows := rowSets[k]
		if len(rows) == 1 {
			singles = append(singles, rows[0])
			continue
		}

		b := protocol.NewCSVBuilder()
		var positions []int
		for _, m := range rows {
			if !b.Add(m.row()) {
				singles = append(singles, m)
				continue
			}
			positions = append(positions, m.position)
		}
		if b.Len() == 0 {
			continue
		}
		calls = append(calls, subcall{
			kind:   metrics.KindCSVImport,
			action: protocol.ActionImportCSV,
			req: &protocol.Request{
				Records: b.Block(),
				CList:   k,
				MsInUTC: 1,
			},
			positions: positions,
		})
	}

	sort.Slice(singles, func(i, j int) bool { return singles[i].position < singles[j].position })
	for _, m := range singles {
		single = append(single, singleWrite(m, isAdd))
	}
	return append(calls, single...)
}

func singleWrite(m mutation, isAdd bool) subcall {
	req := &protocol.Request{MsInUTC: 1}
	for _, id := range m.ids {
		if id.IsRecordID() && !isAdd {
			req.RID = m.rid
			continue
		}
		req.Fields = append(req.Fields, protocol.FieldValue{FID: int(id), Value: m.values[id]})
	}
	sc := subcall{
		kind:      metrics.KindEditRecord,
		action:    protocol.ActionEditRecord,
		req:       req,
		positions: []int{m.position},
	}
	if isAdd {
		sc.kind = metrics.KindAddRecord
		sc.action = protocol.ActionAddRecord
	}
	return sc
}

// execute runs calls concurrently and waits for all of them. settle is
// called with the outcome of every call and returns the error to report
// for it, nil when the call succeeded or its failure is recovered. It must
// only write result slots owned by that call.
func (t *Table) execute(ctx context.Context, op string, calls []subcall, settle func(sc subcall, resp *protocol.Response, err error) error) error {
	var (
		g      errgroup.Group
		failed atomic.Int32
	)
	for _, sc := range calls {
		t.client.metrics.PlannedSubcall(sc.kind)
		g.Go(func() error {
			resp, err := t.call(ctx, sc.action, sc.req)
			if err = settle(sc, resp, err); err != nil {
				failed.Add(1)
			}
			return err
		})
	}

	err := g.Wait()
	if err == nil {
		return nil
	}
	t.logger.Error("batch failed",
		logger.String("operation", op),
		logger.Int("failed", int(failed.Load())),
		logger.Int("total", len(calls)),
		logger.Error("error", err))
	if len(calls) == 1 {
		return err
	}
	return NewBatchError(op, int(failed.Load()), len(calls), err)
}

func (t *Table) write(ctx context.Context, op string, recs []Record, isAdd bool) ([]int64, error) {
	muts, err := t.normalize(op, recs, isAdd)
	if err != nil {
		return nil, err
	}
	calls := planWrite(muts, isAdd)
	t.logger.Debug("write planned",
		logger.String("operation", op),
		logger.Int("records", len(recs)),
		logger.Int("calls", len(calls)))

	rids := make([]int64, len(recs))
	err = t.execute(ctx, op, calls, func(sc subcall, resp *protocol.Response, err error) error {
		if err != nil || !isAdd {
			return err
		}
		return placeRIDs(rids, sc, resp)
	})
	if !isAdd {
		return nil, err
	}
	return rids, err
}

// placeRIDs writes the new record ids of one call into the slots of the
// mutations it carried.
func placeRIDs(rids []int64, sc subcall, resp *protocol.Response) error {
	raw := resp.RIDs
	if sc.action == protocol.ActionAddRecord {
		raw = []string{resp.RID}
	}
	if len(raw) != len(sc.positions) {
		return protocol.NewProtocolError("E_RID_COUNT", "response record ids do not match the records sent", nil).
			WithDetail("action", sc.action).
			WithDetail("sent", len(sc.positions)).
			WithDetail("received", len(raw))
	}
	for i, s := range raw {
		rid, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return protocol.NewProtocolError("E_BAD_RID", "record id is not an integer", err).
				WithDetail("rid", s)
		}
		rids[sc.positions[i]] = rid
	}
	return nil
}

// Add creates recs and returns their new record ids in the order of recs.
// Records sharing a field set go out as one bulk import; the rest, and
// rows the bulk format cannot carry unchanged, as single-record calls.
// On error the slice still holds the ids of records that were created,
// with 0 for the others.
func (t *Table) Add(ctx context.Context, recs ...Record) ([]int64, error) {
	if len(recs) == 0 {
		return []int64{}, nil
	}
	return t.write(ctx, "add", recs, true)
}

// AddOne creates rec and returns its record id.
func (t *Table) AddOne(ctx context.Context, rec Record) (int64, error) {
	rids, err := t.write(ctx, "add", []Record{rec}, true)
	if err != nil {
		return 0, err
	}
	return rids[0], nil
}

// Update applies recs, each of which must carry its record id as field 3.
func (t *Table) Update(ctx context.Context, recs ...Record) error {
	if len(recs) == 0 {
		return nil
	}
	_, err := t.write(ctx, "update", recs, false)
	return err
}

// UpdateRIDs applies patch to every record in rids.
func (t *Table) UpdateRIDs(ctx context.Context, rids []int64, patch Record) error {
	recs := make([]Record, 0, len(rids))
	for _, rid := range rids {
		if rid <= 0 {
			return NewArgumentGuardError("update", "invalid record id "+strconv.FormatInt(rid, 10))
		}
		rec, err := t.merge(Record{fields.RecordID.String(): rid}, patch)
		if err != nil {
			return err
		}
		recs = append(recs, rec)
	}
	return t.Update(ctx, recs...)
}

// UpdateEach merges patch into each of objs, patch winning on shared
// fields other than the record id, and applies the results. Each object
// carries its own record id.
func (t *Table) UpdateEach(ctx context.Context, objs []Record, patch Record) error {
	recs := make([]Record, 0, len(objs))
	for _, obj := range objs {
		rec, err := t.merge(obj, patch)
		if err != nil {
			return err
		}
		recs = append(recs, rec)
	}
	return t.Update(ctx, recs...)
}

// UpdateWhere reads the record ids matching q and then applies patch to
// them. A nil q is rejected rather than patching the whole table.
func (t *Table) UpdateWhere(ctx context.Context, q query.Expr, patch Record) error {
	if q == nil {
		return NewArgumentGuardError("update", "update called without a query")
	}
	vals, err := t.QueryColumn(ctx, q, fields.RecordID, nil, nil)
	if err != nil {
		return err
	}
	rids := make([]int64, 0, len(vals))
	for _, v := range vals {
		rid, err := value.AsInt(v)
		if err != nil {
			return err
		}
		rids = append(rids, rid)
	}
	return t.UpdateRIDs(ctx, rids, patch)
}

// merge combines base and patch by resolved field id. A record id in
// patch is dropped so base keeps its own.
func (t *Table) merge(base, patch Record) (Record, error) {
	reg := t.Registry()
	byID := make(map[fields.ID]interface{}, len(base)+len(patch))
	for k, v := range base {
		id, err := reg.Resolve(k)
		if err != nil {
			return nil, err
		}
		byID[id] = v
	}
	for k, v := range patch {
		id, err := reg.Resolve(k)
		if err != nil {
			return nil, err
		}
		if id.IsRecordID() {
			continue
		}
		byID[id] = v
	}
	out := make(Record, len(byID))
	for id, v := range byID {
		out[id.String()] = v
	}
	return out, nil
}
