package client

import (
	"context"
	"slices"
	"strconv"

	"github.com/dan-strohschein/qbdriver/logger"
	"github.com/dan-strohschein/qbdriver/metrics"
	"github.com/dan-strohschein/qbdriver/protocol"
	"github.com/dan-strohschein/qbdriver/query"
)

// deletePlan is the partition of a set of record ids into purge calls.
type deletePlan struct {
	// ranges are runs of consecutive ids longer than the batch size,
	// as inclusive [first, last] bounds.
	ranges [][2]int64
	// groups hold the remaining ids, at most batch size each.
	groups [][]int64
}

// planDelete sorts and dedupes rids, turns every run of consecutive ids
// longer than batch into a range, and chunks what is left into groups.
func planDelete(rids []int64, batch int) deletePlan {
	sorted := slices.Clone(rids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	var (
		plan      deletePlan
		leftovers []int64
	)
	flush := func(run []int64) {
		if len(run) > batch {
			plan.ranges = append(plan.ranges, [2]int64{run[0], run[len(run)-1]})
			return
		}
		leftovers = append(leftovers, run...)
	}

	start := 0
	for i := 1; i <= len(sorted); i++ {
		if i < len(sorted) && sorted[i] == sorted[i-1]+1 {
			continue
		}
		flush(sorted[start:i])
		start = i
	}

	for len(leftovers) > 0 {
		n := min(batch, len(leftovers))
		plan.groups = append(plan.groups, leftovers[:n:n])
		leftovers = leftovers[n:]
	}
	return plan
}

func (p deletePlan) subcalls() []subcall {
	calls := make([]subcall, 0, len(p.ranges)+len(p.groups))
	for _, r := range p.ranges {
		calls = append(calls, subcall{
			kind:   metrics.KindRangePurge,
			action: protocol.ActionPurgeRecords,
			req:    &protocol.Request{Query: query.RecordRange(r[0], r[1])},
		})
	}
	for _, g := range p.groups {
		if len(g) == 1 {
			calls = append(calls, subcall{
				kind:   metrics.KindDeleteRecord,
				action: protocol.ActionDeleteRecord,
				req:    &protocol.Request{RID: g[0]},
			})
			continue
		}
		calls = append(calls, subcall{
			kind:   metrics.KindGroupPurge,
			action: protocol.ActionPurgeRecords,
			req:    &protocol.Request{Query: query.RecordIn(g)},
		})
	}
	return calls
}

// Delete removes the records in rids and returns how many were deleted.
// A nil rids is rejected; an empty one deletes nothing and makes no call.
// Long runs of consecutive ids are purged as ranges, the rest in OR
// groups; a lone id uses a single-record delete, for which a missing
// record counts as zero rather than an error. All calls finish before
// Delete returns; on error the count covers the calls that succeeded.
func (t *Table) Delete(ctx context.Context, rids []int64) (int, error) {
	if rids == nil {
		return 0, NewArgumentGuardError("delete", "delete called without record ids")
	}
	for _, rid := range rids {
		if rid <= 0 {
			return 0, NewArgumentGuardError("delete", "invalid record id "+strconv.FormatInt(rid, 10))
		}
	}
	if len(rids) == 0 {
		return 0, nil
	}

	plan := planDelete(rids, t.client.opts.BatchSize)
	calls := plan.subcalls()
	t.logger.Debug("delete planned",
		logger.Int("ids", len(rids)),
		logger.Int("ranges", len(plan.ranges)),
		logger.Int("groups", len(plan.groups)))

	counts := make([]int, len(calls))
	for i := range calls {
		calls[i].positions = []int{i}
	}

	err := t.executeDeletes(ctx, calls, counts)
	total := 0
	for _, n := range counts {
		total += n
	}
	return total, err
}

// executeDeletes runs calls, recovering "no such record" from
// single-record deletes into a zero count. Purges are not recovered.
func (t *Table) executeDeletes(ctx context.Context, calls []subcall, counts []int) error {
	return t.execute(ctx, "delete", calls, func(sc subcall, resp *protocol.Response, err error) error {
		slot := sc.positions[0]
		if sc.action == protocol.ActionDeleteRecord {
			if protocol.IsNoSuchRecord(err) {
				t.logger.Debug("record already deleted", logger.Int64("rid", sc.req.RID))
				return nil
			}
			if err == nil {
				counts[slot] = 1
			}
			return err
		}
		if err != nil {
			return err
		}
		counts[slot] = resp.NumRecordsDeleted
		return nil
	})
}

// DeleteRID removes one record. A missing record yields 0, not an error.
func (t *Table) DeleteRID(ctx context.Context, rid int64) (int, error) {
	if rid <= 0 {
		return 0, NewArgumentGuardError("delete", "invalid record id "+strconv.FormatInt(rid, 10))
	}
	return t.Delete(ctx, []int64{rid})
}

// DeleteWhere purges every record matching q. An empty query is rejected
// because the service would treat it as the whole table.
func (t *Table) DeleteWhere(ctx context.Context, q query.Expr) (int, error) {
	if q == nil {
		return 0, NewArgumentGuardError("delete", "delete called without a query")
	}
	compiled, err := t.compiler.Compile(q)
	if err != nil {
		return 0, err
	}
	if compiled == "" {
		return 0, NewArgumentGuardError("delete", "delete called with an empty query")
	}
	t.client.metrics.PlannedSubcall(metrics.KindGroupPurge)
	resp, err := t.call(ctx, protocol.ActionPurgeRecords, &protocol.Request{Query: compiled})
	if err != nil {
		return 0, err
	}
	return resp.NumRecordsDeleted, nil
}

// DeleteAll purges every record of the table.
func (t *Table) DeleteAll(ctx context.Context) (int, error) {
	resp, err := t.call(ctx, protocol.ActionPurgeRecords, &protocol.Request{})
	if err != nil {
		return 0, err
	}
	return resp.NumRecordsDeleted, nil
}
