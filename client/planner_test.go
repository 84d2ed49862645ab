package client

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dan-strohschein/qbdriver/fields"
	"github.com/dan-strohschein/qbdriver/logger"
	"github.com/dan-strohschein/qbdriver/metrics"
	"github.com/dan-strohschein/qbdriver/protocol"
	"github.com/dan-strohschein/qbdriver/transport/mock"
)

func newPlannerTable(t *testing.T, tr *mock.MockTransport) *Table {
	t.Helper()
	reg, err := fields.NewRegistry(map[string]fields.Decl{
		"flag":  fields.Bare(6),
		"label": fields.Bare(8),
		"score": fields.Numeric(12),
	})
	require.NoError(t, err)
	c := NewClient(tr, &ClientOptions{BatchSize: 10, Logger: logger.NewNoop()})
	return c.Table("tbl", reg)
}

func seq(lo, hi int64) []int64 {
	out := make([]int64, 0, hi-lo+1)
	for i := lo; i <= hi; i++ {
		out = append(out, i)
	}
	return out
}

func TestPlanDelete_RangesAndGroups(t *testing.T) {
	rids := append(seq(1, 12), 20, 31)
	plan := planDelete(rids, 10)

	assert.Equal(t, [][2]int64{{1, 12}}, plan.ranges)
	assert.Equal(t, [][]int64{{20, 31}}, plan.groups)

	calls := plan.subcalls()
	require.Len(t, calls, 2)
	assert.Equal(t, metrics.KindRangePurge, calls[0].kind)
	assert.Equal(t, "{3.GTE.'1'}AND{3.LTE.'12'}", calls[0].req.Query)
	assert.Equal(t, metrics.KindGroupPurge, calls[1].kind)
	assert.Equal(t, "{3.EX.'20 OR 31'}", calls[1].req.Query)
}

func TestPlanDelete_RunOfExactlyBatchIsGrouped(t *testing.T) {
	plan := planDelete(seq(1, 10), 10)
	assert.Empty(t, plan.ranges)
	assert.Equal(t, [][]int64{seq(1, 10)}, plan.groups)

	plan = planDelete(seq(1, 11), 10)
	assert.Equal(t, [][2]int64{{1, 11}}, plan.ranges)
	assert.Empty(t, plan.groups)
}

func TestPlanDelete_SortsDedupesAndChunks(t *testing.T) {
	plan := planDelete([]int64{9, 3, 3, 1, 5, 7}, 2)
	assert.Empty(t, plan.ranges)
	assert.Equal(t, [][]int64{{1, 3}, {5, 7}, {9}}, plan.groups)

	calls := plan.subcalls()
	require.Len(t, calls, 3)
	assert.Equal(t, protocol.ActionDeleteRecord, calls[2].action)
	assert.Equal(t, int64(9), calls[2].req.RID)
	assert.Empty(t, calls[2].req.Query)
}

func TestPlanDelete_LeftoversAcrossRuns(t *testing.T) {
	// Short runs on either side of a long one are pooled.
	rids := append(append([]int64{1, 2}, seq(10, 30)...), 40, 41, 42)
	plan := planDelete(rids, 4)

	assert.Equal(t, [][2]int64{{10, 30}}, plan.ranges)
	assert.Equal(t, [][]int64{{1, 2, 40, 41}, {42}}, plan.groups)
}

func TestPlanWrite_RowSets(t *testing.T) {
	tbl := newPlannerTable(t, mock.NewMockTransport())

	muts, err := tbl.normalize("add", []Record{
		{"label": "a", "score": 1},
		{"flag": true},
		{"score": 2, "label": "b"},
		{"8": "c", "12": 3},
	}, true)
	require.NoError(t, err)

	calls := planWrite(muts, true)
	require.Len(t, calls, 2)

	assert.Equal(t, protocol.ActionImportCSV, calls[0].action)
	assert.Equal(t, "8.12", calls[0].req.CList)
	assert.Equal(t, "a,1\nb,2\nc,3\n", calls[0].req.Records.Data)
	assert.Equal(t, []int{0, 2, 3}, calls[0].positions)
	assert.Equal(t, 1, calls[0].req.MsInUTC)

	assert.Equal(t, protocol.ActionAddRecord, calls[1].action)
	assert.Equal(t, []int{1}, calls[1].positions)
	assert.Equal(t, []protocol.FieldValue{{FID: 6, Value: "1"}}, calls[1].req.Fields)
}

func TestPlanWrite_UnsafeRowsGoSingle(t *testing.T) {
	tbl := newPlannerTable(t, mock.NewMockTransport())

	muts, err := tbl.normalize("add", []Record{
		{"label": "fine"},
		{"label": " padded"},
		{"label": `"quoted`},
		{"label": "also fine"},
	}, true)
	require.NoError(t, err)

	calls := planWrite(muts, true)
	require.Len(t, calls, 3)
	assert.Equal(t, []int{0, 3}, calls[0].positions)
	assert.Equal(t, []int{1}, calls[1].positions)
	assert.Equal(t, " padded", calls[1].req.Fields[0].Value)
	assert.Equal(t, []int{2}, calls[2].positions)
}

func TestPlanWrite_AllUnsafeRowSetMakesNoImport(t *testing.T) {
	tbl := newPlannerTable(t, mock.NewMockTransport())

	muts, err := tbl.normalize("add", []Record{{"label": " x"}, {"label": "y "}}, true)
	require.NoError(t, err)

	calls := planWrite(muts, true)
	require.Len(t, calls, 2)
	for _, sc := range calls {
		assert.Equal(t, protocol.ActionAddRecord, sc.action)
	}
}

func TestPlanWrite_UpdateCarriesRID(t *testing.T) {
	tbl := newPlannerTable(t, mock.NewMockTransport())

	muts, err := tbl.normalize("update", []Record{
		{"3": 7, "label": "x"},
		{"3": 9, "label": "y"},
		{"3": 11, "score": 1},
	}, false)
	require.NoError(t, err)

	calls := planWrite(muts, false)
	require.Len(t, calls, 2)
	assert.Equal(t, "3.8", calls[0].req.CList)
	assert.Equal(t, "7,x\n9,y\n", calls[0].req.Records.Data)

	assert.Equal(t, protocol.ActionEditRecord, calls[1].action)
	assert.Equal(t, int64(11), calls[1].req.RID)
	assert.Equal(t, []protocol.FieldValue{{FID: 12, Value: "1"}}, calls[1].req.Fields)
}

func TestNormalize_Guards(t *testing.T) {
	tbl := newPlannerTable(t, mock.NewMockTransport())
	var guard *ArgumentGuardError

	_, err := tbl.normalize("add", []Record{{"label": "a", "8": "b"}}, true)
	assert.True(t, errors.As(err, &guard))

	_, err = tbl.normalize("update", []Record{{"label": "a"}}, false)
	assert.True(t, errors.As(err, &guard))

	_, err = tbl.normalize("update", []Record{{"3": "abc", "label": "a"}}, false)
	assert.True(t, errors.As(err, &guard))

	_, err = tbl.normalize("update", []Record{{"3": 0, "label": "a"}}, false)
	assert.True(t, errors.As(err, &guard))

	muts, err := tbl.normalize("update", []Record{{"3": "42", "label": "a"}}, false)
	require.NoError(t, err)
	assert.Equal(t, int64(42), muts[0].rid)

	var ufe *fields.UnknownFieldError
	_, err = tbl.normalize("add", []Record{{"nosuch": 1}}, true)
	assert.True(t, errors.As(err, &ufe))
}

func TestPlaceRIDs_CountMismatch(t *testing.T) {
	rids := make([]int64, 3)
	sc := subcall{action: protocol.ActionImportCSV, positions: []int{0, 2}}

	err := placeRIDs(rids, sc, &protocol.Response{RIDs: []string{"5"}})
	var pe *protocol.ProtocolError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "E_RID_COUNT", pe.Code)

	require.NoError(t, placeRIDs(rids, sc, &protocol.Response{RIDs: []string{"5", "6"}}))
	assert.Equal(t, []int64{5, 0, 6}, rids)
}

func TestExecute_WaitsForAllCalls(t *testing.T) {
	remote := protocol.NewRemoteCallError(protocol.ActionAddRecord, protocol.RemoteCodeMissingRequired, "Missing required", "")
	tr := mock.NewMockTransport().
		WithResponse(protocol.ActionImportCSV, &protocol.Response{RIDs: []string{"1", "2"}}).
		WithActionError(protocol.ActionAddRecord, remote)
	tbl := newPlannerTable(t, tr)

	rids, err := tbl.Add(context.Background(),
		Record{"label": "a"}, Record{"label": "b"}, Record{"score": 1})

	var be *BatchError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, 1, be.Failed)
	assert.Equal(t, 2, be.Total)
	assert.ErrorIs(t, err, remote)
	assert.Equal(t, []int64{1, 2, 0}, rids)
	assert.Equal(t, 2, tr.GetCallCount())
}
