package client_test

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dan-strohschein/qbdriver/client"
	"github.com/dan-strohschein/qbdriver/metrics"
	"github.com/dan-strohschein/qbdriver/protocol"
	"github.com/dan-strohschein/qbdriver/query"
	"github.com/dan-strohschein/qbdriver/testutil"
)

func TestDelete_ContiguousRunsBecomeRanges(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	opts := client.DefaultOptions()
	opts.Metrics = m
	c, srv := testutil.NewTestClient(t, &opts)
	tbl := c.Table(testutil.TestTableDBID, nil)
	ctx, _ := testutil.WithTimeout(t)

	var rids []int64
	for rid := int64(1); rid <= 12; rid++ {
		rids = append(rids, rid)
		if rid != 5 {
			srv.SeedRID(testutil.TestTableDBID, rid, nil)
		}
	}
	rids = append(rids, 20, 31)
	srv.SeedRID(testutil.TestTableDBID, 20, nil)
	srv.SeedRID(testutil.TestTableDBID, 31, nil)
	srv.SeedRID(testutil.TestTableDBID, 40, nil)

	n, err := tbl.Delete(ctx, rids)
	require.NoError(t, err)
	assert.Equal(t, 13, n)
	assert.Equal(t, []int64{40}, srv.RIDs(testutil.TestTableDBID))

	assert.Equal(t, 2, srv.CountActions(protocol.ActionPurgeRecords))
	assert.Equal(t, 0, srv.CountActions(protocol.ActionDeleteRecord))

	queries := map[string]bool{}
	for _, call := range srv.Calls() {
		queries[call.Request.Query] = true
	}
	assert.True(t, queries["{3.GTE.'1'}AND{3.LTE.'12'}"])
	assert.True(t, queries["{3.EX.'20 OR 31'}"])

	assert.Equal(t, 1.0, promtest.ToFloat64(m.PlannedSubcalls.WithLabelValues(metrics.KindRangePurge)))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.PlannedSubcalls.WithLabelValues(metrics.KindGroupPurge)))
	assert.Equal(t, 2.0, promtest.ToFloat64(m.RemoteCalls.WithLabelValues(protocol.ActionPurgeRecords, "ok")))
}

func TestDelete_EmptyMakesNoCall(t *testing.T) {
	tbl, srv := newTestTable(t)

	n, err := tbl.Delete(context.Background(), []int64{})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, srv.Calls())
}

func TestDelete_Guards(t *testing.T) {
	tbl, srv := newTestTable(t)
	srv.Seed(testutil.TestTableDBID, nil)
	ctx := context.Background()

	cases := map[string]func() (int, error){
		"nil rids":      func() (int, error) { return tbl.Delete(ctx, nil) },
		"zero rid":      func() (int, error) { return tbl.Delete(ctx, []int64{1, 0}) },
		"negative rid":  func() (int, error) { return tbl.DeleteRID(ctx, -1) },
		"DeleteRID(0)":  func() (int, error) { return tbl.DeleteRID(ctx, 0) },
		"nil query":     func() (int, error) { return tbl.DeleteWhere(ctx, nil) },
		"empty literal": func() (int, error) { return tbl.DeleteWhere(ctx, query.Literal("")) },
		"empty where":   func() (int, error) { return tbl.DeleteWhere(ctx, query.Where{}) },
	}
	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			n, err := fn()
			var guard *client.ArgumentGuardError
			require.True(t, errors.As(err, &guard), "got %v", err)
			assert.Equal(t, "delete", guard.Operation)
			assert.Zero(t, n)
		})
	}

	assert.Empty(t, srv.Calls())
	assert.Len(t, srv.RIDs(testutil.TestTableDBID), 1)
}

func TestDeleteRID(t *testing.T) {
	tbl, srv := newTestTable(t)
	ctx, _ := testutil.WithTimeout(t)
	rid := srv.Seed(testutil.TestTableDBID, nil)

	n, err := tbl.DeleteRID(ctx, rid)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Already gone: zero, not an error.
	n, err = tbl.DeleteRID(ctx, rid)
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Equal(t, 2, srv.CountActions(protocol.ActionDeleteRecord))
}

func TestDelete_OtherSingleDeleteErrorsSurface(t *testing.T) {
	tbl, srv := newTestTable(t)
	srv.Fail(protocol.ActionDeleteRecord, protocol.RemoteCodeNoPermission, "No permission", 1)

	_, err := tbl.DeleteRID(context.Background(), 7)
	code, ok := protocol.RemoteCode(err)
	require.True(t, ok)
	assert.Equal(t, protocol.RemoteCodeNoPermission, code)
}

func TestDelete_GroupsAndSingles(t *testing.T) {
	opts := client.DefaultOptions()
	opts.BatchSize = 2
	c, srv := testutil.NewTestClient(t, &opts)
	tbl := c.Table(testutil.TestTableDBID, nil)
	ctx, _ := testutil.WithTimeout(t)

	for _, rid := range []int64{2, 4, 6, 8, 10} {
		srv.SeedRID(testutil.TestTableDBID, rid, nil)
	}

	n, err := tbl.Delete(ctx, []int64{10, 2, 4, 2, 6, 8, 99})
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Empty(t, srv.RIDs(testutil.TestTableDBID))
	// {2,4} {6,8} as OR groups, {10,99} as a group too: nothing is left single.
	assert.Equal(t, 3, srv.CountActions(protocol.ActionPurgeRecords))
}

func TestDelete_PartialFailure(t *testing.T) {
	tbl, srv := newTestTable(t)
	ctx, _ := testutil.WithTimeout(t)

	var rids []int64
	for rid := int64(1); rid <= 15; rid++ {
		srv.SeedRID(testutil.TestTableDBID, rid, nil)
		rids = append(rids, rid)
	}
	srv.SeedRID(testutil.TestTableDBID, 50, nil)
	srv.SeedRID(testutil.TestTableDBID, 60, nil)
	rids = append(rids, 50, 60)
	srv.Fail(protocol.ActionPurgeRecords, protocol.RemoteCodeNoPermission, "No permission", 1)

	n, err := tbl.Delete(ctx, rids)
	var be *client.BatchError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, 1, be.Failed)
	assert.Equal(t, 2, be.Total)
	assert.Equal(t, 17-len(srv.RIDs(testutil.TestTableDBID)), n)
}

func TestDeleteWhereAndAll(t *testing.T) {
	tbl, srv := newTestTable(t)
	ctx, _ := testutil.WithTimeout(t)
	seedLabels(srv, "keep", "drop", "drop", "keep")

	n, err := tbl.DeleteWhere(ctx, query.Where{"label": "drop"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, srv.RIDs(testutil.TestTableDBID), 2)

	n, err = tbl.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Empty(t, srv.RIDs(testutil.TestTableDBID))
}
