package client_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dan-strohschein/qbdriver/client"
	"github.com/dan-strohschein/qbdriver/fields"
	"github.com/dan-strohschein/qbdriver/protocol"
	"github.com/dan-strohschein/qbdriver/query"
	"github.com/dan-strohschein/qbdriver/testutil"
	"github.com/dan-strohschein/qbdriver/value"
)

func testRegistry(t *testing.T) *fields.Registry {
	t.Helper()
	reg, err := fields.NewRegistry(map[string]fields.Decl{
		"flag":  fields.Bare(6),
		"when":  fields.Date(7),
		"label": fields.Bare(8),
		"score": fields.Numeric(12),
	})
	require.NoError(t, err)
	return reg
}

// newTestTable returns a table addressed by dbid on a fresh fake server.
func newTestTable(t *testing.T) (*client.Table, *testutil.FakeServer) {
	t.Helper()
	c, srv := testutil.NewTestClient(t, nil)
	return c.Table(testutil.TestTableDBID, testRegistry(t)), srv
}

func TestQuery_DecodesRows(t *testing.T) {
	tbl, srv := newTestTable(t)
	ctx, _ := testutil.WithTimeout(t)

	srv.Seed(testutil.TestTableDBID, map[int]string{8: "low", 12: "1", 7: "86400000"})
	srv.Seed(testutil.TestTableDBID, map[int]string{8: "mid", 12: "2.5", 7: ""})
	srv.Seed(testutil.TestTableDBID, map[int]string{8: "high", 12: "10"})

	rows, err := tbl.Query(ctx,
		query.Where{"score": query.Cmp{"GT": 1}},
		[]interface{}{"label", "score", "when", 3},
		[]query.Sort{query.Desc("score")},
		nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	label, ok := rows[0].Get("label")
	require.True(t, ok)
	assert.Equal(t, value.String("high"), label)
	score, _ := rows[0].Get("score")
	assert.Equal(t, value.Int(10), score)
	assert.Equal(t, int64(3), rows[0].RID())

	score, _ = rows[1].Get(12)
	assert.Equal(t, value.Float(2.5), score)
	when, _ := rows[1].Get("when")
	assert.Equal(t, value.String(""), when)
	assert.Equal(t, 4, rows[1].Len())

	m := rows[1].Map()
	assert.Equal(t, value.String("mid"), m["label"])
	assert.Equal(t, value.String("mid"), m["8"])
	assert.Equal(t, value.String("2"), m["3"])

	_, ok = rows[1].Get("nosuch")
	assert.False(t, ok)
}

func TestQuery_DatesAndOptions(t *testing.T) {
	tbl, srv := newTestTable(t)
	ctx, _ := testutil.WithTimeout(t)

	for _, ms := range []string{"3000", "1000", "2000"} {
		srv.Seed(testutil.TestTableDBID, map[int]string{7: ms})
	}

	rows, err := tbl.Query(ctx, nil, []interface{}{"when"}, []query.Sort{query.Asc("when")}, query.Options{"skip": 1, "limit": 1})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	v, _ := rows[0].Get("when")
	got, err := value.AsTime(v)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.UnixMilli(2000)))
	assert.Equal(t, int64(3), rows[0].RID())

	call := srv.Calls()[0]
	assert.Equal(t, "7", call.Request.SList)
	assert.Equal(t, "num-1.skp-1", call.Request.Options)
	assert.Equal(t, "structured", call.Request.Fmt)
}

func TestQuery_RequiresColumns(t *testing.T) {
	tbl, srv := newTestTable(t)

	_, err := tbl.Query(context.Background(), nil, nil, nil, nil)
	var guard *client.ArgumentGuardError
	assert.True(t, errors.As(err, &guard))
	assert.Empty(t, srv.Calls())
}

func TestQuery_CompileErrorsMakeNoCall(t *testing.T) {
	tbl, srv := newTestTable(t)
	ctx := context.Background()

	_, err := tbl.Query(ctx, query.Where{"label": "a}b"}, []interface{}{3}, nil, nil)
	var iqv *query.InvalidQueryValueError
	assert.True(t, errors.As(err, &iqv))

	_, err = tbl.Query(ctx, nil, []interface{}{"nosuch"}, nil, nil)
	var ufe *fields.UnknownFieldError
	assert.True(t, errors.As(err, &ufe))

	_, err = tbl.Query(ctx, nil, []interface{}{3}, nil, query.Options{"offset": 1})
	var ioe *query.InvalidOptionError
	assert.True(t, errors.As(err, &ioe))

	assert.Empty(t, srv.Calls())
}

func TestQueryColumnAndCount(t *testing.T) {
	tbl, srv := newTestTable(t)
	ctx, _ := testutil.WithTimeout(t)

	for _, label := range []string{"a", "b", "a"} {
		srv.Seed(testutil.TestTableDBID, map[int]string{8: label, 6: "1"})
	}

	vals, err := tbl.QueryColumn(ctx, query.Where{"label": "a"}, 3, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []value.Value{value.String("1"), value.String("3")}, vals)

	n, err := tbl.Count(ctx, query.Where{"label": "a", "flag": true})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = tbl.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = tbl.Count(ctx, query.Literal("{8.EX.'b'}"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestQuery_RemoteErrorSurfaces(t *testing.T) {
	tbl, srv := newTestTable(t)
	srv.Fail(protocol.ActionDoQuery, protocol.RemoteCodeNoSuchField, "No such field", 1)

	_, err := tbl.Query(context.Background(), nil, []interface{}{3}, nil, nil)
	var rce *protocol.RemoteCallError
	require.True(t, errors.As(err, &rce))
	assert.Equal(t, protocol.RemoteCodeNoSuchField, rce.Code)
	assert.Equal(t, protocol.ActionDoQuery, rce.Action)
}

func TestApp_ResolvesAliasBeforeTableCall(t *testing.T) {
	c, srv := testutil.NewTestClient(t, nil)
	ctx, _ := testutil.WithTimeout(t)
	tbl := c.App(testutil.TestAppDBID, "apptoken").Table(testutil.TestAlias, testRegistry(t))

	_, err := tbl.Add(ctx, client.Record{"label": "a"})
	require.NoError(t, err)
	_, err = tbl.Count(ctx, nil)
	require.NoError(t, err)

	calls := srv.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, protocol.ActionGetSchema, calls[0].Action)
	assert.Equal(t, testutil.TestAppDBID, calls[0].DBID)
	for _, call := range calls {
		assert.Equal(t, "apptoken", call.Request.AppToken)
	}
	assert.Equal(t, testutil.TestTableDBID, calls[1].DBID)
	assert.Equal(t, protocol.ActionDoQueryCount, calls[2].Action)

	dbid, err := tbl.DBID(ctx)
	require.NoError(t, err)
	assert.Equal(t, testutil.TestTableDBID, dbid)
	assert.Equal(t, 1, srv.CountActions(protocol.ActionGetSchema))
}

func TestApp_ConcurrentFirstUseSharesLookup(t *testing.T) {
	c, srv := testutil.NewTestClient(t, nil)
	srv.SetJitter(2 * time.Millisecond)
	ctx, _ := testutil.WithTimeout(t)
	tbl := c.App(testutil.TestAppDBID, "").Table(testutil.TestAlias, nil)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = tbl.Count(ctx, nil)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, srv.CountActions(protocol.ActionGetSchema))
	assert.Equal(t, 8, srv.CountActions(protocol.ActionDoQueryCount))
}

func TestApp_UnknownAlias(t *testing.T) {
	c, srv := testutil.NewTestClient(t, nil)
	app := c.App(testutil.TestAppDBID, "")

	_, err := app.Table("_dbid_missing", nil).Count(context.Background(), nil)
	var ute *client.UnknownTableError
	require.True(t, errors.As(err, &ute))
	assert.Equal(t, "_dbid_missing", ute.Alias)
	assert.Equal(t, testutil.TestAppDBID, ute.AppDBID)
	assert.Equal(t, []string{protocol.ActionGetSchema}, srv.Actions())

	// A dbid is used as given, with no lookup.
	dbid, err := app.Resolve(context.Background(), testutil.TestTableDBID)
	require.NoError(t, err)
	assert.Equal(t, testutil.TestTableDBID, dbid)
	assert.Equal(t, 1, len(srv.Calls()))
}

func TestTable_AliasWithoutApp(t *testing.T) {
	c, srv := testutil.NewTestClient(t, nil)

	_, err := c.Table(testutil.TestAlias, nil).Count(context.Background(), nil)
	var ute *client.UnknownTableError
	assert.True(t, errors.As(err, &ute))
	assert.Empty(t, srv.Calls())
}
