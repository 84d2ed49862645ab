package client

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dan-strohschein/qbdriver/logger"
	"github.com/dan-strohschein/qbdriver/protocol"
	"github.com/dan-strohschein/qbdriver/transport/mock"
)

// TestHook records what it saw.
type TestHook struct {
	name        string
	beforeError error
	afterError  error
	setToken    string

	mu      sync.Mutex
	before  []string
	after   []string
	traceID string
}

func (h *TestHook) Name() string {
	return h.name
}

func (h *TestHook) Before(ctx context.Context, hookCtx *HookContext) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.before = append(h.before, hookCtx.Action)
	h.traceID = hookCtx.TraceID
	if h.setToken != "" {
		hookCtx.Request.AppToken = h.setToken
	}
	return h.beforeError
}

func (h *TestHook) After(ctx context.Context, hookCtx *HookContext) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.after = append(h.after, hookCtx.Action)
	return h.afterError
}

func newHookClient(tr *mock.MockTransport) *Client {
	return NewClient(tr, &ClientOptions{Logger: logger.NewNoop()})
}

func TestHookRegistration(t *testing.T) {
	c := newHookClient(mock.NewMockTransport())

	c.RegisterHook(&TestHook{name: "hook1"})
	c.RegisterHook(&TestHook{name: "hook2"})
	assert.Equal(t, []string{"hook1", "hook2"}, c.GetHooks())

	// Same name replaces in place.
	c.RegisterHook(&TestHook{name: "hook1"})
	assert.Equal(t, []string{"hook1", "hook2"}, c.GetHooks())

	assert.True(t, c.UnregisterHook("hook1"))
	assert.Equal(t, []string{"hook2"}, c.GetHooks())
	assert.False(t, c.UnregisterHook("nonexistent"))
}

func TestHooks_RunAroundEveryCall(t *testing.T) {
	tr := mock.NewMockTransport()
	c := newHookClient(tr)
	hook := &TestHook{name: "recorder", setToken: "from-hook"}
	c.RegisterHook(hook)

	_, err := c.Table("tbl", nil).Count(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{protocol.ActionDoQueryCount}, hook.before)
	assert.Equal(t, []string{protocol.ActionDoQueryCount}, hook.after)
	assert.Len(t, hook.traceID, 36)
	require.Len(t, tr.GetHistory(), 1)
	assert.Equal(t, "from-hook", tr.GetHistory()[0].Request.AppToken)
}

func TestHooks_BeforeErrorAbortsCall(t *testing.T) {
	tr := mock.NewMockTransport()
	c := newHookClient(tr)
	stop := errors.New("stop")
	second := &TestHook{name: "second"}
	c.RegisterHook(&TestHook{name: "first", beforeError: stop})
	c.RegisterHook(second)

	_, err := c.Table("tbl", nil).Count(context.Background(), nil)
	assert.ErrorIs(t, err, stop)
	assert.Zero(t, tr.GetCallCount())
	assert.Empty(t, second.before)
}

func TestHooks_AfterErrorReplacesResult(t *testing.T) {
	tr := mock.NewMockTransport()
	c := newHookClient(tr)
	replaced := errors.New("replaced")
	other := &TestHook{name: "other"}
	c.RegisterHook(&TestHook{name: "failing", afterError: replaced})
	c.RegisterHook(other)

	_, err := c.Table("tbl", nil).Count(context.Background(), nil)
	assert.ErrorIs(t, err, replaced)
	assert.Len(t, other.after, 1)
}

func TestReadOnlyHook(t *testing.T) {
	tr := mock.NewMockTransport()
	c := newHookClient(tr)
	c.RegisterHook(ReadOnlyHook{})
	tbl := c.Table("tbl", nil)
	ctx := context.Background()

	_, err := tbl.Count(ctx, nil)
	assert.NoError(t, err)

	_, err = tbl.AddOne(ctx, Record{"6": "x"})
	var guard *ArgumentGuardError
	require.True(t, errors.As(err, &guard))
	assert.Equal(t, protocol.ActionAddRecord, guard.Operation)

	_, err = tbl.DeleteAll(ctx)
	assert.Error(t, err)
	assert.Equal(t, []string{protocol.ActionDoQueryCount}, tr.GetActions())
}

func TestMetricsHook(t *testing.T) {
	tr := mock.NewMockTransport().
		WithActionError(protocol.ActionPurgeRecords, protocol.NewRemoteCallError(protocol.ActionPurgeRecords, 3, "No permission", ""))
	c := newHookClient(tr)
	h := NewMetricsHook()
	c.RegisterHook(h)
	tbl := c.Table("tbl", nil)
	ctx := context.Background()

	_, _ = tbl.Count(ctx, nil)
	_, _ = tbl.Query(ctx, nil, []interface{}{3}, nil, nil)
	_, _ = tbl.DeleteAll(ctx)

	stats := h.GetStats()
	assert.Equal(t, uint64(3), stats["total_calls"])
	assert.Equal(t, uint64(2), stats["total_reads"])
	assert.Equal(t, uint64(1), stats["total_mutations"])
	assert.Equal(t, uint64(1), stats["total_errors"])

	h.Reset()
	assert.Equal(t, uint64(0), h.GetStats()["total_calls"])
}

func TestLoggingHook(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New("DEBUG", &buf)
	tr := mock.NewMockTransport()
	c := newHookClient(tr)
	c.RegisterHook(NewLoggingHook(log, true, true))

	_, err := c.Table("tbl", nil).Query(context.Background(), nil, []interface{}{3, 8}, nil, nil)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "executing call")
	assert.Contains(t, out, "call completed")
	assert.Contains(t, out, `"clist":"3.8"`)
	assert.Equal(t, 2, strings.Count(out, protocol.ActionDoQuery))
}
