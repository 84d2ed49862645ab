// Package testutil provides an in-memory table service and helpers for
// testing code built on the client package.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/dan-strohschein/qbdriver/client"
	"github.com/dan-strohschein/qbdriver/logger"
)

// Default ids used by NewTestClient.
const (
	TestAppDBID   = "bqapp0001"
	TestTableDBID = "bqtbl0001"
	TestAlias     = "_dbid_things"
)

// NewTestClient creates a client over a fresh FakeServer holding one app
// (TestAppDBID) with one table (TestTableDBID, alias TestAlias). If opts
// is nil, default options with a no-op logger are used.
func NewTestClient(t testing.TB, opts *client.ClientOptions) (*client.Client, *FakeServer) {
	t.Helper()

	srv := NewFakeServer().AddTable(TestTableDBID, TestAppDBID, TestAlias)
	if opts == nil {
		o := client.DefaultOptions()
		opts = &o
	}
	if opts.Logger == nil {
		o := *opts
		o.Logger = logger.NewNoop()
		opts = &o
	}
	return client.NewClient(srv, opts), srv
}

// WithTimeout creates a context with timeout for tests.
// Default timeout is 10 seconds.
func WithTimeout(t testing.TB, timeout ...time.Duration) (context.Context, context.CancelFunc) {
	t.Helper()

	duration := 10 * time.Second
	if len(timeout) > 0 {
		duration = timeout[0]
	}

	ctx, cancel := context.WithTimeout(context.Background(), duration)
	t.Cleanup(cancel)

	return ctx, cancel
}
