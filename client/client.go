// Package client implements tables over the remote action protocol: typed
// queries, batched writes and planned deletes.
package client

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dan-strohschein/qbdriver/fields"
	"github.com/dan-strohschein/qbdriver/logger"
	"github.com/dan-strohschein/qbdriver/metrics"
	"github.com/dan-strohschein/qbdriver/protocol"
	"github.com/dan-strohschein/qbdriver/transport"
)

// Client issues remote calls through a transport. It holds no table
// state; use App or Table to obtain tables.
type Client struct {
	transport transport.Transport
	opts      ClientOptions
	logger    logger.Logger
	metrics   *metrics.Metrics
	debugMode atomic.Bool
	hooks     []hookEntry  // Registered hooks in execution order
	hooksMu   sync.RWMutex // Protects hooks slice
}

// NewClient creates a new client over t with the given options.
// If opts is nil, default options are used.
func NewClient(t transport.Transport, opts *ClientOptions) *Client {
	if opts == nil {
		defaultOpts := DefaultOptions()
		opts = &defaultOpts
	}
	o := *opts
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultOptions().BatchSize
	}
	if o.AliasCacheSize <= 0 {
		o.AliasCacheSize = DefaultOptions().AliasCacheSize
	}

	log := o.Logger
	if log == nil {
		log = logger.New(o.LogLevel, nil)
	}

	c := &Client{
		transport: t,
		opts:      o,
		logger:    log,
		metrics:   o.Metrics,
	}
	c.debugMode.Store(o.DebugMode)
	return c
}

// Options returns a copy of the options in effect.
func (c *Client) Options() ClientOptions {
	return c.opts
}

// App returns a handle on the application dbid. token, when non-empty, is
// sent as the app token on every call made through the app's tables.
func (c *Client) App(dbid, token string) *App {
	cache, err := lru.New[string, string](c.opts.AliasCacheSize)
	if err != nil {
		// Only a non-positive size fails, and NewClient rules that out.
		panic(err)
	}
	return &App{
		client:  c,
		dbid:    dbid,
		token:   token,
		aliases: cache,
		logger:  c.logger.WithFields(logger.String("app", dbid)),
	}
}

// Table returns a table addressed directly by dbid. reg may be nil, in
// which case fields are referenced by id only.
func (c *Client) Table(dbid string, reg *fields.Registry) *Table {
	return newTable(c, nil, dbid, reg)
}

// call sends one action and runs hooks, logging and metrics around it.
func (c *Client) call(ctx context.Context, action string, req *protocol.Request, dbid string) (*protocol.Response, error) {
	start := time.Now()
	traceID := uuid.New().String()
	hooks := c.snapshotHooks()

	hookCtx := &HookContext{
		Action:    action,
		DBID:      dbid,
		Request:   req,
		StartTime: start,
		Metadata:  make(map[string]interface{}),
		TraceID:   traceID,
	}

	if err := c.executeBeforeHooks(ctx, hooks, hookCtx); err != nil {
		return nil, err
	}

	if c.IsDebugMode() {
		c.logger.Debug("sending call",
			logger.String("action", action),
			logger.String("dbid", dbid),
			logger.String("trace_id", traceID),
			logger.String("timestamp", start.Format(time.RFC3339Nano)))
	}

	resp, err := c.transport.Call(ctx, action, hookCtx.Request, dbid)
	duration := time.Since(start)

	hookCtx.Response = resp
	hookCtx.Error = err
	hookCtx.Duration = duration
	if hookErr := c.executeAfterHooks(ctx, hooks, hookCtx); hookErr != nil {
		err = hookErr
	}

	c.metrics.ObserveCall(action, duration, err)

	if err != nil {
		c.logger.Debug("call failed",
			logger.String("action", action),
			logger.String("dbid", dbid),
			logger.String("trace_id", traceID),
			logger.Duration("elapsed", duration),
			logger.Error("error", err))
		return nil, err
	}

	c.logger.Debug("call completed",
		logger.String("action", action),
		logger.String("dbid", dbid),
		logger.String("trace_id", traceID),
		logger.Duration("elapsed", duration))
	return resp, nil
}
