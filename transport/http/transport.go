// Package http implements transport.Transport over the service's
// XML-over-HTTP endpoint.
package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	stdhttp "net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash"
	"github.com/panjf2000/ants/v2"
	"golang.org/x/time/rate"

	"github.com/dan-strohschein/qbdriver/auth"
	"github.com/dan-strohschein/qbdriver/logger"
	"github.com/dan-strohschein/qbdriver/protocol"
	"github.com/dan-strohschein/qbdriver/transport"
)

// ActionHeader names the HTTP header carrying the action name.
const ActionHeader = "QUICKBASE-ACTION"

// AuthDBID is the pseudo-dbid authentication calls are posted to.
const AuthDBID = "main"

// Options configures the HTTP transport
type Options struct {
	// BaseURL is the realm URL, e.g. https://example.quickbase.com
	BaseURL string

	// AppToken is attached to calls whose request carries none.
	AppToken string

	// Tickets supplies the session ticket for every call. Nil sends none.
	Tickets auth.TicketSource

	// Timeout for a single HTTP round trip
	Timeout time.Duration

	// MaxConcurrentCalls bounds calls waiting on the service. Zero or
	// less means unbounded.
	MaxConcurrentCalls int

	// RequestsPerSecond paces outgoing calls. Zero or less means unpaced.
	RequestsPerSecond float64

	// Burst is the limiter burst size; defaults to 1.
	Burst int

	// HTTPClient overrides the client built from Timeout.
	HTTPClient *stdhttp.Client

	Logger logger.Logger
}

// Transport implements transport.Transport for the XML endpoint.
type Transport struct {
	opts    Options
	client  *stdhttp.Client
	codec   protocol.Codec
	pool    *ants.Pool
	limiter *rate.Limiter
	logger  logger.Logger
	metrics transportMetrics
	closed  atomic.Bool
}

// transportMetrics tracks transport performance
type transportMetrics struct {
	totalRequests atomic.Int64
	totalErrors   atomic.Int64
	bytesSent     atomic.Int64
	bytesReceived atomic.Int64
	inFlight      atomic.Int32
	latencySum    atomic.Int64 // nanoseconds
	mu            sync.RWMutex
	lastError     error
	lastErrorTime time.Time
}

var (
	_ transport.Transport  = (*Transport)(nil)
	_ transport.Observable = (*Transport)(nil)
	_ auth.Authenticator   = (*Transport)(nil)
)

// New creates an HTTP transport.
func New(opts Options) (*Transport, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNoop()
	}

	t := &Transport{
		opts:   opts,
		client: opts.HTTPClient,
		codec:  protocol.NewCodec(),
		logger: opts.Logger.WithFields(logger.String("component", "http_transport")),
	}
	if t.client == nil {
		t.client = &stdhttp.Client{Timeout: opts.Timeout}
	}

	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	if opts.MaxConcurrentCalls > 0 {
		pool, err := ants.NewPool(opts.MaxConcurrentCalls, ants.WithPanicHandler(func(v interface{}) {
			t.logger.Error("call handler panic", logger.String("panic", fmt.Sprint(v)))
		}))
		if err != nil {
			return nil, fmt.Errorf("failed to create call pool: %w", err)
		}
		t.pool = pool
	}

	return t, nil
}

// Call implements transport.Transport. The request is copied before the
// ticket and app token are attached, so callers may reuse it.
func (t *Transport) Call(ctx context.Context, action string, req *protocol.Request, dbid string) (*protocol.Response, error) {
	var out protocol.Request
	if req != nil {
		out = *req
	}
	if out.Ticket == "" && t.opts.Tickets != nil {
		out.Ticket = t.opts.Tickets.Ticket()
	}
	if out.AppToken == "" {
		out.AppToken = t.opts.AppToken
	}
	return t.submit(ctx, action, &out, dbid)
}

// Authenticate implements auth.Authenticator.
func (t *Transport) Authenticate(ctx context.Context, username, password string, hours int) (string, error) {
	resp, err := t.submit(ctx, protocol.ActionAuthenticate, &protocol.Request{
		Username: username,
		Password: password,
		Hours:    hours,
	}, AuthDBID)
	if err != nil {
		return "", err
	}
	return resp.Ticket, nil
}

type callResult struct {
	resp *protocol.Response
	err  error
}

// submit paces the call, then runs it on the pool when one is configured.
func (t *Transport) submit(ctx context.Context, action string, req *protocol.Request, dbid string) (*protocol.Response, error) {
	if t.closed.Load() {
		return nil, protocol.ConnectionError("transport is closed", nil, nil)
	}
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, protocol.TimeoutError("rate limiter wait aborted", map[string]interface{}{
				"action": action,
			}, err)
		}
	}
	if t.pool == nil {
		return t.roundTrip(ctx, action, req, dbid)
	}

	// Submit blocks while every worker is busy, so it runs off the caller's
	// goroutine and ctx can release a caller still waiting for a slot. A
	// task that starts after ctx is done returns without calling out.
	done := make(chan callResult, 1)
	go func() {
		err := t.pool.Submit(func() {
			if err := ctx.Err(); err != nil {
				done <- callResult{err: protocol.TimeoutError("call abandoned", map[string]interface{}{
					"action": action,
					"dbid":   dbid,
				}, err)}
				return
			}
			resp, err := t.roundTrip(ctx, action, req, dbid)
			done <- callResult{resp: resp, err: err}
		})
		switch {
		case err == nil:
		case errors.Is(err, ants.ErrPoolOverload):
			done <- callResult{err: protocol.BackpressureError(t.pool.Running())}
		default:
			done <- callResult{err: protocol.ConnectionError("failed to schedule call", nil, err)}
		}
	}()

	select {
	case r := <-done:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, protocol.TimeoutError("call abandoned", map[string]interface{}{
			"action": action,
			"dbid":   dbid,
		}, ctx.Err())
	}
}

// roundTrip performs one POST and decodes the reply.
func (t *Transport) roundTrip(ctx context.Context, action string, req *protocol.Request, dbid string) (*protocol.Response, error) {
	start := time.Now()
	t.metrics.totalRequests.Add(1)
	t.metrics.inFlight.Add(1)
	defer t.metrics.inFlight.Add(-1)

	body, err := t.codec.EncodeRequest(req)
	if err != nil {
		t.recordError(err)
		return nil, err
	}

	url := t.opts.BaseURL + "/db/" + dbid
	httpReq, err := stdhttp.NewRequestWithContext(ctx, stdhttp.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		t.recordError(err)
		return nil, protocol.ConnectionError("failed to build request", map[string]interface{}{"url": url}, err)
	}
	httpReq.Header.Set("Content-Type", "application/xml")
	httpReq.Header.Set(ActionHeader, action)

	t.logger.Debug("sending call",
		logger.String("action", action),
		logger.String("dbid", dbid),
		logger.Int("bytes", len(body)),
		logger.String("digest", fmt.Sprintf("%016x", xxhash.Sum64(body))))
	t.metrics.bytesSent.Add(int64(len(body)))

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		t.recordError(err)
		return nil, classifyError(err, action, dbid)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		t.recordError(err)
		return nil, protocol.ConnectionError("failed to read response", map[string]interface{}{
			"action": action,
		}, err)
	}
	t.metrics.bytesReceived.Add(int64(len(data)))

	if httpResp.StatusCode != stdhttp.StatusOK {
		serr := protocol.HTTPStatusError(httpResp.StatusCode, action)
		t.recordError(serr)
		return nil, serr
	}

	resp, err := t.codec.DecodeResponse(data)
	if err != nil {
		t.recordError(err)
		return nil, err
	}
	t.recordLatency(time.Since(start))

	if rerr := resp.Err(); rerr != nil {
		var rce *protocol.RemoteCallError
		if errors.As(rerr, &rce) {
			rce.Action = action
			rce.DBID = dbid
		}
		t.recordError(rerr)
		return nil, rerr
	}
	return resp, nil
}

func classifyError(err error, action, dbid string) error {
	details := map[string]interface{}{"action": action, "dbid": dbid}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return protocol.TimeoutError("call timed out", details, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return protocol.TimeoutError("call timed out", details, err)
	}
	return protocol.ConnectionError("call failed", details, err)
}

func (t *Transport) recordError(err error) {
	t.metrics.totalErrors.Add(1)
	t.metrics.mu.Lock()
	t.metrics.lastError = err
	t.metrics.lastErrorTime = time.Now()
	t.metrics.mu.Unlock()
}

func (t *Transport) recordLatency(d time.Duration) {
	t.metrics.latencySum.Add(int64(d))
}

// GetMetrics implements transport.Observable
func (t *Transport) GetMetrics() transport.TransportMetrics {
	t.metrics.mu.RLock()
	lastErr := t.metrics.lastError
	lastErrTime := t.metrics.lastErrorTime
	t.metrics.mu.RUnlock()

	totalReqs := t.metrics.totalRequests.Load()
	avgLatency := time.Duration(0)
	if totalReqs > 0 {
		avgLatency = time.Duration(t.metrics.latencySum.Load() / totalReqs)
	}

	return transport.TransportMetrics{
		TotalRequests:  totalReqs,
		TotalErrors:    t.metrics.totalErrors.Load(),
		AverageLatency: avgLatency,
		LastError:      lastErr,
		LastErrorTime:  lastErrTime,
		BytesSent:      t.metrics.bytesSent.Load(),
		BytesReceived:  t.metrics.bytesReceived.Load(),
		InFlight:       int(t.metrics.inFlight.Load()),
	}
}

// Close releases the call pool. Calls already running finish first.
func (t *Transport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	if t.pool != nil {
		return t.pool.ReleaseTimeout(3 * time.Second)
	}
	return nil
}
