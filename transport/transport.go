// Package transport defines the transport layer abstraction for the table
// service's action protocol.
package transport

import (
	"context"
	"time"

	"github.com/dan-strohschein/qbdriver/protocol"
)

// Transport executes one action call against one table or application.
type Transport interface {
	// Call sends req as the body of action against dbid and returns the
	// parsed response. It returns a *protocol.RemoteCallError when the
	// response carries a non-zero error code, so callers never see a
	// failed response as a success.
	Call(ctx context.Context, action string, req *protocol.Request, dbid string) (*protocol.Response, error)
}

// TransportMetrics contains performance and health metrics
type TransportMetrics struct {
	// TotalRequests is the total number of calls issued
	TotalRequests int64

	// TotalErrors is the total number of calls that failed
	TotalErrors int64

	// AverageLatency is the average round-trip latency
	AverageLatency time.Duration

	// LastError is the most recent error encountered
	LastError error

	// LastErrorTime is when the last error occurred
	LastErrorTime time.Time

	// BytesSent is the total request body bytes sent
	BytesSent int64

	// BytesReceived is the total response body bytes received
	BytesReceived int64

	// InFlight is the number of calls currently waiting on the service
	InFlight int
}

// Observable is implemented by transports that track their own metrics.
type Observable interface {
	GetMetrics() TransportMetrics
}

// Func adapts a function to the Transport interface.
type Func func(ctx context.Context, action string, req *protocol.Request, dbid string) (*protocol.Response, error)

// Call implements Transport.
func (f Func) Call(ctx context.Context, action string, req *protocol.Request, dbid string) (*protocol.Response, error) {
	return f(ctx, action, req, dbid)
}
