// Package mock provides a scripted, recording transport for tests.
package mock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dan-strohschein/qbdriver/protocol"
	"github.com/dan-strohschein/qbdriver/transport"
)

// Call is one recorded invocation of MockTransport.Call.
type Call struct {
	Action  string
	DBID    string
	Request *protocol.Request
}

// MockTransport implements transport.Transport for testing. Responses are
// scripted per action; an action with a queue pops one response per call
// and falls back to its default once the queue is drained.
type MockTransport struct {
	mu        sync.RWMutex
	queued    map[string][]*protocol.Response
	defaults  map[string]*protocol.Response
	errs      map[string]error
	callErr   error
	callDelay time.Duration
	history   []Call

	calls   atomic.Int32
	metrics mockMetrics
}

type mockMetrics struct {
	totalRequests atomic.Int64
	totalErrors   atomic.Int64
	latencySum    atomic.Int64
}

// NewMockTransport creates a new mock transport
func NewMockTransport() *MockTransport {
	return &MockTransport{
		queued:   make(map[string][]*protocol.Response),
		defaults: make(map[string]*protocol.Response),
		errs:     make(map[string]error),
	}
}

var _ transport.Transport = (*MockTransport)(nil)

// WithResponse sets the default response for action.
func (m *MockTransport) WithResponse(action string, resp *protocol.Response) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaults[action] = resp
	return m
}

// WithQueuedResponses appends responses returned, in order, by the next
// calls to action.
func (m *MockTransport) WithQueuedResponses(action string, resps ...*protocol.Response) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queued[action] = append(m.queued[action], resps...)
	return m
}

// WithActionError makes every call to action fail with err.
func (m *MockTransport) WithActionError(action string, err error) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[action] = err
	return m
}

// WithCallError makes every call fail with err.
func (m *MockTransport) WithCallError(err error) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callErr = err
	return m
}

// WithCallDelay adds a delay to every call
func (m *MockTransport) WithCallDelay(delay time.Duration) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callDelay = delay
	return m
}

// Call implements transport.Transport
func (m *MockTransport) Call(ctx context.Context, action string, req *protocol.Request, dbid string) (*protocol.Response, error) {
	start := time.Now()
	m.calls.Add(1)
	m.metrics.totalRequests.Add(1)
	defer func() {
		m.metrics.latencySum.Add(int64(time.Since(start)))
	}()

	m.mu.Lock()
	m.history = append(m.history, Call{Action: action, DBID: dbid, Request: req})
	delay := m.callDelay
	err := m.callErr
	if e, ok := m.errs[action]; ok && err == nil {
		err = e
	}
	var resp *protocol.Response
	if q := m.queued[action]; len(q) > 0 {
		resp = q[0]
		m.queued[action] = q[1:]
	} else {
		resp = m.defaults[action]
	}
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			m.metrics.totalErrors.Add(1)
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	if err != nil {
		m.metrics.totalErrors.Add(1)
		return nil, err
	}

	if resp == nil {
		resp = &protocol.Response{}
	}
	out := *resp
	out.Action = action
	if rerr := out.Err(); rerr != nil {
		m.metrics.totalErrors.Add(1)
		return nil, rerr
	}
	return &out, nil
}

// GetMetrics implements transport.Observable
func (m *MockTransport) GetMetrics() transport.TransportMetrics {
	totalReqs := m.metrics.totalRequests.Load()
	avgLatency := time.Duration(0)
	if totalReqs > 0 {
		avgLatency = time.Duration(m.metrics.latencySum.Load() / totalReqs)
	}

	return transport.TransportMetrics{
		TotalRequests:  totalReqs,
		TotalErrors:    m.metrics.totalErrors.Load(),
		AverageLatency: avgLatency,
	}
}

// GetCallCount returns the number of times Call was invoked
func (m *MockTransport) GetCallCount() int {
	return int(m.calls.Load())
}

// GetHistory returns all recorded calls in arrival order.
func (m *MockTransport) GetHistory() []Call {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Return a copy to prevent external modifications
	history := make([]Call, len(m.history))
	copy(history, m.history)
	return history
}

// GetActions returns the action name of every recorded call.
func (m *MockTransport) GetActions() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	actions := make([]string, len(m.history))
	for i, c := range m.history {
		actions[i] = c.Action
	}
	return actions
}

// Reset clears all state and call counts
func (m *MockTransport) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queued = make(map[string][]*protocol.Response)
	m.defaults = make(map[string]*protocol.Response)
	m.errs = make(map[string]error)
	m.callErr = nil
	m.callDelay = 0
	m.history = nil

	m.calls.Store(0)
	m.metrics.totalRequests.Store(0)
	m.metrics.totalErrors.Store(0)
	m.metrics.latencySum.Store(0)
}
