package client

import (
	"context"
	"time"

	"github.com/dan-strohschein/qbdriver/logger"
	"github.com/dan-strohschein/qbdriver/protocol"
)

// HookContext describes one remote call. It is passed to hooks to allow
// inspection and modification.
type HookContext struct {
	// Action is the protocol action being called
	Action string

	// DBID is the table or application the call targets
	DBID string

	// Request is the body about to be sent. Before hooks may modify it.
	Request *protocol.Request

	// StartTime is when the call began
	StartTime time.Time

	// Metadata allows hooks to store arbitrary data for passing between Before/After
	Metadata map[string]interface{}

	// TraceID is the unique identifier for this call
	TraceID string

	// Response is the parsed reply (available in After hook)
	Response *protocol.Response

	// Error stores any error that occurred (available in After hook)
	Error error

	// Duration is the call time (available in After hook)
	Duration time.Duration
}

// Hook is the interface that all hooks must implement.
type Hook interface {
	// Name returns the unique name of this hook
	Name() string

	// Before is called before the call is sent.
	// Returning an error aborts the call and returns the error.
	Before(ctx context.Context, hookCtx *HookContext) error

	// After is called after the call completes (even if it failed).
	// Returning an error replaces any existing error.
	After(ctx context.Context, hookCtx *HookContext) error
}

// hookEntry wraps a Hook with its registration order for stable iteration.
type hookEntry struct {
	hook  Hook
	order int
}

// RegisterHook adds a hook to the client's hook chain.
// Hooks are executed in FIFO order (first registered, first executed).
// If a hook with the same name already exists, it is replaced.
func (c *Client) RegisterHook(hook Hook) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()

	for i, entry := range c.hooks {
		if entry.hook.Name() == hook.Name() {
			c.hooks[i].hook = hook
			c.logger.Info("hook replaced", logger.String("hook", hook.Name()))
			return
		}
	}

	order := len(c.hooks)
	c.hooks = append(c.hooks, hookEntry{hook: hook, order: order})
	c.logger.Info("hook registered", logger.String("hook", hook.Name()), logger.Int("order", order))
}

// UnregisterHook removes a hook by name.
// Returns true if the hook was found and removed, false otherwise.
func (c *Client) UnregisterHook(name string) bool {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()

	for i, entry := range c.hooks {
		if entry.hook.Name() == name {
			c.hooks = append(c.hooks[:i], c.hooks[i+1:]...)
			c.logger.Info("hook unregistered", logger.String("hook", name))
			return true
		}
	}

	return false
}

// GetHooks returns the names of all registered hooks in execution order.
func (c *Client) GetHooks() []string {
	c.hooksMu.RLock()
	defer c.hooksMu.RUnlock()

	names := make([]string, len(c.hooks))
	for i, entry := range c.hooks {
		names[i] = entry.hook.Name()
	}
	return names
}

func (c *Client) snapshotHooks() []Hook {
	c.hooksMu.RLock()
	defer c.hooksMu.RUnlock()

	hooks := make([]Hook, len(c.hooks))
	for i, entry := range c.hooks {
		hooks[i] = entry.hook
	}
	return hooks
}

// executeBeforeHooks runs all Before hooks in order.
// If any hook returns an error, execution stops and the error is returned.
func (c *Client) executeBeforeHooks(ctx context.Context, hooks []Hook, hookCtx *HookContext) error {
	for _, hook := range hooks {
		if err := hook.Before(ctx, hookCtx); err != nil {
			c.logger.Debug("hook aborted call",
				logger.String("hook", hook.Name()),
				logger.String("action", hookCtx.Action),
				logger.Error("error", err))
			return err
		}
	}
	return nil
}

// executeAfterHooks runs all After hooks in order.
// All hooks are executed even if one returns an error.
// The last error returned (if any) is returned.
func (c *Client) executeAfterHooks(ctx context.Context, hooks []Hook, hookCtx *HookContext) error {
	var lastErr error
	for _, hook := range hooks {
		if err := hook.After(ctx, hookCtx); err != nil {
			c.logger.Debug("hook returned error in After",
				logger.String("hook", hook.Name()),
				logger.String("action", hookCtx.Action),
				logger.Error("error", err))
			lastErr = err
		}
	}
	return lastErr
}
