package client

import (
	"context"
	"sync/atomic"

	"github.com/dan-strohschein/qbdriver/logger"
	"github.com/dan-strohschein/qbdriver/protocol"
)

// isMutation reports whether action changes table data.
func isMutation(action string) bool {
	switch action {
	case protocol.ActionImportCSV, protocol.ActionAddRecord, protocol.ActionEditRecord,
		protocol.ActionDeleteRecord, protocol.ActionPurgeRecords:
		return true
	default:
		return false
	}
}

// ============================================================================
// LoggingHook - Logs call details
// ============================================================================

// LoggingHook logs every remote call with configurable detail levels.
type LoggingHook struct {
	logger       logger.Logger
	logRequests  bool // Log query and column fragments
	logDurations bool // Log execution times
}

// NewLoggingHook creates a new logging hook with the given logger.
func NewLoggingHook(log logger.Logger, logRequests, logDurations bool) *LoggingHook {
	return &LoggingHook{
		logger:       log,
		logRequests:  logRequests,
		logDurations: logDurations,
	}
}

func (h *LoggingHook) Name() string {
	return "logging"
}

func (h *LoggingHook) Before(ctx context.Context, hookCtx *HookContext) error {
	if h.logRequests && hookCtx.Request != nil {
		h.logger.Debug("executing call",
			logger.String("action", hookCtx.Action),
			logger.String("dbid", hookCtx.DBID),
			logger.String("query", hookCtx.Request.Query),
			logger.String("clist", hookCtx.Request.CList),
			logger.String("trace_id", hookCtx.TraceID))
	}
	return nil
}

func (h *LoggingHook) After(ctx context.Context, hookCtx *HookContext) error {
	fields := []logger.Field{
		logger.String("action", hookCtx.Action),
		logger.String("trace_id", hookCtx.TraceID),
	}

	if h.logDurations {
		fields = append(fields, logger.Duration("duration", hookCtx.Duration))
	}

	if hookCtx.Error != nil {
		fields = append(fields, logger.Error("error", hookCtx.Error))
		h.logger.Error("call failed", fields...)
	} else {
		h.logger.Debug("call completed", fields...)
	}

	return nil
}

// ============================================================================
// MetricsHook - Collects call counters
// ============================================================================

// MetricsHook counts calls using atomic counters. It complements the
// Prometheus collectors for callers that do not run a registry.
type MetricsHook struct {
	TotalCalls      atomic.Uint64
	TotalReads      atomic.Uint64
	TotalMutations  atomic.Uint64
	TotalErrors     atomic.Uint64
	TotalDurationNs atomic.Uint64
}

// NewMetricsHook creates a new metrics collection hook.
func NewMetricsHook() *MetricsHook {
	return &MetricsHook{}
}

func (h *MetricsHook) Name() string {
	return "metrics"
}

func (h *MetricsHook) Before(ctx context.Context, hookCtx *HookContext) error {
	return nil
}

func (h *MetricsHook) After(ctx context.Context, hookCtx *HookContext) error {
	h.TotalCalls.Add(1)
	h.TotalDurationNs.Add(uint64(hookCtx.Duration.Nanoseconds()))

	if isMutation(hookCtx.Action) {
		h.TotalMutations.Add(1)
	} else {
		h.TotalReads.Add(1)
	}

	if hookCtx.Error != nil {
		h.TotalErrors.Add(1)
	}

	return nil
}

// GetStats returns current metrics as a map.
func (h *MetricsHook) GetStats() map[string]interface{} {
	totalCalls := h.TotalCalls.Load()
	totalDur := h.TotalDurationNs.Load()
	avgDuration := int64(0)
	if totalCalls > 0 {
		avgDuration = int64(totalDur / totalCalls)
	}

	return map[string]interface{}{
		"total_calls":       totalCalls,
		"total_reads":       h.TotalReads.Load(),
		"total_mutations":   h.TotalMutations.Load(),
		"total_errors":      h.TotalErrors.Load(),
		"total_duration_ns": totalDur,
		"avg_duration_ns":   avgDuration,
		"avg_duration_ms":   float64(avgDuration) / 1_000_000,
	}
}

// Reset clears all metrics.
func (h *MetricsHook) Reset() {
	h.TotalCalls.Store(0)
	h.TotalReads.Store(0)
	h.TotalMutations.Store(0)
	h.TotalErrors.Store(0)
	h.TotalDurationNs.Store(0)
}

// ============================================================================
// ReadOnlyHook - Blocks mutating calls
// ============================================================================

// ReadOnlyHook aborts every call that would change table data.
type ReadOnlyHook struct{}

func (ReadOnlyHook) Name() string {
	return "read_only"
}

func (ReadOnlyHook) Before(ctx context.Context, hookCtx *HookContext) error {
	if isMutation(hookCtx.Action) {
		return NewArgumentGuardError(hookCtx.Action, "client is read-only")
	}
	return nil
}

func (ReadOnlyHook) After(ctx context.Context, hookCtx *HookContext) error {
	return nil
}
