package client

import (
	"encoding/json"
	"fmt"

	"github.com/dan-strohschein/qbdriver/transport"
)

// EnableDebugMode enables debug mode with verbose logging and stack traces.
func (c *Client) EnableDebugMode() {
	c.debugMode.Store(true)
	c.logger.Info("debug mode enabled")
}

// DisableDebugMode disables debug mode.
func (c *Client) DisableDebugMode() {
	c.debugMode.Store(false)
	c.logger.Info("debug mode disabled")
}

// IsDebugMode returns whether debug mode is currently enabled.
func (c *Client) IsDebugMode() bool {
	return c.debugMode.Load()
}

// FormatError formats err according to the client's debug mode.
func (c *Client) FormatError(err error) string {
	return FormatError(err, c.IsDebugMode())
}

// GetDebugInfo returns a snapshot of client state for debugging.
func (c *Client) GetDebugInfo() map[string]interface{} {
	info := map[string]interface{}{
		"version":   Version,
		"debugMode": c.IsDebugMode(),
		"hooks":     c.GetHooks(),
	}

	if obs, ok := c.transport.(transport.Observable); ok {
		m := obs.GetMetrics()
		tm := map[string]interface{}{
			"totalRequests":  m.TotalRequests,
			"totalErrors":    m.TotalErrors,
			"averageLatency": m.AverageLatency.String(),
			"bytesSent":      m.BytesSent,
			"bytesReceived":  m.BytesReceived,
			"inFlight":       m.InFlight,
		}
		if m.LastError != nil {
			tm["lastError"] = m.LastError.Error()
			tm["lastErrorTime"] = m.LastErrorTime.Format("2006-01-02T15:04:05.000Z07:00")
		}
		info["transport"] = tm
	}

	info["options"] = map[string]interface{}{
		"batchSize":      c.opts.BatchSize,
		"aliasCacheSize": c.opts.AliasCacheSize,
		"logLevel":       c.opts.LogLevel,
		"metrics":        c.metrics != nil,
	}

	return info
}

// DumpDebugInfoJSON returns debug info as formatted JSON string.
func (c *Client) DumpDebugInfoJSON() string {
	info := c.GetDebugInfo()
	bytes, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error": "failed to marshal debug info: %s"}`, err.Error())
	}
	return string(bytes)
}
