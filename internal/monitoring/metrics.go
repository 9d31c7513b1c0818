// Metrics - lightweight in-memory counters.
//
// DESIGN: Atomic counters for operational visibility:
//   - requests/successes:  HTTP requests through the gateway
//   - dispatches:          webhook events processed
//   - hook_runs/failures:  sandbox executions and failed executions
//   - timeouts:            executions killed at the wall-clock budget
//
// For production, export these to Prometheus or similar.
package monitoring

import "sync/atomic"

// MetricsCollector collects operational metrics.
type MetricsCollector struct {
	requests     atomic.Int64
	successes    atomic.Int64
	dispatches   atomic.Int64
	hookRuns     atomic.Int64
	hookFailures atomic.Int64
	timeouts     atomic.Int64
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{}
}

// RecordRequest records an HTTP request.
func (mc *MetricsCollector) RecordRequest(success bool) {
	mc.requests.Add(1)
	if success {
		mc.successes.Add(1)
	}
}

// RecordDispatch records one processed webhook event.
func (mc *MetricsCollector) RecordDispatch() { mc.dispatches.Add(1) }

// RecordHookRun records one sandbox execution.
func (mc *MetricsCollector) RecordHookRun(success, timedOut bool) {
	mc.hookRuns.Add(1)
	if !success {
		mc.hookFailures.Add(1)
	}
	if timedOut {
		mc.timeouts.Add(1)
	}
}

// Stats returns current metrics.
func (mc *MetricsCollector) Stats() map[string]int64 {
	return map[string]int64{
		"requests":      mc.requests.Load(),
		"successes":     mc.successes.Load(),
		"dispatches":    mc.dispatches.Load(),
		"hook_runs":     mc.hookRuns.Load(),
		"hook_failures": mc.hookFailures.Load(),
		"timeouts":      mc.timeouts.Load(),
	}
}
