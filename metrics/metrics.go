// Package metrics exposes the counters and histograms the core emits:
// pool occupancy, retry counts, timeout counts and command latency.
// Every metric is namespaced under "dkv_client_" so a host application
// scraping VictoriaMetrics/metrics' default registry does not collide
// with its own names.
package metrics

import (
	"fmt"
	"io"

	"github.com/VictoriaMetrics/metrics"
)

// PoolGauges tracks a single node connection pool's occupancy.
type PoolGauges struct {
	node string
}

// ForNode returns the gauge set for a given node id. Gauges are created
// lazily and cached by VictoriaMetrics/metrics itself, so repeated
// calls with the same node id are cheap.
func ForNode(node string) PoolGauges {
	return PoolGauges{node: node}
}

func (p PoolGauges) SetIdle(n int) {
	metrics.GetOrCreateGauge(fmt.Sprintf(`dkv_client_pool_idle{node=%q}`, p.node), nil).Set(float64(n))
}

func (p PoolGauges) SetInUse(n int) {
	metrics.GetOrCreateGauge(fmt.Sprintf(`dkv_client_pool_in_use{node=%q}`, p.node), nil).Set(float64(n))
}

func (p PoolGauges) IncCreated() {
	metrics.GetOrCreateCounter(fmt.Sprintf(`dkv_client_pool_connections_created_total{node=%q}`, p.node)).Inc()
}

func (p PoolGauges) IncClosed(reason string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`dkv_client_pool_connections_closed_total{node=%q,reason=%q}`, p.node, reason)).Inc()
}

// CommandRetries counts retries by command name.
func CommandRetries(cmd string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`dkv_client_command_retries_total{command=%q}`, cmd)).Inc()
}

// CommandTimeouts counts supervisor-triggered timeouts by command name.
func CommandTimeouts(cmd string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`dkv_client_command_timeouts_total{command=%q}`, cmd)).Inc()
}

// CommandResult counts terminal command outcomes by command name and
// outcome ("success", "fail").
func CommandResult(cmd, outcome string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`dkv_client_command_result_total{command=%q,outcome=%q}`, cmd, outcome)).Inc()
}

// CommandLatency records the end-to-end latency (seconds) of a
// terminated command.
func CommandLatency(cmd string, seconds float64) {
	metrics.GetOrCreateHistogram(fmt.Sprintf(`dkv_client_command_duration_seconds{command=%q}`, cmd)).Update(seconds)
}

// EventContextsInUse tracks how many of the bounded EventContext pool's
// slots are currently checked out.
func EventContextsInUse(n int) {
	metrics.GetOrCreateGauge(`dkv_client_event_contexts_in_use`, nil).Set(float64(n))
}

// AdmissionQueueDepth tracks how many commands are parked waiting for
// an EventContext in blocking admission mode.
func AdmissionQueueDepth(n int) {
	metrics.GetOrCreateGauge(`dkv_client_admission_queue_depth`, nil).Set(float64(n))
}

// WritePrometheus exposes the registered metrics in Prometheus text
// format, suitable for wiring into an HTTP handler by the embedding
// application.
func WritePrometheus(w io.Writer) {
	metrics.WritePrometheus(w, true)
}
