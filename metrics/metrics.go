// Package metrics exposes dialtone's runtime counters as Prometheus
// metrics, namespaced via docker/go-metrics the way the broader container-
// tooling ecosystem wires per-subsystem metrics into a shared registry.
package metrics

import (
	dockermetrics "github.com/docker/go-metrics"
)

// Metrics holds every counter/gauge dialtone updates during normal
// operation. Construct one with New and register it once at startup.
type Metrics struct {
	ns *dockermetrics.Namespace

	ConnectionsOpened dockermetrics.Counter
	ConnectionsClosed dockermetrics.Counter
	ActiveConnections dockermetrics.Gauge

	FramesReceived dockermetrics.LabeledCounter // label: type
	FramesSent     dockermetrics.LabeledCounter // label: type
	FramesDropped  dockermetrics.LabeledCounter // label: reason

	RetransmitsSent dockermetrics.Counter

	TransfersStarted   dockermetrics.Counter
	TransfersCompleted dockermetrics.Counter
	TransfersFailed    dockermetrics.Counter

	AuthSuccesses dockermetrics.Counter
	AuthFailures  dockermetrics.Counter
	GuestLogins   dockermetrics.Counter
}

// New builds a Metrics instance under the "dialtone" namespace and
// "server" subsystem, ready to be registered with Register.
func New() *Metrics {
	ns := dockermetrics.NewNamespace("dialtone", "server", nil)

	m := &Metrics{
		ns:                 ns,
		ConnectionsOpened:  ns.NewCounter("connections_opened_total", "total TCP connections accepted"),
		ConnectionsClosed:  ns.NewCounter("connections_closed_total", "total connections that reached CLOSED"),
		ActiveConnections:  ns.NewGauge("connections_active", "connections currently ESTABLISHED or later", dockermetrics.Total),
		FramesReceived:     ns.NewLabeledCounter("frames_received_total", "frames accepted from clients", "type"),
		FramesSent:         ns.NewLabeledCounter("frames_sent_total", "frames written to clients", "type"),
		FramesDropped:      ns.NewLabeledCounter("frames_dropped_total", "frames rejected by the codec or state machine", "reason"),
		RetransmitsSent:    ns.NewCounter("retransmits_total", "data frames retransmitted after timeout"),
		TransfersStarted:   ns.NewCounter("xfer_started_total", "XFER transfers begun"),
		TransfersCompleted: ns.NewCounter("xfer_completed_total", "XFER transfers that reached DONE"),
		TransfersFailed:    ns.NewCounter("xfer_failed_total", "XFER transfers that reached FAILED"),
		AuthSuccesses:      ns.NewCounter("auth_success_total", "successful login handshakes"),
		AuthFailures:       ns.NewCounter("auth_failure_total", "failed login handshakes"),
		GuestLogins:        ns.NewCounter("auth_guest_total", "sessions that fell back to an ephemeral guest identity"),
	}
	return m
}

// Register adds m's namespace to the default docker/go-metrics registry.
// Callers expose it over HTTP with dockermetrics.Handler().
func Register(m *Metrics) {
	dockermetrics.Register(m.ns)
}
