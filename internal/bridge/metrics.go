package bridge

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "launcher_link"
	metricsSubsystem = "bridge"
)

// Metrics holds the session metrics. A nil *Metrics records nothing.
type Metrics struct {
	messagesReceived *prometheus.CounterVec
	payloadsDropped  *prometheus.CounterVec
	rowsAdmitted     prometheus.Counter
	protocolErrors   prometheus.Counter
	connections      *prometheus.CounterVec
	disconnects      *prometheus.CounterVec
	portListTimeouts prometheus.Counter
	state            prometheus.Gauge
	portsAvailable   prometheus.Gauge
}

// NewMetrics creates the session metrics and registers them with registerer.
// Returns nil metrics when registerer is nil.
func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	if registerer == nil {
		return nil, nil
	}

	m := &Metrics{
		messagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "messages_received_total",
			Help:      "Total envelopes received from the bridge",
		}, []string{"type"}),

		payloadsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "payloads_dropped_total",
			Help:      "Total serial payloads dropped before delivery",
		}, []string{"reason"}),

		rowsAdmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "telemetry_rows_total",
			Help:      "Total telemetry rows admitted by the decoder",
		}),

		protocolErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "protocol_errors_total",
			Help:      "Total envelopes that could not be decoded",
		}),

		connections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "connections_total",
			Help:      "Total connections established, by transport",
		}, []string{"transport"}),

		disconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "disconnects_total",
			Help:      "Total disconnects, by reason",
		}, []string{"reason"}),

		portListTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "port_list_timeouts_total",
			Help:      "Total forced disconnects caused by a missing port list",
		}),

		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "state",
			Help:      "Session state (0 disconnected, 1 probing, 2 short-poll, 3 persistent)",
		}),

		portsAvailable: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "ports_available",
			Help:      "Whether the bridge reports a usable port",
		}),
	}

	collectors := []prometheus.Collector{
		m.messagesReceived,
		m.payloadsDropped,
		m.rowsAdmitted,
		m.protocolErrors,
		m.connections,
		m.disconnects,
		m.portListTimeouts,
		m.state,
		m.portsAvailable,
	}
	var errs []error
	for _, c := range collectors {
		if err := registerer.Register(c); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("registering bridge metrics: %w", err)
	}

	return m, nil
}

func (m *Metrics) received(kind string) {
	if m != nil {
		m.messagesReceived.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) dropped(reason string) {
	if m != nil {
		m.payloadsDropped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) rows(n int) {
	if m != nil && n > 0 {
		m.rowsAdmitted.Add(float64(n))
	}
}

func (m *Metrics) protocolError() {
	if m != nil {
		m.protocolErrors.Inc()
	}
}

func (m *Metrics) connected(kind TransportKind) {
	if m != nil {
		m.connections.WithLabelValues(kind.String()).Inc()
	}
}

func (m *Metrics) disconnected(reason string) {
	if m != nil {
		m.disconnects.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) portListTimeout() {
	if m != nil {
		m.portListTimeouts.Inc()
	}
}

func (m *Metrics) status(s Status) {
	if m == nil {
		return
	}
	m.state.Set(float64(s.State))
	if s.PortsAvailable {
		m.portsAvailable.Set(1)
	} else {
		m.portsAvailable.Set(0)
	}
}
