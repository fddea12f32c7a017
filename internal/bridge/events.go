package bridge

import "github.com/roman-kulish/launcher-link/internal/telemetry"

// Event is an input of the Manager loop. Transport callbacks, timers and user
// commands are all delivered as events so the session is mutated by a single
// goroutine, in arrival order.
type Event interface {
	event()
}

// Opened reports a persistent connection has been established.
type Opened struct {
	Conn Conn
}

// Message carries one frame received on a connection.
type Message struct {
	Conn Conn
	Data []byte
}

// Errored reports a transport error. Dial failures carry a nil Conn.
type Errored struct {
	Conn Conn
	Err  error
}

// Closed reports a connection was closed by the peer or the network.
type Closed struct {
	Conn Conn
	Code int
}

// ProbeDue fires when the short-poll grace delay after a discovery tick has
// elapsed.
type ProbeDue struct{}

// ProbeResult carries the outcome of a short-poll probe.
type ProbeResult struct {
	Info ProbeInfo
	Err  error
}

// PortsPolled carries the outcome of a short-poll port inventory request.
type PortsPolled struct {
	Ports []string
	Err   error
}

// StreamOpened reports the short-poll serial stream has been established.
type StreamOpened struct {
	Conn   Conn
	Target StreamTarget
	Err    error
}

// DiscoveryTick drives discovery, liveness and short-poll inventory refresh.
type DiscoveryTick struct{}

// RedrawTick drives chart redraws while the graph is open.
type RedrawTick struct{}

// OpenStream arms a stream target and asks the bridge to open the port.
type OpenStream struct {
	Target StreamTarget
}

// CloseStream disarms a stream target and asks the bridge to close the port.
type CloseStream struct {
	Target StreamTarget
}

// GraphControl is a user action on the live graph.
type GraphControl struct {
	Action GraphAction
}

// ApplyGraph replaces the graph configuration.
type ApplyGraph struct {
	Config telemetry.GraphConfig
}

// Disconnect closes the active connection.
type Disconnect struct{}

// GraphAction enumerates graph controls.
type GraphAction int

const (
	GraphPause GraphAction = iota
	GraphPlay
	GraphClear
)

func (a GraphAction) String() string {
	switch a {
	case GraphPause:
		return "pause"
	case GraphPlay:
		return "play"
	case GraphClear:
		return "clear"
	default:
		return "unknown"
	}
}

func (Opened) event()        {}
func (Message) event()       {}
func (Errored) event()       {}
func (Closed) event()        {}
func (ProbeDue) event()      {}
func (ProbeResult) event()   {}
func (PortsPolled) event()   {}
func (StreamOpened) event()  {}
func (DiscoveryTick) event() {}
func (RedrawTick) event()    {}
func (OpenStream) event()    {}
func (CloseStream) event()   {}
func (GraphControl) event()  {}
func (ApplyGraph) event()    {}
func (Disconnect) event()    {}
