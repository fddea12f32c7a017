package bridge

import (
	"slices"

	"github.com/google/uuid"
)

// TransportKind identifies how the session talks to the bridge.
type TransportKind int

const (
	TransportNone TransportKind = iota
	TransportShortPoll
	TransportPersistent
)

func (k TransportKind) String() string {
	switch k {
	case TransportShortPoll:
		return "short-poll"
	case TransportPersistent:
		return "persistent"
	default:
		return "none"
	}
}

// State is the connectivity state of a session.
type State int

const (
	StateDisconnected State = iota
	StateProbing
	StateShortPoll
	StatePersistent
)

func (s State) String() string {
	switch s {
	case StateProbing:
		return "probing"
	case StateShortPoll:
		return "connected-short-poll"
	case StatePersistent:
		return "connected-persistent"
	default:
		return "disconnected"
	}
}

// StreamTarget is the view serial payloads are delivered to.
type StreamTarget int

const (
	TargetNone StreamTarget = iota
	TargetTerminal
	TargetGraph
)

func (t StreamTarget) String() string {
	switch t {
	case TargetTerminal:
		return "terminal"
	case TargetGraph:
		return "graph"
	default:
		return "none"
	}
}

// PortsUsable reports whether a port inventory holds a usable port. The
// bridge reports a single blank entry when no device is attached.
func PortsUsable(ports []string) bool {
	return len(ports) > 1 || (len(ports) == 1 && ports[0] != "")
}

// Session is the state of one link to the bridge. It is owned and mutated by
// the Manager loop only.
type Session struct {
	ID             uuid.UUID
	Transport      TransportKind
	Available      bool
	Ports          []string
	PortsAvailable bool
	PeerVersion    string // empty until the peer reported one
	RxBase64       bool   // peer accepts base64 encoded writes
	Target         StreamTarget
	PortListTicks  int // discovery ticks since the last port list

	conn Conn
}

// NewSession creates a disconnected session with a fresh identity.
func NewSession() Session {
	return Session{ID: uuid.New(), RxBase64: true}
}

// Attach records the active connection. A session has a connection iff its
// transport is not TransportNone.
func (s *Session) Attach(kind TransportKind, conn Conn) {
	s.Transport = kind
	s.conn = conn
	s.Available = true
}

// Detach releases the active connection and clears everything that was
// learned through it. Returns the released connection, if any.
func (s *Session) Detach() Conn {
	conn := s.conn
	s.conn = nil
	s.Transport = TransportNone
	s.Available = false
	s.Target = TargetNone
	s.PortListTicks = 0
	s.SetPorts(nil)
	return conn
}

// Conn returns the active connection.
func (s *Session) Conn() Conn {
	return s.conn
}

// SetPorts replaces the port inventory.
func (s *Session) SetPorts(ports []string) {
	s.Ports = slices.Clone(ports)
	s.PortsAvailable = PortsUsable(s.Ports)
}

// Port returns the port a stream should be opened on.
func (s *Session) Port() (string, bool) {
	if !s.PortsAvailable {
		return "", false
	}
	for _, port := range s.Ports {
		if port != "" {
			return port, true
		}
	}
	return "", false
}
