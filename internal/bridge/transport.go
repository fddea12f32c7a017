package bridge

import (
	"context"
	"errors"
)

var (
	// ErrUnsupported is returned when a connection cannot carry a request,
	// such as a push message over the short-poll transport.
	ErrUnsupported = errors.New("operation not supported by transport")

	// ErrNotConnected is returned by commands that need an active connection.
	ErrNotConnected = errors.New("not connected to bridge")
)

// Conn is an open connection to the bridge.
type Conn interface {
	// Send writes one message. Strings are sent as raw text, anything else
	// is encoded as JSON.
	Send(v any) error

	// Close releases the connection. No events are posted for it afterwards
	// except, possibly, a final Closed.
	Close() error
}

// ProbeInfo is what a short-poll probe learned about the peer.
type ProbeInfo struct {
	Version string
	Server  string
}

// Transport opens connections to the bridge. Frames received on a connection
// are posted as Message events, and its end as Closed or Errored.
type Transport interface {
	// DialPersistent opens the persistent message connection.
	DialPersistent(ctx context.Context, post func(Event)) (Conn, error)

	// Probe asks the short-poll endpoint for the peer version.
	Probe(ctx context.Context) (ProbeInfo, error)

	// Ports requests the short-poll port inventory.
	Ports(ctx context.Context) ([]string, error)

	// DialStream opens the short-poll serial stream for port.
	DialStream(ctx context.Context, port string, post func(Event)) (Conn, error)
}

// pollConn is the handle of a short-poll session. Short-poll has no push
// channel; it only marks the session as connected.
type pollConn struct{}

func (pollConn) Send(any) error { return ErrUnsupported }
func (pollConn) Close() error   { return nil }
