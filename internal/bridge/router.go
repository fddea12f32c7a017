package bridge

import (
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/roman-kulish/launcher-link/internal/telemetry"
)

// Frame is a snapshot of the live graph handed to the presenter on redraw.
type Frame struct {
	Config telemetry.GraphConfig
	Series []telemetry.Series
	Latest telemetry.Row
	Paused bool
	Stats  telemetry.Stats
}

// Presenter is the surface that shows what the session produces. Calls are
// made from the manager loop and must not block.
type Presenter interface {
	Terminal(text string)
	ConnectionInfo(text string) // empty text clears the notice
	Compile(state CompileState, console string)
	Alert(msg string)
	VersionWarning(level VersionLevel, version string)
	ViewChanged(target StreamTarget, open bool)
	Redraw(frame Frame)
	StatusChanged(status Status)
}

// NopPresenter discards everything. Embed it to implement part of Presenter.
type NopPresenter struct{}

func (NopPresenter) Terminal(string)                    {}
func (NopPresenter) ConnectionInfo(string)              {}
func (NopPresenter) Compile(CompileState, string)       {}
func (NopPresenter) Alert(string)                       {}
func (NopPresenter) VersionWarning(VersionLevel, string) {}
func (NopPresenter) ViewChanged(StreamTarget, bool)     {}
func (NopPresenter) Redraw(Frame)                       {}
func (NopPresenter) StatusChanged(Status)               {}

// control is the part of the manager the router drives.
type control interface {
	hello(reply HelloReply)
	portList(ports []string)
	openView(target StreamTarget)
	closeView(target StreamTarget)
	closeConnection(reason string)
}

// Router dispatches envelopes received from the bridge.
type Router struct {
	control   control
	presenter Presenter
	decoder   *telemetry.Decoder
	compile   *CompileProgress
	metrics   *Metrics
	logger    *slog.Logger
}

func newRouter(c control, presenter Presenter, decoder *telemetry.Decoder, compile *CompileProgress) *Router {
	return &Router{
		control:   c,
		presenter: presenter,
		decoder:   decoder,
		compile:   compile,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// RouteHandshake handles an envelope of a connection still waiting for its
// handshake. Only the hello reply is acted on.
func (r *Router) RouteHandshake(data []byte) {
	msg, err := Decode(data)
	if err != nil {
		r.metrics.protocolError()
		r.logger.Warn(fmt.Sprintf("dropping malformed envelope: %s", err.Error()))
		return
	}

	reply, ok := msg.(HelloReply)
	if !ok {
		r.metrics.dropped("handshake")
		r.logger.Debug(fmt.Sprintf("dropping %T before the handshake", msg))
		return
	}
	r.metrics.received(typeHelloClient)
	r.control.hello(reply)
}

// Route decodes one envelope and dispatches it to exactly one handler.
// Malformed and unknown envelopes are logged and ignored.
func (r *Router) Route(s *Session, data []byte) {
	msg, err := Decode(data)
	if err != nil {
		r.metrics.protocolError()
		r.logger.Warn(fmt.Sprintf("dropping malformed envelope: %s", err.Error()))
		return
	}

	switch m := msg.(type) {
	case HelloReply:
		r.metrics.received(typeHelloClient)
		r.control.hello(m)

	case PortList:
		r.metrics.received(typePortList)
		r.control.portList(m.Ports)

	case SerialPayload:
		r.metrics.received(typeSerial)
		text := DecodePayload(m.Msg)
		switch {
		case s.Target == TargetNone:
			r.metrics.dropped("no-target")
		case text == "":
			r.metrics.dropped("empty")
		case !m.HasPacket:
			r.metrics.dropped("no-packet-id")
		default:
			r.Deliver(s.Target, text)
		}

	case UICommand:
		r.metrics.received(typeUICommand)
		r.command(m)

	case Unknown:
		r.metrics.received("unknown")
		r.logger.Warn("unknown envelope", slog.String("type", m.Type), slog.String("raw", string(m.Raw)))
	}
}

// Deliver hands serial text to the armed view.
func (r *Router) Deliver(target StreamTarget, text string) {
	switch target {
	case TargetTerminal:
		r.presenter.Terminal(text)

	case TargetGraph:
		// the bridge reports a port it failed to open in the data stream
		if strings.Contains(text, "ailed") {
			r.presenter.ConnectionInfo(text)
			return
		}
		r.metrics.rows(r.decoder.Feed(text))

	default:
		r.metrics.dropped("no-target")
	}
}

func (r *Router) command(cmd UICommand) {
	switch cmd.Action {
	case ActionOpenTerminal:
		r.control.openView(TargetTerminal)
	case ActionCloseTerminal:
		r.control.closeView(TargetTerminal)
	case ActionOpenGraph:
		r.control.openView(TargetGraph)
	case ActionCloseGraph:
		r.control.closeView(TargetGraph)
	case ActionClearCompile:
		r.compile.Clear()
		r.presenter.Compile(r.compile.State(), r.compile.Console())
	case ActionMessageCompile:
		state := r.compile.Message(cmd.Msg)
		r.presenter.Compile(state, r.compile.Console())
	case ActionCloseCompile:
		r.compile.Clear()
		r.presenter.Compile(CompileIdle, "")
	case ActionConsoleLog:
		r.logger.Info(cmd.Msg, slog.String("source", "bridge"))
	case ActionCloseWebsocket:
		r.logger.Info("bridge asked to close the connection")
		r.control.closeConnection("remote close")
	case ActionAlert:
		r.presenter.Alert(cmd.Msg)
	default:
		r.logger.Warn("unknown ui command", slog.String("action", cmd.Name), slog.String("msg", cmd.Msg))
	}
}

// DecodePayload returns the text of a serial payload. Payloads that are not
// valid base64 are used as they are.
func DecodePayload(msg string) string {
	decoded, err := base64.StdEncoding.DecodeString(msg)
	if err != nil {
		return msg
	}
	return string(decoded)
}
