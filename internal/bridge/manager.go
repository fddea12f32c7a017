package bridge

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roman-kulish/launcher-link/internal/telemetry"
)

const (
	eventQueueSize = 256

	noticeNoDevice = "No connected devices found"
	noticeNotReady = "Unable to reach the bridge"
)

// Status is a snapshot of the session, safe to read from any goroutine.
type Status struct {
	SessionID      string
	State          State
	Transport      TransportKind
	Available      bool
	PortsAvailable bool
	Ports          []string
	PeerVersion    string
	Target         StreamTarget
	Compile        CompileState
	Paused         bool
}

func (s Status) equal(o Status) bool {
	return s.SessionID == o.SessionID &&
		s.State == o.State &&
		s.Transport == o.Transport &&
		s.Available == o.Available &&
		s.PortsAvailable == o.PortsAvailable &&
		slices.Equal(s.Ports, o.Ports) &&
		s.PeerVersion == o.PeerVersion &&
		s.Target == o.Target &&
		s.Compile == o.Compile &&
		s.Paused == o.Paused
}

// WithLogger sets the logger for the manager
func WithLogger(logger *slog.Logger) func(m *Manager) {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithPresenter sets the surface session output is shown on
func WithPresenter(presenter Presenter) func(m *Manager) {
	return func(m *Manager) {
		m.presenter = presenter
	}
}

// WithMetrics sets the metrics the manager records to
func WithMetrics(metrics *Metrics) func(m *Manager) {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// Manager owns the session with the bridge. It discovers the bridge over
// both transports, performs the handshake, tracks liveness and the port
// inventory and feeds serial payloads to the router.
//
// All session state is mutated by the goroutine running Run. Transport
// callbacks, timers and commands reach it as events.
type Manager struct {
	config    Config
	transport Transport
	decoder   *telemetry.Decoder
	presenter Presenter
	router    *Router
	gate      *VersionGate
	compile   CompileProgress
	metrics   *Metrics
	logger    *slog.Logger

	events chan Event
	done   chan struct{}
	ctx    context.Context
	wg     sync.WaitGroup

	session Session
	pending Conn // persistent connection waiting for its handshake
	waited  int  // discovery ticks the pending handshake has waited
	dialing bool
	probing bool // probe scheduled or in flight
	polling bool
	probe   *time.Timer

	stream        Conn // short-poll serial stream
	streamDialing bool
	streamReady   bool // connection string received on the stream
	streamInfo    strings.Builder
	stopRedraw    context.CancelFunc

	status atomic.Pointer[Status]
}

// NewManager creates a manager for the bridge reachable through transport.
// Telemetry for the graph view is fed to decoder.
func NewManager(config Config, transport Transport, decoder *telemetry.Decoder, options ...func(m *Manager)) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if transport == nil || decoder == nil {
		return nil, fmt.Errorf("bridge.NewManager: transport and decoder are required")
	}
	gate, err := NewVersionGate(config.MinimumVersion, config.RecommendedVersion)
	if err != nil {
		return nil, fmt.Errorf("bridge.Config: %w", err)
	}

	m := Manager{
		config:    config,
		transport: transport,
		decoder:   decoder,
		presenter: NopPresenter{},
		gate:      gate,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		events:    make(chan Event, eventQueueSize),
		done:      make(chan struct{}),
		ctx:       context.Background(),
		session:   NewSession(),
	}
	for _, option := range options {
		option(&m)
	}
	m.logger = m.logger.With(slog.String("session", m.session.ID.String()))

	m.router = newRouter(&m, m.presenter, decoder, &m.compile)
	m.router.metrics = m.metrics
	m.router.logger = m.logger.With(slog.String("component", "router"))

	m.publish()
	return &m, nil
}

// Run discovers and maintains the session until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	m.ctx = ctx
	m.logger.Info("looking for the bridge", slog.String("address", m.config.Address))

	m.every(ctx, m.config.DiscoveryInterval, DiscoveryTick{})
	m.handle(DiscoveryTick{})

	defer func() {
		m.shutdown()
		close(m.done)
		m.wg.Wait()
		m.release()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-m.events:
			m.handle(ev)
		}
	}
}

// Status returns the latest session snapshot.
func (m *Manager) Status() Status {
	return *m.status.Load()
}

// Post queues an event for the manager loop. It never blocks once Run has
// returned.
func (m *Manager) Post(ev Event) {
	m.offer(ev)
}

// offer is Post reporting whether the event was queued.
func (m *Manager) offer(ev Event) bool {
	select {
	case m.events <- ev:
		return true
	case <-m.done:
		return false
	}
}

// OpenStream arms target and opens the serial port for it.
func (m *Manager) OpenStream(target StreamTarget) { m.Post(OpenStream{Target: target}) }

// CloseStream disarms target and closes the serial port.
func (m *Manager) CloseStream(target StreamTarget) { m.Post(CloseStream{Target: target}) }

// Pause pauses the live graph.
func (m *Manager) Pause() { m.Post(GraphControl{Action: GraphPause}) }

// Play resumes the live graph.
func (m *Manager) Play() { m.Post(GraphControl{Action: GraphPlay}) }

// Clear clears the live graph.
func (m *Manager) Clear() { m.Post(GraphControl{Action: GraphClear}) }

// Disconnect drops the active connection. Discovery continues.
func (m *Manager) Disconnect() { m.Post(Disconnect{}) }

// Apply validates and applies a new graph configuration.
func (m *Manager) Apply(config telemetry.GraphConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}
	m.Post(ApplyGraph{Config: config})
	return nil
}

func (m *Manager) handle(ev Event) {
	switch e := ev.(type) {
	case DiscoveryTick:
		m.discover()
	case ProbeDue:
		m.startProbe()
	case Opened:
		m.opened(e.Conn)
	case Message:
		m.message(e)
	case Errored:
		m.errored(e)
	case Closed:
		m.closed(e)
	case ProbeResult:
		m.probed(e)
	case PortsPolled:
		m.polled(e)
	case StreamOpened:
		m.streamOpened(e)
	case RedrawTick:
		m.redraw()
	case OpenStream:
		m.openView(e.Target)
	case CloseStream:
		m.closeView(e.Target)
	case GraphControl:
		m.graphControl(e.Action)
	case ApplyGraph:
		m.applyGraph(e.Config)
	case Disconnect:
		m.disconnect("requested")
	default:
		m.logger.Warn(fmt.Sprintf("unhandled event %T", ev))
	}
	m.publish()
}

// discover runs on every discovery tick: liveness while persistent, port
// refresh while short-poll, and the dual probe while disconnected.
func (m *Manager) discover() {
	switch m.session.Transport {
	case TransportPersistent:
		m.session.PortListTicks++
		if m.session.PortListTicks <= m.config.PortListTimeout {
			return
		}
		m.logger.Warn("timeout waiting for the bridge port list",
			slog.Int("ticks", m.session.PortListTicks))
		m.metrics.portListTimeout()
		m.disconnect("port list timeout")

	case TransportShortPoll:
		m.pollPorts()
		m.scheduleProbe()
		return
	}

	if m.pending != nil {
		m.waited++
		if m.waited > m.config.PortListTimeout {
			m.logger.Warn("timeout waiting for the bridge handshake", slog.Int("ticks", m.waited))
			m.closePending()
		}
	}

	if !m.dialing && m.pending == nil {
		m.dialing = true
		m.async(func(ctx context.Context) {
			conn, err := m.transport.DialPersistent(ctx, m.Post)
			if err != nil {
				m.Post(Errored{Err: err})
				return
			}
			if !m.offer(Opened{Conn: conn}) {
				_ = conn.Close()
			}
		})
	}
	m.scheduleProbe()
}

// scheduleProbe starts the short-poll probe after the grace delay, unless
// one is already pending.
func (m *Manager) scheduleProbe() {
	if m.probing {
		return
	}
	m.probing = true
	m.probe = time.AfterFunc(m.config.ProbeDelay, func() {
		m.Post(ProbeDue{})
	})
}

func (m *Manager) cancelProbe() {
	if m.probe != nil {
		m.probe.Stop()
	}
	m.probing = false
}

func (m *Manager) startProbe() {
	if m.session.Transport == TransportPersistent {
		m.probing = false
		return
	}
	m.async(func(ctx context.Context) {
		info, err := m.transport.Probe(ctx)
		m.Post(ProbeResult{Info: info, Err: err})
	})
}

func (m *Manager) probed(e ProbeResult) {
	m.probing = false

	switch m.session.Transport {
	case TransportPersistent:
		return // the persistent handshake won

	case TransportShortPoll:
		if e.Err != nil {
			m.logger.Warn(fmt.Sprintf("lost the short-poll bridge: %s", e.Err.Error()))
			m.disconnect("probe failed")
			return
		}
		m.session.Available = true
		m.peerVersion(e.Info)
		return
	}

	if e.Err != nil {
		m.logger.Debug(fmt.Sprintf("short-poll probe failed: %s", e.Err.Error()))
		return
	}

	m.session.Attach(TransportShortPoll, pollConn{})
	m.metrics.connected(TransportShortPoll)
	m.logger.Info("connected to the bridge", slog.String("transport", TransportShortPoll.String()))
	m.peerVersion(e.Info)
	m.closePending()
	m.pollPorts()
}

func (m *Manager) peerVersion(info ProbeInfo) {
	version := info.Version
	if info.Server != serverName {
		version = "0.0.0"
	}
	m.checkVersion(version)
}

func (m *Manager) pollPorts() {
	if m.polling {
		return
	}
	m.polling = true
	m.async(func(ctx context.Context) {
		ports, err := m.transport.Ports(ctx)
		m.Post(PortsPolled{Ports: ports, Err: err})
	})
}

func (m *Manager) polled(e PortsPolled) {
	m.polling = false
	if m.session.Transport != TransportShortPoll {
		return
	}

	if e.Err != nil {
		m.logger.Debug(fmt.Sprintf("port list request failed: %s", e.Err.Error()))
		m.session.Available = false
		m.session.SetPorts(nil)
		return
	}
	m.session.Available = true
	m.session.SetPorts(e.Ports)
}

func (m *Manager) opened(conn Conn) {
	m.dialing = false

	if m.session.Transport != TransportNone {
		// short-poll won the race
		_ = conn.Close()
		return
	}

	if err := conn.Send(newHelloBrowser()); err != nil {
		m.logger.Warn(fmt.Sprintf("greeting the bridge: %s", err.Error()))
		_ = conn.Close()
		return
	}
	m.pending = conn
	m.waited = 0
}

func (m *Manager) message(e Message) {
	switch {
	case e.Conn != nil && e.Conn == m.stream:
		m.streamFrame(e.Data)
	case e.Conn != nil && e.Conn == m.pending:
		m.router.RouteHandshake(e.Data)
	case e.Conn != nil && e.Conn == m.session.Conn():
		m.router.Route(&m.session, e.Data)
	default:
		// frames of a connection already released
	}
}

func (m *Manager) errored(e Errored) {
	switch {
	case e.Conn == nil:
		m.dialing = false
		m.logger.Debug(fmt.Sprintf("persistent dial failed: %s", e.Err.Error()))
	case e.Conn == m.stream:
		m.logger.Warn(fmt.Sprintf("serial stream error: %s", e.Err.Error()))
		m.closeStream()
	case e.Conn == m.pending:
		m.closePending()
	case e.Conn == m.session.Conn():
		m.logger.Warn(fmt.Sprintf("transport error: %s", e.Err.Error()))
		m.disconnect("transport error")
	}
}

func (m *Manager) closed(e Closed) {
	switch {
	case e.Conn == nil:
	case e.Conn == m.stream:
		m.closeStream()
	case e.Conn == m.pending:
		m.closePending()
	case e.Conn == m.session.Conn():
		m.logger.Info("bridge closed the connection", slog.Int("code", e.Code))
		m.disconnect("closed")
	}
}

// hello completes the persistent handshake.
func (m *Manager) hello(reply HelloReply) {
	conn := m.pending
	if conn == nil {
		if m.session.Transport == TransportPersistent {
			m.checkVersion(reply.Version)
		}
		return
	}
	m.pending = nil

	if m.session.Transport != TransportNone {
		_ = conn.Close()
		return
	}

	m.session.Attach(TransportPersistent, conn)
	m.cancelProbe()
	m.session.RxBase64 = reply.RxBase64
	m.session.PortListTicks = 0
	m.metrics.connected(TransportPersistent)
	m.logger.Info("connected to the bridge",
		slog.String("transport", TransportPersistent.String()),
		slog.String("version", reply.Version))

	m.checkVersion(reply.Version)
	m.send(newPortListRequest())
}

func (m *Manager) portList(ports []string) {
	m.session.SetPorts(ports)
	m.session.PortListTicks = 0
}

func (m *Manager) checkVersion(version string) {
	m.session.PeerVersion = version
	if level, warn := m.gate.Check(version); warn {
		m.logger.Warn("bridge version", slog.String("version", version), slog.String("level", level.String()))
		m.presenter.VersionWarning(level, version)
	}
}

func (m *Manager) closeConnection(reason string) {
	m.disconnect(reason)
}

// disconnect releases every connection and returns to Disconnected.
// Discovery restarts on the next tick.
func (m *Manager) disconnect(reason string) {
	if m.session.Target != TargetNone {
		m.closeView(m.session.Target)
	}
	m.closeStream()
	m.closePending()

	conn := m.session.Detach()
	if conn == nil {
		return
	}
	if err := conn.Close(); err != nil {
		m.logger.Debug(fmt.Sprintf("closing connection: %s", err.Error()))
	}
	m.metrics.disconnected(reason)
	m.logger.Info("disconnected from the bridge", slog.String("reason", reason))
}

func (m *Manager) closePending() {
	if m.pending != nil {
		_ = m.pending.Close()
		m.pending = nil
	}
	m.waited = 0
}

func (m *Manager) send(v any) {
	conn := m.session.Conn()
	if conn == nil {
		m.logger.Warn(ErrNotConnected.Error())
		return
	}
	if err := conn.Send(v); err != nil {
		m.logger.Warn(fmt.Sprintf("sending to the bridge: %s", err.Error()))
	}
}

// openView arms target and asks the bridge to stream the selected port.
func (m *Manager) openView(target StreamTarget) {
	if target == TargetNone {
		return
	}
	if current := m.session.Target; current != TargetNone && current != target {
		m.closeView(current)
	}

	m.session.Target = target
	m.presenter.ViewChanged(target, true)
	if target == TargetGraph {
		m.decoder.Start()
		m.startRedraw()
	}

	port, ok := m.session.Port()
	switch {
	case m.session.Transport == TransportNone:
		m.presenter.ConnectionInfo(noticeNotReady)
	case !ok:
		m.presenter.ConnectionInfo(noticeNoDevice)
		if target == TargetTerminal {
			m.presenter.Terminal(noticeNoDevice + "\n")
		}
	case m.session.Transport == TransportPersistent:
		m.send(newSerialRequest(target, port, true))
		m.presenter.ConnectionInfo(fmt.Sprintf("Connection established with %s at baudrate %d", port, Baud))
	case m.session.Transport == TransportShortPoll:
		m.dialStream(target, port)
	}
}

// closeView disarms target so late payloads are dropped, cancels its redraw
// timer and asks the bridge to stop streaming.
func (m *Manager) closeView(target StreamTarget) {
	if m.session.Target != target || target == TargetNone {
		return
	}
	m.session.Target = TargetNone

	if target == TargetGraph {
		m.cancelRedraw()
		m.decoder.Stop()
	}

	switch m.session.Transport {
	case TransportPersistent:
		if port, ok := m.session.Port(); ok {
			m.send(newSerialRequest(target, port, false))
		}
	case TransportShortPoll:
		m.closeStream()
	}

	m.presenter.ConnectionInfo("")
	m.presenter.ViewChanged(target, false)
}

func (m *Manager) dialStream(target StreamTarget, port string) {
	m.closeStream()
	m.streamDialing = true
	m.async(func(ctx context.Context) {
		conn, err := m.transport.DialStream(ctx, port, m.Post)
		if !m.offer(StreamOpened{Conn: conn, Target: target, Err: err}) && err == nil {
			_ = conn.Close()
		}
	})
}

func (m *Manager) streamOpened(e StreamOpened) {
	m.streamDialing = false
	if e.Err != nil {
		m.logger.Warn(fmt.Sprintf("opening serial stream: %s", e.Err.Error()))
		m.presenter.ConnectionInfo(noticeNotReady)
		return
	}
	if m.session.Transport != TransportShortPoll || m.session.Target != e.Target || m.stream != nil {
		_ = e.Conn.Close()
		return
	}

	m.stream = e.Conn
	m.streamReady = false
	m.streamInfo.Reset()
}

// streamFrame handles a frame of the short-poll serial stream. The bridge
// sends a connection string naming the baud rate before the device data.
func (m *Manager) streamFrame(data []byte) {
	text := DecodePayload(string(data))
	if !m.streamReady {
		m.streamInfo.WriteString(text)
		if info := m.streamInfo.String(); strings.Contains(info, strconv.Itoa(Baud)) {
			m.streamReady = true
			m.presenter.ConnectionInfo(strings.TrimSpace(info))
			return
		}
	}
	m.router.Deliver(m.session.Target, text)
}

func (m *Manager) closeStream() {
	if m.stream == nil {
		return
	}
	if err := m.stream.Close(); err != nil {
		m.logger.Debug(fmt.Sprintf("closing serial stream: %s", err.Error()))
	}
	m.stream = nil
	m.streamReady = false
	m.streamInfo.Reset()
}

func (m *Manager) graphControl(action GraphAction) {
	switch action {
	case GraphPause:
		m.decoder.Pause()
	case GraphPlay:
		m.decoder.Play()
	case GraphClear:
		m.decoder.Clear()
	}
	m.logger.Debug("graph control", slog.String("action", action.String()))
	if m.session.Target == TargetGraph {
		m.redraw()
	}
}

func (m *Manager) applyGraph(config telemetry.GraphConfig) {
	if err := m.decoder.Apply(config); err != nil {
		m.logger.Warn(err.Error())
		return
	}
	if m.session.Target == TargetGraph {
		m.decoder.Start()
		m.startRedraw()
	}
}

func (m *Manager) startRedraw() {
	m.cancelRedraw()
	ctx, cancel := context.WithCancel(m.ctx)
	m.stopRedraw = cancel
	m.every(ctx, m.decoder.Config().Refresh(), RedrawTick{})
}

func (m *Manager) cancelRedraw() {
	if m.stopRedraw != nil {
		m.stopRedraw()
		m.stopRedraw = nil
	}
}

func (m *Manager) redraw() {
	if m.session.Target != TargetGraph {
		return // tick raced the close
	}
	latest, _ := m.decoder.Latest()
	m.presenter.Redraw(Frame{
		Config: m.decoder.Config(),
		Series: m.decoder.Series(),
		Latest: latest,
		Paused: m.decoder.Paused(),
		Stats:  m.decoder.Stats(),
	})
}

// every posts ev every interval until ctx is done.
func (m *Manager) every(ctx context.Context, interval time.Duration, ev Event) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Post(ev)
			}
		}
	}()
}

// async runs transport I/O off the loop. The result must come back as an
// event.
func (m *Manager) async(fn func(ctx context.Context)) {
	ctx := m.ctx
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		fn(ctx)
	}()
}

// release closes connections left in the queue once Run has stopped.
func (m *Manager) release() {
	for {
		select {
		case ev := <-m.events:
			switch e := ev.(type) {
			case Opened:
				_ = e.Conn.Close()
			case StreamOpened:
				if e.Err == nil {
					_ = e.Conn.Close()
				}
			}
		default:
			return
		}
	}
}

func (m *Manager) shutdown() {
	m.cancelProbe()
	m.cancelRedraw()
	m.disconnect("shutdown")
	m.publish()
}

func (m *Manager) state() State {
	switch m.session.Transport {
	case TransportPersistent:
		return StatePersistent
	case TransportShortPoll:
		return StateShortPoll
	}
	if m.dialing || m.probing || m.pending != nil {
		return StateProbing
	}
	return StateDisconnected
}

// publish stores a new status snapshot and notifies the presenter when it
// changed.
func (m *Manager) publish() {
	s := Status{
		SessionID:      m.session.ID.String(),
		State:          m.state(),
		Transport:      m.session.Transport,
		Available:      m.session.Available,
		PortsAvailable: m.session.PortsAvailable,
		Ports:          slices.Clone(m.session.Ports),
		PeerVersion:    m.session.PeerVersion,
		Target:         m.session.Target,
		Compile:        m.compile.State(),
		Paused:         m.decoder.Paused(),
	}

	prev := m.status.Load()
	if prev != nil && prev.equal(s) {
		return
	}
	m.status.Store(&s)
	m.metrics.status(s)
	if prev != nil {
		m.presenter.StatusChanged(s)
	}
}
