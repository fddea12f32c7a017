package bridge

import (
	"context"
	"errors"
	"sync"
)

var errFake = errors.New("fake transport failure")

type fakeConn struct {
	mu     sync.Mutex
	sent   []any
	closed bool
	onSend func(v any)
}

func (c *fakeConn) Send(v any) error {
	c.mu.Lock()
	c.sent = append(c.sent, v)
	onSend := c.onSend
	c.mu.Unlock()

	if onSend != nil {
		onSend(v)
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) Sent() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]any(nil), c.sent...)
}

func (c *fakeConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeTransport struct {
	mu     sync.Mutex
	dial   func(post func(Event)) (Conn, error)
	probe  func() (ProbeInfo, error)
	ports  func() ([]string, error)
	stream func(port string, post func(Event)) (Conn, error)
}

func (f *fakeTransport) DialPersistent(_ context.Context, post func(Event)) (Conn, error) {
	f.mu.Lock()
	dial := f.dial
	f.mu.Unlock()
	if dial == nil {
		return nil, errFake
	}
	return dial(post)
}

func (f *fakeTransport) Probe(context.Context) (ProbeInfo, error) {
	f.mu.Lock()
	probe := f.probe
	f.mu.Unlock()
	if probe == nil {
		return ProbeInfo{}, errFake
	}
	return probe()
}

func (f *fakeTransport) Ports(context.Context) ([]string, error) {
	f.mu.Lock()
	ports := f.ports
	f.mu.Unlock()
	if ports == nil {
		return nil, errFake
	}
	return ports()
}

func (f *fakeTransport) DialStream(_ context.Context, port string, post func(Event)) (Conn, error) {
	f.mu.Lock()
	stream := f.stream
	f.mu.Unlock()
	if stream == nil {
		return nil, errFake
	}
	return stream(port, post)
}

type versionWarning struct {
	level   VersionLevel
	version string
}

type viewChange struct {
	target StreamTarget
	open   bool
}

// recorder is a Presenter that keeps everything it is shown.
type recorder struct {
	mu       sync.Mutex
	terminal []string
	info     []string
	compile  []CompileState
	console  string
	alerts   []string
	warnings []versionWarning
	views    []viewChange
	frames   []Frame
	statuses []Status
}

func (r *recorder) Terminal(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.terminal = append(r.terminal, text)
}

func (r *recorder) ConnectionInfo(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.info = append(r.info, text)
}

func (r *recorder) Compile(state CompileState, console string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.compile = append(r.compile, state)
	r.console = console
}

func (r *recorder) Alert(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, msg)
}

func (r *recorder) VersionWarning(level VersionLevel, version string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings = append(r.warnings, versionWarning{level, version})
}

func (r *recorder) ViewChanged(target StreamTarget, open bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views = append(r.views, viewChange{target, open})
}

func (r *recorder) Redraw(frame Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, frame)
}

func (r *recorder) StatusChanged(status Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
}

func (r *recorder) lastInfo() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.info) == 0 {
		return ""
	}
	return r.info[len(r.info)-1]
}
