package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

const (
	pathPorts  = "ports.json"
	pathSerial = "serial.connect"
)

// WithClientLogger sets the logger for the client
func WithClientLogger(logger *slog.Logger) func(c *Client) {
	return func(c *Client) {
		c.logger = logger.With(slog.String("component", "bridge-client"))
	}
}

// WithHTTPClient sets the HTTP client used for short-poll requests
func WithHTTPClient(client *http.Client) func(c *Client) {
	return func(c *Client) {
		c.http = client
	}
}

// Client is the Transport to a bridge listening at Config.Address. The
// persistent transport is a websocket at "/"; the short-poll transport is
// JSON over HTTP with a websocket serial stream at "/serial.connect".
type Client struct {
	config Config
	http   *http.Client
	dialer *websocket.Dialer
	logger *slog.Logger
}

// NewClient creates a bridge client.
func NewClient(config Config, options ...func(c *Client)) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	c := Client{
		config: config,
		http:   &http.Client{Timeout: config.RequestTimeout},
		dialer: &websocket.Dialer{HandshakeTimeout: config.RequestTimeout},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, option := range options {
		option(&c)
	}
	return &c, nil
}

// DialPersistent implements Transport.
func (c *Client) DialPersistent(ctx context.Context, post func(Event)) (Conn, error) {
	conn, err := dialWS(ctx, c.dialer, c.config.URL("ws", ""))
	if err != nil {
		return nil, err
	}

	ws := newWSConn(conn, c.logger)
	go ws.readLoop(post)
	return ws, nil
}

// DialStream implements Transport. The port is opened as soon as the stream
// connects.
func (c *Client) DialStream(ctx context.Context, port string, post func(Event)) (Conn, error) {
	conn, err := dialWS(ctx, c.dialer, c.config.URL("ws", pathSerial))
	if err != nil {
		return nil, err
	}

	ws := newWSConn(conn, c.logger)
	if err = ws.Send(fmt.Sprintf("+++ open port %s %d", port, Baud)); err != nil {
		return nil, errors.Join(fmt.Errorf("opening port %s: %w", port, err), ws.Close())
	}
	go ws.readLoop(post)
	return ws, nil
}

type probeReply struct {
	Version    json.RawMessage `json:"version"`
	VersionStr string          `json:"version_str"`
	Server     string          `json:"server"`
}

// Probe implements Transport.
func (c *Client) Probe(ctx context.Context) (ProbeInfo, error) {
	var reply probeReply
	if err := c.get(ctx, "", &reply); err != nil {
		return ProbeInfo{}, err
	}

	info := ProbeInfo{Version: reply.VersionStr, Server: reply.Server}
	if info.Version == "" {
		info.Version = rawVersion(reply.Version)
	}
	return info, nil
}

// Ports implements Transport.
func (c *Client) Ports(ctx context.Context) ([]string, error) {
	var ports []string
	if err := c.get(ctx, pathPorts, &ports); err != nil {
		return nil, err
	}
	return ports, nil
}

func (c *Client) get(ctx context.Context, path string, v any) (err error) {
	url := c.config.URL("http", path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("requesting %s: %w", url, err)
	}
	defer closeWithError(resp.Body, &err)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("requesting %s: unexpected status %s", url, resp.Status)
	}
	if err = json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding %s: %w", url, err)
	}
	return nil
}

// rawVersion accepts the version as either a JSON string or a number.
func rawVersion(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	text := strings.TrimSpace(string(raw))
	if text == "null" {
		return ""
	}
	return text
}

func closeWithError(cl io.Closer, err *error) {
	if cerr := cl.Close(); cerr != nil && *err == nil {
		*err = cerr
	}
}
