package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const closeWriteTimeout = time.Second

// wsConn is a websocket connection whose frames are posted as events.
type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	once    sync.Once
	closed  chan struct{}
	logger  *slog.Logger
}

func newWSConn(conn *websocket.Conn, logger *slog.Logger) *wsConn {
	return &wsConn{
		conn:   conn,
		closed: make(chan struct{}),
		logger: logger,
	}
}

// Send writes strings as text frames and anything else as JSON.
func (c *wsConn) Send(v any) error {
	var data []byte
	switch msg := v.(type) {
	case string:
		data = []byte(msg)
	case []byte:
		data = msg
	default:
		var err error
		if data, err = json.Marshal(v); err != nil {
			return fmt.Errorf("encoding message: %w", err)
		}
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	return nil
}

// Close sends a close frame and releases the connection. Only the first call
// has an effect.
func (c *wsConn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.closed)

		c.writeMu.Lock()
		deadline := time.Now().Add(closeWriteTimeout)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, deadline)
		c.writeMu.Unlock()

		err = c.conn.Close()
	})
	return err
}

// readLoop posts every frame as a Message until the connection ends, then
// posts Closed, or Errored for anything but a close frame. Nothing is posted
// after a local Close.
func (c *wsConn) readLoop(post func(Event)) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
				return
			default:
			}

			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				post(Closed{Conn: c, Code: closeErr.Code})
			} else {
				c.logger.Debug(fmt.Sprintf("read error: %s", err.Error()))
				post(Errored{Conn: c, Err: err})
			}
			return
		}
		post(Message{Conn: c, Data: data})
	}
}

func dialWS(ctx context.Context, dialer *websocket.Dialer, url string) (*websocket.Conn, error) {
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}
	return conn, nil
}
