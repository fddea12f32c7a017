package bridge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBridge serves both bridge flavours: websocket and JSON info at "/",
// the port list and the serial stream.
func fakeBridge(t *testing.T, info string) *httptest.Server {
	t.Helper()

	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if !websocket.IsWebSocketUpgrade(r) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(info))
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var hello HelloBrowser
		if json.Unmarshal(data, &hello) != nil || hello.Type != typeHelloBrowser {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(helloReply))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		_, _, _ = conn.ReadMessage()
	})

	mux.HandleFunc("/ports.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`["","COM3"]`))
	})

	mux.HandleFunc("/serial.connect", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, data, err := conn.ReadMessage()
		if err != nil || string(data) != "+++ open port COM3 115200" {
			return
		}
		for _, frame := range []string{"Connected at 115200\r\n", "\r100,1\r"} {
			encoded := base64.StdEncoding.EncodeToString([]byte(frame))
			if conn.WriteMessage(websocket.TextMessage, []byte(encoded)) != nil {
				return
			}
		}
		_, _, _ = conn.ReadMessage()
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()

	config := DefaultConfig()
	config.Address = strings.TrimPrefix(srv.URL, "http://")
	c, err := NewClient(config)
	require.NoError(t, err)
	return c
}

func collect(events chan Event) func(Event) {
	return func(ev Event) { events <- ev }
}

func nextEvent(t *testing.T, events chan Event) Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
		return nil
	}
}

func TestClient_Probe(t *testing.T) {
	tests := []struct {
		name string
		info string
		want ProbeInfo
	}{
		{
			name: "version string",
			info: `{"version":0.7,"version_str":"0.7.5","server":"BlocklyPropHTTP"}`,
			want: ProbeInfo{Version: "0.7.5", Server: "BlocklyPropHTTP"},
		},
		{
			name: "numeric version only",
			info: `{"version":0.7,"server":"BlocklyPropHTTP"}`,
			want: ProbeInfo{Version: "0.7", Server: "BlocklyPropHTTP"},
		},
		{
			name: "string version only",
			info: `{"version":"1.0.1","server":"Other"}`,
			want: ProbeInfo{Version: "1.0.1", Server: "Other"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, fakeBridge(t, tt.info))

			info, err := c.Probe(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, info)
		})
	}
}

func TestClient_ProbeUnreachable(t *testing.T) {
	srv := fakeBridge(t, `{}`)
	c := newTestClient(t, srv)
	srv.Close()

	_, err := c.Probe(context.Background())
	assert.Error(t, err)
}

func TestClient_Ports(t *testing.T) {
	c := newTestClient(t, fakeBridge(t, `{}`))

	ports, err := c.Ports(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"", "COM3"}, ports)
}

func TestClient_PersistentConnection(t *testing.T) {
	c := newTestClient(t, fakeBridge(t, `{}`))
	events := make(chan Event, 8)

	conn, err := c.DialPersistent(context.Background(), collect(events))
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Send(newHelloBrowser()))

	msg, ok := nextEvent(t, events).(Message)
	require.True(t, ok)
	assert.Equal(t, conn, msg.Conn)
	assert.JSONEq(t, helloReply, string(msg.Data))

	closed, ok := nextEvent(t, events).(Closed)
	require.True(t, ok)
	assert.Equal(t, websocket.CloseNormalClosure, closed.Code)
}

func TestClient_Stream(t *testing.T) {
	c := newTestClient(t, fakeBridge(t, `{}`))
	events := make(chan Event, 8)

	conn, err := c.DialStream(context.Background(), "COM3", collect(events))
	require.NoError(t, err)

	first, ok := nextEvent(t, events).(Message)
	require.True(t, ok)
	assert.Equal(t, "Connected at 115200\r\n", DecodePayload(string(first.Data)))

	second, ok := nextEvent(t, events).(Message)
	require.True(t, ok)
	assert.Equal(t, "\r100,1\r", DecodePayload(string(second.Data)))

	require.NoError(t, conn.Close())
	assert.NoError(t, conn.Close(), "second close is a no-op")
}

func TestClient_DialUnreachable(t *testing.T) {
	srv := fakeBridge(t, `{}`)
	c := newTestClient(t, srv)
	srv.Close()

	_, err := c.DialPersistent(context.Background(), func(Event) {})
	assert.Error(t, err)
}

func TestPollConn(t *testing.T) {
	var c pollConn
	assert.ErrorIs(t, c.Send(newPortListRequest()), ErrUnsupported)
	assert.NoError(t, c.Close())
}
