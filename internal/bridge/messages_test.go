package bridge

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		data string
		want Inbound
	}{
		{
			name: "hello",
			data: `{"type":"hello-client","version":"1.0.4","rxBase64":true}`,
			want: HelloReply{Version: "1.0.4", RxBase64: true},
		},
		{
			name: "hello without encoding flag",
			data: `{"type":"hello-client","version":"0.9.0"}`,
			want: HelloReply{Version: "0.9.0", RxBase64: true},
		},
		{
			name: "hello with raw payloads",
			data: `{"type":"hello-client","version":"1.0.0","rxBase64":false}`,
			want: HelloReply{Version: "1.0.0", RxBase64: false},
		},
		{
			name: "port list",
			data: `{"type":"port-list","ports":["","COM3"]}`,
			want: PortList{Ports: []string{"", "COM3"}},
		},
		{
			name: "serial payload",
			data: `{"type":"serial-terminal","msg":"MTIz","packetID":17}`,
			want: SerialPayload{Msg: "MTIz", HasPacket: true},
		},
		{
			name: "serial payload with string packet id",
			data: `{"type":"serial-terminal","msg":"MTIz","packetID":"a1"}`,
			want: SerialPayload{Msg: "MTIz", HasPacket: true},
		},
		{
			name: "serial payload without packet id",
			data: `{"type":"serial-terminal","msg":"MTIz"}`,
			want: SerialPayload{Msg: "MTIz"},
		},
		{
			name: "serial payload with zero packet id",
			data: `{"type":"serial-terminal","msg":"MTIz","packetID":0}`,
			want: SerialPayload{Msg: "MTIz"},
		},
		{
			name: "ui command",
			data: `{"type":"ui-command","action":"message-compile","msg":"0002-Downloading"}`,
			want: UICommand{Action: ActionMessageCompile, Name: "message-compile", Msg: "0002-Downloading"},
		},
		{
			name: "ui command with unknown action",
			data: `{"type":"ui-command","action":"dance"}`,
			want: UICommand{Action: ActionUnknown, Name: "dance"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecode_Unknown(t *testing.T) {
	got, err := Decode([]byte(`{"type":"legacy"}`))
	require.NoError(t, err)
	assert.Equal(t, "legacy", got.(Unknown).Type)

	// serial payloads must carry text
	got, err = Decode([]byte(`{"type":"serial-terminal","msg":42,"packetID":1}`))
	require.NoError(t, err)
	assert.IsType(t, Unknown{}, got)
}

func TestDecode_Malformed(t *testing.T) {
	_, err := Decode([]byte(`{"type":`))
	assert.Error(t, err)

	_, err = Decode([]byte(`{"type":"port-list","ports":"COM3"}`))
	assert.Error(t, err)
}

func TestOutboundMessages(t *testing.T) {
	tests := []struct {
		name string
		msg  any
		want string
	}{
		{"hello", newHelloBrowser(), `{"type":"hello-browser","baud":115200}`},
		{"port list request", newPortListRequest(), `{"type":"port-list-request","msg":"port-list-request"}`},
		{
			"open graph",
			newSerialRequest(TargetGraph, "COM3", true),
			`{"type":"serial-terminal","outTo":"graph","portPath":"COM3","baudrate":"115200","msg":"none","action":"open"}`,
		},
		{
			"close terminal",
			newSerialRequest(TargetTerminal, "/dev/ttyUSB0", false),
			`{"type":"serial-terminal","outTo":"terminal","portPath":"/dev/ttyUSB0","baudrate":"115200","msg":"none","action":"close"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.msg)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))
		})
	}
}
