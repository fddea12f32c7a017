package bridge

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Baud is the serial rate requested from the bridge.
const Baud = 115200

const (
	typeHelloClient  = "hello-client"
	typeHelloBrowser = "hello-browser"
	typePortList     = "port-list"
	typePortRequest  = "port-list-request"
	typeSerial       = "serial-terminal"
	typeUICommand    = "ui-command"
)

// UIAction is the action of a ui-command envelope.
type UIAction int

const (
	ActionUnknown UIAction = iota
	ActionOpenTerminal
	ActionCloseTerminal
	ActionOpenGraph
	ActionCloseGraph
	ActionClearCompile
	ActionMessageCompile
	ActionCloseCompile
	ActionConsoleLog
	ActionCloseWebsocket
	ActionAlert
)

var uiActions = map[string]UIAction{
	"open-terminal":   ActionOpenTerminal,
	"close-terminal":  ActionCloseTerminal,
	"open-graph":      ActionOpenGraph,
	"close-graph":     ActionCloseGraph,
	"clear-compile":   ActionClearCompile,
	"message-compile": ActionMessageCompile,
	"close-compile":   ActionCloseCompile,
	"console-log":     ActionConsoleLog,
	"websocket-close": ActionCloseWebsocket,
	"alert":           ActionAlert,
}

// Inbound is a decoded envelope received on the persistent transport. The
// set of variants is closed: HelloReply, PortList, SerialPayload, UICommand
// and Unknown.
type Inbound interface {
	inbound()
}

// HelloReply is the handshake answer of the bridge.
type HelloReply struct {
	Version  string
	RxBase64 bool
}

// PortList is the port inventory of the bridge.
type PortList struct {
	Ports []string
}

// SerialPayload carries serial data from the device.
type SerialPayload struct {
	Msg       string
	HasPacket bool // the envelope carried a packet id
}

// UICommand asks the host to change what it presents.
type UICommand struct {
	Action UIAction
	Name   string // action as received
	Msg    string
}

// Unknown is any envelope this host does not understand.
type Unknown struct {
	Type string
	Raw  []byte
}

func (HelloReply) inbound()    {}
func (PortList) inbound()      {}
func (SerialPayload) inbound() {}
func (UICommand) inbound()     {}
func (Unknown) inbound()       {}

type envelope struct {
	Type     string          `json:"type"`
	Action   string          `json:"action"`
	Version  string          `json:"version"`
	RxBase64 *bool           `json:"rxBase64"`
	Ports    []string        `json:"ports"`
	Msg      json.RawMessage `json:"msg"`
	PacketID json.RawMessage `json:"packetID"`
}

// Decode parses an envelope into its variant.
func Decode(data []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}

	switch env.Type {
	case typeHelloClient:
		reply := HelloReply{Version: env.Version, RxBase64: true}
		if env.RxBase64 != nil {
			reply.RxBase64 = *env.RxBase64
		}
		return reply, nil

	case typePortList:
		return PortList{Ports: env.Ports}, nil

	case typeSerial:
		msg, ok := stringField(env.Msg)
		if !ok {
			return Unknown{Type: env.Type, Raw: data}, nil
		}
		return SerialPayload{Msg: msg, HasPacket: present(env.PacketID)}, nil

	case typeUICommand:
		msg, _ := stringField(env.Msg)
		return UICommand{Action: uiActions[env.Action], Name: env.Action, Msg: msg}, nil

	default:
		return Unknown{Type: env.Type, Raw: data}, nil
	}
}

func stringField(raw json.RawMessage) (string, bool) {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return "", false
	}
	return s, true
}

// present reports whether an opaque JSON value is set to something truthy.
func present(raw json.RawMessage) bool {
	switch string(bytes.TrimSpace(raw)) {
	case "", "null", "false", "0", `""`:
		return false
	}
	return true
}

// HelloBrowser is the greeting sent once the persistent connection opens.
type HelloBrowser struct {
	Type string `json:"type"`
	Baud int    `json:"baud"`
}

// PortListRequest asks the bridge for its port inventory.
type PortListRequest struct {
	Type string `json:"type"`
	Msg  string `json:"msg"`
}

// SerialRequest opens or closes a serial stream on the bridge.
type SerialRequest struct {
	Type     string `json:"type"`
	OutTo    string `json:"outTo"`
	PortPath string `json:"portPath"`
	Baudrate string `json:"baudrate"`
	Msg      string `json:"msg"`
	Action   string `json:"action"`
}

func newHelloBrowser() HelloBrowser {
	return HelloBrowser{Type: typeHelloBrowser, Baud: Baud}
}

func newPortListRequest() PortListRequest {
	return PortListRequest{Type: typePortRequest, Msg: typePortRequest}
}

func newSerialRequest(target StreamTarget, port string, open bool) SerialRequest {
	action := "close"
	if open {
		action = "open"
	}
	return SerialRequest{
		Type:     typeSerial,
		OutTo:    target.String(),
		PortPath: port,
		Baudrate: fmt.Sprintf("%d", Baud),
		Msg:      "none",
		Action:   action,
	}
}
