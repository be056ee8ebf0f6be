package relay

import (
	"encoding/json"
	"errors"
	"time"
)

// =======================
// WIRE ENVELOPE
// =======================

// Envelope is the outer shape of every message on the socket.
// Frontends put parameters in "payload", some older clients use "data".
type Envelope struct {
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// =======================
// INBOUND MESSAGES
// =======================

type Kind int

const (
	KindUnknown Kind = iota
	KindSubscribe
	KindUnsubscribe
	KindRequestStats
	KindUpdateData
	KindSystemStats
	KindPing
)

// Message is a decoded inbound message. Exactly the fields for its Kind
// are populated; everything else stays zero.
type Message struct {
	Kind Kind
	Type string // raw type string, kept for error reporting

	ServerID       string
	HostID         string
	TerminalID     string
	MonitoringData json.RawMessage
	Snapshot       map[string]any
}

var errBadJSON = errors.New("invalid message format")

// Decode parses one wire frame into a Message. A frame that is not valid
// JSON returns errBadJSON; a valid frame with an unrecognized type decodes
// to KindUnknown so the caller can answer with a protocol error.
func Decode(raw []byte) (*Message, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errBadJSON
	}

	// payload wins, data is the fallback
	body := env.Payload
	if len(body) == 0 {
		body = env.Data
	}

	msg := &Message{Type: env.Type}

	switch env.Type {

	case "subscribe_server":
		msg.Kind = KindSubscribe
		var p struct {
			ServerID string `json:"serverId"`
		}
		if len(body) > 0 {
			json.Unmarshal(body, &p)
		}
		msg.ServerID = p.ServerID

	case "unsubscribe_server":
		msg.Kind = KindUnsubscribe
		var p struct {
			ServerID string `json:"serverId"`
		}
		if len(body) > 0 {
			json.Unmarshal(body, &p)
		}
		msg.ServerID = p.ServerID

	case "request_system_stats":
		msg.Kind = KindRequestStats
		var p struct {
			HostID     string `json:"hostId"`
			TerminalID string `json:"terminalId"`
		}
		if len(body) > 0 {
			json.Unmarshal(body, &p)
		}
		msg.HostID = p.HostID
		msg.TerminalID = p.TerminalID

	case "update_monitoring_data":
		msg.Kind = KindUpdateData
		var p struct {
			HostID         string          `json:"hostId"`
			MonitoringData json.RawMessage `json:"monitoringData"`
		}
		if len(body) > 0 {
			json.Unmarshal(body, &p)
		}
		msg.HostID = p.HostID
		msg.MonitoringData = p.MonitoringData

	case "system_stats":
		msg.Kind = KindSystemStats
		if len(body) > 0 {
			var snap map[string]any
			if err := json.Unmarshal(body, &snap); err == nil {
				msg.Snapshot = snap
			}
		}

	case "ping":
		msg.Kind = KindPing

	default:
		msg.Kind = KindUnknown
	}

	return msg, nil
}

// =======================
// OUTBOUND MESSAGES
// =======================

type sessionCreatedMsg struct {
	Type string             `json:"type"`
	Data sessionCreatedData `json:"data"`
}

type sessionCreatedData struct {
	SessionID      string `json:"sessionId"`
	Timestamp      int64  `json:"timestamp"`
	ConnectionType string `json:"connectionType"`
}

func newSessionCreated(sessionID, connType string) sessionCreatedMsg {
	return sessionCreatedMsg{
		Type: "session_created",
		Data: sessionCreatedData{
			SessionID:      sessionID,
			Timestamp:      time.Now().UnixMilli(),
			ConnectionType: connType,
		},
	}
}

type ackMsg struct {
	Type string  `json:"type"`
	Data ackData `json:"data"`
}

type ackData struct {
	ServerID  string `json:"serverId,omitempty"`
	HostID    string `json:"hostId,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type statusMsg struct {
	Type string     `json:"type"`
	Data statusData `json:"data"`
}

type statusData struct {
	HostID    string `json:"hostId"`
	Status    string `json:"status"`
	Available bool   `json:"available"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

func newStatus(hostID string, available bool, text string) statusMsg {
	status := "installed"
	if !available {
		status = "not_installed"
	}
	return statusMsg{
		Type: "monitoring_status",
		Data: statusData{
			HostID:    hostID,
			Status:    status,
			Available: available,
			Message:   text,
			Timestamp: time.Now().UnixMilli(),
		},
	}
}

type statsMsg struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// newStats tags a snapshot payload with its host key and delivery time.
// The payload map is copied so concurrent deliveries never share state.
func newStats(hostID string, payload map[string]any, cached bool) statsMsg {
	data := make(map[string]any, len(payload)+3)
	for k, v := range payload {
		data[k] = v
	}
	data["hostId"] = hostID
	data["timestamp"] = time.Now().UnixMilli()
	if cached {
		data["cached"] = true
	}
	return statsMsg{Type: "system_stats", Data: data}
}

type pongMsg struct {
	Type string   `json:"type"`
	Data pongData `json:"data"`
}

type pongData struct {
	Timestamp int64 `json:"timestamp"`
}

func newPong() pongMsg {
	return pongMsg{Type: "pong", Data: pongData{Timestamp: time.Now().UnixMilli()}}
}

type errorMsg struct {
	Type string    `json:"type"`
	Data errorData `json:"data"`
}

type errorData struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

func newError(sessionID, text string) errorMsg {
	return errorMsg{
		Type: "error",
		Data: errorData{
			Message:   text,
			SessionID: sessionID,
			Timestamp: time.Now().UnixMilli(),
		},
	}
}
