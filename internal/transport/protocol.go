package transport

import (
	"encoding/json"
	"fmt"
	"os"
	"syscall"

	"go-appfw/internal/core"
)

// Message types exchanged with the relay.
const (
	TypeHello       = "hello"
	TypeBye         = "bye"
	TypeSubscribe   = "subscribe-events"
	TypeSendEvent   = "send-event"
	TypeListRunning = "list-running"
	TypeListAll     = "list-all"
	TypeStatus      = "status"
	TypeEvent       = "event"
)

// Relay status codes are errno values.
const (
	StatusInvalid  = int(syscall.EINVAL)
	StatusNotFound = int(syscall.ENOENT)
	StatusProtocol = int(syscall.EPROTO)
)

// DefaultPrefix namespaces the Redis channels used by relay and clients.
const DefaultPrefix = "appfw"

// Message is the single frame format of the relay protocol. The payload
// field present depends on Type.
type Message struct {
	Type      string            `json:"type"`
	Seqno     int               `json:"seqno"`
	Client    string            `json:"client,omitempty"`
	Hello     *Hello            `json:"hello,omitempty"`
	Subscribe *SubscribeRequest `json:"subscribe-events,omitempty"`
	Send      *SendRequest      `json:"send-event,omitempty"`
	Status    *Status           `json:"status,omitempty"`
	Event     *Notice           `json:"event,omitempty"`
}

// Hello announces who a client is. The relay matches event targets
// against it.
type Hello struct {
	AppID   string `json:"appid,omitempty"`
	Label   string `json:"label,omitempty"`
	Binary  string `json:"binary,omitempty"`
	User    int    `json:"user"`
	Process int    `json:"process"`
}

// SubscribeRequest replaces the client's subscriptions.
type SubscribeRequest struct {
	Events []string `json:"events"`
}

// SendRequest asks the relay to route an event.
type SendRequest struct {
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data,omitempty"`
	Target core.Target     `json:"target"`
}

// Status is the reply to any request. Message is only set on failure and
// Data only on success.
type Status struct {
	Status  int             `json:"status"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Notice carries an event to a subscriber.
type Notice struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// OK builds a success status carrying data.
func OK(data any) Status {
	st := Status{Status: core.StatusOK}
	if data != nil {
		raw, err := json.Marshal(data)
		if err == nil {
			st.Data = raw
		}
	}
	return st
}

// Failure builds an error status.
func Failure(code int, format string, args ...any) Status {
	if code == core.StatusOK {
		code = StatusInvalid
	}
	return Status{Status: code, Message: fmt.Sprintf(format, args...)}
}

// RelayChannel is the Redis channel the relay reads requests from.
func RelayChannel(prefix string) string { return prefix + ":relay" }

// ClientChannel is the Redis channel a client reads replies and events from.
func ClientChannel(prefix, client string) string { return prefix + ":client:" + client }

// LocalIdentity describes the current process.
func LocalIdentity(appID string) Hello {
	binary, err := os.Executable()
	if err != nil && len(os.Args) > 0 {
		binary = os.Args[0]
	}
	return Hello{
		AppID:   appID,
		Binary:  binary,
		User:    os.Getuid(),
		Process: os.Getpid(),
	}
}

func rawOrNull(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return []byte("null")
	}
	return raw
}
