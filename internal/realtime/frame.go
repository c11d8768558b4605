package realtime

import (
	"encoding/json"
	"strings"
)

type Command string

const (
	CommandConnect     Command = "CONNECT"
	CommandConnected   Command = "CONNECTED"
	CommandSubscribe   Command = "SUBSCRIBE"
	CommandUnsubscribe Command = "UNSUBSCRIBE"
	CommandSend        Command = "SEND"
	CommandMessage     Command = "MESSAGE"
	CommandReceipt     Command = "RECEIPT"
	CommandError       Command = "ERROR"
	CommandDisconnect  Command = "DISCONNECT"
)

// Header names carried on frames.
const (
	HeaderAuthorization = "authorization"
	HeaderReceipt       = "receipt"
	HeaderReceiptID     = "receipt-id"
	HeaderUser          = "user"
	HeaderSender        = "sender"
	HeaderMessage       = "message"
)

const (
	TopicPrefix = "/topic/"
	UserPrefix  = "/user/"
	PublicTopic = "/topic/public"
)

// Frame is the JSON envelope exchanged over the socket.
type Frame struct {
	Command     Command           `json:"command"`
	Destination string            `json:"destination,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Body        json.RawMessage   `json:"body,omitempty"`
}

func (f *Frame) Header(name string) string {
	for k, v := range f.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func errorFrame(message string) *Frame {
	return &Frame{Command: CommandError, Headers: map[string]string{HeaderMessage: message}}
}
