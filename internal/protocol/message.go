package protocol

import "encoding/json"

// MessageType discriminates the JSON envelope exchanged with the browser
// client.
type MessageType string

const (
	MessageReload MessageType = "reload"
	MessageError  MessageType = "error"
	MessagePing   MessageType = "ping"
	MessagePong   MessageType = "pong"
)

// Message is the application-level payload carried in a text frame.
// Text is only set for error messages.
type Message struct {
	Type MessageType `json:"type"`
	Text string      `json:"message,omitempty"`
}

// Reload tells every connected tab to call location.reload().
func Reload() Message { return Message{Type: MessageReload} }

// Error surfaces a build or watcher failure in the browser console.
func Error(text string) Message { return Message{Type: MessageError, Text: text} }

// Ping is the application-level keep-alive probe.
func Ping() Message { return Message{Type: MessagePing} }

// Pong answers a Ping.
func Pong() Message { return Message{Type: MessagePong} }

// ToWire serializes the message to its JSON wire form.
func (m Message) ToWire() ([]byte, error) {
	return json.Marshal(m)
}

// FromWire parses a text-frame payload into a Message. It reports false for
// malformed JSON or an unrecognized type; callers drop such frames silently.
func FromWire(data []byte) (Message, bool) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, false
	}

	switch m.Type {
	case MessageReload, MessageError, MessagePing, MessagePong:
		return m, true
	default:
		return Message{}, false
	}
}
