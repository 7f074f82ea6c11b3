package realtime

import (
	"context"
	"encoding/json"
)

// Message is the envelope exchanged over the realtime channel.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Decode unmarshals the message data into v.
func (m Message) Decode(v any) error {
	if len(m.Data) == 0 {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Conn is one live bidirectional connection.
type Conn interface {
	// Receive blocks until the next message arrives or the connection fails.
	Receive() (Message, error)
	// Send writes a message to the remote end.
	Send(msg Message) error
	// Close releases the connection. Receive returns an error afterwards.
	Close() error
}

// Dialer opens a Conn to endpoint, presenting token as the credential.
// Dial must return promptly once ctx is cancelled.
type Dialer interface {
	Dial(ctx context.Context, endpoint string, token string) (Conn, error)
}
