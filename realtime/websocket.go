package realtime

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/net/websocket"
)

// DefaultOrigin is sent as the Origin header when WebsocketDialer.Origin is empty.
const DefaultOrigin = "http://localhost/"

// WebsocketDialer dials the realtime endpoint over a websocket. The token is
// presented as a bearer Authorization header on the upgrade request.
type WebsocketDialer struct {
	// Origin for the handshake (optional)
	Origin string
	// HandshakeTimeout bounds dial plus upgrade (optional, zero means only ctx applies)
	HandshakeTimeout time.Duration
	// Header holds extra headers for the upgrade request (optional)
	Header http.Header
}

var _ Dialer = (*WebsocketDialer)(nil)

func (d *WebsocketDialer) Dial(ctx context.Context, endpoint string, token string) (Conn, error) {
	origin := d.Origin
	if origin == "" {
		origin = DefaultOrigin
	}
	config, err := websocket.NewConfig(endpoint, origin)
	if err != nil {
		return nil, fmt.Errorf("invalid realtime endpoint: %w", err)
	}
	for k, v := range d.Header {
		config.Header[k] = v
	}
	config.Header.Set("Authorization", "Bearer "+token)
	if d.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.HandshakeTimeout)
		defer cancel()
	}
	ws, err := config.DialContext(ctx)
	if err != nil {
		return nil, err
	}
	return &websocketConn{ws: ws}, nil
}

type websocketConn struct {
	ws *websocket.Conn
}

func (c *websocketConn) Receive() (Message, error) {
	var msg Message
	if err := websocket.JSON.Receive(c.ws, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}

func (c *websocketConn) Send(msg Message) error {
	return websocket.JSON.Send(c.ws, msg)
}

func (c *websocketConn) Close() error {
	return c.ws.Close()
}
