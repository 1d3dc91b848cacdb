package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
)

// wsChannel frames Messages as JSON over a websocket connection. The
// underlying connection allows at most one concurrent writer, so writeMu
// serializes Send and the close handshake; the Manager's read loop is the
// single reader.
type wsChannel struct {
	url     string
	writeMu sync.Mutex
	conn    *websocket.Conn
}

// WebsocketDialer is the production Dialer.
func WebsocketDialer(url string) Channel {
	return &wsChannel{url: url}
}

func (c *wsChannel) Connect(ctx context.Context) error {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial %s: HTTP %d: %w", c.url, resp.StatusCode, err)
		}
		return fmt.Errorf("dial %s: %w", c.url, err)
	}
	c.conn = conn
	return nil
}

func (c *wsChannel) Close() error {
	if c.conn == nil {
		return nil
	}
	c.writeMu.Lock()
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	return c.conn.Close()
}

func (c *wsChannel) Send(event string, data any) error {
	if c.conn == nil {
		return errors.New("channel not connected")
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(Message{Event: event, Data: raw})
}

func (c *wsChannel) Receive() (Message, error) {
	if c.conn == nil {
		return Message{}, errors.New("channel not connected")
	}
	var msg Message
	if err := c.conn.ReadJSON(&msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}
