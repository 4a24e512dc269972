// README: Websocket connection wrapper implementing the presence Conn contract.
package ws

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// envelope is the named-event wire frame in both directions.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outEnvelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type wsConn struct {
	id string
	ws *websocket.Conn
	// gorilla allows one concurrent writer only.
	mu sync.Mutex
}

func newConn(ws *websocket.Conn) *wsConn {
	return &wsConn{id: uuid.NewString(), ws: ws}
}

func (c *wsConn) ID() string {
	return c.id
}

func (c *wsConn) Emit(event string, data any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(outEnvelope{Event: event, Data: data})
}

func (c *wsConn) Close() error {
	return c.ws.Close()
}
