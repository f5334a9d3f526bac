package websocket

import (
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 32
)

// Event is the envelope for every message in either direction.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client is one live connection for one authenticated user. A user keeps at
// most one registered client at a time; the newest connection wins.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID uuid.UUID
	send   chan []byte

	// sessionID is the room this connection has joined, empty otherwise.
	// Only touched from the client's own read pump.
	sessionID string
}

func newClient(hub *Hub, conn *websocket.Conn, userID uuid.UUID) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, sendBuffer),
	}
}

// sendEvent queues an event for delivery; a full buffer drops the event rather
// than blocking the caller.
func (c *Client) sendEvent(eventType string, payload interface{}) {
	data, err := marshalEvent(eventType, payload)
	if err != nil {
		log.Printf("ws: marshal %s failed: %v", eventType, err)
		return
	}
	select {
	case c.send <- data:
	default:
		log.Printf("ws: send buffer full for user %s, dropping %s", c.userID, eventType)
	}
}

func marshalEvent(eventType string, payload interface{}) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = data
	}
	return json.Marshal(Event{Type: eventType, Payload: raw})
}

func (c *Client) readPump() {
	defer c.hub.unregister(c)

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws: read error for user %s: %v", c.userID, err)
			}
			return
		}

		var event Event
		if err := json.Unmarshal(raw, &event); err != nil {
			c.sendEvent("error", map[string]string{"message": "Malformed event"})
			continue
		}
		c.hub.dispatch(c, event)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
