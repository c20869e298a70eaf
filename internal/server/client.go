package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chitchat-backend/chitchat-server/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 1024
)

// Client is one live socket connection. The registry owns the user->client
// mapping; the client itself only pumps frames.
type Client struct {
	connId     string
	conn       *websocket.Conn
	cs         *CoordinatorServer
	log        *log.Logger
	user       types.User
	attachedAt time.Time
	send       chan *ServerEvent
	stop       chan struct{}
	stopOnce   sync.Once
}

func NewClient(connId string, user types.User, conn *websocket.Conn, cs *CoordinatorServer, l *log.Logger) *Client {
	return &Client{
		connId:     connId,
		conn:       conn,
		cs:         cs,
		log:        l,
		user:       user,
		attachedAt: Now(),
		send:       make(chan *ServerEvent, 256),
		stop:       make(chan struct{}),
	}
}

func (c *Client) User() types.User {
	return c.user
}

func (c *Client) Write() {
	ticker := time.NewTicker(time.Duration(pingInterval))
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := json.Marshal(ev)
			if err != nil {
				c.log.Println("failed to serialize event:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var ev ClientEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			c.log.Println("error parsing event:", err)
			continue
		}

		c.handleEvent(&ev)
	}
}

// handleEvent dispatches one inbound frame. A failure here is isolated to
// this connection.
func (c *Client) handleEvent(ev *ClientEvent) {
	switch ev.Event {
	case EventTyping:
		var payload TypingPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			c.log.Printf("invalid %s payload: %v", ev.Event, err)
			return
		}

		// only participants with a live subscription may signal typing
		if !c.cs.rooms.IsSubscribed(payload.ConversationId, c) {
			return
		}

		c.cs.typing.HandleTyping(payload.ConversationId, c.user.Id, c.user.Username, c)
	case EventStopTyping:
		var payload TypingPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			c.log.Printf("invalid %s payload: %v", ev.Event, err)
			return
		}

		c.cs.typing.HandleStopTyping(payload.ConversationId, c.user.Id)
	case EventGetOnlineUsers:
		c.queueEvent(newServerEvent(EventGetOnlineUsers, OnlineUsersPayload{
			UserIds: c.cs.registry.OnlineUsers(),
		}))
	default:
		c.log.Printf("unknown event %q from %q", ev.Event, c.user.Username)
	}
}

func (c *Client) queueEvent(ev *ServerEvent) bool {
	select {
	case c.send <- ev:
	default:
		c.log.Printf("send channel full for %q, dropping %q", c.user.Username, ev.Event)
		return false
	}

	return true
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

// stopClient may be called concurrently by the run loop and the connection's
// own cleanup.
func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Client) cleanup() {
	c.cs.DeregisterClient(c)
	c.stopClient()
}
