package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Client is one live websocket session. It owns the two connection
// pumps; all chat state is handled by the server's dispatcher.
type Client struct {
	conn       *websocket.Conn
	chatServer *ChatServer
	log        *log.Logger
	sessionId  string
	send       chan *ServerMessage
	stop       chan struct{}
	stopOnce   sync.Once
}

func NewClient(sessionId string, conn *websocket.Conn, cs *ChatServer, l *log.Logger) *Client {
	return &Client{
		conn:       conn,
		chatServer: cs,
		log:        l,
		sessionId:  sessionId,
		send:       make(chan *ServerMessage, 256),
		stop:       make(chan struct{}),
	}
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}

			if !c.writeMessage(msg) {
				return
			}
		case <-c.stop:
			// drain anything already queued (e.g. a kicked notice)
			// before tearing the connection down
			for {
				select {
				case msg := <-c.send:
					if !c.writeMessage(msg) {
						return
					}
				default:
					return
				}
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
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

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Printf("session %s: error parsing message: %v", c.sessionId, err)
			c.queueMessage(ErrInvalidInput("invalid message format"))
			continue
		}

		msg.client = c
		select {
		case c.chatServer.eventChan <- &msg:
		case <-c.stop:
			return
		default:
			c.log.Printf("event channel full, dropping message from session %s", c.sessionId)
			c.queueMessage(ErrServiceUnavailable())
		}
	}
}

func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Printf("send channel full for session %s", c.sessionId)
		return false
	}

	return true
}

func (c *Client) writeMessage(msg *ServerMessage) bool {
	bytes, err := json.Marshal(msg)
	if err != nil {
		c.log.Println("failed to serialize message:", err)
		return true
	}

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, bytes); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

// stopClient signals both pumps to exit. Safe to call more than once:
// a kick and the read pump's cleanup can race.
func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Client) cleanup() {
	// a stopped client was already removed by the dispatcher (kick or
	// shutdown); deregistering again would block on a gone consumer
	select {
	case c.chatServer.DeRegisterChan <- c:
	case <-c.stop:
	}
	c.stopClient()
}
