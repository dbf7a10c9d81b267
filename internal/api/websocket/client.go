package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/KevinKickass/ngxconfig/internal/auth"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Time allowed for the auth message
	authWait = 10 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 8192

	// Send channel buffer size
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// lokales Werkzeug, UI kann von anderem Port kommen
		return true
	},
}

// Client represents a WebSocket client connection
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	logger     *zap.Logger
	remoteAddr string

	registered bool
	sessionID  string
	mode       auth.ViewMode

	mu      sync.RWMutex
	sources map[string]bool // nil = alle
}

// wants reports whether the client subscribed to source.
func (c *Client) wants(source string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sources == nil || source == "" || c.sources[source]
}

// readPump handles reading messages from the WebSocket connection
func (c *Client) readPump() {
	defer func() {
		if !c.registered {
			// writePump schickt noch die Fehlermeldung und schließt
			close(c.send)
			return
		}
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(authWait))

	for {
		var msg clientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseAbnormalClosure) {
				c.logger.Warn("WebSocket read error",
					zap.Error(err),
					zap.String("remote_addr", c.remoteAddr))
			}
			if !c.registered {
				c.queue(NewMessage(MessageTypeAuthFailed, fields{"reason": "authentication timeout or invalid message"}))
			}
			return
		}

		// First message MUST be authentication
		if !c.registered {
			if !c.authenticate(msg) {
				return
			}
			continue
		}

		c.handleMessage(msg)
	}
}

// fields is the payload of control messages.
type fields = map[string]any

func (c *Client) authenticate(msg clientMessage) bool {
	if msg.Type != "auth" {
		c.queue(NewMessage(MessageTypeAuthFailed, fields{"reason": "First message must be authentication"}))
		return false
	}
	if msg.Token == "" {
		c.queue(NewMessage(MessageTypeAuthFailed, fields{"reason": "Missing token in auth message"}))
		return false
	}

	claims, err := c.hub.authService.ValidateSession(msg.Token)
	if err != nil {
		c.logger.Warn("WebSocket authentication failed",
			zap.Error(err),
			zap.String("remote_addr", c.remoteAddr))
		c.queue(NewMessage(MessageTypeAuthFailed, fields{"reason": "Invalid or expired session"}))
		return false
	}

	c.sessionID = claims.SessionID.String()
	c.mode = claims.Mode
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.setReadKeepalive()

	c.queue(NewMessage(MessageTypeAuthSuccess, fields{
		"session_id":  c.sessionID,
		"mode":        c.mode,
		"permissions": c.mode.Permissions(),
	}))

	// erst nach erfolgreicher Anmeldung beim Hub registrieren
	select {
	case c.hub.register <- c:
		c.registered = true
	case <-c.hub.done:
		return false
	}

	c.logger.Info("WebSocket client authenticated",
		zap.String("remote_addr", c.remoteAddr),
		zap.String("session_id", c.sessionID))
	return true
}

func (c *Client) setReadKeepalive() {
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
}

// queue writes to the send channel before the client is registered.
func (c *Client) queue(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *Client) reply(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.hub.sendTo(c, data)
}

func (c *Client) handleMessage(msg clientMessage) {
	switch msg.Type {
	case "ping":
		c.reply(NewMessage(MessageTypePong, nil))

	case "subscribe":
		c.mu.Lock()
		if len(msg.Sources) == 0 {
			c.sources = nil
		} else {
			c.sources = make(map[string]bool, len(msg.Sources))
			for _, s := range msg.Sources {
				c.sources[s] = true
			}
		}
		c.mu.Unlock()
		c.reply(NewMessage(MessageTypeSubscribed, fields{"sources": msg.Sources}))

	default:
		c.logger.Debug("Unknown client message",
			zap.String("remote_addr", c.remoteAddr),
			zap.String("type", msg.Type))
	}
}

// writePump handles writing messages to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
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

// ServeWs handles WebSocket upgrade requests. The client is registered with
// the hub once its auth message was accepted.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("WebSocket upgrade error",
			zap.Error(err),
			zap.String("remote_addr", r.RemoteAddr))
		return
	}

	client := &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBufferSize),
		logger:     hub.logger,
		remoteAddr: conn.RemoteAddr().String(),
	}

	go client.writePump()
	go client.readPump()
}
