package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vpastila/mineserv/internal/api/middleware"
	"github.com/vpastila/mineserv/internal/server"
)

const (
	consoleWriteWait  = 10 * time.Second
	consoleReadWait   = 60 * time.Second
	consolePingPeriod = 54 * time.Second
)

// ConsoleHandler streams live console output over WebSocket and accepts
// commands from the client.
type ConsoleHandler struct {
	registry       *server.Registry
	allowedOrigins []string
}

// NewConsoleHandler creates the console handler.
func NewConsoleHandler(registry *server.Registry, allowedOrigins []string) *ConsoleHandler {
	return &ConsoleHandler{
		registry:       registry,
		allowedOrigins: allowedOrigins,
	}
}

type consoleOutput struct {
	Type string `json:"type"`
	Line string `json:"line,omitempty"`
}

type consoleInput struct {
	Type    string `json:"type"`
	Command string `json:"command,omitempty"`
}

// HandleWebSocket upgrades the connection and attaches it to the instance's
// console stream. Output written before the client connected is not
// replayed.
func (h *ConsoleHandler) HandleWebSocket(c *gin.Context) {
	id, ok := instanceID(c)
	if !ok {
		return
	}

	sub, err := h.registry.Subscribe(id)
	if err != nil {
		respondLifecycleError(c, err)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return middleware.IsOriginAllowed(r.Header.Get("Origin"), h.allowedOrigins)
		},
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		sub.Close()
		log.Printf("[Console] WebSocket upgrade failed: %v", err)
		return
	}

	// All frames go out through writePump; readPump never writes to the
	// connection. The reply channel is buffered so a slow client cannot
	// stall command handling.
	replies := make(chan consoleOutput, 8)
	go h.writePump(conn, sub, replies)
	h.readPump(conn, id, replies)
}

// writePump is the connection's sole writer: console lines, error replies and
// pings all leave through it.
func (h *ConsoleHandler) writePump(conn *websocket.Conn, sub *server.Subscription, replies <-chan consoleOutput) {
	ticker := time.NewTicker(consolePingPeriod)
	defer func() {
		ticker.Stop()
		sub.Close()
		conn.Close()
	}()

	for {
		select {
		case reply := <-replies:
			conn.SetWriteDeadline(time.Now().Add(consoleWriteWait))
			if err := conn.WriteJSON(reply); err != nil {
				return
			}
		case line, ok := <-sub.Lines():
			conn.SetWriteDeadline(time.Now().Add(consoleWriteWait))
			if !ok {
				// Process exited and the broadcaster closed.
				conn.WriteJSON(consoleOutput{Type: "closed"})
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(consoleOutput{Type: "console_output", Line: line}); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(consoleWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump receives commands from the client until the connection drops.
// Failures are reported back through the reply channel, never written here.
func (h *ConsoleHandler) readPump(conn *websocket.Conn, id uuid.UUID, replies chan<- consoleOutput) {
	defer conn.Close()

	conn.SetReadLimit(4096)
	conn.SetReadDeadline(time.Now().Add(consoleReadWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(consoleReadWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[Console] Read error: %v", err)
			}
			return
		}

		var msg consoleInput
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		if msg.Type != "command" || msg.Command == "" {
			continue
		}

		if err := h.registry.SendCommand(id, msg.Command); err != nil {
			select {
			case replies <- consoleOutput{Type: "error", Line: err.Error()}:
			default:
			}
		}
	}
}
