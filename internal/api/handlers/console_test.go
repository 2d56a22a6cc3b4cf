package handlers

import (
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/vpastila/mineserv/internal/models"
	"github.com/vpastila/mineserv/internal/server"
)

// wsPair dials a throwaway websocket server and returns both ends.
func wsPair(t *testing.T) (client, serverSide *websocket.Conn) {
	t.Helper()
	connCh := make(chan *websocket.Conn, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		connCh <- conn
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial test server: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	select {
	case conn := <-connCh:
		return client, conn
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server side of the connection")
		return nil, nil
	}
}

// Command failures must reach the client through the write pump, the
// connection's only writer, not through a second concurrent write.
func TestConsoleErrorReplyGoesThroughWritePump(t *testing.T) {
	client, serverConn := wsPair(t)

	h := NewConsoleHandler(server.NewRegistry(t.TempDir()), nil)
	cfg := models.NewInstanceConfig("console", models.TypePaper, "1.21.4")
	sub := server.NewProcess(cfg, server.LaunchSpec{}).Subscribe()

	replies := make(chan consoleOutput, 8)
	go h.writePump(serverConn, sub, replies)

	replies <- consoleOutput{Type: "error", Line: "instance is not running"}

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	var out consoleOutput
	if err := client.ReadJSON(&out); err != nil {
		t.Fatalf("failed to read reply frame: %v", err)
	}
	if out.Type != "error" || out.Line != "instance is not running" {
		t.Errorf("unexpected reply %+v", out)
	}
}

func TestConsoleWebSocketRoundTrip(t *testing.T) {
	gin.SetMode(gin.TestMode)

	registry := server.NewRegistry(t.TempDir())
	registry.Launch = func(cfg models.InstanceConfig, dir string) server.LaunchSpec {
		return server.LaunchSpec{
			Command: "/bin/sh",
			Args:    []string{"-c", `while read line; do echo "got $line"; done`},
			Dir:     dir,
		}
	}
	cfg := models.NewInstanceConfig("ws-console", models.TypePaper, "1.21.4")
	if err := registry.Add(cfg); err != nil {
		t.Fatalf("failed to register instance: %v", err)
	}
	if err := os.MkdirAll(registry.InstanceDir(cfg.ID), 0755); err != nil {
		t.Fatalf("failed to create instance dir: %v", err)
	}
	if _, err := registry.Start(cfg.ID); err != nil {
		t.Fatalf("failed to start instance: %v", err)
	}
	t.Cleanup(func() { registry.ForceStop(cfg.ID) })

	handler := NewConsoleHandler(registry, nil)
	router := gin.New()
	router.GET("/instances/:id/console", handler.HandleWebSocket)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/instances/" + cfg.ID.String() + "/console"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial console: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(consoleInput{Type: "command", Command: "hello"}); err != nil {
		t.Fatalf("failed to send command: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var out consoleOutput
	if err := conn.ReadJSON(&out); err != nil {
		t.Fatalf("failed to read console frame: %v", err)
	}
	if out.Type != "console_output" || out.Line != "got hello" {
		t.Errorf("unexpected console frame %+v", out)
	}
}

func TestConsoleRejectsStoppedInstance(t *testing.T) {
	gin.SetMode(gin.TestMode)

	registry := server.NewRegistry(t.TempDir())
	cfg := models.NewInstanceConfig("idle", models.TypePaper, "1.21.4")
	if err := registry.Add(cfg); err != nil {
		t.Fatalf("failed to register instance: %v", err)
	}

	handler := NewConsoleHandler(registry, nil)
	router := gin.New()
	router.GET("/instances/:id/console", handler.HandleWebSocket)

	req := httptest.NewRequest(http.MethodGet, "/instances/"+cfg.ID.String()+"/console", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for a stopped instance, got %d", w.Code)
	}
}
