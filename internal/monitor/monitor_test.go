package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/steveyegge/watchrun/internal/debounce"
	"github.com/steveyegge/watchrun/internal/supervisor"
	"github.com/steveyegge/watchrun/internal/watch"
)

func startServer(t *testing.T) *Server {
	t.Helper()
	server := NewServer(&Config{
		Port:   0, // Use random available port
		Logger: log.New(io.Discard, "", 0),
	})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { _ = server.Stop() })
	return server
}

func dial(t *testing.T, ctx context.Context, server *Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, "ws://"+server.Addr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) Message {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	return msg
}

func TestServerStartStop(t *testing.T) {
	server := NewServer(&Config{Logger: log.New(io.Discard, "", 0)})

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}

	if addr := server.Addr(); addr == "" {
		t.Fatal("Server address is empty")
	}

	if err := server.Stop(); err != nil {
		t.Fatalf("Failed to stop server: %v", err)
	}
}

func TestHelloOnConnect(t *testing.T) {
	server := startServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, server)
	msg := readMessage(t, ctx, conn)

	if msg.Type != MessageTypeHello {
		t.Errorf("Expected hello message, got %s", msg.Type)
	}
	if msg.Timestamp.IsZero() {
		t.Error("Hello message has no timestamp")
	}
	if count := server.ClientCount(); count != 1 {
		t.Errorf("Expected 1 client, got %d", count)
	}
}

func TestMultipleClients(t *testing.T) {
	server := startServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	numClients := 3
	for i := 0; i < numClients; i++ {
		conn := dial(t, ctx, server)
		readMessage(t, ctx, conn)
	}

	if count := server.ClientCount(); count != numClients {
		t.Errorf("Expected %d clients, got %d", numClients, count)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server := startServer(t)

	resp, err := http.Get("http://" + server.Addr() + "/health")
	if err != nil {
		t.Fatalf("Health request failed: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Status  string `json:"status"`
		Clients int    `json:"clients"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode health response: %v", err)
	}
	if body.Status != "ok" || body.Clients != 0 {
		t.Errorf("Unexpected health response: %+v", body)
	}
}

func TestHandlerBroadcastsRunEvents(t *testing.T) {
	server := startServer(t)
	handler := NewHandler(server, log.New(io.Discard, "", 0))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, server)
	readMessage(t, ctx, conn)

	d := debounce.New(nil)
	d.Add(watch.ChangeEvent{Path: "/proj/main.go", Kind: watch.KindModify})
	handler.Triggered(d.Flush())
	handler.Started(supervisor.CommandSpec{Argv: []string{"go", "test"}, Shell: "sh"}, 4242)
	handler.Exited(supervisor.ExitStatus{Code: 1, Duration: 1500 * time.Millisecond})
	handler.SpawnFailed(errors.New("exec: \"nope\": not found"))
	handler.Degraded(errors.New("inotify watch limit reached"))

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeTrigger {
		t.Fatalf("Expected trigger, got %s", msg.Type)
	}
	var trigger TriggerData
	if err := json.Unmarshal(msg.Data, &trigger); err != nil {
		t.Fatalf("Failed to unmarshal trigger: %v", err)
	}
	if len(trigger.Paths) != 1 || trigger.Paths[0] != "/proj/main.go" {
		t.Errorf("Unexpected trigger paths: %v", trigger.Paths)
	}
	if trigger.Kinds["/proj/main.go"] != "modify" {
		t.Errorf("Unexpected trigger kinds: %v", trigger.Kinds)
	}

	msg = readMessage(t, ctx, conn)
	var start ProcessStartData
	if err := json.Unmarshal(msg.Data, &start); err != nil {
		t.Fatalf("Failed to unmarshal start: %v", err)
	}
	if msg.Type != MessageTypeProcessStart || start.Pid != 4242 || start.Command != "go test" || start.Run != 1 {
		t.Errorf("Unexpected start message: %s %+v", msg.Type, start)
	}

	msg = readMessage(t, ctx, conn)
	var exit ProcessExitData
	if err := json.Unmarshal(msg.Data, &exit); err != nil {
		t.Fatalf("Failed to unmarshal exit: %v", err)
	}
	if msg.Type != MessageTypeProcessExit || exit.Code != 1 || exit.Success || exit.DurationMs != 1500 {
		t.Errorf("Unexpected exit message: %s %+v", msg.Type, exit)
	}

	if msg = readMessage(t, ctx, conn); msg.Type != MessageTypeSpawnFailed {
		t.Errorf("Expected spawn_failed, got %s", msg.Type)
	}
	if msg = readMessage(t, ctx, conn); msg.Type != MessageTypeWatchDegraded {
		t.Errorf("Expected watch_degraded, got %s", msg.Type)
	}
}

func TestHelloCarriesStatus(t *testing.T) {
	server := startServer(t)
	handler := NewHandler(server, log.New(io.Discard, "", 0))

	handler.Started(supervisor.CommandSpec{Argv: []string{"make"}}, 77)
	handler.Degraded(errors.New("queue overflow"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, server)
	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeHello {
		t.Fatalf("Expected hello, got %s", msg.Type)
	}

	var status StatusData
	if err := json.Unmarshal(msg.Data, &status); err != nil {
		t.Fatalf("Failed to unmarshal status: %v", err)
	}
	if !status.Running || status.Pid != 77 || status.Runs != 1 || !status.Polling {
		t.Errorf("Unexpected status: %+v", status)
	}
}
