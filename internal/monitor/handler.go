package monitor

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"

	"github.com/steveyegge/watchrun/internal/debounce"
	"github.com/steveyegge/watchrun/internal/supervisor"
)

// TriggerData describes a flushed batch
type TriggerData struct {
	Paths      []string          `json:"paths"`
	CommonPath string            `json:"common_path,omitempty"`
	Kinds      map[string]string `json:"kinds,omitempty"`
}

// ProcessStartData describes a spawned command
type ProcessStartData struct {
	Command string `json:"command"`
	Pid     int    `json:"pid"`
	Run     int    `json:"run"`
}

// ProcessExitData describes how a command ended
type ProcessExitData struct {
	Code       int    `json:"code"`
	Signal     string `json:"signal,omitempty"`
	Forced     bool   `json:"forced,omitempty"`
	Success    bool   `json:"success"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// ErrorData carries a failure description
type ErrorData struct {
	Error string `json:"error"`
}

// StatusData is sent in the hello message
type StatusData struct {
	Running  bool             `json:"running"`
	Pid      int              `json:"pid,omitempty"`
	Runs     int              `json:"runs"`
	Polling  bool             `json:"polling"`
	LastExit *ProcessExitData `json:"last_exit,omitempty"`
}

// Handler formats run loop events as monitor messages. It implements
// runloop.Reporter.
type Handler struct {
	server *Server
	logger *log.Logger

	mu     sync.Mutex
	status StatusData
}

// NewHandler creates a handler broadcasting through server and installs its
// status snapshot as the server's hello message.
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.New(os.Stderr, "[monitor] ", log.LstdFlags)
	}

	h := &Handler{server: server, logger: logger}
	server.SetHello(h.hello)
	return h
}

// Triggered broadcasts a trigger message.
func (h *Handler) Triggered(batch debounce.Batch) {
	kinds := make(map[string]string, len(batch.Kinds))
	for p, k := range batch.Kinds {
		kinds[p] = k.String()
	}
	h.send(MessageTypeTrigger, TriggerData{
		Paths:      batch.Paths,
		CommonPath: batch.CommonPath(),
		Kinds:      kinds,
	})
}

// Started broadcasts a process_start message.
func (h *Handler) Started(cmd supervisor.CommandSpec, pid int) {
	h.mu.Lock()
	h.status.Running = true
	h.status.Pid = pid
	h.status.Runs++
	run := h.status.Runs
	h.mu.Unlock()

	h.send(MessageTypeProcessStart, ProcessStartData{Command: cmd.String(), Pid: pid, Run: run})
}

// Exited broadcasts a process_exit message.
func (h *Handler) Exited(status supervisor.ExitStatus) {
	data := ProcessExitData{
		Code:       status.Code,
		Signal:     status.Signal,
		Forced:     status.Forced,
		Success:    status.Success(),
		DurationMs: status.Duration.Milliseconds(),
	}
	if status.Err != nil {
		data.Error = status.Err.Error()
	}

	h.mu.Lock()
	h.status.Running = false
	h.status.Pid = 0
	h.status.LastExit = &data
	h.mu.Unlock()

	h.send(MessageTypeProcessExit, data)
}

// SpawnFailed broadcasts a spawn_failed message.
func (h *Handler) SpawnFailed(err error) {
	h.send(MessageTypeSpawnFailed, ErrorData{Error: err.Error()})
}

// Degraded broadcasts a watch_degraded message.
func (h *Handler) Degraded(err error) {
	h.mu.Lock()
	h.status.Polling = true
	h.mu.Unlock()

	h.send(MessageTypeWatchDegraded, ErrorData{Error: err.Error()})
}

func (h *Handler) hello() Message {
	h.mu.Lock()
	status := h.status
	h.mu.Unlock()

	data, err := json.Marshal(status)
	if err != nil {
		h.logger.Printf("Failed to marshal status: %v", err)
		return Message{Type: MessageTypeHello}
	}
	return Message{Type: MessageTypeHello, Data: data}
}

func (h *Handler) send(typ MessageType, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Printf("Failed to marshal %s data: %v", typ, err)
		return
	}
	h.server.Broadcast(Message{Type: typ, Timestamp: time.Now(), Data: data})
}
