package main

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/Readm/street_sim/logger"
	"github.com/Readm/street_sim/simulation"
)

// WebServer provides HTTP endpoints for observation and control.
type WebServer struct {
	mu          sync.RWMutex
	latestFrame *simulation.Frame
	commands    simulation.CommandQueue
	hub         *wsHub
	server      *http.Server
}

// NewWebServer creates a server that forwards control requests to commands.
// A nil queue gets a private one.
func NewWebServer(addr string, commands simulation.CommandQueue) *WebServer {
	if commands == nil {
		commands = simulation.NewCommandQueue(10)
	}
	ws := &WebServer{
		commands: commands,
		hub:      newHub(),
	}
	ws.server = &http.Server{
		Addr:    addr,
		Handler: NewRouter(ws),
	}
	return ws
}

func (ws *WebServer) routes() []route {
	return []route{
		{"/api/frame", ws.handleFrame},
		{"/api/stats", ws.handleStats},
		{"/api/control", ws.handleControl},
		{"/api/scenarios", ws.handleScenarios},
		{"/ws", func(w http.ResponseWriter, r *http.Request) { ws.hub.handle(ws, w, r) }},
	}
}

// Start serves HTTP in a goroutine.
func (ws *WebServer) Start() {
	go func() {
		if err := ws.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.GetLogger().Errorf("web server stopped: %v", err)
		}
	}()
}

// Shutdown stops the HTTP server and disconnects WebSocket clients.
func (ws *WebServer) Shutdown(ctx context.Context) error {
	ws.hub.close()
	return ws.server.Shutdown(ctx)
}

// UpdateFrame stores the latest frame and pushes it to WebSocket clients.
func (ws *WebServer) UpdateFrame(frame *simulation.Frame) {
	ws.mu.Lock()
	ws.latestFrame = frame
	ws.mu.Unlock()
	ws.hub.broadcastFrame(frame)
}

func (ws *WebServer) frame() *simulation.Frame {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return ws.latestFrame
}

// NextCommand returns the next control command if available, non-blocking.
func (ws *WebServer) NextCommand() (simulation.Command, bool) {
	return ws.commands.TryDequeue()
}

func (ws *WebServer) queueCommand(cmd simulation.Command) bool {
	return ws.commands.Enqueue(cmd)
}
