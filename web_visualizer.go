package main

import (
	"context"

	"github.com/Readm/street_sim/logger"
	"github.com/Readm/street_sim/plugins/visualization"
	"github.com/Readm/street_sim/simulation"
)

// WebVisualizer bridges the simulation with the web server.
type WebVisualizer struct {
	server *WebServer
}

// NewWebVisualizer starts a web server on addr feeding commands into queue.
func NewWebVisualizer(addr string, queue simulation.CommandQueue) *WebVisualizer {
	server := NewWebServer(addr, queue)
	server.Start()
	logger.GetLogger().Infof("Web server started at http://%s", addr)
	return &WebVisualizer{server: server}
}

// PublishFrame updates the server with the latest frame. It matches
// simulation.Publisher.
func (w *WebVisualizer) PublishFrame(frame *simulation.Frame) {
	if w.server != nil {
		w.server.UpdateFrame(frame)
	}
}

// PublishEvent pushes a vehicle event to WebSocket clients. It matches
// visualization.Sink.
func (w *WebVisualizer) PublishEvent(ev visualization.Event) {
	if w.server != nil {
		w.server.hub.broadcastEvent(ev)
	}
}

// Close shuts the server down.
func (w *WebVisualizer) Close(ctx context.Context) error {
	if w.server == nil {
		return nil
	}
	return w.server.Shutdown(ctx)
}
