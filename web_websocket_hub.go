package main

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/Readm/street_sim/logger"
	"github.com/Readm/street_sim/plugins/visualization"
	"github.com/Readm/street_sim/simulation"
	"github.com/gorilla/websocket"
)

type wsClient struct {
	conn    *websocket.Conn
	initial []byte
}

// wsHub owns every write to its connections; handlers only read.
type wsHub struct {
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]bool
	register  chan wsClient
	remove    chan *websocket.Conn
	broadcast chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newHub() *wsHub {
	hub := &wsHub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:   make(map[*websocket.Conn]bool),
		register:  make(chan wsClient),
		remove:    make(chan *websocket.Conn),
		broadcast: make(chan []byte, 16),
		done:      make(chan struct{}),
	}
	go hub.run()
	return hub
}

func (h *wsHub) run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c.conn] = true
			if c.initial != nil {
				h.send(c.conn, c.initial)
			}
		case conn := <-h.remove:
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
		case msg := <-h.broadcast:
			for conn := range h.clients {
				h.send(conn, msg)
			}
		case <-h.done:
			for conn := range h.clients {
				conn.Close()
			}
			h.clients = nil
			return
		}
	}
}

func (h *wsHub) send(conn *websocket.Conn, msg []byte) {
	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		logger.GetLogger().Warnf("Failed to send frame to WebSocket client: %v", err)
		delete(h.clients, conn)
		conn.Close()
	}
}

func (h *wsHub) close() {
	h.closeOnce.Do(func() { close(h.done) })
}

func (h *wsHub) handle(ws *WebServer, w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.GetLogger().Errorf("WebSocket upgrade failed: %v", err)
		return
	}

	client := wsClient{conn: conn}
	if frame := ws.frame(); frame != nil {
		if data, err := json.Marshal(frame); err == nil {
			client.initial = data
		}
	}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go func() {
		defer func() {
			select {
			case h.remove <- conn:
			case <-h.done:
			}
		}()
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logger.GetLogger().Warnf("WebSocket error: %v", err)
				}
				return
			}

			var req controlRequest
			if err := json.Unmarshal(message, &req); err != nil {
				logger.GetLogger().Debugf("Ignoring malformed WebSocket message: %v", err)
				continue
			}
			cmd, err := ws.processControlRequest(&req)
			if err != nil {
				logger.GetLogger().Debugf("Ignoring WebSocket control request: %v", err)
				continue
			}
			if !ws.queueCommand(*cmd) {
				logger.GetLogger().Warnf("Command queue full, dropped %s", cmd.Type)
			}
		}
	}()
}

// broadcastFrame never blocks the simulation: frames are dropped while the
// hub is behind.
func (h *wsHub) broadcastFrame(frame *simulation.Frame) {
	if frame == nil {
		return
	}
	data, err := json.Marshal(frame)
	if err != nil {
		logger.GetLogger().Errorf("Failed to marshal frame for WebSocket: %v", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		logger.GetLogger().Debugf("WebSocket hub busy, dropped frame %d", frame.Step)
	}
}

type eventMessage struct {
	Event visualization.Event `json:"event"`
}

// broadcastEvent forwards a vehicle event, wrapped so clients can tell it
// from a frame.
func (h *wsHub) broadcastEvent(ev visualization.Event) {
	data, err := json.Marshal(eventMessage{Event: ev})
	if err != nil {
		logger.GetLogger().Errorf("Failed to marshal event for WebSocket: %v", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		logger.GetLogger().Debugf("WebSocket hub busy, dropped %s event", ev.Kind)
	}
}
