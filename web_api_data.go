package main

import (
	"encoding/json"
	"net/http"

	"github.com/Readm/street_sim/simulation"
)

func writeJSON(w http.ResponseWriter, v any, what string) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode "+what, http.StatusInternalServerError)
	}
}

func (ws *WebServer) handleFrame(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	frame := ws.frame()
	if frame == nil {
		http.Error(w, "No frame available", http.StatusNotFound)
		return
	}
	writeJSON(w, frame, "frame")
}

func (ws *WebServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	frame := ws.frame()
	if frame == nil {
		http.Error(w, "No stats available", http.StatusNotFound)
		return
	}
	writeJSON(w, frame.Stats, "stats")
}

type scenarioInfo struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Config      simulation.Config `json:"config"`
}

func (ws *WebServer) handleScenarios(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	presets := simulation.GetPredefinedScenarios()
	list := make([]scenarioInfo, len(presets))
	for i, p := range presets {
		list[i] = scenarioInfo{Name: p.Name, Description: p.Description, Config: p.Config}
	}
	writeJSON(w, list, "scenarios")
}
