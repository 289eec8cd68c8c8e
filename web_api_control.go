package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/Readm/street_sim/logger"
	"github.com/Readm/street_sim/simulation"
)

type controlRequest struct {
	Type     string             `json:"type"`
	Scenario string             `json:"scenario,omitempty"`
	Config   *simulation.Config `json:"config,omitempty"`
	Vehicle  uint64             `json:"vehicle,omitempty"`
	Blocking bool               `json:"blocking,omitempty"`
}

func (ws *WebServer) handleControl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		logger.GetLogger().Debugf("Error reading request body: %v", err)
		http.Error(w, "Error reading request body", http.StatusBadRequest)
		return
	}
	logger.GetLogger().Debugf("Received /api/control request: %s", string(body))

	var req controlRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	cmd, err := ws.processControlRequest(&req)
	if err != nil {
		logger.GetLogger().Debugf("Rejected control request: %v", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !ws.queueCommand(*cmd) {
		http.Error(w, "Command queue full", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusAccepted)
	w.Write([]byte("Command accepted"))
}

// processControlRequest turns a request into a command. Reset configs are
// validated here so the caller learns about a bad config synchronously; the
// run loop validates again before applying it.
func (ws *WebServer) processControlRequest(req *controlRequest) (*simulation.Command, error) {
	cmd := &simulation.Command{Type: simulation.CommandType(req.Type)}
	switch cmd.Type {
	case simulation.CommandPause, simulation.CommandResume, simulation.CommandStep, simulation.CommandCancel:
	case simulation.CommandReset:
		if req.Scenario != "" {
			if _, ok := simulation.GetScenarioByName(req.Scenario); !ok {
				return nil, fmt.Errorf("unknown scenario %q", req.Scenario)
			}
			cmd.Scenario = req.Scenario
		}
		if req.Config != nil {
			cfg := *req.Config
			if err := simulation.ValidateConfig(&cfg); err != nil {
				return nil, fmt.Errorf("Invalid config: %w", err)
			}
			cmd.Config = &cfg
		}
	case simulation.CommandBlock:
		if req.Vehicle == 0 {
			return nil, fmt.Errorf("block requires a vehicle id")
		}
		cmd.Vehicle = req.Vehicle
		cmd.Blocking = req.Blocking
	default:
		return nil, fmt.Errorf("Invalid command type %q", req.Type)
	}
	return cmd, nil
}
