package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Readm/street_sim/simulation"
	"github.com/gorilla/websocket"
)

func TestWebServer_FrameEndpoint(t *testing.T) {
	server := NewWebServer("127.0.0.1:0", nil)
	defer server.hub.close()

	req := httptest.NewRequest("GET", "/api/frame", nil)
	w := httptest.NewRecorder()
	server.handleFrame(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for empty frame, got %d", w.Code)
	}

	server.UpdateFrame(&simulation.Frame{Step: 10, Scenario: "line", State: simulation.StateRunning})

	req = httptest.NewRequest("GET", "/api/frame", nil)
	w = httptest.NewRecorder()
	server.handleFrame(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var result simulation.Frame
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if result.Step != 10 || result.Scenario != "line" || result.State != simulation.StateRunning {
		t.Errorf("Unexpected frame %+v", result)
	}

	req = httptest.NewRequest("POST", "/api/frame", nil)
	w = httptest.NewRecorder()
	server.handleFrame(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", w.Code)
	}
}

func TestWebServer_StatsEndpoint(t *testing.T) {
	server := NewWebServer("127.0.0.1:0", nil)
	defer server.hub.close()

	req := httptest.NewRequest("GET", "/api/stats", nil)
	w := httptest.NewRecorder()
	server.handleStats(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for empty stats, got %d", w.Code)
	}

	server.UpdateFrame(&simulation.Frame{Step: 3, Stats: simulation.Stats{Step: 3, Total: 12, Active: 5}})
	req = httptest.NewRequest("GET", "/api/stats", nil)
	w = httptest.NewRecorder()
	server.handleStats(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var result simulation.Stats
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if result.Total != 12 || result.Active != 5 {
		t.Errorf("Unexpected stats %+v", result)
	}
}

func postControl(server *WebServer, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/api/control", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	server.handleControl(w, req)
	return w
}

func TestWebServer_ControlEndpoint(t *testing.T) {
	server := NewWebServer("127.0.0.1:0", nil)
	defer server.hub.close()

	for _, typ := range []simulation.CommandType{simulation.CommandPause, simulation.CommandResume, simulation.CommandStep, simulation.CommandCancel} {
		w := postControl(server, `{"type":"`+string(typ)+`"}`)
		if w.Code != http.StatusAccepted {
			t.Errorf("%s: expected 202, got %d", typ, w.Code)
		}
		cmd, ok := server.NextCommand()
		if !ok || cmd.Type != typ {
			t.Fatalf("Expected %s command, got %+v (ok=%v)", typ, cmd, ok)
		}
	}

	cfg := simulation.DefaultConfig()
	cfg.Seed = 77
	cfgJSON, _ := json.Marshal(map[string]any{"type": "reset", "scenario": "cross", "config": cfg})
	w := postControl(server, string(cfgJSON))
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d: %s", w.Code, w.Body.String())
	}
	cmd, ok := server.NextCommand()
	if !ok || cmd.Type != simulation.CommandReset {
		t.Fatalf("Expected reset command, got %+v", cmd)
	}
	if cmd.Config == nil || cmd.Config.Seed != 77 || cmd.Scenario != "cross" {
		t.Fatalf("Expected config override with seed 77 for cross, got %+v", cmd)
	}

	w = postControl(server, `{"type":"block","vehicle":4,"blocking":true}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected 202 for block, got %d", w.Code)
	}
	cmd, _ = server.NextCommand()
	if cmd.Type != simulation.CommandBlock || cmd.Vehicle != 4 || !cmd.Blocking {
		t.Fatalf("Unexpected block command %+v", cmd)
	}

	bad := []string{
		`{"type":"invalid"}`,
		`invalid json`,
		`{"type":"block"}`,
		`{"type":"reset","scenario":"atlantis"}`,
		`{"type":"reset","config":{"behavior":{"maxVelocity":5,"dashFactor":0.7,"dawdleFactor":0.6}}}`,
		`{"type":"reset","config":{"workers":-3}}`,
	}
	for _, body := range bad {
		if w := postControl(server, body); w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", body, w.Code)
		}
	}
	if cmd, ok := server.NextCommand(); ok {
		t.Fatalf("Rejected requests must not be queued, got %+v", cmd)
	}

	req := httptest.NewRequest("GET", "/api/control", nil)
	w = httptest.NewRecorder()
	server.handleControl(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", w.Code)
	}
}

func TestWebServer_ControlQueueFull(t *testing.T) {
	server := NewWebServer("127.0.0.1:0", simulation.NewCommandQueue(1))
	defer server.hub.close()
	if w := postControl(server, `{"type":"pause"}`); w.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", w.Code)
	}
	if w := postControl(server, `{"type":"resume"}`); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503 on full queue, got %d", w.Code)
	}
}

func TestWebServer_NextCommand_NonBlocking(t *testing.T) {
	server := NewWebServer("127.0.0.1:0", nil)
	defer server.hub.close()

	cmd, ok := server.NextCommand()
	if ok {
		t.Errorf("Expected no command, got %v", cmd)
	}
	if cmd.Type != simulation.CommandNone {
		t.Errorf("Expected CommandNone, got %s", cmd.Type)
	}
}

func TestWebServer_ScenariosEndpoint(t *testing.T) {
	server := NewWebServer("127.0.0.1:0", nil)
	defer server.hub.close()

	req := httptest.NewRequest("GET", "/api/scenarios", nil)
	w := httptest.NewRecorder()
	server.server.Handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var list []scenarioInfo
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if len(list) != len(simulation.GetPredefinedScenarios()) {
		t.Fatalf("Expected every preset listed, got %d", len(list))
	}
	for _, s := range list {
		if s.Name == "" || s.Description == "" {
			t.Errorf("Incomplete scenario entry %+v", s)
		}
	}
}

func TestRouter_Routes(t *testing.T) {
	server := NewWebServer("127.0.0.1:0", nil)
	defer server.hub.close()

	router := server.server.Handler.(*Router)
	want := []string{"/api/frame", "/api/stats", "/api/control", "/api/scenarios", "/ws"}
	got := router.Routes()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("Expected routes %v, got %v", want, got)
	}

	req := httptest.NewRequest("GET", "/api/topology", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected 404 for unknown route, got %d", w.Code)
	}
}

func TestWebSocketHub(t *testing.T) {
	server := NewWebServer("127.0.0.1:0", nil)
	defer server.hub.close()
	server.UpdateFrame(&simulation.Frame{Step: 1, Scenario: "cross"})

	ts := httptest.NewServer(server.server.Handler)
	defer ts.Close()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first simulation.Frame
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read initial frame: %v", err)
	}
	if first.Step != 1 || first.Scenario != "cross" {
		t.Fatalf("Expected the latest frame on connect, got %+v", first)
	}

	server.UpdateFrame(&simulation.Frame{Step: 2, Scenario: "cross"})
	var second simulation.Frame
	if err := conn.ReadJSON(&second); err != nil {
		t.Fatalf("read broadcast frame: %v", err)
	}
	if second.Step != 2 {
		t.Fatalf("Expected broadcast of step 2, got %d", second.Step)
	}

	if err := conn.WriteJSON(map[string]string{"type": "pause"}); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cmd, ok := server.NextCommand(); ok {
			if cmd.Type != simulation.CommandPause {
				t.Fatalf("Expected pause from WebSocket, got %s", cmd.Type)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("WebSocket control message never reached the queue")
}
