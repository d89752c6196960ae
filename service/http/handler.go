package http

import (
	"encoding/json"
	"log"
	"net/http"
	"runtime"
	"time"

	"acctforge/monitor"
)

// MonitorHandler encapsulates the operational HTTP endpoints of the service
type MonitorHandler struct {
	mon    *monitor.Monitor
	logger *log.Logger
}

// NewMonitorHandler creates a new MonitorHandler
func NewMonitorHandler(m *monitor.Monitor, l *log.Logger) *MonitorHandler {
	return &MonitorHandler{mon: m, logger: l}
}

// Register attaches all routes to the mux.
func (h *MonitorHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.Health)
	mux.HandleFunc("/status", h.Status)
	mux.HandleFunc("/monitor/start", h.StartMonitor)
	mux.HandleFunc("/monitor/stop", h.StopMonitor)
}

// Health handles GET /health requests
func (h *MonitorHandler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondError(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := map[string]interface{}{
		"status":                "healthy",
		"running":               h.mon.Running(),
		"last_processed_height": h.mon.LastHeight(),
		"timestamp":             time.Now().Format(time.RFC3339Nano),
	}

	h.respondJSON(w, resp, http.StatusOK)
}

// Status handles GET /status requests
func (h *MonitorHandler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondError(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	resp := map[string]interface{}{
		"uptime_seconds":        int64(time.Since(h.mon.StartedAt()).Seconds()),
		"running":               h.mon.Running(),
		"last_processed_height": h.mon.LastHeight(),
		"heap_alloc_bytes":      ms.HeapAlloc,
		"num_goroutine":         runtime.NumGoroutine(),
	}

	h.respondJSON(w, resp, http.StatusOK)
}

// StartMonitor handles POST /monitor/start requests
func (h *MonitorHandler) StartMonitor(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondError(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	h.mon.Start()
	h.logger.Println("HTTP Handler: monitor start requested")
	h.respondJSON(w, map[string]interface{}{"running": true}, http.StatusOK)
}

// StopMonitor handles POST /monitor/stop requests
func (h *MonitorHandler) StopMonitor(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondError(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	h.mon.Stop()
	h.logger.Println("HTTP Handler: monitor stop requested")
	h.respondJSON(w, map[string]interface{}{"running": false}, http.StatusOK)
}

// respondJSON sends JSON response
func (h *MonitorHandler) respondJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Printf("HTTP Handler: Failed to encode JSON response: %v", err)
		// Cannot send error to client at this point
	}
}

// respondError sends error response
func (h *MonitorHandler) respondError(w http.ResponseWriter, message string, statusCode int) {
	errorResp := map[string]interface{}{
		"error":   message,
		"status":  statusCode,
		"message": http.StatusText(statusCode),
	}

	h.respondJSON(w, errorResp, statusCode)
}
