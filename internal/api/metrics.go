package api

import (
	"net/http"
	"runtime"
	"time"
)

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Timestamp     string          `json:"timestamp"`
	Version       string          `json:"version"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Runtime       RuntimeMetrics  `json:"runtime"`
	Devices       DeviceMetrics   `json:"devices"`
	Events        EventHubMetrics `json:"events"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// DeviceMetrics describes live device connections.
type DeviceMetrics struct {
	Online     int      `json:"online"`
	Identities []string `json:"identities"`
}

// EventHubMetrics contains operator socket statistics.
type EventHubMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	online := s.registry.ListOnline()

	writeJSON(w, http.StatusOK, StatusResponse{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		Devices: DeviceMetrics{
			Online:     len(online),
			Identities: online,
		},
		Events: EventHubMetrics{
			ConnectedClients: s.hub.ClientCount(),
		},
	})
}
