package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemMetrics is the response of GET /system.
type SystemMetrics struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	WebSocket     WSMetrics      `json:"websocket"`
	AMI           *AMIMetrics    `json:"ami,omitempty"`
	State         StateMetrics   `json:"state"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// AMIMetrics contains manager session statistics.
type AMIMetrics struct {
	Connected      bool   `json:"connected"`
	Reconnecting   bool   `json:"reconnecting"`
	Banner         string `json:"banner,omitempty"`
	FramesRx       uint64 `json:"frames_rx"`
	FramesTx       uint64 `json:"frames_tx"`
	EventsRx       uint64 `json:"events_rx"`
	Malformed      uint64 `json:"malformed"`
	Reconnects     uint64 `json:"reconnects"`
	PendingActions int    `json:"pending_actions"`
	LastActivity   string `json:"last_activity,omitempty"`
}

// StateMetrics summarises the telephony state.
type StateMetrics struct {
	Channels       int `json:"channels"`
	Conversations  int `json:"conversations"`
	Connected      int `json:"connected"`
	Extensions     int `json:"extensions"`
	Queues         int `json:"queues"`
	WaitingCallers int `json:"waiting_callers"`
	ParkedCalls    int `json:"parked_calls"`
}

// handleSystem returns process, session and state statistics.
func (s *Server) handleSystem(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	snap := s.engine.Snapshot()
	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{ConnectedClients: s.Hub().ClientCount()},
		State: StateMetrics{
			Channels:       len(snap.Channels),
			Conversations:  len(snap.Conversations),
			Connected:      snap.Connected(),
			Extensions:     len(snap.Extensions),
			Queues:         len(snap.Queues),
			WaitingCallers: snap.WaitingTotal(),
			ParkedCalls:    len(snap.ParkedCalls),
		},
	}

	if s.amiStats != nil {
		st := s.amiStats()
		metrics.AMI = &AMIMetrics{
			Connected:      st.Connected,
			Reconnecting:   st.Reconnecting,
			Banner:         st.Banner,
			FramesRx:       st.FramesRx,
			FramesTx:       st.FramesTx,
			EventsRx:       st.EventsRx,
			Malformed:      st.Malformed,
			Reconnects:     st.ReconnectsTotal,
			PendingActions: st.Pending,
		}
		if !st.LastActivity.IsZero() {
			metrics.AMI.LastActivity = st.LastActivity.UTC().Format(time.RFC3339)
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
