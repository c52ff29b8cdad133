package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string          `json:"timestamp"`
	Version       string          `json:"version"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Runtime       RuntimeMetrics  `json:"runtime"`
	WebSocket     WSMetrics       `json:"websocket"`
	MQTT          MQTTMetrics     `json:"mqtt"`
	InfluxDB      InfluxMetrics   `json:"influxdb"`
	Decode        DecodeMetrics   `json:"decode"`
	Database      DatabaseMetrics `json:"database"`
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
	ConnectedClients int    `json:"connected_clients"`
	PendingTickets   int    `json:"pending_tickets"`
	DroppedEvents    uint64 `json:"dropped_events"`
}

// MQTTMetrics contains MQTT client and ingest bridge statistics.
type MQTTMetrics struct {
	Connected     bool   `json:"connected"`
	Reconnects    uint64 `json:"reconnects"`
	Subscriptions int    `json:"subscriptions"`
	Received      uint64 `json:"received"`
	Decoded       uint64 `json:"decoded"`
	Failed        uint64 `json:"failed"`
	Published     uint64 `json:"published"`
}

// InfluxMetrics reports the decode metrics sink.
type InfluxMetrics struct {
	Connected   bool   `json:"connected"`
	WriteErrors uint64 `json:"write_errors"`
}

// DecodeMetrics contains pipeline counters across every source.
type DecodeMetrics struct {
	Decoded      uint64 `json:"decoded"`
	Failed       uint64 `json:"failed"`
	Batches      uint64 `json:"batches"`
	LastDecodeAt string `json:"last_decode_at,omitempty"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics returns comprehensive system metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

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
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
			PendingTickets:   s.tickets.pending(),
			DroppedEvents:    s.hub.Dropped(),
		},
	}

	if s.mqtt != nil {
		metrics.MQTT.Connected = s.mqtt.IsConnected()
		metrics.MQTT.Reconnects = s.mqtt.Reconnects()
		metrics.MQTT.Subscriptions = s.mqtt.SubscriptionCount()
	}
	if s.ingest != nil {
		st := s.ingest.Stats()
		metrics.MQTT.Received = st.Received
		metrics.MQTT.Decoded = st.Decoded
		metrics.MQTT.Failed = st.Failed
		metrics.MQTT.Published = st.Published
	}

	if s.influx != nil {
		metrics.InfluxDB.Connected = s.influx.IsConnected()
		metrics.InfluxDB.WriteErrors = s.influx.WriteErrors()
	}

	ps := s.pipeline.Stats()
	metrics.Decode = DecodeMetrics{
		Decoded: ps.Decoded,
		Failed:  ps.Failed,
		Batches: ps.Batches,
	}
	if !ps.LastDecodeAt.IsZero() {
		metrics.Decode.LastDecodeAt = ps.LastDecodeAt.UTC().Format(time.RFC3339)
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
