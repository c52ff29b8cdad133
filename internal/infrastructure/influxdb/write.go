package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	// MeasurementDecode records one point per decoded (or rejected) frame.
	MeasurementDecode = "dlms_decode"

	// MeasurementBatch records one point per batch request.
	MeasurementBatch = "dlms_batch"
)

// DecodeMetric describes the outcome of decoding one frame.
type DecodeMetric struct {
	// Source is where the frame came from (api, cli, mqtt).
	Source string

	// MessageType is the decoded kind ("AARQ", "GetResponse", ...).
	// Empty when the frame was rejected before dispatch.
	MessageType string

	// Success reports whether a message was produced.
	Success bool

	// ErrorKind classifies failures ("validation", "unsupported", "decode").
	ErrorKind string

	// FrameBytes is the decoded frame length.
	FrameBytes int

	// Duration is the wall time spent decoding.
	Duration time.Duration

	// Meter identifies the sending meter when known (MQTT topic segment).
	Meter string
}

// BatchMetric describes one all-or-nothing batch.
type BatchMetric struct {
	Source   string
	Items    int
	Failures int
	Success  bool
	Duration time.Duration
}

// WriteDecodeMetric records a single frame outcome.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Example:
//
//	client.WriteDecodeMetric(influxdb.DecodeMetric{
//	    Source: "mqtt", MessageType: "GetResponse", Success: true,
//	    FrameBytes: 14, Duration: 180 * time.Microsecond, Meter: "meter-17",
//	})
func (c *Client) WriteDecodeMetric(m DecodeMetric) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(decodePoint(m, time.Now()))
}

// WriteBatchMetric records a batch outcome.
func (c *Client) WriteBatchMetric(m BatchMetric) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(batchPoint(m, time.Now()))
}

// decodePoint builds the dlms_decode point. Tags stay low-cardinality:
// the meter tag is only set for MQTT frames, which arrive per meter anyway.
func decodePoint(m DecodeMetric, at time.Time) *write.Point {
	tags := map[string]string{
		"source":  m.Source,
		"success": boolTag(m.Success),
	}
	if m.MessageType != "" {
		tags["type"] = m.MessageType
	}
	if m.ErrorKind != "" {
		tags["error_kind"] = m.ErrorKind
	}
	if m.Meter != "" {
		tags["meter"] = m.Meter
	}

	return write.NewPoint(
		MeasurementDecode,
		tags,
		map[string]interface{}{
			"frame_bytes": m.FrameBytes,
			"duration_us": m.Duration.Microseconds(),
		},
		at,
	)
}

func batchPoint(m BatchMetric, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementBatch,
		map[string]string{
			"source":  m.Source,
			"success": boolTag(m.Success),
		},
		map[string]interface{}{
			"items":       m.Items,
			"failures":    m.Failures,
			"duration_us": m.Duration.Microseconds(),
		},
		at,
	)
}

func boolTag(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
