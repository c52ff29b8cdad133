package influxdb_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Terminal3D/DLMS-Parser/internal/infrastructure/config"
	"github.com/Terminal3D/DLMS-Parser/internal/infrastructure/influxdb"
)

// localConfig points at a dev InfluxDB, overridable with
// DLMSPARSER_TEST_INFLUXDB_URL.
func localConfig() config.InfluxDBConfig {
	url := os.Getenv("DLMSPARSER_TEST_INFLUXDB_URL")
	if url == "" {
		url = "http://127.0.0.1:8086"
	}
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           url,
		Token:         "dlmsparser-dev-token",
		Org:           "dlmsparser",
		Bucket:        "metrics",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

// connectOrSkip returns a live client, skipping the test when no server
// answers. With RUN_INTEGRATION set a missing server fails instead.
func connectOrSkip(t *testing.T, cfg config.InfluxDBConfig) *influxdb.Client {
	t.Helper()
	client, err := influxdb.Connect(cfg)
	if err != nil {
		if os.Getenv("RUN_INTEGRATION") != "" {
			t.Fatalf("Connect() error = %v", err)
		}
		t.Skipf("InfluxDB not available: %v", err)
	}
	return client
}

func TestConnect_Errors(t *testing.T) {
	disabled := localConfig()
	disabled.Enabled = false
	if _, err := influxdb.Connect(disabled); !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect(disabled) error = %v, want ErrDisabled", err)
	}

	unreachable := localConfig()
	unreachable.URL = "http://127.0.0.1:59999"
	if _, err := influxdb.Connect(unreachable); !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect(unreachable) error = %v, want ErrConnectionFailed", err)
	}
}

func TestNilClient(t *testing.T) {
	var client *influxdb.Client

	client.WriteDecodeMetric(influxdb.DecodeMetric{Source: "api"})
	client.WriteBatchMetric(influxdb.BatchMetric{Source: "api"})
	client.Flush()

	if client.IsConnected() {
		t.Error("IsConnected() on nil client = true")
	}
	if n := client.WriteErrors(); n != 0 {
		t.Errorf("WriteErrors() on nil client = %d, want 0", n)
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
}

func TestClient_Lifecycle(t *testing.T) {
	cfg := localConfig()
	cfg.BatchSize = 0 // defaults apply
	client := connectOrSkip(t, cfg)

	var (
		mu       sync.Mutex
		writeErr error
	)
	client.SetOnError(func(err error) {
		mu.Lock()
		writeErr = err
		mu.Unlock()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	client.WriteDecodeMetric(influxdb.DecodeMetric{
		Source:      "api",
		MessageType: "GetResponse",
		Success:     true,
		FrameBytes:  14,
		Duration:    250 * time.Microsecond,
	})
	client.WriteDecodeMetric(influxdb.DecodeMetric{
		Source:     "mqtt",
		ErrorKind:  "unsupported",
		FrameBytes: 3,
		Meter:      "meter-17",
	})
	client.WriteBatchMetric(influxdb.BatchMetric{Source: "api", Items: 3, Success: true})
	client.Flush()

	mu.Lock()
	if writeErr != nil {
		t.Errorf("write error = %v", writeErr)
	}
	mu.Unlock()
	if n := client.WriteErrors(); n != 0 {
		t.Errorf("WriteErrors() = %d, want 0", n)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if err := client.HealthCheck(ctx); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() after Close() error = %v, want ErrNotConnected", err)
	}
}
