// Package ingest bridges raw DLMS frames published over MQTT into the
// decode pipeline.
//
// Meters or head-end systems publish hex text on dlms/raw/{meter}. A
// payload with a single line is decoded as one frame; a payload with
// several lines is decoded as an all-or-nothing batch. The outcome is
// published back on dlms/decoded/{meter} or dlms/errors/{meter}.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Terminal3D/DLMS-Parser/internal/dlms"
	"github.com/Terminal3D/DLMS-Parser/internal/history"
	"github.com/Terminal3D/DLMS-Parser/internal/infrastructure/config"
	"github.com/Terminal3D/DLMS-Parser/internal/infrastructure/mqtt"
	"github.com/Terminal3D/DLMS-Parser/internal/pipeline"
)

// UnknownMeter is used when the topic carries no meter segment.
const UnknownMeter = "unknown"

// ErrNotStarted is returned by Stop when Start was never called.
var ErrNotStarted = errors.New("ingest: bridge not started")

// Client is the MQTT surface the bridge needs.
type Client interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Decoder is the pipeline surface the bridge needs.
type Decoder interface {
	Decode(ctx context.Context, source, input string) (dlms.Message, error)
	DecodeBatch(ctx context.Context, source string, inputs []string) ([]dlms.Message, error)
}

// Logger is the logging interface used by Bridge.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Stats is a snapshot of bridge counters.
type Stats struct {
	Received  uint64 `json:"received"`
	Decoded   uint64 `json:"decoded"`
	Failed    uint64 `json:"failed"`
	Published uint64 `json:"published"`
}

// Bridge subscribes to raw frame topics and decodes every payload.
//
// Thread Safety: HandleMessage is safe for concurrent use; paho invokes
// handlers from its own goroutines.
type Bridge struct {
	client  Client
	decoder Decoder
	cfg     config.MQTTIngestConfig
	qos     byte
	logger  Logger
	topics  mqtt.Topics

	mu      sync.Mutex
	ctx     context.Context
	started bool

	received  atomic.Uint64
	decoded   atomic.Uint64
	failed    atomic.Uint64
	published atomic.Uint64
}

// New creates a Bridge.
//
// Parameters:
//   - client: Connected MQTT client
//   - decoder: Decode pipeline
//   - cfg: Ingest settings (topic, publish_decoded)
//   - qos: QoS for subscriptions and publications (clamped to 0-2)
//   - logger: Logger instance (may be nil)
func New(client Client, decoder Decoder, cfg config.MQTTIngestConfig, qos int, logger Logger) *Bridge {
	if logger == nil {
		logger = noopLogger{}
	}
	if cfg.Topic == "" {
		cfg.Topic = mqtt.Topics{}.AllRaw()
	}
	if qos < 0 || qos > 2 {
		qos = 1
	}
	return &Bridge{
		client:  client,
		decoder: decoder,
		cfg:     cfg,
		qos:     byte(qos),
		logger:  logger,
		ctx:     context.Background(),
	}
}

// Start subscribes to the configured raw topic. ctx bounds every decode
// started by an incoming message; cancel it to abandon in-flight batches.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	b.ctx = ctx
	b.mu.Unlock()

	if err := b.client.Subscribe(b.cfg.Topic, b.qos, b.HandleMessage); err != nil {
		return fmt.Errorf("subscribing to %q: %w", b.cfg.Topic, err)
	}

	b.mu.Lock()
	b.started = true
	b.mu.Unlock()

	b.logger.Info("MQTT ingest started", "topic", b.cfg.Topic, "publish_decoded", b.cfg.PublishDecoded)
	return nil
}

// Stop unsubscribes from the raw topic.
func (b *Bridge) Stop() error {
	b.mu.Lock()
	started := b.started
	b.started = false
	b.mu.Unlock()

	if !started {
		return ErrNotStarted
	}
	if err := b.client.Unsubscribe(b.cfg.Topic); err != nil {
		return fmt.Errorf("unsubscribing from %q: %w", b.cfg.Topic, err)
	}
	return nil
}

// HandleMessage decodes one MQTT payload. Decode failures are published
// to the errors topic and are not returned; only publish failures are.
func (b *Bridge) HandleMessage(topic string, payload []byte) error {
	b.received.Add(1)

	meter := mqtt.MeterFromTopic(topic)
	if meter == "" {
		meter = UnknownMeter
	}

	b.mu.Lock()
	ctx := b.ctx
	b.mu.Unlock()
	ctx = pipeline.WithMeter(ctx, meter)

	lines := dlms.SplitLines(string(payload))

	var (
		result any
		err    error
	)
	if len(lines) > 1 {
		result, err = b.decoder.DecodeBatch(ctx, history.SourceMQTT, lines)
	} else {
		// An empty payload still goes through Decode so it is rejected
		// and reported like any other invalid frame.
		input := ""
		if len(lines) == 1 {
			input = lines[0]
		}
		result, err = b.decoder.Decode(ctx, history.SourceMQTT, input)
	}

	if err != nil {
		b.failed.Add(1)
		b.logger.Warn("MQTT frame rejected", "meter", meter, "error", err)
		return b.publishJSON(b.topics.Errors(meter), dlms.ProblemFrom(err))
	}

	b.decoded.Add(1)
	if !b.cfg.PublishDecoded {
		return nil
	}
	return b.publishJSON(b.topics.Decoded(meter), result)
}

func (b *Bridge) publishJSON(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshalling %s payload: %w", topic, err)
	}
	if err := b.client.Publish(topic, payload, b.qos, false); err != nil {
		return fmt.Errorf("publishing to %q: %w", topic, err)
	}
	b.published.Add(1)
	return nil
}

// Stats returns a snapshot of the bridge counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		Received:  b.received.Load(),
		Decoded:   b.decoded.Load(),
		Failed:    b.failed.Load(),
		Published: b.published.Load(),
	}
}
