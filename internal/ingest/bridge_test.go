package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/Terminal3D/DLMS-Parser/internal/dlms"
	"github.com/Terminal3D/DLMS-Parser/internal/infrastructure/config"
	"github.com/Terminal3D/DLMS-Parser/internal/infrastructure/mqtt"
	"github.com/Terminal3D/DLMS-Parser/internal/pipeline"
)

type published struct {
	topic   string
	payload []byte
}

type fakeClient struct {
	mu           sync.Mutex
	subscribed   map[string]mqtt.MessageHandler
	published    []published
	subscribeErr error
	publishErr   error
}

func newFakeClient() *fakeClient {
	return &fakeClient{subscribed: make(map[string]mqtt.MessageHandler)}
}

func (c *fakeClient) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	if c.subscribeErr != nil {
		return c.subscribeErr
	}
	c.mu.Lock()
	c.subscribed[topic] = handler
	c.mu.Unlock()
	return nil
}

func (c *fakeClient) Unsubscribe(topic string) error {
	c.mu.Lock()
	delete(c.subscribed, topic)
	c.mu.Unlock()
	return nil
}

func (c *fakeClient) Publish(topic string, payload []byte, _ byte, _ bool) error {
	if c.publishErr != nil {
		return c.publishErr
	}
	c.mu.Lock()
	c.published = append(c.published, published{topic, payload})
	c.mu.Unlock()
	return nil
}

type call struct {
	source string
	meter  string
	inputs []string
}

type fakeDecoder struct {
	calls []call
	err   error
}

func (d *fakeDecoder) Decode(ctx context.Context, source, input string) (dlms.Message, error) {
	d.calls = append(d.calls, call{source, pipeline.MeterFrom(ctx), []string{input}})
	if d.err != nil {
		return nil, d.err
	}
	if input == "" {
		return nil, &dlms.ValidationError{Reason: "empty hex data"}
	}
	return dlms.AARQ{Header: dlms.Header{RawData: input, Type: dlms.TypeAARQ}}, nil
}

func (d *fakeDecoder) DecodeBatch(ctx context.Context, source string, inputs []string) ([]dlms.Message, error) {
	d.calls = append(d.calls, call{source, pipeline.MeterFrom(ctx), inputs})
	if d.err != nil {
		return nil, d.err
	}
	out := make([]dlms.Message, len(inputs))
	for i, in := range inputs {
		out[i] = dlms.AARQ{Header: dlms.Header{RawData: in, Type: dlms.TypeAARQ}}
	}
	return out, nil
}

func testIngestConfig() config.MQTTIngestConfig {
	return config.MQTTIngestConfig{Enabled: true, Topic: "dlms/raw/+", PublishDecoded: true}
}

func TestStartStop(t *testing.T) {
	client := newFakeClient()
	b := New(client, &fakeDecoder{}, testIngestConfig(), 1, nil)

	if err := b.Stop(); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Stop() before Start error = %v, want ErrNotStarted", err)
	}
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if _, ok := client.subscribed["dlms/raw/+"]; !ok {
		t.Fatalf("subscriptions = %v, want dlms/raw/+", client.subscribed)
	}
	if err := b.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if len(client.subscribed) != 0 {
		t.Errorf("subscriptions after Stop = %v, want none", client.subscribed)
	}
}

func TestStart_SubscribeError(t *testing.T) {
	client := newFakeClient()
	client.subscribeErr = mqtt.ErrNotConnected
	b := New(client, &fakeDecoder{}, testIngestConfig(), 1, nil)

	if err := b.Start(context.Background()); !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("Start() error = %v, want ErrNotConnected", err)
	}
}

func TestNew_DefaultTopic(t *testing.T) {
	b := New(newFakeClient(), &fakeDecoder{}, config.MQTTIngestConfig{}, 7, nil)
	if b.cfg.Topic != "dlms/raw/+" {
		t.Errorf("topic = %q, want %q", b.cfg.Topic, "dlms/raw/+")
	}
	if b.qos != 1 {
		t.Errorf("qos = %d, want 1 for out-of-range value", b.qos)
	}
}

func TestHandleMessage(t *testing.T) {
	tests := []struct {
		name       string
		topic      string
		payload    string
		decodeErr  error
		wantTopic  string
		wantMeter  string
		wantInputs []string
		wantArray  bool
	}{
		{
			name:       "single frame",
			topic:      "dlms/raw/meter-17",
			payload:    " 6000 \n",
			wantTopic:  "dlms/decoded/meter-17",
			wantMeter:  "meter-17",
			wantInputs: []string{"6000"},
		},
		{
			name:       "multi-line batch",
			topic:      "dlms/raw/meter-3",
			payload:    "6000\r\n\r\n6100\n",
			wantTopic:  "dlms/decoded/meter-3",
			wantMeter:  "meter-3",
			wantInputs: []string{"6000", "6100"},
			wantArray:  true,
		},
		{
			name:       "empty payload",
			topic:      "dlms/raw/meter-3",
			payload:    "  ",
			wantTopic:  "dlms/errors/meter-3",
			wantMeter:  "meter-3",
			wantInputs: []string{""},
		},
		{
			name:       "decode failure",
			topic:      "dlms/raw/",
			payload:    "FF00",
			decodeErr:  &dlms.UnsupportedCommandError{Command: 0xFF},
			wantTopic:  "dlms/errors/unknown",
			wantMeter:  UnknownMeter,
			wantInputs: []string{"FF00"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newFakeClient()
			decoder := &fakeDecoder{err: tt.decodeErr}
			b := New(client, decoder, testIngestConfig(), 1, nil)

			if err := b.HandleMessage(tt.topic, []byte(tt.payload)); err != nil {
				t.Fatalf("HandleMessage() error = %v", err)
			}

			if len(decoder.calls) != 1 {
				t.Fatalf("decoder calls = %d, want 1", len(decoder.calls))
			}
			c := decoder.calls[0]
			if c.source != "mqtt" || c.meter != tt.wantMeter {
				t.Errorf("decoder call = %+v, want source mqtt meter %q", c, tt.wantMeter)
			}
			if len(c.inputs) != len(tt.wantInputs) {
				t.Fatalf("inputs = %q, want %q", c.inputs, tt.wantInputs)
			}
			for i := range c.inputs {
				if c.inputs[i] != tt.wantInputs[i] {
					t.Errorf("inputs[%d] = %q, want %q", i, c.inputs[i], tt.wantInputs[i])
				}
			}

			if len(client.published) != 1 {
				t.Fatalf("published = %d, want 1", len(client.published))
			}
			pub := client.published[0]
			if pub.topic != tt.wantTopic {
				t.Errorf("published topic = %q, want %q", pub.topic, tt.wantTopic)
			}

			if tt.wantArray {
				var arr []map[string]any
				if err := json.Unmarshal(pub.payload, &arr); err != nil {
					t.Errorf("batch payload not a JSON array: %v", err)
				}
				return
			}
			var obj map[string]any
			if err := json.Unmarshal(pub.payload, &obj); err != nil {
				t.Fatalf("payload not a JSON object: %v", err)
			}
			if strings.HasPrefix(tt.wantTopic, "dlms/errors/") && obj["message"] == nil {
				t.Errorf("error payload = %s, want message field", pub.payload)
			}
		})
	}
}

func TestHandleMessage_PublishDecodedDisabled(t *testing.T) {
	client := newFakeClient()
	cfg := testIngestConfig()
	cfg.PublishDecoded = false
	b := New(client, &fakeDecoder{}, cfg, 1, nil)

	if err := b.HandleMessage("dlms/raw/m1", []byte("6000")); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if len(client.published) != 0 {
		t.Errorf("published = %d, want 0 when publish_decoded is off", len(client.published))
	}

	stats := b.Stats()
	if stats.Received != 1 || stats.Decoded != 1 || stats.Published != 0 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestHandleMessage_PublishError(t *testing.T) {
	client := newFakeClient()
	client.publishErr = mqtt.ErrNotConnected
	b := New(client, &fakeDecoder{}, testIngestConfig(), 1, nil)

	err := b.HandleMessage("dlms/raw/m1", []byte("6000"))
	if !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("HandleMessage() error = %v, want ErrNotConnected", err)
	}
}
