package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/Terminal3D/DLMS-Parser/internal/infrastructure/config"
)

// Logger is the logging interface used by Client. logging.Logger and
// *slog.Logger both satisfy it.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// MessageHandler receives one message from a subscribed topic. topic is the
// concrete topic (wildcards resolved), so per-meter handlers can recover
// the meter with MeterFromTopic.
//
// paho runs handlers on its own goroutines. A returned error is logged and
// has no effect on acknowledgement.
type MessageHandler func(topic string, payload []byte) error

// Client is the connection to the broker carrying raw and decoded frames.
//
// Subscriptions are remembered and replayed after every reconnect, and the
// client announces itself on Topics.SystemStatus with a retained
// online/offline payload backed by a Last Will.
//
// Thread Safety: all methods are safe for concurrent use. The zero value is
// a disconnected client whose operations return ErrNotConnected.
type Client struct {
	paho pahomqtt.Client
	cfg  config.MQTTConfig

	connected  atomic.Bool
	reconnects atomic.Uint64
	subs       subscriptionSet

	hooksMu      sync.RWMutex
	onConnect    func()
	onDisconnect func(err error)
	logger       Logger
}

// Connect dials the broker described by cfg and waits up to
// connectTimeout for the first CONNACK.
//
// The connection is configured with:
//   - auto-reconnect between cfg.Reconnect.InitialDelay and MaxDelay
//   - a retained Last Will marking this client offline on Topics.SystemStatus
//   - an online status publication and subscription replay on every connect
//
// Returns:
//   - *Client: connected client
//   - error: wrapping ErrConnectionFailed on timeout or broker refusal
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := &Client{cfg: cfg}

	opts := newClientOptions(cfg)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.onBrokerUp() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.onBrokerDown(err) })
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		c.reconnects.Add(1)
		c.log().Warn("MQTT reconnecting", "broker", cfg.Broker.Host, "attempt", c.reconnects.Load())
	})

	c.paho = pahomqtt.NewClient(opts)
	if err := await(c.paho.Connect(), connectTimeout, ErrConnectionFailed); err != nil {
		return nil, err
	}

	// The OnConnect handler runs asynchronously; mark the client usable now
	// so callers can subscribe straight after Connect returns.
	c.connected.Store(true)
	return c, nil
}

// onBrokerUp runs on the initial connect and after every reconnect.
func (c *Client) onBrokerUp() {
	c.connected.Store(true)

	for _, sub := range c.subs.snapshot() {
		// Failures surface as missing traffic; the next reconnect retries.
		c.paho.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler))
	}
	c.publishStatus(encodeStatus(statusOnline, c.cfg.Broker.ClientID, ""), false)

	c.hooksMu.RLock()
	hook := c.onConnect
	c.hooksMu.RUnlock()
	if hook != nil {
		hook()
	}
}

// onBrokerDown runs when paho reports the connection lost.
func (c *Client) onBrokerDown(err error) {
	c.connected.Store(false)

	c.hooksMu.RLock()
	hook := c.onDisconnect
	c.hooksMu.RUnlock()
	if hook != nil {
		hook(err)
	}
}

// publishStatus writes a retained status payload, optionally waiting for
// the broker to accept it.
func (c *Client) publishStatus(payload string, wait bool) {
	token := c.paho.Publish(Topics{}.SystemStatus(), byte(c.cfg.QoS), true, payload)
	if wait {
		token.WaitTimeout(ackTimeout)
	}
}

// Close publishes a graceful offline status, then disconnects after letting
// in-flight publications drain. Closing a nil or never-connected client is
// a no-op.
func (c *Client) Close() error {
	if c == nil || c.paho == nil {
		return nil
	}

	if c.IsConnected() {
		c.publishStatus(encodeStatus(statusOffline, c.cfg.Broker.ClientID, reasonShutdown), true)
	}
	c.paho.Disconnect(quiesceMillis)
	c.connected.Store(false)
	return nil
}

// HealthCheck reports ErrNotConnected while the broker is unreachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports the last known connection state.
func (c *Client) IsConnected() bool {
	if c == nil || c.paho == nil {
		return false
	}
	return c.connected.Load() && c.paho.IsConnected()
}

// Reconnects returns how many reconnect attempts paho has made.
func (c *Client) Reconnects() uint64 {
	return c.reconnects.Load()
}

// SetOnConnect registers a callback for the initial connect and every reconnect.
func (c *Client) SetOnConnect(callback func()) {
	c.hooksMu.Lock()
	c.onConnect = callback
	c.hooksMu.Unlock()
}

// SetOnDisconnect registers a callback for connection loss.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.hooksMu.Lock()
	c.onDisconnect = callback
	c.hooksMu.Unlock()
}

// SetLogger sets the logger for handler errors, recovered panics and
// reconnect attempts. A nil logger discards them.
func (c *Client) SetLogger(logger Logger) {
	c.hooksMu.Lock()
	c.logger = logger
	c.hooksMu.Unlock()
}

type noopLogger struct{}

func (noopLogger) Error(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// log returns the configured logger, or a no-op logger.
func (c *Client) log() Logger {
	c.hooksMu.RLock()
	defer c.hooksMu.RUnlock()
	if c.logger == nil {
		return noopLogger{}
	}
	return c.logger
}

// wrapHandler adapts a MessageHandler to paho, logging returned errors and
// recovering panics so one bad frame cannot kill paho's router goroutine.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.log().Error("MQTT handler panic recovered", "topic", msg.Topic(), "panic", r)
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.log().Warn("MQTT handler returned error", "topic", msg.Topic(), "error", err)
		}
	}
}

// await waits for token, mapping a timeout or broker error onto sentinel.
func await(token pahomqtt.Token, timeout time.Duration, sentinel error) error {
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("%w: timeout after %v", sentinel, timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	return nil
}
