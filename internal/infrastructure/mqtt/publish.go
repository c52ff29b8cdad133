package mqtt

import "fmt"

// maxPayloadSize caps outgoing payloads at 1 MiB, the default limit of
// common brokers. A decoded batch larger than this is an operator problem,
// not something to split silently.
const maxPayloadSize = 1 << 20

// Publish sends payload to topic and waits for the broker to accept it.
//
// Decoded messages and decode errors are published non-retained; only the
// status topic is retained, so late subscribers never replay old frames.
//
// Parameters:
//   - topic: e.g. Topics{}.Decoded("meter-17")
//   - payload: JSON, at most 1 MiB
//   - qos: 0, 1 or 2
//   - retained: whether the broker keeps the message for new subscribers
//
// Returns:
//   - error: ErrInvalidTopic, ErrInvalidQoS, ErrNotConnected, or wrapping ErrPublishFailed
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := checkTopicQoS(topic, qos); err != nil {
		return err
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: %d byte payload exceeds %d", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	return await(c.paho.Publish(topic, qos, retained, payload), ackTimeout, ErrPublishFailed)
}
