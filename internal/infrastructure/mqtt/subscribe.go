package mqtt

import (
	"fmt"
	"sync"
)

type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// subscriptionSet remembers active subscriptions so they can be replayed
// after a reconnect. The zero value is empty and ready to use.
type subscriptionSet struct {
	mu     sync.RWMutex
	byName map[string]subscription
}

func (s *subscriptionSet) put(sub subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.byName == nil {
		s.byName = make(map[string]subscription)
	}
	s.byName[sub.topic] = sub
}

func (s *subscriptionSet) remove(topic string) {
	s.mu.Lock()
	delete(s.byName, topic)
	s.mu.Unlock()
}

func (s *subscriptionSet) has(topic string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byName[topic]
	return ok
}

func (s *subscriptionSet) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byName)
}

func (s *subscriptionSet) snapshot() []subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]subscription, 0, len(s.byName))
	for _, sub := range s.byName {
		out = append(out, sub)
	}
	return out
}

// Subscribe registers handler for topic, which may contain + and #
// wildcards (Topics.AllRaw subscribes to every meter). The subscription
// is replayed automatically after a reconnect.
//
// Parameters:
//   - topic: topic filter
//   - qos: maximum QoS for delivered messages (0-2)
//   - handler: invoked once per message on a paho goroutine
//
// Returns:
//   - error: ErrInvalidTopic, ErrInvalidQoS, ErrNotConnected, or wrapping ErrSubscribeFailed
//
// Example:
//
//	err := client.Subscribe(mqtt.Topics{}.AllRaw(), 1,
//	    func(topic string, payload []byte) error {
//	        return decode(mqtt.MeterFromTopic(topic), payload)
//	    })
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if err := checkTopicQoS(topic, qos); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler for %s", ErrSubscribeFailed, topic)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	err := await(c.paho.Subscribe(topic, qos, c.wrapHandler(handler)), ackTimeout, ErrSubscribeFailed)
	if err != nil {
		return err
	}
	c.subs.put(subscription{topic: topic, qos: qos, handler: handler})
	return nil
}

// Unsubscribe drops topic, which must match a Subscribe call exactly.
// Messages already in flight may still reach the old handler.
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.subs.remove(topic)
	return await(c.paho.Unsubscribe(topic), ackTimeout, ErrUnsubscribeFailed)
}

// SubscriptionCount returns the number of subscriptions replayed on reconnect.
func (c *Client) SubscriptionCount() int {
	return c.subs.count()
}

// checkTopicQoS validates the arguments shared by Publish and Subscribe.
func checkTopicQoS(topic string, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	return nil
}
