package mqtt

import "errors"

// Sentinel errors. Broker-side failures wrap ErrPublishFailed,
// ErrSubscribeFailed or ErrUnsubscribeFailed with the paho error.
var (
	ErrNotConnected      = errors.New("mqtt: not connected to broker")
	ErrConnectionFailed  = errors.New("mqtt: cannot reach broker")
	ErrPublishFailed     = errors.New("mqtt: publish rejected")
	ErrSubscribeFailed   = errors.New("mqtt: subscribe rejected")
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe rejected")

	// ErrInvalidQoS is returned for QoS levels above 2.
	ErrInvalidQoS = errors.New("mqtt: qos must be 0, 1 or 2")

	// ErrInvalidTopic is returned for an empty topic or filter.
	ErrInvalidTopic = errors.New("mqtt: empty topic")
)
