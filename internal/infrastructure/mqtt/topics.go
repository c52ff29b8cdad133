package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for the DLMS frame bus.
//
// Meters (or their head-end gateways) publish raw hex frames on
// dlms/raw/{meter}. Decoded messages and decode failures are published
// back under the same meter segment.
const (
	// TopicPrefix is the root of every topic this service touches.
	TopicPrefix = "dlms"

	// TopicPrefixSystem is the base for service status topics.
	TopicPrefixSystem = TopicPrefix + "/system"
)

// Topics provides builders for the DLMS MQTT topics.
//
//	topics := mqtt.Topics{}
//	decoded := topics.Decoded("meter-17")
//	// Returns: "dlms/decoded/meter-17"
type Topics struct{}

// Raw returns the topic a meter publishes raw frames on.
//
// Example: dlms/raw/meter-17
func (Topics) Raw(meter string) string {
	return fmt.Sprintf("%s/raw/%s", TopicPrefix, meter)
}

// Decoded returns the topic decoded message JSON is published on.
//
// Example: dlms/decoded/meter-17
func (Topics) Decoded(meter string) string {
	return fmt.Sprintf("%s/decoded/%s", TopicPrefix, meter)
}

// Errors returns the topic decode failures are published on.
//
// Example: dlms/errors/meter-17
func (Topics) Errors(meter string) string {
	return fmt.Sprintf("%s/errors/%s", TopicPrefix, meter)
}

// SystemStatus returns the service status topic (online/offline, LWT).
//
// Example: dlms/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// AllRaw returns a pattern matching raw frames from every meter.
//
// Pattern: dlms/raw/+
func (Topics) AllRaw() string {
	return TopicPrefix + "/raw/+"
}

// MeterFromTopic returns the last level of a topic, which carries the
// meter identifier in every per-meter topic. It returns "" for topics
// without a usable last level.
//
//	MeterFromTopic("dlms/raw/meter-17") // "meter-17"
func MeterFromTopic(topic string) string {
	i := strings.LastIndexByte(topic, '/')
	if i < 0 || i == len(topic)-1 {
		return ""
	}
	meter := topic[i+1:]
	if meter == "+" || meter == "#" {
		return ""
	}
	return meter
}
