package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the root of every topic the service publishes or consumes.
const TopicPrefix = "autovolume"

// Topics provides builders for the service's MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.DeviceStatus("esp32-a1b2c3")
//	// Returns: "autovolume/device/esp32-a1b2c3/status"
type Topics struct{}

// ServiceStatus is the retained online/offline topic for this process.
// The broker publishes the LWT here on unexpected disconnect.
func (Topics) ServiceStatus() string {
	return TopicPrefix + "/service/status"
}

// DeviceStatus is the retained presence topic for one sensor device.
func (Topics) DeviceStatus(identity string) string {
	return fmt.Sprintf("%s/device/%s/status", TopicPrefix, identity)
}

// ZoneVolume carries one event per successful volume change on a zone.
func (Topics) ZoneVolume(zoneID string) string {
	return fmt.Sprintf("%s/zone/%s/volume", TopicPrefix, zoneID)
}

// DeviceCommand is where operators publish commands for one device.
func (Topics) DeviceCommand(identity string) string {
	return fmt.Sprintf("%s/command/device/%s", TopicPrefix, identity)
}

// AllDeviceCommands matches DeviceCommand for every device.
func (Topics) AllDeviceCommands() string {
	return TopicPrefix + "/command/device/+"
}

// AllTopics matches everything under the prefix. Useful for debugging.
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}

// DeviceFromCommandTopic extracts the device identity from a topic produced
// by DeviceCommand.
func (Topics) DeviceFromCommandTopic(topic string) (string, bool) {
	identity, ok := strings.CutPrefix(topic, TopicPrefix+"/command/device/")
	if !ok || identity == "" || strings.Contains(identity, "/") {
		return "", false
	}
	return identity, true
}
