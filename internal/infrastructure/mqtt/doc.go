// Package mqtt connects the auto-volume service to an MQTT broker.
//
// The broker is optional. When enabled it carries four kinds of traffic:
//
//	autovolume/service/status              retained, LWT-backed
//	autovolume/device/{identity}/status    retained device presence
//	autovolume/zone/{zoneId}/volume        one event per volume change
//	autovolume/command/device/{identity}   operator commands, inbound
//
// # Security Considerations
//
//   - Enable TLS (cfg.Broker.TLS) outside a private network
//   - Command topics should be write-restricted by the broker ACL
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllDeviceCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        identity, _ := mqtt.Topics{}.DeviceFromCommandTopic(topic)
//	        return gw.HandleCommand(identity, payload)
//	    })
package mqtt
