// Package mqtt connects the CTI proxy to an MQTT broker.
//
// The relay publishes every domain event and the latest entity state here,
// and integrations publish command requests that the proxy executes
// against the PBX:
//
//	PBX (AMI) ↔ CTI proxy ↔ MQTT broker ↔ integrations
//
// This package manages:
//   - Connection with auto-reconnect and exponential backoff
//   - Last Will and Testament on ctiproxy/system/status
//   - Subscriptions restored after reconnects
//   - Panic recovery around message handlers
//
// # Security Considerations
//
//   - Enable TLS (cfg.Broker.TLS) outside a trusted network
//   - Command topics can place calls; restrict them with broker ACLs
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishJSON(mqtt.Topics{}.Event("conversationDialing"), ev, false)
package mqtt
