// Package mqtt provides the broker connection of a DVB node.
//
// This package manages:
//   - Connection to the deployment broker with auto-reconnect
//   - Retained entry announcements for device-control peers
//   - Subscriptions (resolve requests) restored after a reconnect
//   - A retained node status with a last will for offline detection
//
// # Topics
//
// Every topic lives under ose/{space}/:
//
//	ose/{space}/{shard_alias}/entry/{alias}    retained entry announcement
//	ose/{space}/node/{instance}/status         retained online/offline status
//	ose/{space}/node/{instance}/resolve        resolve requests
//	ose/{space}/node/{instance}/resolve/{id}   resolve replies
//
// # Security Considerations
//
//   - Enable TLS (cfg.Broker.TLS) when the broker is not on the local host
//   - Anonymous access is only for local development
//
// # Usage
//
//	topics := mqtt.Topics{Space: cfg.Instance.Space, Instance: cfg.Instance.Name}
//	client, err := mqtt.Connect(ctx, cfg.MQTT, topics)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishRetained(topics.Entry("dvb", "dvbstreamer"), payload)
package mqtt
