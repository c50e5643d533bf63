// Package mqtt provides the broker connection for sensor2mqtt.
//
// This package manages:
//   - A single paho client per process, client id "<host>.<pid>"
//   - One-shot connection attempts (the session controller retries)
//   - Auto-reconnect with exponential backoff after the first connection
//   - Last Will and Testament plus a retained online/offline notice
//   - Topic builders for the per-host and named topic trees
//
// # Architecture
//
// The session controller is the only user of Client. It installs three
// callbacks (connect, disconnect, message) and owns the subscription set,
// replaying it after each reconnect. Client therefore keeps no
// subscription state of its own and routes every inbound message to the
// one message callback.
//
//	adapters ↔ session.Controller ↔ mqtt.Client ↔ broker
//
// # Topic layout
//
//	control/relay/<host>/<pin>          relay command (per host)
//	sensor/gpiod/relay/<host>/<pin>     relay level
//	sensor/switch/<host>/<pin>          switch level
//	sensor/pir/<host>/<pin>             motion
//	sensor/w1/temperature/<serial>      1-wire probe reading
//	named/control/heating/zone/<zone>   zone heating demand
//	named/sensor/heating/zone/<zone>    zone heating state
//	info/sensor2mqtt/<host>/status      lifecycle notice (retained)
//
// # Usage
//
//	client := mqtt.New(cfg.MQTT, host)
//	client.SetOnMessage(func(topic string, payload []byte) { ... })
//	if err := client.Connect(ctx); err != nil {
//	    // retry
//	}
//	defer client.Disconnect()
package mqtt
