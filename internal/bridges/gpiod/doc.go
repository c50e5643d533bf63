// Package gpiod bridges GPIO relays, switches and motion sensors to MQTT.
//
// Topics are per host, keyed by BCM pin number:
//
//	control/relay/<host>/<pin>      "True"/"False" command
//	sensor/gpiod/relay/<host>/<pin> relay level after each command
//	sensor/switch/<host>/<pin>      switch level on every edge
//	sensor/pir/<host>/<pin>         motion, not retained
//
// Input edges are watched on task goroutines and published from the
// session loop via Post.
package gpiod
