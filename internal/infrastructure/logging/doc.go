// Package logging provides structured logging for sensor2mqtt.
//
// This package wraps Go's standard log/slog package so every component
// logs with the same shape and default fields.
//
// # Features
//
//   - Text output (default) or JSON output
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error, critical)
//   - A CRITICAL level for plant state that contradicts commanded state
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error, critical
//	  format: "text"     # text, json
//	  output: "stderr"   # stderr, stdout
//
// debug: true at the top level of the config forces the debug level.
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("connected", "broker", addr)
//	logger.Critical("switch disagrees with relay", "zone", key)
//
// Never log MQTT passwords or InfluxDB tokens.
package logging
