// Package logging provides structured logging for the DVB node.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the node.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0").ForInstance("dvb", "example.org")
//	logger.Info("shard loaded", "shard_id", 8)
//
// *Logger satisfies the small Logger interfaces declared by the topology,
// node, handoff and api packages.
package logging
