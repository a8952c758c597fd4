// Package logging provides structured logging for ConsultEase Core.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the message bus and its collaborators.
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
//	logger := logging.New(cfg.Logging, version)
//	bus.SetLogger(logger.Component("mqtt"))
//	logger.Error("failed to connect", "error", err)
//
// Never log broker passwords or InfluxDB tokens.
package logging
